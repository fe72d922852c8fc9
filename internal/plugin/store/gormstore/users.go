package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chirino/messaging-service/internal/model"
	registrystore "github.com/chirino/messaging-service/internal/registry/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NormalizeEmail trims surrounding space and lower-cases the domain part.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

func (s *Store) CreateUser(ctx context.Context, req registrystore.CreateUserRequest) (*model.User, error) {
	email := NormalizeEmail(req.Email)
	if at := strings.LastIndex(email, "@"); at <= 0 || at == len(email)-1 {
		return nil, &ValidationError{Field: "email", Message: "must be a valid email address"}
	}
	firstName := strings.TrimSpace(req.FirstName)
	if firstName == "" {
		return nil, &ValidationError{Field: "firstName", Message: "is required"}
	}
	lastName := strings.TrimSpace(req.LastName)
	if lastName == "" {
		return nil, &ValidationError{Field: "lastName", Message: "is required"}
	}
	role := req.Role
	if role == "" {
		role = model.RoleGuest
	}
	if !role.Valid() {
		return nil, &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q; valid: admin|guest|host", role)}
	}
	var phone *string
	if req.PhoneNumber != nil {
		if p := strings.TrimSpace(*req.PhoneNumber); p != "" {
			phone = &p
		}
	}

	user := model.User{
		ID:          uuid.New(),
		Email:       email,
		FirstName:   firstName,
		LastName:    lastName,
		Role:        role,
		PhoneNumber: phone,
		CreatedAt:   model.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Message: "a user with this email already exists", Code: "email_taken"}
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}

func (s *Store) GetUser(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	return s.loadUser(s.db.WithContext(ctx), userID)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = NormalizeEmail(email)
	var user model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "user", ID: email}
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *Store) loadUser(db *gorm.DB, userID uuid.UUID) (*model.User, error) {
	var user model.User
	if err := db.Where("id = ?", userID).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "user", ID: userID.String()}
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
