package security

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/messaging-service/internal/config"
	"github.com/chirino/messaging-service/internal/model"
	registrystore "github.com/chirino/messaging-service/internal/registry/store"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyEmail is the gin context key for the authenticated caller email.
	ContextKeyEmail = "callerEmail"
	// ContextKeyUser is the gin context key for the resolved *model.User.
	ContextKeyUser = "user"
	// ContextKeyRoles is the gin context key for resolved caller roles.
	ContextKeyRoles = "roles"
	// ContextKeyIsAdmin is the gin context key for admin authorization.
	ContextKeyIsAdmin = "isAdmin"
)

const RoleAdmin = "admin"

// HeaderUserEmail carries the caller identity in testing mode.
const HeaderUserEmail = "X-User-Email"

// Identity holds the resolved caller identity from a bearer token.
type Identity struct {
	Email   string
	Roles   map[string]bool
	IsAdmin bool
}

// TokenResolver resolves bearer tokens to caller identities. It is initialized
// once at startup and shared by every authenticated route.
type TokenResolver struct {
	verifier      *oidc.IDTokenVerifier
	adminOIDCRole string
	adminUsers    map[string]bool
	testingMode   bool
}

// NewTokenResolver creates a TokenResolver from the application config. It performs
// one-time OIDC provider discovery if OIDCIssuer is configured.
func NewTokenResolver(cfg *config.Config) *TokenResolver {
	var verifier *oidc.IDTokenVerifier
	oidcIssuer := cfg.OIDCIssuer

	if oidcIssuer != "" {
		ctx := context.Background()
		expectedIssuer := oidcIssuer
		discoveryURL := cfg.OIDCDiscoveryURL
		if discoveryURL != "" && discoveryURL != oidcIssuer {
			// NewProvider fetches from its issuer arg, so pass the discovery URL there and
			// accept the mismatched issuer in the discovery document.
			ctx = oidc.InsecureIssuerURLContext(ctx, oidcIssuer)
			oidcIssuer = discoveryURL
		}
		provider, err := oidc.NewProvider(ctx, oidcIssuer)
		if err != nil {
			log.Error("Failed to initialize OIDC provider; falling back to bearer email auth", "issuer", oidcIssuer, "err", err)
		} else {
			// Tokens carry the external issuer, so verify against it rather than the
			// issuer reported by the internal discovery document.
			var providerClaims struct {
				JWKSURI string `json:"jwks_uri"`
			}
			if expectedIssuer != oidcIssuer {
				if err := provider.Claims(&providerClaims); err == nil && providerClaims.JWKSURI != "" {
					keySet := oidc.NewRemoteKeySet(ctx, providerClaims.JWKSURI)
					verifier = oidc.NewVerifier(expectedIssuer, keySet, &oidc.Config{
						SkipClientIDCheck: true,
					})
				}
			}
			if verifier == nil {
				verifier = provider.Verifier(&oidc.Config{
					SkipClientIDCheck: true,
				})
			}
			log.Info("OIDC auth enabled", "issuer", expectedIssuer)
		}
	}

	adminOIDCRole := strings.TrimSpace(cfg.AdminOIDCRole)
	if adminOIDCRole == "" {
		adminOIDCRole = RoleAdmin
	}

	return &TokenResolver{
		verifier:      verifier,
		adminOIDCRole: adminOIDCRole,
		adminUsers:    cfg.AdminUserSet(),
		testingMode:   cfg.Mode == config.ModeTesting,
	}
}

var (
	errInvalidJWT      = errors.New("invalid JWT")
	errMissingIdentity = errors.New("missing caller identity")
)

// Resolve resolves a bearer token into a caller Identity. Without OIDC the
// token itself is the caller's email. emailHeader is only honoured in testing
// mode and only when no bearer token was sent.
func (r *TokenResolver) Resolve(ctx context.Context, bearerToken, emailHeader string) (*Identity, error) {
	roles := map[string]bool{}
	var email string

	if r.verifier != nil && strings.Count(bearerToken, ".") >= 2 {
		idToken, err := r.verifier.Verify(ctx, bearerToken)
		if err != nil {
			return nil, errors.Join(errInvalidJWT, err)
		}
		var claims struct {
			Email             string `json:"email"`
			PreferredUsername string `json:"preferred_username"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return nil, errors.Join(errInvalidJWT, err)
		}
		email = claims.Email
		if email == "" && strings.Contains(claims.PreferredUsername, "@") {
			email = claims.PreferredUsername
		}
		var rawClaims map[string]any
		if err := idToken.Claims(&rawClaims); err == nil {
			if extractTokenRoles(rawClaims)[r.adminOIDCRole] {
				roles[RoleAdmin] = true
			}
		}
	} else {
		email = bearerToken
	}
	if email == "" && r.testingMode {
		email = emailHeader
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errMissingIdentity
	}

	if r.adminUsers[strings.ToLower(email)] {
		roles[RoleAdmin] = true
	}
	return &Identity{
		Email:   email,
		Roles:   roles,
		IsAdmin: roles[RoleAdmin],
	}, nil
}

// --- Gin HTTP middleware ---

// GetEmail returns the authenticated caller email from the gin context.
func GetEmail(c *gin.Context) string {
	return c.GetString(ContextKeyEmail)
}

// CurrentUser returns the stored user resolved by RequireUser.
func CurrentUser(c *gin.Context) *model.User {
	v, _ := c.Get(ContextKeyUser)
	u, _ := v.(*model.User)
	return u
}

// IsAdmin returns true if the request is from an admin.
func IsAdmin(c *gin.Context) bool {
	v, _ := c.Get(ContextKeyIsAdmin)
	b, _ := v.(bool)
	return b
}

// HasRole returns true if the caller has the given role.
func HasRole(c *gin.Context, role string) bool {
	v, ok := c.Get(ContextKeyRoles)
	if !ok {
		return false
	}
	roles, ok := v.(map[string]bool)
	if !ok {
		return false
	}
	return roles[role]
}

// AuthMiddleware returns a gin middleware that extracts the caller identity from
// the Authorization header using the provided TokenResolver.
func AuthMiddleware(resolver *TokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		token := ""
		if auth != "" {
			token = strings.TrimPrefix(auth, "Bearer ")
			if token == auth {
				log.Info("Auth rejected: invalid Authorization header; expected Bearer token", "method", c.Request.Method, "path", c.Request.URL.Path)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header; expected Bearer token"})
				return
			}
		} else if !resolver.testingMode {
			log.Info("Auth rejected: missing Authorization header", "method", c.Request.Method, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}

		id, err := resolver.Resolve(c.Request.Context(), token, c.GetHeader(HeaderUserEmail))
		if err != nil {
			log.Info("Auth rejected", "method", c.Request.Method, "path", c.Request.URL.Path, "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(ContextKeyEmail, id.Email)
		c.Set(ContextKeyRoles, id.Roles)
		c.Set(ContextKeyIsAdmin, id.IsAdmin)
		c.Next()
	}
}

// UserLookup finds the stored user for an authenticated email.
type UserLookup func(ctx context.Context, email string) (*model.User, error)

// RequireUser resolves the authenticated email to a stored user. Callers
// without an account are rejected. Users with the admin role are treated as
// admins regardless of token roles.
func RequireUser(lookup UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := lookup(c.Request.Context(), GetEmail(c))
		if err != nil {
			var notFound *registrystore.NotFoundError
			if errors.As(err, &notFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no account for authenticated caller"})
				return
			}
			log.Error("User lookup failed", "email", GetEmail(c), "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		c.Set(ContextKeyUser, user)
		if user.Role == model.RoleAdmin {
			c.Set(ContextKeyIsAdmin, true)
		}
		c.Next()
	}
}

// Authenticate returns the middleware chain that resolves the bearer token and
// then the stored user behind it.
func Authenticate(resolver *TokenResolver, lookup UserLookup) []gin.HandlerFunc {
	return []gin.HandlerFunc{AuthMiddleware(resolver), RequireUser(lookup)}
}

// RequireAdminRole requires the caller to have admin role.
func RequireAdminRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// --- helpers ---

func extractTokenRoles(claims map[string]any) map[string]bool {
	result := map[string]bool{}
	addList := func(values []string) {
		for _, v := range values {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			result[v] = true
		}
	}

	addList(toStringSlice(claims["roles"]))
	addList(toStringSlice(claims["groups"]))

	if scope, ok := claims["scope"].(string); ok {
		addList(strings.Fields(scope))
	}

	// Keycloak-style realm_access.roles.
	if realm, ok := claims["realm_access"].(map[string]any); ok {
		addList(toStringSlice(realm["roles"]))
	}

	return result
}

func toStringSlice(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	default:
		var out []string
		if data, err := json.Marshal(v); err == nil {
			_ = json.Unmarshal(data, &out)
		}
		return out
	}
}
