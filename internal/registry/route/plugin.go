package route

import (
	"sort"
	"sync"

	"github.com/chirino/messaging-service/internal/config"
	registrystore "github.com/chirino/messaging-service/internal/registry/store"
	"github.com/gin-gonic/gin"
)

// Deps holds what route plugins need once the store has been initialized.
type Deps struct {
	Config *config.Config
	Store  registrystore.MessagingStore
	// Auth authenticates the caller and resolves it to a stored user.
	Auth []gin.HandlerFunc
}

// RouterLoader initializes routes on the gin engine.
type RouterLoader func(r *gin.Engine, deps Deps) error

// RouteType distinguishes which server a plugin's routes belong to.
type RouteType int

const (
	// RouteTypeMain registers routes on the main API server.
	RouteTypeMain RouteType = iota
	// RouteTypeManagement registers routes on the management server (health, metrics).
	// When no dedicated management port is configured, these are mounted on the main server.
	RouteTypeManagement
)

// Plugin represents a route plugin with an order for deterministic mount sequence.
type Plugin struct {
	Name   string
	Order  int
	Type   RouteType
	Loader RouterLoader
}

var (
	mu       sync.Mutex
	plugins  []Plugin
	isSorted bool
)

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	mu.Lock()
	defer mu.Unlock()
	plugins = append(plugins, p)
	isSorted = false
}

func sorted() []Plugin {
	mu.Lock()
	defer mu.Unlock()
	if !isSorted {
		sort.SliceStable(plugins, func(i, j int) bool { return plugins[i].Order < plugins[j].Order })
		isSorted = true
	}
	out := make([]Plugin, len(plugins))
	copy(out, plugins)
	return out
}

// MainRouteLoaders returns loaders for RouteTypeMain plugins, sorted by order.
func MainRouteLoaders() []RouterLoader {
	return loadersOf(RouteTypeMain)
}

// ManagementRouteLoaders returns loaders for RouteTypeManagement plugins, sorted by order.
func ManagementRouteLoaders() []RouterLoader {
	return loadersOf(RouteTypeManagement)
}

func loadersOf(t RouteType) []RouterLoader {
	var loaders []RouterLoader
	for _, p := range sorted() {
		if p.Type == t {
			loaders = append(loaders, p.Loader)
		}
	}
	return loaders
}
