package engines

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/kettle/internal/server"
)

// DefaultEngine is the engine kettlectl runs when none is configured.
const DefaultEngine = "log"

var (
	mu       sync.RWMutex
	registry = map[string]server.EngineFactory{}
)

func init() {
	Register(DefaultEngine, server.LogEngine)
}

// Register binds name to factory, replacing any earlier binding.
func Register(name string, factory server.EngineFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || factory == nil {
		panic("engines: Register requires a name and a factory")
	}
	mu.Lock()
	defer mu.Unlock()
	registry[name] = factory
}

func Get(name string) (server.EngineFactory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// Lookup is Get with an error naming the registered engines.
func Lookup(name string) (server.EngineFactory, error) {
	if f, ok := Get(name); ok {
		return f, nil
	}
	return nil, fmt.Errorf("engines: unknown engine %q (registered: %s)", name, strings.Join(Names(), ", "))
}

// Names returns the registered engine names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
