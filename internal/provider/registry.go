package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a provider for one mail system from its DSN/config string.
type Factory func(dsn string) (MailChangeProvider, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a provider implementation available by name, in the
// manner of database/sql drivers. Implementations live outside this
// repository and register from their init functions.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		panic("provider: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("provider: Register called twice for " + name)
	}
	registry[name] = factory
}

// Open builds the named provider.
func Open(name, dsn string) (MailChangeProvider, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider: unknown provider %q (registered: %v)", name, names())
	}
	return factory(dsn)
}

func names() []string {
	var out []string
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
