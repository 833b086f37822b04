// Package feeds keeps the registry of regional sales feeds that are
// unioned into the sales stream.
package feeds

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pgEdge/pgedge-starload/internal/config"
)

// Feed is one regional curated sales table.
type Feed struct {
	Name        string
	Table       string
	Country     string
	Region      string
	Currency    string
	USDRate     float64
	Description string
}

var (
	registry = make(map[string]Feed)
	mu       sync.RWMutex
)

// Register adds a feed to the registry, replacing any feed of the same
// name.
func Register(f Feed) {
	mu.Lock()
	defer mu.Unlock()
	registry[f.Name] = f
}

// Get retrieves a feed by name.
func Get(name string) (Feed, error) {
	mu.RLock()
	defer mu.RUnlock()

	f, ok := registry[name]
	if !ok {
		return Feed{}, fmt.Errorf("unknown feed: %s", name)
	}
	return f, nil
}

// List returns all registered feed names in sorted order.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all registered feeds sorted by name.
func All() []Feed {
	mu.RLock()
	defer mu.RUnlock()

	all := make([]Feed, 0, len(registry))
	for _, f := range registry {
		all = append(all, f)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// Reset empties the registry.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	registry = make(map[string]Feed)
}

// Load replaces the registry contents with the configured sources.
func Load(sources []config.SourceConfig) {
	mu.Lock()
	defer mu.Unlock()
	registry = make(map[string]Feed, len(sources))
	for _, s := range sources {
		registry[s.Name] = Feed{
			Name:        s.Name,
			Table:       s.Table,
			Country:     s.Country,
			Region:      s.Region,
			Currency:    s.Currency,
			USDRate:     s.USDRate,
			Description: s.Description,
		}
	}
}

// Tables returns the table of every registered feed, ordered by feed
// name.
func Tables() []string {
	all := All()
	tables := make([]string, len(all))
	for i, f := range all {
		tables[i] = f.Table
	}
	return tables
}

func init() {
	Load(config.DefaultSources())
}
