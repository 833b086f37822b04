package feeds_test

import (
	"testing"

	"github.com/pgEdge/pgedge-starload/internal/config"
	"github.com/pgEdge/pgedge-starload/internal/feeds"
)

func TestDefaultFeeds(t *testing.T) {
	defer feeds.Load(config.DefaultSources())
	feeds.Load(config.DefaultSources())

	known := map[string]string{
		"in": "in_sales_order",
		"us": "us_sales_order",
		"fr": "fr_sales_order",
	}
	for name, table := range known {
		t.Run(name, func(t *testing.T) {
			f, err := feeds.Get(name)
			if err != nil {
				t.Fatalf("Failed to get feed '%s': %v", name, err)
			}
			if f.Table != table {
				t.Errorf("Expected table '%s', got '%s'", table, f.Table)
			}
			if f.Description == "" {
				t.Error("Feed description should not be empty")
			}
		})
	}
}

func TestGetUnknownFeed(t *testing.T) {
	_, err := feeds.Get("nonexistent")
	if err == nil {
		t.Error("Expected error for nonexistent feed, got nil")
	}

	_, err = feeds.Get("")
	if err == nil {
		t.Error("Expected error for empty feed name, got nil")
	}
}

func TestListSorted(t *testing.T) {
	defer feeds.Load(config.DefaultSources())
	feeds.Load(config.DefaultSources())

	names := feeds.List()
	want := []string{"fr", "in", "us"}
	if len(names) != len(want) {
		t.Fatalf("Expected %d feeds, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Expected %s at %d, got %s", want[i], i, names[i])
		}
	}

	tables := feeds.Tables()
	if tables[0] != "fr_sales_order" || tables[2] != "us_sales_order" {
		t.Errorf("Expected tables ordered by feed name, got %v", tables)
	}
}

func TestLoadReplacesRegistry(t *testing.T) {
	defer feeds.Load(config.DefaultSources())

	feeds.Load([]config.SourceConfig{
		{Name: "de", Table: "de_sales_order", Country: "DE", Region: "EU", Currency: "EUR", USDRate: 1.08},
	})
	if got := feeds.List(); len(got) != 1 || got[0] != "de" {
		t.Errorf("Expected only 'de', got %v", got)
	}

	feeds.Register(feeds.Feed{Name: "jp", Table: "jp_sales_order"})
	if len(feeds.All()) != 2 {
		t.Errorf("Expected 2 feeds after Register, got %d", len(feeds.All()))
	}

	feeds.Reset()
	if len(feeds.List()) != 0 {
		t.Error("Expected empty registry after Reset")
	}
}
