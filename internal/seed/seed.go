// Package seed loads the initial inventory catalogue from a YAML file.
// Seeding only happens against an empty inventory so restarts never
// duplicate or reset stock levels.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fieldops-ai/fieldops/internal/fieldops"
	"github.com/fieldops-ai/fieldops/internal/store"
)

// Item is one seed catalogue entry.
type Item struct {
	Name     string  `yaml:"name"`
	Quantity int     `yaml:"quantity"`
	UnitCost float64 `yaml:"unit_cost"`

	// Threshold is the optional per-item low-stock override.
	Threshold int `yaml:"threshold,omitempty"`
}

// File is the seed document: a flat list of items.
type File struct {
	Items []Item `yaml:"items"`
}

// Apply seeds st from the YAML file at path. When the inventory already
// holds any item the seed is skipped entirely. Returns the number of items
// created.
func Apply(ctx context.Context, st store.Store, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("seed: open %s: %w", path, err)
	}
	defer f.Close()
	return ApplyFromReader(ctx, st, f)
}

// ApplyFromReader is [Apply] over an already-open seed document.
func ApplyFromReader(ctx context.Context, st store.Store, r io.Reader) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("seed: read: %w", err)
	}

	var doc File
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("seed: parse: %w", err)
	}

	existing, err := st.ListItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed: list inventory: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	created := 0
	for i, it := range doc.Items {
		if it.Name == "" {
			return created, fmt.Errorf("seed: item %d has no name", i)
		}
		if it.Quantity < 0 {
			return created, fmt.Errorf("seed: item %q has negative quantity %d", it.Name, it.Quantity)
		}
		item := &fieldops.InventoryItem{
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitCost:  it.UnitCost,
			Threshold: it.Threshold,
		}
		if err := st.UpsertItem(ctx, item); err != nil {
			return created, fmt.Errorf("seed: create %q: %w", it.Name, err)
		}
		created++
	}
	return created, nil
}
