// Package catalog parses a YAML catalog of named dataset entries and
// materializes them into dataset instances. The catalog is the descriptor
// the concurrency hook scans to learn which declared outputs are backed by
// the partitioned dataset type.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wehubfusion/Daedalus/pkg/dataset"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/partitioned"
	"github.com/wehubfusion/Daedalus/pkg/tracking"
)

// Entry declares one named dataset.
type Entry struct {
	// Type is the dataset type keyword; "partitioned" wraps an inner
	// dataset template.
	Type string `yaml:"type"`

	// Args are the constructor arguments. For partitioned entries the
	// "dataset" key holds the inner template (type + args).
	Args map[string]interface{} `yaml:"args"`

	// RunID optionally pins the parent run for partitioned entries.
	RunID string `yaml:"run_id"`

	// DynamicParams lists flattened argument paths specialized per
	// partition for partitioned entries.
	DynamicParams []string `yaml:"dynamic_params"`
}

// Catalog holds parsed entries and, after Materialize, their dataset
// instances.
type Catalog struct {
	entries  map[string]Entry
	names    []string
	datasets map[string]interface{}
}

// Parse reads a catalog from YAML. The document is a mapping of dataset
// names to entries; unknown entry fields fail fast.
func Parse(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	entries := make(map[string]Entry)
	if err := dec.Decode(&entries); err != nil && !errors.Is(err, io.EOF) {
		return nil, sdkerrors.NewError("CATALOG_CONFIG",
			fmt.Sprintf("failed to parse catalog: %v", err), nil)
	}

	names := make([]string, 0, len(entries))
	for name, entry := range entries {
		if entry.Type == "" {
			return nil, sdkerrors.NewError("CATALOG_CONFIG",
				fmt.Sprintf("catalog entry '%s' has no dataset type", name), nil)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	return &Catalog{
		entries:  entries,
		names:    names,
		datasets: make(map[string]interface{}),
	}, nil
}

// Load reads and parses a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog '%s': %w", path, err)
	}
	return Parse(data)
}

// Names returns the declared dataset names in sorted order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Entry returns the declaration for a name.
func (c *Catalog) Entry(name string) (Entry, bool) {
	entry, ok := c.entries[name]
	return entry, ok
}

// Get returns the materialized dataset registered under a name.
func (c *Catalog) Get(name string) (interface{}, bool) {
	ds, ok := c.datasets[name]
	return ds, ok
}

// Register attaches a dataset instance built outside Materialize.
func (c *Catalog) Register(name string, ds interface{}) {
	c.datasets[name] = ds
	if _, declared := c.entries[name]; !declared {
		c.names = append(c.names, name)
		sort.Strings(c.names)
	}
}

// Materialize constructs every declared dataset. Partitioned entries become
// *partitioned.Dataset around their inner template; other entries are built
// directly through the registry.
func (c *Catalog) Materialize(store tracking.Store, registry *dataset.Registry, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, name := range c.names {
		entry := c.entries[name]

		if entry.Type == partitioned.Type {
			template, err := innerTemplate(name, entry)
			if err != nil {
				return err
			}
			ds, err := partitioned.New(store, registry, template, partitioned.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("failed to materialize catalog entry '%s': %w", name, err)
			}
			c.datasets[name] = ds
			continue
		}

		ds, err := registry.Build(entry.Type, dataset.BuildParams{
			Store:  store,
			Logger: logger,
			Args:   entry.Args,
		})
		if err != nil {
			return fmt.Errorf("failed to materialize catalog entry '%s': %w", name, err)
		}
		c.datasets[name] = ds
	}
	return nil
}

func innerTemplate(name string, entry Entry) (dataset.Config, error) {
	inner, ok := entry.Args["dataset"].(map[string]interface{})
	if !ok {
		return dataset.Config{}, sdkerrors.NewError("CATALOG_CONFIG",
			fmt.Sprintf("partitioned entry '%s' needs an args.dataset template", name), nil)
	}

	innerType, _ := inner["type"].(string)
	if innerType == "" {
		return dataset.Config{}, sdkerrors.NewError("CATALOG_CONFIG",
			fmt.Sprintf("partitioned entry '%s' has no inner dataset type", name), nil)
	}

	args, _ := inner["args"].(map[string]interface{})

	return dataset.Config{
		Type:          innerType,
		Args:          args,
		RunID:         entry.RunID,
		DynamicParams: entry.DynamicParams,
	}, nil
}
