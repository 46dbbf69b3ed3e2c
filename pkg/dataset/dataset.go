// Package dataset defines the dataset abstraction and the registry that
// instantiates concrete datasets from configuration. A dataset is the
// per-partition unit of save/load work; the registry maps a dataset type
// keyword to a builder so catalogs can declare datasets by name.
package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/tracking"
)

// Dataset saves and loads one partition's payload against the tracking store.
type Dataset interface {
	Save(ctx context.Context, data interface{}) error
	Load(ctx context.Context) (interface{}, error)
}

// BuildParams carries everything a builder needs to construct a dataset.
type BuildParams struct {
	Store  tracking.Store
	Logger *zap.Logger
	Args   map[string]interface{}
}

// Builder constructs datasets of one type from configuration arguments.
type Builder interface {
	// DatasetType returns the type keyword this builder handles.
	DatasetType() string

	// Build constructs a dataset from the given parameters.
	Build(params BuildParams) (Dataset, error)
}

// Registry manages builders for different dataset types.
type Registry struct {
	builders map[string]Builder
}

// NewRegistry creates an empty dataset registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// Register registers a builder under its dataset type.
func (r *Registry) Register(builder Builder) {
	r.builders[builder.DatasetType()] = builder
}

// RegisterWithName registers a builder under an additional type keyword.
func (r *Registry) RegisterWithName(builder Builder, datasetType string) {
	r.builders[datasetType] = builder
}

// Build constructs a dataset of the given type. An unregistered type is a
// construction error that names the offending type.
func (r *Registry) Build(datasetType string, params BuildParams) (Dataset, error) {
	builder, ok := r.builders[datasetType]
	if !ok {
		return nil, sdkerrors.NewError("DATASET_CONSTRUCTION",
			fmt.Sprintf("no builder registered for dataset type '%s'", datasetType),
			sdkerrors.ErrUnknownDatasetType)
	}
	return builder.Build(params)
}

// HasType checks if a builder exists for a dataset type.
func (r *Registry) HasType(datasetType string) bool {
	_, ok := r.builders[datasetType]
	return ok
}

// RegisteredTypes returns all registered dataset types.
func (r *Registry) RegisteredTypes() []string {
	types := make([]string, 0, len(r.builders))
	for datasetType := range r.builders {
		types = append(types, datasetType)
	}
	return types
}

// DecodeArgs unmarshals configuration arguments into a typed config struct.
// Unknown fields fail fast with a configuration error naming the field.
func DecodeArgs(args map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode dataset args: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if strings.Contains(err.Error(), "unknown field") {
			return sdkerrors.NewError("DATASET_CONFIG",
				fmt.Sprintf("unexpected dataset argument: %v", err), nil)
		}
		return fmt.Errorf("failed to decode dataset args: %w", err)
	}
	return nil
}
