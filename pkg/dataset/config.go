package dataset

import (
	"fmt"

	"go.uber.org/zap"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/keypath"
	"github.com/wehubfusion/Daedalus/pkg/naming"
	"github.com/wehubfusion/Daedalus/pkg/tracking"
)

// RunIDArg is the flattened argument key carrying a run id override into a
// concrete dataset build.
const RunIDArg = "run_id"

// Config is a dataset template: the type keyword plus constructor arguments,
// with certain flattened argument paths marked dynamic. Dynamic paths hold a
// path fragment that is specialized per partition by joining it with the
// partition's normalized name.
//
// The template itself is never mutated: every Build flattens a merged copy,
// patches it and unflattens into a fresh argument map.
type Config struct {
	// Type is the dataset type keyword resolved through the registry.
	Type string `yaml:"type" json:"type"`

	// Args are the constructor arguments for the concrete dataset.
	Args map[string]interface{} `yaml:"args" json:"args"`

	// RunID optionally pins the parent run the dataset operates under.
	RunID string `yaml:"run_id" json:"run_id,omitempty"`

	// DynamicParams lists the flattened argument paths (dot-separated)
	// specialized per partition, e.g. save_args.registered_model_name.
	DynamicParams []string `yaml:"dynamic_params" json:"dynamic_params,omitempty"`
}

// Build instantiates the concrete dataset for one partition. extra arguments
// are merged over the template (extra wins); every dynamic parameter present
// in the flattened arguments is replaced by joining the partition name with
// the original fragment, partition first.
func (c Config) Build(registry *Registry, store tracking.Store, logger *zap.Logger, partition string, extra map[string]interface{}) (Dataset, error) {
	if registry == nil {
		return nil, fmt.Errorf("dataset registry cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	merged := make(map[string]interface{}, len(c.Args)+len(extra))
	for k, v := range c.Args {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}

	flat := keypath.Flatten(merged, true, keypath.DefaultSeparator)

	for _, param := range c.DynamicParams {
		value, ok := flat[param]
		if !ok {
			continue
		}
		fragment, ok := value.(string)
		if !ok {
			return nil, sdkerrors.NewError("DATASET_CONFIG",
				fmt.Sprintf("dynamic parameter '%s' must be a string, got %T", param, value), nil)
		}
		flat[param] = naming.Subname(partition, fragment)
	}

	args := keypath.Unflatten(flat, keypath.DefaultSeparator)

	return registry.Build(c.Type, BuildParams{
		Store:  store,
		Logger: logger,
		Args:   args,
	})
}
