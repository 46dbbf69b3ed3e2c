package partitioned

import (
	"fmt"

	"github.com/wehubfusion/Daedalus/pkg/dataset"
	"github.com/wehubfusion/Daedalus/pkg/dataset/modellogger"
	"github.com/wehubfusion/Daedalus/pkg/tracking"
	"go.uber.org/zap"
)

// probePartition is a throwaway partition name used to validate a template
// at construction time.
const probePartition = "check"

// NewModelLogger creates a partitioned dataset preset around the
// model-logger dataset: one model logged per partition, with the registered
// model name specialized per partition. args are the model-logger arguments
// (flavor, artifact_path, save_args, load_args); runID optionally pins the
// parent run.
//
// The template is validated immediately by building a probe partition, so a
// bad flavor or an unknown argument fails here rather than mid-save.
func NewModelLogger(store tracking.Store, registry *dataset.Registry, args map[string]interface{}, runID string, opts ...Option) (*Dataset, error) {
	template := dataset.Config{
		Type:          modellogger.Type,
		Args:          args,
		RunID:         runID,
		DynamicParams: []string{modellogger.RegisteredModelNameParam},
	}

	d, err := New(store, registry, template, opts...)
	if err != nil {
		return nil, err
	}

	if _, err := template.Build(registry, store, zap.NewNop(), probePartition, nil); err != nil {
		return nil, fmt.Errorf("invalid model-logger template: %w", err)
	}

	return d, nil
}
