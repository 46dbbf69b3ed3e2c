package registry

import (
	"github.com/wehubfusion/Daedalus/pkg/dataset"
	"github.com/wehubfusion/Daedalus/pkg/dataset/metrics"
	"github.com/wehubfusion/Daedalus/pkg/dataset/modellogger"
)

// NewRegistry creates a dataset registry with all built-in datasets registered
func NewRegistry() *dataset.Registry {
	registry := dataset.NewRegistry()

	// Register the model-logger dataset
	registry.Register(modellogger.NewBuilder())

	// Register the metrics dataset
	registry.Register(metrics.NewBuilder())

	return registry
}
