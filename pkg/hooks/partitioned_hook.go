// Package hooks provides pipeline lifecycle hooks. The partitioned hook
// watches completed units of work for partition keys written more than once
// and pre-creates their child runs, so that concurrently executing saves
// find an existing run instead of racing to create one.
package hooks

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/naming"
	"github.com/wehubfusion/Daedalus/pkg/partitioned"
	"github.com/wehubfusion/Daedalus/pkg/runcontext"
)

// Catalog is the view of declared pipeline outputs the hook scans. Get
// returns the materialized dataset registered under a name.
type Catalog interface {
	Names() []string
	Get(name string) (interface{}, bool)
}

// PartitionedHook pre-empts duplicate child-run creation for partitioned
// outputs written concurrently. State is process-local: the set of
// race-prone output names accumulates across OnCatalogReady calls, and the
// confirmed-partition set lives for the life of the hook instance.
//
// The host must invoke OnUnitComplete once per completed unit; invocations
// may come from any goroutine, the hook synchronizes its own state.
type PartitionedHook struct {
	mu        sync.Mutex
	logger    *zap.Logger
	stack     *runcontext.Stack
	datasets  map[string]*partitioned.Dataset
	confirmed map[string]struct{}
}

// NewPartitionedHook creates a hook. stack is the host's ambient run
// context used for parent resolution; it may be nil when every partitioned
// dataset pins its parent run explicitly.
func NewPartitionedHook(stack *runcontext.Stack, logger *zap.Logger) *PartitionedHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PartitionedHook{
		logger:    logger,
		stack:     stack,
		datasets:  make(map[string]*partitioned.Dataset),
		confirmed: make(map[string]struct{}),
	}
}

// OnCatalogReady scans the declared outputs and records those backed by the
// partitioned dataset type as race-prone.
func (h *PartitionedHook) OnCatalogReady(catalog Catalog) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, name := range catalog.Names() {
		ds, ok := catalog.Get(name)
		if !ok {
			continue
		}
		if pd, ok := ds.(*partitioned.Dataset); ok {
			h.datasets[name] = pd
			h.logger.Debug("tracking race-prone output", zap.String("output", name))
		}
	}
}

// OnUnitComplete inspects one completed unit's outputs, keyed output name to
// partition key to payload. When concurrent execution is on, any partition
// key written to more than one race-prone output by this unit — and not yet
// confirmed running — gets its child run resolved ahead of the saves.
func (h *PartitionedHook) OnUnitComplete(ctx context.Context, outputs map[string]map[string]interface{}, concurrent bool) error {
	if !concurrent {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int)
	for name := range h.datasets {
		for key := range outputs[name] {
			counts[naming.Normalize(key)]++
		}
	}

	problematic := make(map[string]struct{})
	for key, n := range counts {
		if n <= 1 {
			continue
		}
		if _, done := h.confirmed[key]; done {
			continue
		}
		problematic[key] = struct{}{}
	}
	if len(problematic) == 0 {
		return nil
	}

	for name, ds := range h.datasets {
		for key := range outputs[name] {
			normalized := naming.Normalize(key)
			if _, hit := problematic[normalized]; !hit {
				continue
			}
			runID, err := ds.ResolveChild(ctx, h.stack, normalized)
			if err != nil {
				return err
			}
			h.confirmed[normalized] = struct{}{}
			delete(problematic, normalized)
			h.logger.Info("pre-created child run for racing partition",
				zap.String("output", name),
				zap.String("partition", normalized),
				zap.String("run_id", runID))
		}
	}
	return nil
}

// Confirmed reports whether a partition key has already been pre-resolved.
func (h *PartitionedHook) Confirmed(partitionKey string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.confirmed[naming.Normalize(partitionKey)]
	return ok
}
