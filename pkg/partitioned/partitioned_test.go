package partitioned_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Daedalus/pkg/dataset"
	"github.com/wehubfusion/Daedalus/pkg/dataset/modellogger"
	"github.com/wehubfusion/Daedalus/pkg/dataset/registry"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/partitioned"
	"github.com/wehubfusion/Daedalus/pkg/runcontext"
	"github.com/wehubfusion/Daedalus/pkg/tracking"
	"github.com/wehubfusion/Daedalus/pkg/tracking/memory"
)

func modelTemplate() dataset.Config {
	return dataset.Config{
		Type: modellogger.Type,
		Args: map[string]interface{}{
			"flavor": "sklearn",
			"save_args": map[string]interface{}{
				"registered_model_name": "model",
			},
		},
		DynamicParams: []string{modellogger.RegisteredModelNameParam},
	}
}

func openParent(t *testing.T, ctx context.Context, store tracking.Store) (*tracking.Run, *runcontext.Stack) {
	t.Helper()
	run, err := store.CreateRun(ctx, tracking.CreateRunOptions{Name: "training"})
	require.NoError(t, err)
	stack := runcontext.NewStack()
	stack.Push(run)
	return run, stack
}

func TestNewValidatesTemplate(t *testing.T) {
	store := memory.NewStore()
	reg := registry.NewRegistry()

	_, err := partitioned.New(nil, reg, modelTemplate())
	require.Error(t, err)

	_, err = partitioned.New(store, nil, modelTemplate())
	require.Error(t, err)

	_, err = partitioned.New(store, reg, dataset.Config{})
	require.Error(t, err)

	_, err = partitioned.New(store, reg, dataset.Config{Type: "no-such-type"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, sdkerrors.ErrUnknownDatasetType))
}

func TestSaveFansOutChildRuns(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	reg := registry.NewRegistry()
	parent, stack := openParent(t, ctx, store)

	ds, err := partitioned.New(store, reg, modelTemplate())
	require.NoError(t, err)

	err = ds.Save(ctx, stack, []partitioned.Partition{
		{Name: "fold-1", Payload: []byte("w1")},
		{Name: "fold-2", Payload: []byte("w2")},
	})
	require.NoError(t, err)

	children, err := ds.FindChildren(ctx, parent)
	require.NoError(t, err)
	require.Len(t, children, 2)
	require.Contains(t, children, "fold-1")
	require.Contains(t, children, "fold-2")

	for name, id := range children {
		child, err := store.GetRun(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, tracking.RunStatusFinished, child.Status)
		assert.Equal(t, parent.ID, child.ParentRunID())
		assert.Equal(t, name, child.Tags.Value(tracking.RunNameTag))
	}
}

func TestStartChildRunReusesExisting(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	reg := registry.NewRegistry()
	parent, _ := openParent(t, ctx, store)

	ds, err := partitioned.New(store, reg, modelTemplate())
	require.NoError(t, err)

	first, err := ds.StartChildRun(ctx, parent, "fold-1")
	require.NoError(t, err)
	second, err := ds.StartChildRun(ctx, parent, "fold-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	children, err := ds.FindChildren(ctx, parent)
	require.NoError(t, err)
	assert.Len(t, children, 1)
}

func TestChildRunParentTagIsProtected(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	reg := registry.NewRegistry()
	parent, _ := openParent(t, ctx, store)

	ds, err := partitioned.New(store, reg, modelTemplate())
	require.NoError(t, err)

	child, err := ds.StartChildRun(ctx, parent, "fold-1")
	require.NoError(t, err)

	require.NoError(t, store.SetTag(ctx, child.ID, tracking.ParentRunIDTag, "tampered"))

	reread, err := store.GetRun(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, reread.ParentRunID())
}

// flakyBuilder produces datasets that fail to save a designated payload.
type flakyBuilder struct{}

func (flakyBuilder) DatasetType() string { return "flaky" }

func (flakyBuilder) Build(params dataset.BuildParams) (dataset.Dataset, error) {
	return flakyDataset{}, nil
}

type flakyDataset struct{}

func (flakyDataset) Save(ctx context.Context, data interface{}) error {
	if data == "boom" {
		return fmt.Errorf("storage rejected payload")
	}
	return nil
}

func (flakyDataset) Load(ctx context.Context) (interface{}, error) { return nil, nil }

func TestSaveHaltsOnFirstFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	reg := registry.NewRegistry()
	reg.Register(flakyBuilder{})
	parent, stack := openParent(t, ctx, store)

	ds, err := partitioned.New(store, reg, dataset.Config{Type: "flaky"})
	require.NoError(t, err)

	err = ds.Save(ctx, stack, []partitioned.Partition{
		{Name: "fold-1", Payload: "ok"},
		{Name: "fold-2", Payload: "boom"},
		{Name: "fold-3", Payload: "ok"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fold-2")

	children, err := ds.FindChildren(ctx, parent)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.NotContains(t, children, "fold-3")

	failed, err := store.GetRun(ctx, children["fold-2"])
	require.NoError(t, err)
	assert.Equal(t, tracking.RunStatusFailed, failed.Status)

	saved, err := store.GetRun(ctx, children["fold-1"])
	require.NoError(t, err)
	assert.Equal(t, tracking.RunStatusFinished, saved.Status)
}

func TestSaveNormalizesPartitionNames(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	reg := registry.NewRegistry()
	parent, stack := openParent(t, ctx, store)

	ds, err := partitioned.New(store, reg, modelTemplate())
	require.NoError(t, err)

	err = ds.Save(ctx, stack, []partitioned.Partition{
		{Name: `folds\2026`, Payload: []byte("w")},
	})
	require.NoError(t, err)

	children, err := ds.FindChildren(ctx, parent)
	require.NoError(t, err)
	assert.Contains(t, children, "folds/2026")
}

// countingStore counts model loads so tests can observe load laziness.
type countingStore struct {
	tracking.Store

	mu    sync.Mutex
	loads int
}

func (s *countingStore) LoadModel(ctx context.Context, uri string) (*tracking.Model, error) {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()
	return s.Store.LoadModel(ctx, uri)
}

func (s *countingStore) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func TestLoadIsLazyPerPartition(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: memory.NewStore()}
	reg := registry.NewRegistry()
	_, stack := openParent(t, ctx, store)

	ds, err := partitioned.New(store, reg, modelTemplate())
	require.NoError(t, err)

	err = ds.Save(ctx, stack, []partitioned.Partition{
		{Name: "fold-1", Payload: []byte("w1")},
		{Name: "fold-2", Payload: []byte("w2")},
	})
	require.NoError(t, err)

	loaders, err := ds.Load(ctx, stack)
	require.NoError(t, err)
	require.Len(t, loaders, 2)
	assert.Equal(t, 0, store.loadCount())

	payload, err := loaders["fold-1"](ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, store.loadCount())

	model, ok := payload.(*tracking.Model)
	require.True(t, ok)
	assert.Equal(t, []byte("w1"), model.Payload)
	assert.Equal(t, "fold-1/model", model.RegisteredName)
}

func TestLoadWithoutChildrenFails(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	reg := registry.NewRegistry()
	_, stack := openParent(t, ctx, store)

	ds, err := partitioned.New(store, reg, modelTemplate())
	require.NoError(t, err)

	_, err = ds.Load(ctx, stack)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sdkerrors.ErrNoChildren))
}

func TestParentExplicitRunIDConflictsWithOpenRun(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	reg := registry.NewRegistry()
	_, stack := openParent(t, ctx, store)

	pinned, err := store.CreateRun(ctx, tracking.CreateRunOptions{Name: "pinned"})
	require.NoError(t, err)

	template := modelTemplate()
	template.RunID = pinned.ID
	ds, err := partitioned.New(store, reg, template)
	require.NoError(t, err)

	_, err = ds.Parent(ctx, stack)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sdkerrors.ErrActiveRunConflict))

	// The same pinned id with no open run resolves fine.
	parent, err := ds.Parent(ctx, runcontext.NewStack())
	require.NoError(t, err)
	assert.Equal(t, pinned.ID, parent.ID)
}

func TestParentStartsFreshRunAndPushes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	reg := registry.NewRegistry()
	stack := runcontext.NewStack()

	ds, err := partitioned.New(store, reg, modelTemplate())
	require.NoError(t, err)

	parent, err := ds.Parent(ctx, stack)
	require.NoError(t, err)
	require.NotNil(t, parent)
	require.True(t, stack.Active())
	assert.Equal(t, parent.ID, stack.Bottom().ID)

	// Subsequent resolutions reuse the pushed run.
	again, err := ds.Parent(ctx, stack)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, again.ID)
}

func TestResolveChildLeavesReopenableRun(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	reg := registry.NewRegistry()
	parent, stack := openParent(t, ctx, store)

	ds, err := partitioned.New(store, reg, modelTemplate())
	require.NoError(t, err)

	id, err := ds.ResolveChild(ctx, stack, "fold-1")
	require.NoError(t, err)

	run, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, tracking.RunStatusFinished, run.Status)
	assert.Equal(t, parent.ID, run.ParentRunID())

	// A later save of the same partition reuses the pre-created run.
	err = ds.Save(ctx, stack, []partitioned.Partition{{Name: "fold-1", Payload: []byte("w")}})
	require.NoError(t, err)

	children, err := ds.FindChildren(ctx, parent)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, id, children["fold-1"])
}

func TestNewModelLoggerPresetValidatesEagerly(t *testing.T) {
	store := memory.NewStore()
	reg := registry.NewRegistry()

	_, err := partitioned.NewModelLogger(store, reg, map[string]interface{}{}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flavor")

	ds, err := partitioned.NewModelLogger(store, reg, map[string]interface{}{
		"flavor": "sklearn",
		"save_args": map[string]interface{}{
			"registered_model_name": "model",
		},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, modellogger.Type, ds.Template().Type)
	assert.Equal(t, []string{modellogger.RegisteredModelNameParam}, ds.Template().DynamicParams)
}
