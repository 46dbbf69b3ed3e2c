package tracking

import "context"

// CreateRunOptions carries the inputs for Store.CreateRun.
type CreateRunOptions struct {
	// ExperimentID selects the experiment the run belongs to. Backends may
	// treat "" as their default experiment.
	ExperimentID string

	// Name is the run's display name, stored under RunNameTag.
	Name string

	// Tags are attached at creation. Protected keys on the TagSet survive
	// into the stored run: later SetTag calls on those keys are dropped.
	Tags TagSet

	// Nested marks the run as a child run. It is informational; the parent
	// link itself is the ParentRunIDTag entry in Tags.
	Nested bool
}

// Store is the tracking-backend surface this SDK coordinates against. The
// store is append-only from the SDK's point of view: runs are created, ended,
// tagged and read, never deleted or renamed.
//
// SearchRuns filters use tag-equality syntax: tags.<key> = '<value>'.
// Result ordering beyond the store default is not guaranteed.
type Store interface {
	CreateRun(ctx context.Context, opts CreateRunOptions) (*Run, error)
	GetRun(ctx context.Context, runID string) (*Run, error)
	EndRun(ctx context.Context, runID string, status RunStatus) error
	SetTag(ctx context.Context, runID, key, value string) error
	SearchRuns(ctx context.Context, filter string) ([]*Run, error)

	LogMetric(ctx context.Context, runID string, metric Metric) error
	MetricHistory(ctx context.Context, runID, key string) ([]Metric, error)
	ListMetricKeys(ctx context.Context, runID string) ([]string, error)

	LogModel(ctx context.Context, runID string, model Model) error
	// LoadModel resolves a model URI of the form runs:/<run_id>/<path> or
	// models:/<registered_name>.
	LoadModel(ctx context.Context, modelURI string) (*Model, error)

	GetExperimentByName(ctx context.Context, name string) (*Experiment, error)
	RestoreExperiment(ctx context.Context, experimentID string) error
}
