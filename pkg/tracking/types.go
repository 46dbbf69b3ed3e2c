// Package tracking defines the experiment-tracking model (runs, experiments,
// metrics, models) and the Store interface every tracking backend binding
// implements. The model follows MLflow's run/tag semantics: a child run is
// linked to its parent through the mlflow.parentRunId tag and carries its
// display name in the mlflow.runName tag.
package tracking

import "time"

// Well-known tag keys. Child-run bookkeeping is expressed entirely through
// tags so that any tag-filterable store can serve as a backend.
const (
	// ParentRunIDTag links a child run to its parent run id. Once set at
	// creation the key is protected: later writes are dropped.
	ParentRunIDTag = "mlflow.parentRunId"

	// RunNameTag carries the run's display name, which for child runs is the
	// normalized partition name.
	RunNameTag = "mlflow.runName"
)

// RunStatus describes the terminal or in-flight state of a run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusFinished RunStatus = "FINISHED"
	RunStatusFailed   RunStatus = "FAILED"
	RunStatusKilled   RunStatus = "KILLED"
)

// LifecycleStage describes whether an entity is live or soft-deleted.
type LifecycleStage string

const (
	LifecycleActive  LifecycleStage = "active"
	LifecycleDeleted LifecycleStage = "deleted"
)

// Run is one unit of tracked execution. The id is assigned by the store and
// opaque to this SDK.
type Run struct {
	ID           string         `json:"run_id"`
	ExperimentID string         `json:"experiment_id"`
	Name         string         `json:"run_name"`
	Status       RunStatus      `json:"status"`
	Stage        LifecycleStage `json:"lifecycle_stage"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      *time.Time     `json:"end_time,omitempty"`
	Tags         TagSet         `json:"tags"`
}

// ParentRunID returns the parent run id tag, or "" for a top-level run.
func (r *Run) ParentRunID() string {
	return r.Tags.Value(ParentRunIDTag)
}

// Experiment groups runs under a name.
type Experiment struct {
	ID    string         `json:"experiment_id"`
	Name  string         `json:"name"`
	Stage LifecycleStage `json:"lifecycle_stage"`
}

// Metric is a single metric point in a run's metric history.
type Metric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Step      int64   `json:"step"`
	Timestamp int64   `json:"timestamp"`
}

// Model is a logged model payload plus the flavor metadata needed to reload
// it. Serialization of the payload is the caller's concern; the store treats
// it as opaque bytes.
type Model struct {
	Flavor         string `json:"flavor"`
	ArtifactPath   string `json:"artifact_path"`
	RegisteredName string `json:"registered_model_name,omitempty"`
	Payload        []byte `json:"payload"`
}
