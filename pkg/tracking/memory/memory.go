// Package memory provides an in-process tracking.Store. It backs tests,
// examples and embedded single-process use, and is the reference for the
// store semantics the SDK relies on: append-only runs, tag-equality search
// and protected tag keys.
package memory

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/artifacts"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/tracking"
)

// DefaultExperimentID is the experiment runs land in when none is specified.
const DefaultExperimentID = "0"

var filterPattern = regexp.MustCompile(`^tags\.([^\s=]+)\s*=\s*['"](.*)['"]$`)

// Store is an in-memory tracking.Store. All operations are safe for
// concurrent use; creation order is preserved for search results.
type Store struct {
	mu        sync.Mutex
	logger    *zap.Logger
	artifacts artifacts.Store

	runs     map[string]*tracking.Run
	runOrder []string
	metrics  map[string]map[string][]tracking.Metric
	models   map[string]tracking.Model
	byName   map[string]string

	experiments map[string]*tracking.Experiment
	expByName   map[string]string
}

// Option configures a Store.
type Option func(*Store)

// WithArtifactStore sets the artifact backend for model payloads. Defaults
// to an in-process artifact store.
func WithArtifactStore(as artifacts.Store) Option {
	return func(s *Store) { s.artifacts = as }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates an empty in-memory store with a default experiment.
func NewStore(opts ...Option) *Store {
	s := &Store{
		logger:      zap.NewNop(),
		artifacts:   artifacts.NewMemoryStore(),
		runs:        make(map[string]*tracking.Run),
		metrics:     make(map[string]map[string][]tracking.Metric),
		models:      make(map[string]tracking.Model),
		byName:      make(map[string]string),
		experiments: make(map[string]*tracking.Experiment),
		expByName:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.experiments[DefaultExperimentID] = &tracking.Experiment{
		ID:    DefaultExperimentID,
		Name:  "Default",
		Stage: tracking.LifecycleActive,
	}
	s.expByName["Default"] = DefaultExperimentID
	return s
}

// CreateRun appends a new run. Runs are never deduplicated here: exactly-once
// creation per partition is the resolver's contract, not the store's.
func (s *Store) CreateRun(ctx context.Context, opts tracking.CreateRunOptions) (*tracking.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	experimentID := opts.ExperimentID
	if experimentID == "" {
		experimentID = DefaultExperimentID
	}
	if _, ok := s.experiments[experimentID]; !ok {
		return nil, fmt.Errorf("%w: experiment '%s'", sdkerrors.ErrExperimentNotFound, experimentID)
	}

	tags := opts.Tags
	if opts.Name != "" {
		tags = tags.Set(tracking.RunNameTag, opts.Name)
	}

	run := &tracking.Run{
		ID:           uuid.NewString(),
		ExperimentID: experimentID,
		Name:         opts.Name,
		Status:       tracking.RunStatusRunning,
		Stage:        tracking.LifecycleActive,
		StartTime:    time.Now().UTC(),
		Tags:         tags,
	}
	s.runs[run.ID] = run
	s.runOrder = append(s.runOrder, run.ID)

	s.logger.Debug("created run",
		zap.String("run_id", run.ID),
		zap.String("run_name", run.Name),
		zap.Bool("nested", opts.Nested))

	return cloneRun(run), nil
}

// GetRun returns a copy of the run with the given id.
func (s *Store) GetRun(ctx context.Context, runID string) (*tracking.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", sdkerrors.ErrRunNotFound, runID)
	}
	return cloneRun(run), nil
}

// EndRun marks a run terminated with the given status.
func (s *Store) EndRun(ctx context.Context, runID string, status tracking.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: '%s'", sdkerrors.ErrRunNotFound, runID)
	}
	now := time.Now().UTC()
	run.Status = status
	run.EndTime = &now
	return nil
}

// SetTag sets a tag on a run. Writes to keys protected at creation are
// silently dropped.
func (s *Store) SetTag(ctx context.Context, runID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: '%s'", sdkerrors.ErrRunNotFound, runID)
	}
	run.Tags = run.Tags.Set(key, value)
	return nil
}

// SearchRuns returns active runs matching a tag-equality filter of the form
// tags.<key> = '<value>'. Results come back in creation order.
func (s *Store) SearchRuns(ctx context.Context, filter string) ([]*tracking.Run, error) {
	key, value, err := parseFilter(filter)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var results []*tracking.Run
	for _, id := range s.runOrder {
		run := s.runs[id]
		if run.Stage != tracking.LifecycleActive {
			continue
		}
		if run.Tags.Value(key) == value {
			results = append(results, cloneRun(run))
		}
	}
	return results, nil
}

// LogMetric appends a metric point to a run's history.
func (s *Store) LogMetric(ctx context.Context, runID string, metric tracking.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return fmt.Errorf("%w: '%s'", sdkerrors.ErrRunNotFound, runID)
	}
	if metric.Timestamp == 0 {
		metric.Timestamp = time.Now().UnixMilli()
	}
	if s.metrics[runID] == nil {
		s.metrics[runID] = make(map[string][]tracking.Metric)
	}
	s.metrics[runID][metric.Key] = append(s.metrics[runID][metric.Key], metric)
	return nil
}

// MetricHistory returns all logged points for one metric key, in log order.
func (s *Store) MetricHistory(ctx context.Context, runID, key string) ([]tracking.Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return nil, fmt.Errorf("%w: '%s'", sdkerrors.ErrRunNotFound, runID)
	}
	history := s.metrics[runID][key]
	out := make([]tracking.Metric, len(history))
	copy(out, history)
	return out, nil
}

// ListMetricKeys returns the sorted metric keys logged for a run.
func (s *Store) ListMetricKeys(ctx context.Context, runID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return nil, fmt.Errorf("%w: '%s'", sdkerrors.ErrRunNotFound, runID)
	}
	keys := make([]string, 0, len(s.metrics[runID]))
	for k := range s.metrics[runID] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// LogModel stores the model payload through the artifact store and records
// its flavor metadata under runs:/<run_id>/<artifact_path>. A registered
// model name additionally indexes the model under models:/<name>.
func (s *Store) LogModel(ctx context.Context, runID string, model tracking.Model) error {
	s.mu.Lock()
	if _, ok := s.runs[runID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: '%s'", sdkerrors.ErrRunNotFound, runID)
	}
	s.mu.Unlock()

	ref, err := s.artifacts.Put(ctx, artifactPath(runID, model.ArtifactPath), model.Payload, map[string]string{
		"flavor": model.Flavor,
	})
	if err != nil {
		return fmt.Errorf("failed to store model artifact: %w", err)
	}

	stored := model
	stored.Payload = nil

	s.mu.Lock()
	s.models[runsURI(runID, model.ArtifactPath)] = stored
	if model.RegisteredName != "" {
		s.byName[model.RegisteredName] = runsURI(runID, model.ArtifactPath)
	}
	s.mu.Unlock()

	s.logger.Debug("logged model",
		zap.String("run_id", runID),
		zap.String("artifact_path", model.ArtifactPath),
		zap.String("flavor", model.Flavor),
		zap.String("artifact_ref", ref))

	return nil
}

// LoadModel resolves runs:/<run_id>/<path> and models:/<registered_name>
// URIs and returns the model with its payload.
func (s *Store) LoadModel(ctx context.Context, modelURI string) (*tracking.Model, error) {
	s.mu.Lock()
	uri := modelURI
	if name, ok := strings.CutPrefix(uri, "models:/"); ok {
		resolved, found := s.byName[name]
		if !found {
			s.mu.Unlock()
			return nil, fmt.Errorf("no registered model named '%s'", name)
		}
		uri = resolved
	}
	stored, ok := s.models[uri]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no model logged at '%s'", modelURI)
	}

	rest, ok := strings.CutPrefix(uri, "runs:/")
	if !ok {
		return nil, fmt.Errorf("unsupported model URI '%s'", modelURI)
	}
	runID, path, ok := strings.Cut(rest, "/")
	if !ok {
		return nil, fmt.Errorf("malformed model URI '%s'", modelURI)
	}

	payload, err := s.artifacts.Get(ctx, artifactPath(runID, path))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch model artifact: %w", err)
	}

	model := stored
	model.Payload = payload
	return &model, nil
}

// CreateExperiment registers a named experiment and returns it.
func (s *Store) CreateExperiment(ctx context.Context, name string) (*tracking.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expByName[name]; exists {
		return nil, fmt.Errorf("experiment '%s' already exists", name)
	}
	exp := &tracking.Experiment{
		ID:    uuid.NewString(),
		Name:  name,
		Stage: tracking.LifecycleActive,
	}
	s.experiments[exp.ID] = exp
	s.expByName[name] = exp.ID
	return &tracking.Experiment{ID: exp.ID, Name: exp.Name, Stage: exp.Stage}, nil
}

// DeleteExperiment soft-deletes an experiment; RestoreExperiment reverses it.
func (s *Store) DeleteExperiment(ctx context.Context, experimentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.experiments[experimentID]
	if !ok {
		return fmt.Errorf("%w: '%s'", sdkerrors.ErrExperimentNotFound, experimentID)
	}
	exp.Stage = tracking.LifecycleDeleted
	return nil
}

// GetExperimentByName returns the experiment with the given name, including
// soft-deleted ones so callers can restore them.
func (s *Store) GetExperimentByName(ctx context.Context, name string) (*tracking.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.expByName[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", sdkerrors.ErrExperimentNotFound, name)
	}
	exp := s.experiments[id]
	return &tracking.Experiment{ID: exp.ID, Name: exp.Name, Stage: exp.Stage}, nil
}

// RestoreExperiment reactivates a soft-deleted experiment.
func (s *Store) RestoreExperiment(ctx context.Context, experimentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.experiments[experimentID]
	if !ok {
		return fmt.Errorf("%w: '%s'", sdkerrors.ErrExperimentNotFound, experimentID)
	}
	exp.Stage = tracking.LifecycleActive
	return nil
}

func cloneRun(run *tracking.Run) *tracking.Run {
	out := *run
	if run.EndTime != nil {
		end := *run.EndTime
		out.EndTime = &end
	}
	return &out
}

func parseFilter(filter string) (key, value string, err error) {
	m := filterPattern.FindStringSubmatch(strings.TrimSpace(filter))
	if m == nil {
		return "", "", fmt.Errorf("unsupported search filter: %q", filter)
	}
	return m[1], m[2], nil
}

func artifactPath(runID, path string) string {
	return "runs/" + runID + "/" + path
}

func runsURI(runID, path string) string {
	return "runs:/" + runID + "/" + path
}
