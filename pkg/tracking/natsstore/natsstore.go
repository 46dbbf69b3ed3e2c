// Package natsstore implements tracking.Store against a remote tracking
// service over NATS request/reply. Every operation is one JSON round trip on
// a subject under the configured prefix; replies carry either a result or a
// structured error that is mapped back onto the SDK's error taxonomy.
package natsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	natsclient "github.com/nats-io/nats.go"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	natsinternal "github.com/wehubfusion/Daedalus/internal/nats"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/tracking"
)

// Store is a tracking.Store speaking JSON over NATS request/reply.
type Store struct {
	conn   *natsclient.Conn
	config *natsinternal.ConnectionConfig
	logger *zap.Logger
}

// Connect dials NATS and returns a connected store.
func Connect(ctx context.Context, config *natsinternal.ConnectionConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := natsinternal.Connect(ctx, config, logger)
	if err != nil {
		return nil, err
	}
	return &Store{conn: conn, config: config, logger: logger}, nil
}

// Wrap builds a store around an existing connection. The caller keeps
// ownership of the connection.
func Wrap(conn *natsclient.Conn, config *natsinternal.ConnectionConfig, logger *zap.Logger) *Store {
	if config == nil {
		config = natsinternal.DefaultConnectionConfig("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{conn: conn, config: config, logger: logger}
}

// Close drains the underlying connection.
func (s *Store) Close() error {
	return natsinternal.Close(s.conn)
}

func (s *Store) request(ctx context.Context, op string, payload []byte) ([]byte, error) {
	if !natsinternal.IsConnected(s.conn) {
		return nil, sdkerrors.ErrNotConnected
	}

	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	subject := s.config.SubjectPrefix + "." + op
	msg, err := s.conn.RequestWithContext(reqCtx, subject, payload)
	if err != nil {
		return nil, fmt.Errorf("tracking request '%s' failed: %w", subject, err)
	}

	if errField := gjson.GetBytes(msg.Data, "error"); errField.Exists() {
		return nil, replyError(op, errField)
	}
	return msg.Data, nil
}

func replyError(op string, errField gjson.Result) error {
	code := errField.Get("code").String()
	message := errField.Get("message").String()
	if message == "" {
		message = errField.String()
	}

	switch code {
	case "RUN_NOT_FOUND":
		return fmt.Errorf("%w: %s", sdkerrors.ErrRunNotFound, message)
	case "EXPERIMENT_NOT_FOUND":
		return fmt.Errorf("%w: %s", sdkerrors.ErrExperimentNotFound, message)
	default:
		if code == "" {
			code = "TRACKING_" + op
		}
		return sdkerrors.NewError(code, message, nil)
	}
}

// decodeRun unmarshals a run and re-applies client-side protection to the
// parent link tag, which is protected by convention on every store.
func decodeRun(data []byte, path string) (*tracking.Run, error) {
	raw := gjson.GetBytes(data, path)
	if !raw.Exists() {
		return nil, fmt.Errorf("tracking reply missing '%s'", path)
	}

	var run tracking.Run
	if err := json.Unmarshal([]byte(raw.Raw), &run); err != nil {
		return nil, fmt.Errorf("failed to decode run: %w", err)
	}
	if _, ok := run.Tags.Get(tracking.ParentRunIDTag); ok {
		run.Tags = run.Tags.WithProtectedKeys(tracking.ParentRunIDTag)
	}
	return &run, nil
}

type createRunRequest struct {
	ExperimentID string            `json:"experiment_id,omitempty"`
	Name         string            `json:"run_name,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	Protected    []string          `json:"protected_tags,omitempty"`
	Nested       bool              `json:"nested,omitempty"`
}

// CreateRun creates a run on the remote service.
func (s *Store) CreateRun(ctx context.Context, opts tracking.CreateRunOptions) (*tracking.Run, error) {
	protected := make([]string, 0, 1)
	if opts.Tags.IsProtected(tracking.ParentRunIDTag) {
		protected = append(protected, tracking.ParentRunIDTag)
	}

	payload, err := json.Marshal(createRunRequest{
		ExperimentID: opts.ExperimentID,
		Name:         opts.Name,
		Tags:         opts.Tags.Map(),
		Protected:    protected,
		Nested:       opts.Nested,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode create-run request: %w", err)
	}

	reply, err := s.request(ctx, "run.create", payload)
	if err != nil {
		return nil, err
	}
	return decodeRun(reply, "run")
}

// GetRun fetches a run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*tracking.Run, error) {
	payload, _ := sjson.SetBytes([]byte(`{}`), "run_id", runID)

	reply, err := s.request(ctx, "run.get", payload)
	if err != nil {
		return nil, err
	}
	return decodeRun(reply, "run")
}

// EndRun terminates a run with the given status.
func (s *Store) EndRun(ctx context.Context, runID string, status tracking.RunStatus) error {
	payload, _ := sjson.SetBytes([]byte(`{}`), "run_id", runID)
	payload, _ = sjson.SetBytes(payload, "status", string(status))

	_, err := s.request(ctx, "run.end", payload)
	return err
}

// SetTag sets a tag on a run. The service drops writes to protected keys.
func (s *Store) SetTag(ctx context.Context, runID, key, value string) error {
	payload, _ := sjson.SetBytes([]byte(`{}`), "run_id", runID)
	payload, _ = sjson.SetBytes(payload, "key", key)
	payload, _ = sjson.SetBytes(payload, "value", value)

	_, err := s.request(ctx, "tag.set", payload)
	return err
}

// SearchRuns runs a tag-equality search on the remote service.
func (s *Store) SearchRuns(ctx context.Context, filter string) ([]*tracking.Run, error) {
	payload, _ := sjson.SetBytes([]byte(`{}`), "filter", filter)

	reply, err := s.request(ctx, "run.search", payload)
	if err != nil {
		return nil, err
	}

	var runs []*tracking.Run
	for _, raw := range gjson.GetBytes(reply, "runs").Array() {
		var run tracking.Run
		if err := json.Unmarshal([]byte(raw.Raw), &run); err != nil {
			return nil, fmt.Errorf("failed to decode search result: %w", err)
		}
		if _, ok := run.Tags.Get(tracking.ParentRunIDTag); ok {
			run.Tags = run.Tags.WithProtectedKeys(tracking.ParentRunIDTag)
		}
		runs = append(runs, &run)
	}
	return runs, nil
}

// LogMetric appends a metric point to a run.
func (s *Store) LogMetric(ctx context.Context, runID string, metric tracking.Metric) error {
	payload, err := json.Marshal(struct {
		RunID  string          `json:"run_id"`
		Metric tracking.Metric `json:"metric"`
	}{RunID: runID, Metric: metric})
	if err != nil {
		return fmt.Errorf("failed to encode log-metric request: %w", err)
	}

	_, err = s.request(ctx, "metric.log", payload)
	return err
}

// MetricHistory fetches all points for one metric key.
func (s *Store) MetricHistory(ctx context.Context, runID, key string) ([]tracking.Metric, error) {
	payload, _ := sjson.SetBytes([]byte(`{}`), "run_id", runID)
	payload, _ = sjson.SetBytes(payload, "key", key)

	reply, err := s.request(ctx, "metric.history", payload)
	if err != nil {
		return nil, err
	}

	var history []tracking.Metric
	if raw := gjson.GetBytes(reply, "metrics"); raw.Exists() {
		if err := json.Unmarshal([]byte(raw.Raw), &history); err != nil {
			return nil, fmt.Errorf("failed to decode metric history: %w", err)
		}
	}
	return history, nil
}

// ListMetricKeys fetches the metric keys logged for a run.
func (s *Store) ListMetricKeys(ctx context.Context, runID string) ([]string, error) {
	payload, _ := sjson.SetBytes([]byte(`{}`), "run_id", runID)

	reply, err := s.request(ctx, "metric.keys", payload)
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, raw := range gjson.GetBytes(reply, "keys").Array() {
		keys = append(keys, raw.String())
	}
	return keys, nil
}

// LogModel ships a model payload to the remote service.
func (s *Store) LogModel(ctx context.Context, runID string, model tracking.Model) error {
	payload, err := json.Marshal(struct {
		RunID string         `json:"run_id"`
		Model tracking.Model `json:"model"`
	}{RunID: runID, Model: model})
	if err != nil {
		return fmt.Errorf("failed to encode log-model request: %w", err)
	}

	_, err = s.request(ctx, "model.log", payload)
	return err
}

// LoadModel fetches a model by URI.
func (s *Store) LoadModel(ctx context.Context, modelURI string) (*tracking.Model, error) {
	payload, _ := sjson.SetBytes([]byte(`{}`), "model_uri", modelURI)

	reply, err := s.request(ctx, "model.load", payload)
	if err != nil {
		return nil, err
	}

	raw := gjson.GetBytes(reply, "model")
	if !raw.Exists() {
		return nil, fmt.Errorf("tracking reply missing 'model'")
	}
	var model tracking.Model
	if err := json.Unmarshal([]byte(raw.Raw), &model); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	return &model, nil
}

// GetExperimentByName fetches an experiment by name.
func (s *Store) GetExperimentByName(ctx context.Context, name string) (*tracking.Experiment, error) {
	payload, _ := sjson.SetBytes([]byte(`{}`), "name", name)

	reply, err := s.request(ctx, "experiment.get", payload)
	if err != nil {
		return nil, err
	}

	raw := gjson.GetBytes(reply, "experiment")
	if !raw.Exists() {
		return nil, fmt.Errorf("tracking reply missing 'experiment'")
	}
	var exp tracking.Experiment
	if err := json.Unmarshal([]byte(raw.Raw), &exp); err != nil {
		return nil, fmt.Errorf("failed to decode experiment: %w", err)
	}
	return &exp, nil
}

// RestoreExperiment reactivates a soft-deleted experiment.
func (s *Store) RestoreExperiment(ctx context.Context, experimentID string) error {
	payload, _ := sjson.SetBytes([]byte(`{}`), "experiment_id", experimentID)

	_, err := s.request(ctx, "experiment.restore", payload)
	return err
}
