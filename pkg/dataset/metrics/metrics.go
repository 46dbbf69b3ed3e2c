// Package metrics provides the dataset that saves and loads a run's metrics.
// A payload maps metric keys to either a single point or a list of points;
// load folds the store's metric history back into the same shape.
package metrics

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/dataset"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/tracking"
)

// Type is the registry keyword for this dataset.
const Type = "metrics"

// Point is one metric observation.
type Point struct {
	Value float64 `json:"value"`
	Step  int64   `json:"step"`
}

// Config are the constructor arguments for a metrics dataset.
type Config struct {
	RunID string `json:"run_id,omitempty"`

	// Prefix namespaces every metric key on save and filters keys on load.
	Prefix string `json:"prefix,omitempty"`
}

// Builder constructs metrics datasets.
type Builder struct{}

// NewBuilder returns the builder for the metrics dataset type.
func NewBuilder() *Builder {
	return &Builder{}
}

// DatasetType returns the registry keyword.
func (b *Builder) DatasetType() string {
	return Type
}

// Build constructs the dataset, failing fast on unknown arguments.
func (b *Builder) Build(params dataset.BuildParams) (dataset.Dataset, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("tracking store cannot be nil")
	}

	var cfg Config
	if err := dataset.DecodeArgs(params.Args, &cfg); err != nil {
		return nil, err
	}

	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dataset{store: params.Store, cfg: cfg, logger: logger}, nil
}

// Dataset saves and loads one run's metrics.
type Dataset struct {
	store  tracking.Store
	cfg    Config
	logger *zap.Logger
}

// Save logs every metric point in data to the configured run. Values may be
// a Point, a []Point, or the equivalent generic map/slice shapes produced by
// JSON or YAML decoding.
func (d *Dataset) Save(ctx context.Context, data interface{}) error {
	if d.cfg.RunID == "" {
		return fmt.Errorf("%w: metrics save needs a run id", sdkerrors.ErrMissingRunID)
	}

	payload, ok := data.(map[string]interface{})
	if !ok {
		return sdkerrors.NewError("DATASET_CONFIG",
			fmt.Sprintf("metrics payload must be a map of metric keys, got %T", data), nil)
	}

	for key, item := range payload {
		points, err := toPoints(key, item)
		if err != nil {
			return err
		}
		name := d.prefixed(key)
		for _, p := range points {
			metric := tracking.Metric{Key: name, Value: p.Value, Step: p.Step}
			if err := d.store.LogMetric(ctx, d.cfg.RunID, metric); err != nil {
				return fmt.Errorf("failed to log metric '%s': %w", name, err)
			}
		}
	}

	d.logger.Debug("saved metrics",
		zap.String("run_id", d.cfg.RunID),
		zap.Int("keys", len(payload)))

	return nil
}

// Load reads every metric of the configured run (filtered by prefix) and
// folds each history into a single Point or a []Point.
func (d *Dataset) Load(ctx context.Context) (interface{}, error) {
	if d.cfg.RunID == "" {
		return nil, fmt.Errorf("%w: metrics load needs a run id", sdkerrors.ErrMissingRunID)
	}

	keys, err := d.store.ListMetricKeys(ctx, d.cfg.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics for run '%s': %w", d.cfg.RunID, err)
	}

	result := make(map[string]interface{})
	for _, key := range keys {
		if d.cfg.Prefix != "" && !strings.HasPrefix(key, d.cfg.Prefix+".") {
			continue
		}
		history, err := d.store.MetricHistory(ctx, d.cfg.RunID, key)
		if err != nil {
			return nil, fmt.Errorf("failed to load metric '%s': %w", key, err)
		}
		points := make([]Point, len(history))
		for i, m := range history {
			points[i] = Point{Value: m.Value, Step: m.Step}
		}
		if len(points) == 1 {
			result[key] = points[0]
		} else {
			result[key] = points
		}
	}
	return result, nil
}

func (d *Dataset) prefixed(key string) string {
	if d.cfg.Prefix == "" {
		return key
	}
	return d.cfg.Prefix + "." + key
}

func toPoints(key string, item interface{}) ([]Point, error) {
	switch v := item.(type) {
	case Point:
		return []Point{v}, nil
	case []Point:
		return v, nil
	case map[string]interface{}:
		p, err := toPoint(key, v)
		if err != nil {
			return nil, err
		}
		return []Point{p}, nil
	case []interface{}:
		if len(v) == 0 {
			return nil, badMetricItem(key, item)
		}
		points := make([]Point, 0, len(v))
		for _, elem := range v {
			m, ok := elem.(map[string]interface{})
			if !ok {
				return nil, badMetricItem(key, elem)
			}
			p, err := toPoint(key, m)
			if err != nil {
				return nil, err
			}
			points = append(points, p)
		}
		return points, nil
	default:
		return nil, badMetricItem(key, item)
	}
}

func toPoint(key string, m map[string]interface{}) (Point, error) {
	value, ok := toFloat(m["value"])
	if !ok {
		return Point{}, badMetricItem(key, m)
	}
	step, ok := toInt(m["step"])
	if !ok {
		return Point{}, badMetricItem(key, m)
	}
	return Point{Value: value, Step: step}, nil
}

func badMetricItem(key string, item interface{}) error {
	return sdkerrors.NewError("DATASET_CONFIG",
		fmt.Sprintf("unexpected metric value for '%s': want {value, step} or a list of them, got %T", key, item), nil)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
