// Package modellogger provides the dataset that logs a model to a tracking
// run and loads it back by run id or registered-model URI. The registered
// model name is the canonical dynamic parameter of partitioned model saves:
// each partition registers its model under <partition>/<name>.
package modellogger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/dataset"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/tracking"
)

// Type is the registry keyword for this dataset.
const Type = "model-logger"

// RegisteredModelNameParam is the flattened argument path of the registered
// model name, the dynamic parameter of partitioned model saves.
const RegisteredModelNameParam = "save_args.registered_model_name"

// DefaultArtifactPath is used when the configuration does not set one.
const DefaultArtifactPath = "model"

// Config are the constructor arguments for a model-logger dataset.
type Config struct {
	Flavor       string   `json:"flavor"`
	ArtifactPath string   `json:"artifact_path,omitempty"`
	RunID        string   `json:"run_id,omitempty"`
	SaveArgs     SaveArgs `json:"save_args,omitempty"`
	LoadArgs     LoadArgs `json:"load_args,omitempty"`
}

// SaveArgs tune model logging.
type SaveArgs struct {
	RegisteredModelName string `json:"registered_model_name,omitempty"`
}

// LoadArgs tune model loading.
type LoadArgs struct {
	// ModelURI loads from an explicit URI (models:/<name> or
	// runs:/<run_id>/<path>) instead of the configured run id.
	ModelURI string `json:"model_uri,omitempty"`
}

// Builder constructs model-logger datasets.
type Builder struct{}

// NewBuilder returns the builder for the model-logger dataset type.
func NewBuilder() *Builder {
	return &Builder{}
}

// DatasetType returns the registry keyword.
func (b *Builder) DatasetType() string {
	return Type
}

// Build constructs the dataset, failing fast on unknown or missing arguments.
func (b *Builder) Build(params dataset.BuildParams) (dataset.Dataset, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("tracking store cannot be nil")
	}

	var cfg Config
	if err := dataset.DecodeArgs(params.Args, &cfg); err != nil {
		return nil, err
	}
	if cfg.Flavor == "" {
		return nil, sdkerrors.NewError("DATASET_CONFIG", "model-logger requires a flavor", nil)
	}
	if cfg.ArtifactPath == "" {
		cfg.ArtifactPath = DefaultArtifactPath
	}

	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dataset{store: params.Store, cfg: cfg, logger: logger}, nil
}

// Dataset logs and loads one run's model.
type Dataset struct {
	store  tracking.Store
	cfg    Config
	logger *zap.Logger
}

// Save logs the model payload to the configured run. data may be a
// *tracking.Model (flavor metadata from the payload wins over configuration)
// or raw []byte.
func (d *Dataset) Save(ctx context.Context, data interface{}) error {
	if d.cfg.RunID == "" {
		return fmt.Errorf("%w: model-logger save needs a run id", sdkerrors.ErrMissingRunID)
	}

	model, err := d.toModel(data)
	if err != nil {
		return err
	}

	if err := d.store.LogModel(ctx, d.cfg.RunID, model); err != nil {
		return fmt.Errorf("failed to log model to run '%s': %w", d.cfg.RunID, err)
	}

	d.logger.Debug("logged model",
		zap.String("run_id", d.cfg.RunID),
		zap.String("flavor", model.Flavor),
		zap.String("registered_model_name", model.RegisteredName))

	return nil
}

// Load fetches the model from the configured URI or run id.
func (d *Dataset) Load(ctx context.Context) (interface{}, error) {
	uri := d.cfg.LoadArgs.ModelURI
	if uri == "" {
		if d.cfg.RunID == "" {
			return nil, fmt.Errorf("%w: model-logger load needs a run id or model URI", sdkerrors.ErrMissingRunID)
		}
		uri = fmt.Sprintf("runs:/%s/%s", d.cfg.RunID, d.cfg.ArtifactPath)
	}

	model, err := d.store.LoadModel(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to load model from '%s': %w", uri, err)
	}
	return model, nil
}

func (d *Dataset) toModel(data interface{}) (tracking.Model, error) {
	switch payload := data.(type) {
	case *tracking.Model:
		model := *payload
		if model.Flavor == "" {
			model.Flavor = d.cfg.Flavor
		}
		if model.ArtifactPath == "" {
			model.ArtifactPath = d.cfg.ArtifactPath
		}
		if model.RegisteredName == "" {
			model.RegisteredName = d.cfg.SaveArgs.RegisteredModelName
		}
		return model, nil
	case tracking.Model:
		return d.toModel(&payload)
	case []byte:
		return tracking.Model{
			Flavor:         d.cfg.Flavor,
			ArtifactPath:   d.cfg.ArtifactPath,
			RegisteredName: d.cfg.SaveArgs.RegisteredModelName,
			Payload:        payload,
		}, nil
	default:
		return tracking.Model{}, sdkerrors.NewError("DATASET_CONFIG",
			fmt.Sprintf("model-logger cannot save payload of type %T", data), nil)
	}
}
