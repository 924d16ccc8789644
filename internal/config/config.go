package config

import (
	"fmt"
	"log/slog"
	"time"

	"i2v-dispatch/internal/engine"
	"i2v-dispatch/internal/storage"

	"github.com/caarlos0/env/v11"
)

const (
	StorageS3    = "s3"
	StorageLocal = "local"

	// AutoDeviceCount asks nvidia-smi for the number of devices.
	AutoDeviceCount = -1
)

type Config struct {
	StorageBackend    string `env:"STORAGE_BACKEND" envDefault:"s3"`
	LocalStorageDir   string `env:"LOCAL_STORAGE_DIR" envDefault:"./storage"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`

	DeviceCount     int           `env:"DEVICE_COUNT" envDefault:"-1"`
	NvidiaSMI       string        `env:"NVIDIA_SMI" envDefault:"nvidia-smi"`
	MonitorInterval time.Duration `env:"MONITOR_INTERVAL" envDefault:"10s"`
	WorkDir         string        `env:"WORK_DIR"`

	TransformPlugin     string   `env:"TRANSFORM_PLUGIN,required,notEmpty"`
	TransformPluginArgs []string `env:"TRANSFORM_PLUGIN_ARGS" envSeparator:" "`
	ModelName           string   `env:"MODEL_NAME" envDefault:"Lightricks/LTX-Video"`

	TargetWidth         int    `env:"TARGET_WIDTH" envDefault:"848"`
	TargetHeight        int    `env:"TARGET_HEIGHT" envDefault:"480"`
	ResolutionAlignment int    `env:"RESOLUTION_ALIGNMENT" envDefault:"32"`
	FrameCount          int    `env:"FRAME_COUNT" envDefault:"241"`
	InferenceSteps      int    `env:"INFERENCE_STEPS" envDefault:"75"`
	OutputFPS           int    `env:"OUTPUT_FPS" envDefault:"24"`
	Prompt              string `env:"PROMPT" envDefault:"make this image a realistic video"`
	NegativePrompt      string `env:"NEGATIVE_PROMPT" envDefault:"worst quality, inconsistent motion, blurry, jittery, distorted"`

	LedgerDSN     string `env:"LEDGER_DSN"`
	StatusPort    int    `env:"STATUS_PORT" envDefault:"0"`
	ShowProgress  bool   `env:"SHOW_PROGRESS" envDefault:"true"`
	RunWebhookURL string `env:"RUN_WEBHOOK_URL"`
	SentryDSN     string `env:"SENTRY_DSN"`
	Environment   string `env:"ENVIRONMENT" envDefault:"production"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	if cfg.S3EndpointURL != "" && (cfg.S3AccessKeyID == "" || cfg.S3SecretAccessKey == "") {
		slog.Warn("S3_ENDPOINT_URL is set, but AWS_ACCESS_KEY_ID or AWS_SECRET_ACCESS_KEY are missing")
	}

	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StorageBackend {
	case StorageS3, StorageLocal:
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND '%s', expected '%s' or '%s'", c.StorageBackend, StorageS3, StorageLocal)
	}

	if c.DeviceCount < AutoDeviceCount {
		return fmt.Errorf("invalid DEVICE_COUNT %d", c.DeviceCount)
	}

	if c.MonitorInterval <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL must be positive, got %s", c.MonitorInterval)
	}

	if c.StatusPort < 0 {
		return fmt.Errorf("invalid STATUS_PORT %d", c.StatusPort)
	}

	if _, err := c.Params(); err != nil {
		return err
	}

	return nil
}

// Params are the generation options for every job of the run.
func (c Config) Params() (engine.Params, error) {
	params, err := engine.NewParams(
		c.TargetWidth, c.TargetHeight, c.ResolutionAlignment,
		c.FrameCount, c.InferenceSteps, c.OutputFPS,
		c.Prompt, c.NegativePrompt,
	)
	if err != nil {
		return engine.Params{}, fmt.Errorf("invalid generation parameters: %w", err)
	}
	return params, nil
}

func (c Config) PluginConfig() engine.PluginConfig {
	return engine.PluginConfig{
		Executable: c.TransformPlugin,
		Args:       c.TransformPluginArgs,
		ModelName:  c.ModelName,
	}
}

// S3Config returns the client settings for a location. gs:// locations are
// served through the GCS interoperability endpoint unless an endpoint is set.
func (c Config) S3Config(loc storage.Location) storage.S3ClientConfig {
	endpoint := c.S3EndpointURL
	if endpoint == "" && loc.Scheme == storage.SchemeGCS {
		endpoint = storage.GCSEndpoint
	}

	return storage.S3ClientConfig{
		Endpoint:        endpoint,
		Region:          c.S3Region,
		AccessKeyID:     c.S3AccessKeyID,
		SecretAccessKey: c.S3SecretAccessKey,
	}
}
