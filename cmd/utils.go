package cmd

import (
	"flag"
	"fmt"
	"log"
	"log/slog"

	"i2v-dispatch/internal/config"
	"i2v-dispatch/internal/database"
	"i2v-dispatch/internal/devices"
	"i2v-dispatch/internal/engine"
	"i2v-dispatch/internal/storage"

	"github.com/joho/godotenv"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// NewStorageProvider returns the store serving both locations. Source and
// destination must live in the same kind of store.
func NewStorageProvider(cfg config.Config, src, dst storage.Location) (storage.Provider, error) {
	if src.Scheme != dst.Scheme {
		return nil, fmt.Errorf("source %s and destination %s must use the same scheme", src, dst)
	}

	if cfg.StorageBackend == config.StorageLocal || src.Scheme == storage.SchemeLocal {
		slog.Info("using local storage", "dir", cfg.LocalStorageDir)
		return storage.NewLocalProvider(cfg.LocalStorageDir), nil
	}

	s3Cfg := cfg.S3Config(src)
	provider, err := storage.NewS3Provider(s3Cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating s3 provider: %w", err)
	}
	slog.Info("using s3 storage", "endpoint", s3Cfg.Endpoint, "region", s3Cfg.Region)

	return provider, nil
}

func NewDeviceEnvironment(cfg config.Config) devices.Environment {
	if cfg.DeviceCount != config.AutoDeviceCount {
		slog.Info("using fixed device count", "devices", cfg.DeviceCount)
		return devices.Fixed{N: cfg.DeviceCount}
	}
	return devices.NewNvidiaSMI(cfg.NvidiaSMI)
}

func NewModelLoader(cfg config.Config) engine.Loader {
	return engine.NewPluginLoader(cfg.PluginConfig())
}

// OpenLedger returns nil when no ledger is configured.
func OpenLedger(cfg config.Config) *database.Recorder {
	if cfg.LedgerDSN == "" {
		return nil
	}

	db, err := database.NewDatabase(cfg.LedgerDSN)
	if err != nil {
		log.Fatalf("Failed to open run ledger: %v", err)
	}

	return database.NewRecorder(db)
}
