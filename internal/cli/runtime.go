package cli

import (
	"go.uber.org/zap"

	"intratool/internal/backup"
	"intratool/internal/config"
	"intratool/internal/federation"
	"intratool/internal/logging"
	"intratool/internal/modules"
	"intratool/internal/storage"
	"intratool/internal/store"
)

// runtime is everything a command needs, wired from the configuration.
type runtime struct {
	cfg     config.Config
	log     *zap.Logger
	storage *storage.Manager
	exec    *federation.Executor
	store   *store.Store
	backup  *backup.Service
}

// loadConfig reads the config file and applies flag overrides on top of it.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	return cfg, cfg.Validate()
}

func newRuntime(opts *RootOptions) (*runtime, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}
	return build(cfg, log), nil
}

func build(cfg config.Config, log *zap.Logger) *runtime {
	mgr := storage.New(log, storage.Config{
		Dir:         cfg.DataDir,
		BusyTimeout: cfg.Storage.BusyTimeout(),
		JournalMode: cfg.Storage.JournalMode,
	}, modules.Default())

	return &runtime{
		cfg:     cfg,
		log:     log,
		storage: mgr,
		exec: federation.New(log, mgr, federation.Config{
			SlowQuery:   cfg.Federation.SlowQuery(),
			ProfileSize: cfg.Federation.ProfileSize,
		}),
		store:  store.New(mgr),
		backup: backup.New(log, mgr, cfg.Backup.Dir, cfg.Backup.Retention),
	}
}

// Close closes every module file and flushes the logger.
func (r *runtime) Close() error {
	err := r.storage.Close()
	_ = r.log.Sync()
	return err
}
