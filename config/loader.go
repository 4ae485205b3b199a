package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v9"
)

const (
	// ProjectConfigFile is the name of the project-level config file.
	ProjectConfigFile = "taskjournal.yaml"
	// UserConfigDir is the directory for user-level config.
	UserConfigDir = ".config/taskjournal"
	// UserConfigFile is the name of the user-level config file.
	UserConfigFile = "config.yaml"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "TASKJOURNAL_"
)

// Loader handles configuration loading with layered precedence.
type Loader struct {
	logger  *slog.Logger
	homeDir string
	workDir string
	environ map[string]string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithHomeDir overrides the directory the user config is found under.
func WithHomeDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.homeDir = dir
	}
}

// WithWorkDir sets where the project config search starts.
func WithWorkDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.workDir = dir
	}
}

// WithEnvironment replaces the process environment for overrides.
func WithEnvironment(environ map[string]string) LoaderOption {
	return func(l *Loader) {
		l.environ = environ
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{logger: logger}
	if home, err := os.UserHomeDir(); err == nil {
		l.homeDir = home
	}
	if cwd, err := os.Getwd(); err == nil {
		l.workDir = cwd
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads configuration with layered precedence:
//  1. Default config
//  2. User config (~/.config/taskjournal/config.yaml)
//  3. Project config (taskjournal.yaml in the working or a parent directory)
//  4. The explicit file, when path is non-empty
//  5. TASKJOURNAL_* environment variables
func (l *Loader) Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if userPath := l.userConfigPath(); userPath != "" {
		switch err := mergeFile(cfg, userPath); {
		case err == nil:
			l.logger.Debug("Loaded user config", slog.String("path", userPath))
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	if projectPath := l.findProjectConfig(); projectPath != "" {
		if err := mergeFile(cfg, projectPath); err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded project config", slog.String("path", projectPath))
	} else {
		l.logger.Debug("No project config found")
	}

	if path != "" {
		if err := mergeFile(cfg, path); err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config file", slog.String("path", path))
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays TASKJOURNAL_<SECTION>_<FIELD> variables.
func (l *Loader) applyEnv(cfg *Config) error {
	sections := []struct {
		prefix string
		target any
	}{
		{"SERVER_", &cfg.Server},
		{"DATABASE_", &cfg.Database},
		{"FEED_", &cfg.Feed},
		{"CLASSIFY_", &cfg.Classification},
		{"LOG_", &cfg.Log},
		{"CLIENT_", &cfg.Client},
	}
	for _, s := range sections {
		opts := env.Options{Prefix: EnvPrefix + s.prefix, Environment: l.environ}
		if err := env.ParseWithOptions(s.target, opts); err != nil {
			return fmt.Errorf("environment overrides: %w", err)
		}
	}
	return nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't
// exist and returns its path.
func (l *Loader) EnsureUserConfig() (string, error) {
	path := l.userConfigPath()
	if path == "" {
		return "", errors.New("no home directory")
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := DefaultConfig().SaveToFile(path); err != nil {
		return "", err
	}
	l.logger.Info("Created default user config", slog.String("path", path))
	return path, nil
}

func (l *Loader) userConfigPath() string {
	if l.homeDir == "" {
		return ""
	}
	return filepath.Join(l.homeDir, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for taskjournal.yaml in the working directory
// and its parents.
func (l *Loader) findProjectConfig() string {
	if l.workDir == "" {
		return ""
	}
	dir := l.workDir
	for {
		path := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
