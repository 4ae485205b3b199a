package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Config holds HTTP server settings.
type Config struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// AnalyzeRate is the sustained classification requests per second; 0 disables limiting.
	AnalyzeRate    float64  `yaml:"analyze_rate" env:"ANALYZE_RATE"`
	AnalyzeBurst   int      `yaml:"analyze_burst" env:"ANALYZE_BURST"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	// Timezone for dashboard day buckets. Empty means the server's local zone.
	Timezone string `yaml:"timezone" env:"TIMEZONE"`
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:8080",
		ReadTimeout:     15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		AnalyzeRate:     2,
		AnalyzeBurst:    5,
	}
}

// Validate checks the server settings.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("server addr is required")
	}
	if c.AnalyzeRate < 0 {
		return fmt.Errorf("analyze_rate must be >= 0, got %v", c.AnalyzeRate)
	}
	if c.AnalyzeRate > 0 && c.AnalyzeBurst < 1 {
		return fmt.Errorf("analyze_burst must be >= 1 when analyze_rate is set, got %d", c.AnalyzeBurst)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid server timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Options turns the server settings into handler options.
func (c Config) Options() []Option {
	opts := []Option{WithAnalyzeLimit(c.AnalyzeRate, c.AnalyzeBurst)}
	if len(c.AllowedOrigins) > 0 {
		opts = append(opts, WithAllowedOrigins(c.AllowedOrigins...))
	}
	if loc, err := c.Location(); err == nil {
		opts = append(opts, WithLocation(loc))
	}
	return opts
}

// Serve listens on cfg.Addr and serves handler until ctx is done, then shuts
// down gracefully.
func Serve(ctx context.Context, cfg Config, handler http.Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	return ServeListener(ctx, ln, cfg, handler, logger)
}

// ServeListener is Serve on an existing listener.
func ServeListener(ctx context.Context, ln net.Listener, cfg Config, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	// Hijacked stream connections are not tracked by Shutdown; cancelling the
	// base context is what ends them.
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()

	// No WriteTimeout: streams set their own write deadlines.
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelBase)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	logger.Info("HTTP server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
