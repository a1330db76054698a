// Package file loads the YAML config file and reloads it when it changes.
package file

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/infohyun/aramcrm-sub000/internal/pkg/config"
)

// DefaultDebounce is how long the watcher waits for a burst of writes to
// settle before reloading.
const DefaultDebounce = 100 * time.Millisecond

// Provider implements ports.ConfigProvider on top of a YAML file. Callers
// decide what to apply from a reloaded config; in practice only the
// orchestrator section changes at runtime.
type Provider struct {
	path     string
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.RWMutex
	current *config.Config
	watcher *fsnotify.Watcher
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger used for reload messages.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithDebounce overrides DefaultDebounce. Zero reloads on every event.
func WithDebounce(d time.Duration) Option {
	return func(p *Provider) { p.debounce = d }
}

// NewProvider returns a provider for the file at path. The file is not read
// until Load.
func NewProvider(path string, opts ...Option) (*Provider, error) {
	if path == "" {
		return nil, errors.New("config path cannot be empty")
	}
	p := &Provider{path: path, logger: slog.Default(), debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Load reads the file and makes the result current.
func (p *Provider) Load(ctx context.Context) (*config.Config, error) {
	cfg, err := p.read()
	if err != nil {
		return nil, err
	}
	p.logger.InfoContext(ctx, "config loaded", slog.String("path", p.path))
	return cfg, nil
}

// Current returns the last successfully loaded config, or nil before Load.
func (p *Provider) Current() *config.Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

func (p *Provider) read() (*config.Config, error) {
	cfg, err := config.LoadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("load config from %s: %w", p.path, err)
	}
	p.mu.Lock()
	p.current = cfg
	p.mu.Unlock()
	return cfg, nil
}

// Watch calls onChange after every successful reload until ctx is done or
// the provider is closed. A file that fails to load is logged and the
// previous config stays current.
func (p *Provider) Watch(ctx context.Context, onChange func(*config.Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// The directory is watched so editors that replace the file are still seen.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", p.path, err)
	}

	p.mu.Lock()
	p.watcher = watcher
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "watching config file", slog.String("path", p.path))
	go p.loop(ctx, watcher, onChange)
	return nil
}

func (p *Provider) loop(ctx context.Context, watcher *fsnotify.Watcher, onChange func(*config.Config)) {
	defer watcher.Close()

	target := filepath.Clean(p.path)
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if p.debounce <= 0 {
				p.reload(ctx, onChange)
				continue
			}
			pending = time.After(p.debounce)

		case <-pending:
			pending = nil
			p.reload(ctx, onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.ErrorContext(ctx, "config watch error", slog.String("error", err.Error()))
		}
	}
}

func (p *Provider) reload(ctx context.Context, onChange func(*config.Config)) {
	cfg, err := p.read()
	if err != nil {
		p.logger.ErrorContext(ctx, "config reload failed, keeping previous config",
			slog.String("path", p.path),
			slog.String("error", err.Error()))
		return
	}
	p.logger.InfoContext(ctx, "config reloaded", slog.String("path", p.path))
	onChange(cfg)
}

// Close stops watching the file.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watcher == nil {
		return nil
	}
	err := p.watcher.Close()
	p.watcher = nil
	return err
}
