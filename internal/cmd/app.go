package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kingrea/linaje/internal/config"
	"github.com/kingrea/linaje/internal/family"
	"github.com/kingrea/linaje/internal/genealogy"
	"github.com/kingrea/linaje/internal/logbook"
	"github.com/kingrea/linaje/internal/logging"
	"github.com/kingrea/linaje/internal/metrics"
	"github.com/kingrea/linaje/internal/pattern"
	"github.com/kingrea/linaje/internal/ritual"
	"github.com/kingrea/linaje/internal/store"
	"github.com/kingrea/linaje/internal/voice"
)

// app is everything a command needs, opened from .linaje/.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   store.Store
	metrics *metrics.Metrics
	journal *logbook.Logbook
	family  *family.Service
	rituals *ritual.Service
}

var errNotInitialized = errors.New("no .linaje directory here; run 'linaje init' first")

func openApp() (*app, error) {
	if _, err := os.Stat(filepath.Join(projectDir, config.LinajeDir)); err != nil {
		return nil, errNotInitialized
	}
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		return nil, err
	}
	logger, err := logging.FromConfig(cfg, verbose)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New(nil)}
	if a.journal, err = logbook.New(cfg.JournalPath()); err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if a.store, err = store.Open(cfg); err != nil {
		return nil, err
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	engine := pattern.NewEngine(catalog,
		pattern.WithMaxDepth(cfg.Project.Detection.MaxDepth),
		pattern.WithLogger(logger.Named("pattern")))
	a.family, err = family.New(a.store, a.store, engine,
		family.WithRoot(genealogy.MemberID(cfg.RootMember())),
		family.WithMaxDepth(cfg.Project.Detection.MaxDepth),
		family.WithDebounce(cfg.Debounce()),
		family.WithJournal(a.journal),
		family.WithMetrics(a.metrics),
		family.WithLogger(logger.Named("family")))
	if err != nil {
		a.Close()
		return nil, err
	}

	library, err := ritual.LoadLibrary(cfg.DefinitionsDir())
	if err != nil {
		a.Close()
		return nil, err
	}
	req := voice.Requirement{Threshold: cfg.Project.Voice.Threshold, MinMatches: cfg.Project.Voice.MinMatches}
	a.rituals, err = ritual.NewService(library, a.store,
		ritual.WithServiceValidator(voice.NewValidator(req)),
		ritual.WithJournal(a.journal),
		ritual.WithMetrics(a.metrics),
		ritual.WithLogger(logger.Named("ritual")))
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func loadCatalog(cfg *config.Config) (pattern.Catalog, error) {
	if path := cfg.Project.Detection.Catalog; path != "" {
		return pattern.LoadCatalog(path)
	}
	return pattern.DefaultCatalog()
}

// Close stops detection and releases the store.
func (a *app) Close() {
	if a.family != nil {
		a.family.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing store failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// refresh re-runs detection after an edit when a root is selected, so the
// stored patterns never lag behind the graph between commands.
func (a *app) refresh(ctx context.Context) ([]pattern.Pattern, bool, error) {
	if a.family.Root() == "" {
		return nil, false, nil
	}
	patterns, err := a.family.DetectNow(ctx)
	if err != nil {
		return nil, false, err
	}
	return patterns, true, nil
}

// withApp opens the app for the duration of fn.
func withApp(fn func(*app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
