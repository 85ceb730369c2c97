package app

import (
	"context"
	"fmt"

	"radar/internal/config"
	"radar/internal/logger"
	dashboardhttp "radar/internal/transport/http/dashboard"

	"golang.org/x/sync/errgroup"
)

// App runs the dashboard server and the policy watcher together.
type App struct {
	cfg     *config.Config
	comps   *Components
	http    *dashboardhttp.Server
	Summary *StartupSummary
}

// NewApp builds the application without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// NewComponents builds the engines and stores for one-shot commands.
func NewComponents(ctx context.Context, cfg *config.Config) (*Components, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return buildComponentsWithWire(ctx, cfg)
}

// Run serves until ctx is cancelled or a component fails, then closes the stores.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil || a.comps == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.comps.Close()
	if a.Summary != nil {
		a.Summary.Print()
	}
	group, ctx := errgroup.WithContext(ctx)
	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("dashboard http server error: %w", err)
			}
			return nil
		})
	}
	if a.cfg.Reports.WatchPolicy {
		group.Go(func() error {
			return a.comps.Policy.Watch(ctx)
		})
	}
	return group.Wait()
}

func (a *App) Components() *Components {
	if a == nil {
		return nil
	}
	return a.comps
}
