//go:build wireinject

package app

import (
	"context"

	"radar/internal/config"

	"github.com/google/wire"
)

func buildAppWithWire(ctx context.Context, cfg *config.Config) (*App, error) {
	wire.Build(provideAppBuilder, wire.Bind(new(appBuilderDeps), new(*AppBuilder)), provideAppFromBuilder)
	return nil, nil
}

func buildComponentsWithWire(ctx context.Context, cfg *config.Config) (*Components, error) {
	wire.Build(provideAppBuilder, wire.Bind(new(componentBuilderDeps), new(*AppBuilder)), provideComponentsFromBuilder)
	return nil, nil
}
