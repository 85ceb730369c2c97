package app

import (
	"context"

	"radar/internal/config"
)

type appBuilderDeps interface {
	Build(context.Context) (*App, error)
}

type componentBuilderDeps interface {
	BuildComponents(context.Context) (*Components, error)
}

func provideAppBuilder(cfg *config.Config) *AppBuilder {
	return NewAppBuilder(cfg)
}

func provideAppFromBuilder(b appBuilderDeps, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}

func provideComponentsFromBuilder(b componentBuilderDeps, ctx context.Context) (*Components, error) {
	return b.BuildComponents(ctx)
}
