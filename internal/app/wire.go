//go:build wireinject

package app

import (
	"log/slog"

	"github.com/google/wire"
	"github.com/gowvp/kestrel/internal/conf"
	"github.com/gowvp/kestrel/internal/data"
	"github.com/gowvp/kestrel/internal/web/api"
)

func wireApp(bc *conf.Bootstrap, log *slog.Logger) (*App, func(), error) {
	panic(wire.Build(data.ProviderSet, api.ProviderSet, NewApp))
}
