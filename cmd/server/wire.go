//go:build wireinject

package main

import (
	"github.com/google/wire"

	"bastion-server/internal/domain"
	"bastion-server/internal/infrastructure"
	"bastion-server/internal/interfaces"
	"bastion-server/internal/interfaces/httpserver/routes"
)

func CreateApplication() (*Application, error) {
	wire.Build(
		domain.ServiceProvider,
		infrastructure.InfrastructureProvider,
		routes.RouteProvider,
		interfaces.InterfacesProvider,
		wire.Struct(new(Application), "*"),
	)
	return nil, nil
}
