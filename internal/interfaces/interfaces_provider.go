package interfaces

import (
	"github.com/google/wire"

	"bastion-server/internal/interfaces/httpserver"
	"bastion-server/internal/interfaces/httpserver/handlers"
)

var InterfacesProvider = wire.NewSet(
	handlers.HandlerProvider,
	httpserver.NewHttpServer,
)
