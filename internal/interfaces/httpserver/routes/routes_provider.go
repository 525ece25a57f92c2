package routes

import (
	"github.com/google/wire"

	v1 "bastion-server/internal/interfaces/httpserver/routes/v1"
	"bastion-server/internal/interfaces/httpserver/routes/v1/billing"
	"bastion-server/internal/interfaces/httpserver/routes/v1/chat"
	"bastion-server/internal/interfaces/httpserver/routes/v1/model"
)

var RouteProvider = wire.NewSet(
	v1.NewV1Route,
	chat.NewChatRoute,
	model.NewModelRoute,
	billing.NewBillingRoute,
)
