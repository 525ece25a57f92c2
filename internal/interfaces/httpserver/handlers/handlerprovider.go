package handlers

import (
	"github.com/google/wire"

	"bastion-server/internal/interfaces/httpserver/handlers/billinghandler"
	"bastion-server/internal/interfaces/httpserver/handlers/chathandler"
	"bastion-server/internal/interfaces/httpserver/handlers/modelhandler"
)

var HandlerProvider = wire.NewSet(
	chathandler.NewChatHandler,
	modelhandler.NewModelHandler,
	billinghandler.NewBillingHandler,
)
