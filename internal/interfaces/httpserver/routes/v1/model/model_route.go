package model

import (
	"github.com/gin-gonic/gin"

	"bastion-server/internal/interfaces/httpserver/handlers/modelhandler"
)

type ModelRoute struct {
	modelHandler *modelhandler.ModelHandler
}

func NewModelRoute(modelHandler *modelhandler.ModelHandler) *ModelRoute {
	return &ModelRoute{modelHandler: modelHandler}
}

func (modelRoute *ModelRoute) RegisterRouter(router gin.IRouter) {
	router.GET("/models", modelRoute.modelHandler.ListModels)
}
