package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bastion-server/internal/config"
	"bastion-server/internal/interfaces/httpserver/routes/v1/billing"
	"bastion-server/internal/interfaces/httpserver/routes/v1/chat"
	"bastion-server/internal/interfaces/httpserver/routes/v1/model"
)

type V1Route struct {
	chat    *chat.ChatRoute
	model   *model.ModelRoute
	billing *billing.BillingRoute
}

func NewV1Route(
	chat *chat.ChatRoute,
	model *model.ModelRoute,
	billing *billing.BillingRoute,
) *V1Route {
	return &V1Route{
		chat,
		model,
		billing,
	}
}

func (v1Route *V1Route) RegisterRouter(router gin.IRouter) {
	v1Router := router.Group("/v1")
	v1Router.GET("/version", GetVersion)

	v1Route.chat.RegisterRouter(v1Router)
	v1Route.model.RegisterRouter(v1Router)
	v1Route.billing.RegisterRouter(v1Router)
}

// RegisterPublicRouter registers endpoints that do not resolve a caller.
func (v1Route *V1Route) RegisterPublicRouter(router gin.IRouter) {
	v1Router := router.Group("/v1")
	v1Route.billing.RegisterPublicRouter(v1Router)
}

// GetVersion godoc
// @Summary Get API build version
// @Description Returns the current build version of the API server and environment reload timestamp.
// @Tags Server API
// @Produce json
// @Success 200 {object} map[string]string
// @Router /v1/version [get]
func GetVersion(reqCtx *gin.Context) {
	envReloadedAt := ""
	if cfg := config.GetGlobal(); cfg != nil {
		envReloadedAt = cfg.EnvReloadedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	reqCtx.JSON(http.StatusOK, gin.H{
		"version":         config.Version,
		"env_reloaded_at": envReloadedAt,
	})
}
