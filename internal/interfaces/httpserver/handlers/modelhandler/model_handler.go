package modelhandler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bastion-server/internal/domain/model"
	"bastion-server/internal/interfaces/httpserver/responses"
)

type ModelHandler struct {
	catalog *model.CatalogService
}

func NewModelHandler(catalog *model.CatalogService) *ModelHandler {
	return &ModelHandler{catalog: catalog}
}

// ListModels
// @Summary List available models
// @Description Lists enabled catalog models whose provider has credentials configured.
// @Tags Models API
// @Produce json
// @Success 200 {object} responses.ListResponse[model.Model]
// @Router /v1/models [get]
func (h *ModelHandler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, responses.NewListResponse(h.catalog.ListEnabled()))
}
