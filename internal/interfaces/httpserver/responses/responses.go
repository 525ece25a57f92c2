package responses

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the JSON error body. See platformerrors.HTTPErrorResponse for the writer.
type ErrorResponse struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      string `json:"code,omitempty"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

// ListResponse wraps list endpoints.
type ListResponse[T any] struct {
	Object string `json:"object" example:"list"`
	Data   []T    `json:"data"`
}

func NewListResponse[T any](data []T) ListResponse[T] {
	if data == nil {
		data = []T{}
	}
	return ListResponse[T]{Object: "list", Data: data}
}

// GatewayFailure is the body billing endpoints answer with on failure.
type GatewayFailure struct {
	Status bool   `json:"status" example:"false"`
	Error  string `json:"error" example:"Missing reference"`
}

func WriteGatewayFailure(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, GatewayFailure{Status: false, Error: message})
}

// WebhookAck is the body of every webhook response.
type WebhookAck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func WriteWebhookAck(c *gin.Context, status int, message string) {
	if status == http.StatusOK {
		c.JSON(status, WebhookAck{OK: true})
		return
	}
	c.AbortWithStatusJSON(status, WebhookAck{OK: false, Error: message})
}
