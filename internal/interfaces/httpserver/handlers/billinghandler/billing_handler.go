package billinghandler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"bastion-server/internal/domain/billing"
	"bastion-server/internal/infrastructure/logger"
	"bastion-server/internal/interfaces/httpserver/middlewares"
	"bastion-server/internal/interfaces/httpserver/responses"
	"bastion-server/internal/utils/platformerrors"
)

const (
	SignatureHeader = "x-paystack-signature"
	maxWebhookBody  = 1 << 20
)

// BillingService is the billing surface exposed over HTTP.
type BillingService interface {
	Initialize(ctx context.Context, customer billing.Customer) (map[string]any, error)
	Verify(ctx context.Context, reference string) (map[string]any, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) error
	Status(ctx context.Context, userID string) (*billing.Status, error)
}

type BillingHandler struct {
	service BillingService
	log     zerolog.Logger
}

func NewBillingHandler(service *billing.Service) *BillingHandler {
	return newBillingHandler(service)
}

func newBillingHandler(service BillingService) *BillingHandler {
	return &BillingHandler{service: service, log: logger.Component("billing-handler")}
}

// StatusResponse is the plan of the caller.
type StatusResponse struct {
	Premium bool    `json:"premium"`
	Plan    *string `json:"plan"`
	Error   string  `json:"error,omitempty"`
}

// Initialize
// @Summary Start a premium checkout
// @Description Initialises a Paystack transaction for the signed-in user and returns the gateway response, including the authorization URL.
// @Tags Billing API
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 400 {object} responses.GatewayFailure
// @Failure 401 {object} responses.GatewayFailure
// @Failure 500 {object} responses.GatewayFailure
// @Router /v1/paystack/initialize [post]
func (h *BillingHandler) Initialize(c *gin.Context) {
	principal := middlewares.PrincipalFromContext(c)
	result, err := h.service.Initialize(c.Request.Context(), billing.Customer{ID: principal.ID, Email: principal.Email})
	if err != nil {
		h.writeFailure(c, err, "Unexpected server error")
		return
	}
	c.JSON(http.StatusOK, result)
}

// Verify
// @Summary Verify a transaction
// @Description Looks a transaction up by reference and reports whether the paid amount matches the plan price.
// @Tags Billing API
// @Produce json
// @Param reference query string true "Transaction reference"
// @Success 200 {object} map[string]any
// @Failure 400 {object} responses.GatewayFailure
// @Failure 500 {object} responses.GatewayFailure
// @Router /v1/paystack/verify [get]
func (h *BillingHandler) Verify(c *gin.Context) {
	result, err := h.service.Verify(c.Request.Context(), c.Query("reference"))
	if err != nil {
		h.writeFailure(c, err, "Verification failed")
		return
	}
	c.JSON(http.StatusOK, result)
}

// Webhook
// @Summary Paystack webhook
// @Description Receives signed gateway events. charge.success provisions premium once per payment reference.
// @Tags Billing API
// @Accept json
// @Produce json
// @Param x-paystack-signature header string true "HMAC-SHA512 of the raw body"
// @Success 200 {object} responses.WebhookAck
// @Failure 401 {object} responses.WebhookAck
// @Failure 500 {object} responses.WebhookAck
// @Router /v1/paystack/webhook [post]
func (h *BillingHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		responses.WriteWebhookAck(c, http.StatusBadRequest, "failed to read body")
		return
	}

	if err := h.service.HandleWebhook(c.Request.Context(), body, c.GetHeader(SignatureHeader)); err != nil {
		status := http.StatusInternalServerError
		message := "Server error"
		if platformErr := platformerrors.GetPlatformError(err); platformErr != nil {
			status = platformerrors.ErrorTypeToHTTPStatus(platformErr.Type)
			message = platformErr.Message
		}
		responses.WriteWebhookAck(c, status, message)
		return
	}
	responses.WriteWebhookAck(c, http.StatusOK, "")
}

// Status
// @Summary Billing status
// @Description Returns whether the caller has premium. Anonymous callers are never premium.
// @Tags Billing API
// @Security BearerAuth
// @Produce json
// @Success 200 {object} StatusResponse
// @Router /v1/billing/status [get]
func (h *BillingHandler) Status(c *gin.Context) {
	principal := middlewares.PrincipalFromContext(c)
	status, err := h.service.Status(c.Request.Context(), principal.ID)
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", principal.ID).Msg("billing status lookup failed")
		c.JSON(http.StatusOK, StatusResponse{Premium: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Premium: status.Premium, Plan: status.Plan})
}

func (h *BillingHandler) writeFailure(c *gin.Context, err error, fallback string) {
	platformErr := platformerrors.GetPlatformError(err)
	if platformErr == nil {
		h.log.Error().Err(err).Msg("billing request failed")
		responses.WriteGatewayFailure(c, http.StatusInternalServerError, fallback)
		return
	}
	platformerrors.LogError(h.log, platformErr)
	responses.WriteGatewayFailure(c, platformerrors.ErrorTypeToHTTPStatus(platformErr.Type), platformErr.Message)
}
