package billing

import (
	"github.com/gin-gonic/gin"

	"bastion-server/internal/interfaces/httpserver/handlers/billinghandler"
)

type BillingRoute struct {
	billingHandler *billinghandler.BillingHandler
}

func NewBillingRoute(billingHandler *billinghandler.BillingHandler) *BillingRoute {
	return &BillingRoute{billingHandler: billingHandler}
}

func (billingRoute *BillingRoute) RegisterRouter(router gin.IRouter) {
	paystack := router.Group("/paystack")
	paystack.POST("/initialize", billingRoute.billingHandler.Initialize)
	paystack.GET("/verify", billingRoute.billingHandler.Verify)

	router.GET("/billing/status", billingRoute.billingHandler.Status)
}

// RegisterPublicRouter registers the gateway webhook, which authenticates by signature.
func (billingRoute *BillingRoute) RegisterPublicRouter(router gin.IRouter) {
	router.POST("/paystack/webhook", billingRoute.billingHandler.Webhook)
}
