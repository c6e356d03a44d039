package controllers

import (
	"io"
	"net/http"

	"checkout-service/services"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

const maxWebhookBody = int64(65536)

// EventVerifier authenticates a raw webhook delivery.
type EventVerifier interface {
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
}

type WebhookController struct {
	verifier       EventVerifier
	webhookService services.WebhookService
	logger         *zap.Logger
}

func NewWebhookController(verifier EventVerifier, svc services.WebhookService, logger *zap.Logger) *WebhookController {
	return &WebhookController{verifier: verifier, webhookService: svc, logger: logger}
}

// HandleStripe handles POST /stripe/webhook.
// A failure after the order was recorded is acknowledged with 200 so Stripe
// does not redeliver into the duplicate short-circuit.
func (wc *WebhookController) HandleStripe(ctx *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxWebhookBody))
	if err != nil {
		wc.logger.Warn("Failed to read webhook body", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload.", "code": services.CodeInvalidWebhook})
		return
	}

	event, err := wc.verifier.ConstructEvent(payload, ctx.GetHeader("Stripe-Signature"))
	if err != nil {
		wc.logger.Warn("Webhook signature verification failed", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload.", "code": services.CodeInvalidWebhook})
		return
	}

	svcErr := wc.webhookService.HandleEvent(ctx.Request.Context(), event)
	switch {
	case svcErr == nil:
		ctx.JSON(http.StatusOK, gin.H{"received": true})
	case svcErr.OrderPlaced:
		ctx.JSON(http.StatusOK, gin.H{"received": true, "follow_up": svcErr.Code})
	default:
		wc.logger.Error("Webhook handling failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("code", svcErr.Code),
			zap.Error(svcErr.Err),
		)
		writeError(ctx, svcErr)
	}
}
