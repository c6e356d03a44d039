package controllers

import (
	"net/http"

	"checkout-service/middleware"
	"checkout-service/models"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
)

// CheckoutController handles HTTP requests for starting checkout.
type CheckoutController struct {
	checkoutService services.CheckoutService
}

func NewCheckoutController(svc services.CheckoutService) *CheckoutController {
	return &CheckoutController{checkoutService: svc}
}

// CreateSession handles POST /checkout/session
func (cc *CheckoutController) CreateSession(ctx *gin.Context) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": services.CodeNoUserID})
		return
	}

	var req models.CreateCheckoutSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	resp, svcErr := cc.checkoutService.CreateSession(ctx.Request.Context(), userID, &req)
	if svcErr != nil {
		writeError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusCreated, resp)
}

// CreateCartSession handles POST /checkout/cart
func (cc *CheckoutController) CreateCartSession(ctx *gin.Context) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": services.CodeNoUserID})
		return
	}

	resp, svcErr := cc.checkoutService.CreateCartSession(ctx.Request.Context(), userID)
	if svcErr != nil {
		writeError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusCreated, resp)
}

func writeError(ctx *gin.Context, svcErr *services.ServiceError) {
	ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message, "code": svcErr.Code})
}
