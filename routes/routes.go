package routes

import (
	"checkout-service/common/middleware"
	"checkout-service/controllers"
	authmw "checkout-service/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterCheckoutRoutes sets up checkout, webhook and admin routes.
func RegisterCheckoutRoutes(
	r *gin.Engine,
	jwtSecret []byte,
	limiter *middleware.RateLimiter,
	cc *controllers.CheckoutController,
	wc *controllers.WebhookController,
	pc *controllers.ProductController,
) {
	checkout := r.Group("/checkout")
	checkout.Use(authmw.AuthMiddleware(jwtSecret), middleware.RateLimitMiddleware(limiter))
	checkout.POST("/session", cc.CreateSession)
	checkout.POST("/cart", cc.CreateCartSession)

	// Public: authenticated by the Stripe-Signature header
	r.POST("/stripe/webhook", wc.HandleStripe)

	admin := r.Group("/admin")
	admin.Use(authmw.AuthMiddleware(jwtSecret), authmw.AdminOnly())
	admin.POST("/products/:id/stripe", pc.Provision)
}
