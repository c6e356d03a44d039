package controllers

import (
	"context"
	"net/http"

	"checkout-service/models"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Provisioner interface {
	Provision(ctx context.Context, productID uuid.UUID) (*models.ProvisionResult, *services.ServiceError)
}

// ProductController exposes admin operations on the payment catalogue.
type ProductController struct {
	provisioner Provisioner
}

func NewProductController(p Provisioner) *ProductController {
	return &ProductController{provisioner: p}
}

// Provision handles POST /admin/products/:id/stripe
func (pc *ProductController) Provision(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	result, svcErr := pc.provisioner.Provision(ctx.Request.Context(), id)
	if svcErr != nil {
		writeError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, result)
}
