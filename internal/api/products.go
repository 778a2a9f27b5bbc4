package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chainguard/tracker/internal/lifecycle"
	"github.com/chainguard/tracker/internal/tracker"
)

type registerRequest struct {
	Name         string `json:"name" binding:"required"`
	Category     string `json:"category" binding:"required"`
	BatchNumber  string `json:"batchNumber" binding:"required"`
	Model        string `json:"model"`
	SerialNumber string `json:"serialNumber"`
	ExpiryDate   string `json:"expiryDate"`
	Warranty     string `json:"warranty"`
	ImageURL     string `json:"imageUrl"`
	Image        []byte `json:"image"`
	Actor        string `json:"actor" binding:"required"`
	Simulate     bool   `json:"simulate"`
}

type statusRequest struct {
	Status     string `json:"status" binding:"required"`
	Role       string `json:"role" binding:"required"`
	Actor      string `json:"actor" binding:"required"`
	Location   string `json:"location"`
	Notes      string `json:"notes"`
	CustomerID string `json:"customerId"`
	SalePrice  string `json:"salePrice"`
}

type refundRequest struct {
	InvoiceAttached bool `json:"invoiceAttached"`
}

func (r *Router) listProducts(c *gin.Context) {
	if customer := c.Query("customer"); customer != "" {
		c.JSON(http.StatusOK, r.tracker.CustomerProducts(c.Request.Context(), customer))
		return
	}
	products := r.tracker.Products(c.Request.Context())
	if products == nil {
		c.JSON(http.StatusOK, []struct{}{})
		return
	}
	c.JSON(http.StatusOK, products)
}

func (r *Router) registerProduct(c *gin.Context) {
	var req registerRequest
	if err := r.bindAndValidate(c, &req); err != nil {
		return
	}
	product, err := r.tracker.RegisterProduct(c.Request.Context(), tracker.Registration{
		Name:         req.Name,
		Category:     req.Category,
		BatchNumber:  req.BatchNumber,
		Model:        req.Model,
		SerialNumber: req.SerialNumber,
		ExpiryDate:   req.ExpiryDate,
		Warranty:     req.Warranty,
		ImageURL:     req.ImageURL,
		Image:        req.Image,
		Actor:        req.Actor,
		Simulate:     req.Simulate,
	})
	if err != nil {
		r.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (r *Router) getProduct(c *gin.Context) {
	product, err := r.tracker.Product(c.Request.Context(), c.Param("uid"))
	if err != nil {
		r.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (r *Router) updateStatus(c *gin.Context) {
	var req statusRequest
	if err := r.bindAndValidate(c, &req); err != nil {
		return
	}
	next, err := lifecycle.ParseStatus(req.Status)
	if err != nil {
		r.abort(c, NewError(http.StatusBadRequest, "invalid_request", err))
		return
	}
	role, err := lifecycle.ParseRole(req.Role)
	if err != nil {
		r.abort(c, NewError(http.StatusBadRequest, "invalid_request", err))
		return
	}

	product, err := r.tracker.UpdateStatus(c.Request.Context(), tracker.StatusUpdate{
		UID:        c.Param("uid"),
		Next:       next,
		Role:       role,
		Actor:      req.Actor,
		Location:   req.Location,
		Notes:      req.Notes,
		CustomerID: req.CustomerID,
		SalePrice:  req.SalePrice,
	})
	if err != nil {
		r.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (r *Router) refundEligibility(c *gin.Context) {
	eligibility, err := r.tracker.RefundEligibility(c.Request.Context(), c.Param("uid"))
	if err != nil {
		r.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, eligibility)
}

func (r *Router) decideRefund(c *gin.Context) {
	var req refundRequest
	if err := r.bindAndValidate(c, &req); err != nil {
		return
	}
	outcome, err := r.tracker.DecideRefund(c.Request.Context(), tracker.RefundRequest{
		UID:             c.Param("uid"),
		InvoiceAttached: req.InvoiceAttached,
	})
	if err != nil {
		r.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (r *Router) auditProduct(c *gin.Context) {
	report, err := r.tracker.Audit(c.Request.Context(), c.Param("uid"))
	if err != nil {
		r.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uid": c.Param("uid"), "audit": report})
}
