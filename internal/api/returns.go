package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chainguard/tracker/internal/ai"
	"github.com/chainguard/tracker/internal/commerce"
	"github.com/chainguard/tracker/internal/importer"
	"github.com/chainguard/tracker/internal/returns"
)

type mediaPayload struct {
	Data     []byte `json:"data" binding:"required"`
	MIMEType string `json:"mimeType" binding:"required"`
}

// returnRequest starts a return either from a marketplace order id or from an
// order bridged in as JSON. Media is base64 encoded.
type returnRequest struct {
	Platform  string          `json:"platform"`
	OrderID   string          `json:"orderId"`
	Order     json.RawMessage `json:"order"`
	UserID    string          `json:"userId"`
	UserEmail string          `json:"userEmail"`
	Item      mediaPayload    `json:"item" binding:"required"`
	Receipt   *mediaPayload   `json:"receipt"`
}

func (r *Router) listPlatforms(c *gin.Context) {
	c.JSON(http.StatusOK, commerce.Platforms)
}

func (r *Router) lookupOrder(c *gin.Context) {
	order, _, err := r.returns.FetchOrder(c.Request.Context(), c.Param("platform"), c.Param("id"))
	if err != nil {
		r.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (r *Router) listOrders(c *gin.Context) {
	c.JSON(http.StatusOK, r.tracker.Orders())
}

func (r *Router) getOrder(c *gin.Context) {
	order, err := r.tracker.Order(c.Param("id"))
	if err != nil {
		r.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (r *Router) processReturn(c *gin.Context) {
	var req returnRequest
	if err := r.bindAndValidate(c, &req); err != nil {
		return
	}

	in := returns.Request{
		Platform:  req.Platform,
		OrderID:   req.OrderID,
		Item:      returns.Media{Data: req.Item.Data, MIMEType: req.Item.MIMEType},
		UserID:    req.UserID,
		UserEmail: req.UserEmail,
	}
	if req.Receipt != nil {
		in.Receipt = &returns.Media{Data: req.Receipt.Data, MIMEType: req.Receipt.MIMEType}
	}
	if len(req.Order) > 0 {
		order, passport, err := r.importer.Order(req.Order, importer.Customer{
			Platform: req.Platform,
			UserID:   req.UserID,
			Email:    req.UserEmail,
		}, r.now())
		if err != nil {
			r.abort(c, err)
			return
		}
		in.Order, in.Passport = order, passport
	} else if req.OrderID == "" {
		r.abort(c, NewError(http.StatusBadRequest, "invalid_request", commerce.ErrInvalidOrderID))
		return
	}

	res, err := r.returns.Process(c.Request.Context(), in)
	if err != nil {
		r.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (r *Router) listBots(c *gin.Context) {
	bots := r.returns.Bots()
	if bots == nil {
		bots = []ai.Bot{}
	}
	c.JSON(http.StatusOK, bots)
}

func (r *Router) connectBot(c *gin.Context) {
	var bot ai.Bot
	if err := r.bindAndValidate(c, &bot); err != nil {
		return
	}
	c.JSON(http.StatusCreated, r.returns.ConnectBot(bot))
}

func (r *Router) disconnectBot(c *gin.Context) {
	if !r.returns.DisconnectBot(c.Param("id")) {
		r.abort(c, NewError(http.StatusNotFound, "not_found", nil))
		return
	}
	c.Status(http.StatusNoContent)
}
