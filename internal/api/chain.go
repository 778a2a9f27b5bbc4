package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chainguard/tracker/internal/ledger"
	"github.com/chainguard/tracker/internal/lifecycle"
)

const defaultActor = "system"

// txRequest is a transaction posted by another node. When role is set the
// status change is checked against it; otherwise it is taken as is.
type txRequest struct {
	ledger.Transaction
	Role string `json:"role"`
}

func (r *Router) listBlocks(c *gin.Context) {
	c.JSON(http.StatusOK, r.tracker.Blocks())
}

func (r *Router) verifyChain(c *gin.Context) {
	blocks := r.tracker.Blocks()
	err := r.tracker.Verify()
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"valid": true, "blocks": len(blocks)})
		return
	}
	body := gin.H{"valid": false, "blocks": len(blocks), "error": err.Error()}
	var chainErr *ledger.ChainError
	if errors.As(err, &chainErr) {
		body["index"] = chainErr.Index
	}
	c.JSON(http.StatusOK, body)
}

func (r *Router) submitTransaction(c *gin.Context) {
	var req txRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		r.abort(c, NewError(http.StatusBadRequest, "invalid_request_body", err))
		return
	}
	tx := req.Transaction
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Actor == "" {
		tx.Actor = defaultActor
	}
	if tx.Status == "" && tx.Type != ledger.TxAnalysisResult && tx.Type != ledger.TxRegistration {
		if product, err := r.tracker.Product(c.Request.Context(), tx.ProductUID); err == nil {
			tx.Status = product.CurrentStatus
		}
	}
	if err := r.importer.Transaction(tx); err != nil {
		r.abort(c, err)
		return
	}

	var role lifecycle.Role
	if req.Role != "" {
		parsed, err := lifecycle.ParseRole(req.Role)
		if err != nil {
			r.abort(c, NewError(http.StatusBadRequest, "invalid_request", err))
			return
		}
		role = parsed
	}

	block, err := r.tracker.Submit(c.Request.Context(), tx, role)
	if err != nil {
		r.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, block)
}

// importTransactions takes one transaction or an array exported from another
// node and appends them in a single block.
func (r *Router) importTransactions(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		r.abort(c, NewError(http.StatusBadRequest, "invalid_request_body", err))
		return
	}
	txs, err := r.importer.Transactions(data)
	if err != nil {
		r.abort(c, err)
		return
	}
	block, err := r.tracker.Import(c.Request.Context(), txs)
	if err != nil {
		r.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, block)
}
