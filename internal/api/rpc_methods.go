package api

import (
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/chainguard/tracker/internal/tracker"
)

// registerMethods registers the ledger query methods
func (r *Router) registerMethods(h *JSONRPCHandler) {
	h.RegisterMethod("chain.head", r.rpcHead)
	h.RegisterMethod("chain.get_block", r.rpcGetBlock)
	h.RegisterMethod("chain.get_blocks", r.rpcGetBlocks)
	h.RegisterMethod("chain.verify", r.rpcVerify)
	h.RegisterMethod("products.get", r.rpcGetProduct)
	h.RegisterMethod("products.list", r.rpcListProducts)
	h.RegisterMethod("orders.get", r.rpcGetOrder)
}

// rpcHead returns the ledger head
func (r *Router) rpcHead(c *gin.Context, _ json.RawMessage) (interface{}, error) {
	blocks := r.tracker.Blocks()
	head := blocks[len(blocks)-1]
	return gin.H{
		"index":     head.Index,
		"hash":      head.Hash,
		"timestamp": head.Timestamp,
		"blocks":    len(blocks),
	}, nil
}

func (r *Router) rpcGetBlock(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Index int64 `json:"index"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	blocks := r.tracker.Blocks()
	if p.Index < 0 || p.Index >= int64(len(blocks)) {
		return nil, fmt.Errorf("block %d: %w", p.Index, tracker.ErrNotFound)
	}
	return blocks[p.Index], nil
}

// rpcGetBlocks pages through the chain from a starting index
func (r *Router) rpcGetBlocks(c *gin.Context, params json.RawMessage) (interface{}, error) {
	p := struct {
		From  int64 `json:"from"`
		Limit int   `json:"limit"`
	}{Limit: 20}
	if len(params) > 0 {
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
	}
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 100
	}
	blocks := r.tracker.Blocks()
	if p.From < 0 || p.From >= int64(len(blocks)) {
		return []interface{}{}, nil
	}
	end := int(p.From) + p.Limit
	if end > len(blocks) {
		end = len(blocks)
	}
	return blocks[p.From:end], nil
}

func (r *Router) rpcVerify(c *gin.Context, _ json.RawMessage) (interface{}, error) {
	if err := r.tracker.Verify(); err != nil {
		return gin.H{"valid": false, "error": err.Error()}, nil
	}
	return gin.H{"valid": true}, nil
}

func (r *Router) rpcGetProduct(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		UID string `json:"uid"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return r.tracker.Product(c.Request.Context(), p.UID)
}

func (r *Router) rpcListProducts(c *gin.Context, _ json.RawMessage) (interface{}, error) {
	return r.tracker.Products(c.Request.Context()), nil
}

func (r *Router) rpcGetOrder(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		OrderID string `json:"orderId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return r.tracker.Order(p.OrderID)
}
