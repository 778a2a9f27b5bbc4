package importer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chainguard/tracker/internal/commerce"
)

// Defaults applied to bridged orders.
const (
	DefaultCategory    = "Electronics"
	DefaultSKU         = "UNKNOWN-SKU"
	BridgeUserIP       = "127.0.0.1"
	BridgeDeviceID     = "BRIDGE-IMPORT"
	ImportedGenesis    = "IMPORTED_HASH"
	ImportedFactory    = "Imported Node"
	isoMillis          = "2006-01-02T15:04:05.000Z"
	missingOrderFields = "Invalid JSON: Missing productName or orderId"
)

// BridgedOrder is an order pasted in from an external node.
type BridgedOrder struct {
	Platform          string                      `json:"platform"`
	OrderID           string                      `json:"orderId" validate:"required"`
	ProductName       string                      `json:"productName" validate:"required"`
	Category          string                      `json:"category"`
	Price             float64                     `json:"price" validate:"gte=0"`
	PurchaseDate      string                      `json:"purchaseDate"`
	ProductImage      string                      `json:"productImage"`
	SKU               string                      `json:"sku"`
	SerialNumber      string                      `json:"serialNumber"`
	FulfillmentStatus commerce.Fulfillment        `json:"fulfillmentStatus" validate:"omitempty,oneof=Processing Shipped Delivered"`
	ManufactureDate   string                      `json:"manufactureDate"`
	OriginFactory     string                      `json:"originFactory"`
	History           []commerce.SupplyChainEvent `json:"history"`
}

// Customer identifies who is bridging the order in.
type Customer struct {
	Platform string
	UserID   string
	Email    string
}

// Order decodes a bridged order and fills in defaults. The passport is
// returned only when the document carries its own history; otherwise the
// caller looks one up by SKU.
func (im *Importer) Order(data []byte, who Customer, now time.Time) (*commerce.Order, *commerce.Passport, error) {
	var in BridgedOrder
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedImport, err)
	}
	if in.OrderID == "" || in.ProductName == "" {
		return nil, nil, fmt.Errorf("%w: %s", ErrMalformedImport, missingOrderFields)
	}
	if err := im.validate.Struct(in); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrMalformedImport, describe(err))
	}

	stamp := now.UTC().Format(isoMillis)
	order := &commerce.Order{
		Platform:          or(in.Platform, who.Platform),
		OrderID:           in.OrderID,
		ProductName:       in.ProductName,
		Category:          or(in.Category, DefaultCategory),
		ProductImage:      in.ProductImage,
		PurchaseDate:      or(in.PurchaseDate, stamp),
		Price:             in.Price,
		SKU:               or(in.SKU, DefaultSKU),
		SerialNumber:      in.SerialNumber,
		FulfillmentStatus: commerce.Fulfillment(or(string(in.FulfillmentStatus), string(commerce.FulfillmentDelivered))),
		UserID:            who.UserID,
		UserEmail:         who.Email,
		UserIP:            BridgeUserIP,
		DeviceID:          BridgeDeviceID,
	}

	if in.History == nil {
		return order, nil, nil
	}
	passport := &commerce.Passport{
		UniqueID:        order.SKU,
		GenesisHash:     ImportedGenesis,
		ManufactureDate: or(in.ManufactureDate, stamp),
		OriginFactory:   or(in.OriginFactory, ImportedFactory),
		History:         in.History,
	}
	order.Passport = passport
	return order, passport, nil
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
