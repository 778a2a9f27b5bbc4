// Package commerce resolves orders and product passports from the mock
// marketplace. Lookups are deterministic per id.
package commerce

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrInvalidOrderID is returned for ids too short to belong to an order.
var ErrInvalidOrderID = errors.New("invalid order id, please check your receipt")

// Fulfillment is the shipping state of an order.
type Fulfillment string

// Fulfillment states.
const (
	FulfillmentProcessing Fulfillment = "Processing"
	FulfillmentShipped    Fulfillment = "Shipped"
	FulfillmentDelivered  Fulfillment = "Delivered"
)

// Order is a marketplace order as seen by the return desk.
type Order struct {
	Platform          string      `json:"platform"`
	OrderID           string      `json:"orderId"`
	ProductName       string      `json:"productName"`
	Category          string      `json:"category"`
	ProductImage      string      `json:"productImage,omitempty"`
	PurchaseDate      string      `json:"purchaseDate"`
	Price             float64     `json:"price"`
	SKU               string      `json:"sku"`
	SerialNumber      string      `json:"serialNumber,omitempty"`
	FulfillmentStatus Fulfillment `json:"fulfillmentStatus"`
	Passport          *Passport   `json:"productPassport,omitempty"`
	ReceiptVerified   *bool       `json:"receiptVerified,omitempty"`
	UserID            string      `json:"userId"`
	UserEmail         string      `json:"userEmail"`
	UserIP            string      `json:"userIp"`
	DeviceID          string      `json:"deviceId"`
}

// HasVerifiedReceipt reports whether a receipt was checked and accepted.
func (o *Order) HasVerifiedReceipt() bool {
	return o.ReceiptVerified != nil && *o.ReceiptVerified
}

// ReceiptRejected reports whether a receipt was checked and refused. An
// unchecked receipt is not rejected.
func (o *Order) ReceiptRejected() bool {
	return o.ReceiptVerified != nil && !*o.ReceiptVerified
}

// SetReceiptVerified records the outcome of a receipt check.
func (o *Order) SetReceiptVerified(ok bool) {
	o.ReceiptVerified = &ok
}

type catalogItem struct {
	name     string
	category string
	price    float64
	image    string
}

var catalog = []catalogItem{
	{"Sony WH-1000XM5 Wireless Headphones", "Electronics", 24990, "https://images.unsplash.com/photo-1505740420928-5e560c06d30e?auto=format&fit=crop&w=800&q=80"},
	{"Nike Air Max 270 Red", "Footwear", 10495, "https://images.unsplash.com/photo-1542291026-7eec264c27ff?auto=format&fit=crop&w=800&q=80"},
	{"Apple Watch Series 9 (Silver)", "Electronics", 41900, "https://images.unsplash.com/photo-1523275335684-37898b6baf30?auto=format&fit=crop&w=800&q=80"},
	{"Levis Men's Blue Denim Jeans", "Fashion", 3299, "https://images.unsplash.com/photo-1542272454315-5c0ea7386a00?auto=format&fit=crop&w=800&q=80"},
	{"Canon EOS Camera Kit", "Electronics", 65999, "https://images.unsplash.com/photo-1526170375885-4d8ecf77b99f?auto=format&fit=crop&w=800&q=80"},
	{"MacBook Pro 14-inch", "Electronics", 114900, "https://images.unsplash.com/photo-1496181133206-80ce9b88a853?auto=format&fit=crop&w=800&q=80"},
	{"Ray-Ban Classic Aviator", "Accessories", 8590, "https://images.unsplash.com/photo-1572635196237-14b3f281503f?auto=format&fit=crop&w=800&q=80"},
	{"Travel Backpack (Grey)", "Fashion", 4500, "https://images.unsplash.com/photo-1553062407-98eeb64c6a62?auto=format&fit=crop&w=800&q=80"},
	{"Skincare Essentials Set", "Beauty", 1200, "https://images.unsplash.com/photo-1556228720-19de7529c09d?auto=format&fit=crop&w=800&q=80"},
	{"Mechanical Gaming Keyboard", "Electronics", 4500, "https://images.unsplash.com/photo-1587829741301-dc798b91add1?auto=format&fit=crop&w=800&q=80"},
}

// keywordProducts pins demo order ids to a catalog entry, first match wins.
var keywordProducts = []struct {
	keyword string
	index   int
}{
	{"NIKE", 1},
	{"SONY", 0},
	{"MAC", 5},
	{"JEAN", 3},
}

// Platform is a supported marketplace.
type Platform struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Platforms lists the supported marketplaces.
var Platforms = []Platform{
	{"amazon", "Amazon"},
	{"flipkart", "Flipkart"},
	{"myntra", "Myntra"},
	{"ajio", "Ajio"},
	{"shopify", "Direct Store"},
}

func platformName(id string) string {
	for _, p := range Platforms {
		if p.ID == id {
			return p.Name
		}
	}
	return id
}

// Lookup resolves orders from the mock marketplace.
type Lookup struct {
	now func() time.Time
}

// NewLookup creates a lookup using now as the reference clock.
func NewLookup(now func() time.Time) *Lookup {
	if now == nil {
		now = time.Now
	}
	return &Lookup{now: now}
}

// FetchOrder returns the order with orderID on platform. The same id always
// yields the same order relative to the lookup clock.
func (l *Lookup) FetchOrder(ctx context.Context, platform, orderID string) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(orderID) < 3 {
		return nil, ErrInvalidOrderID
	}

	rng := newSeededRandom(strings.ToUpper(strings.TrimSpace(orderID)))

	productIndex := rng.intn(len(catalog))
	idUpper := strings.ToUpper(orderID)
	for _, kw := range keywordProducts {
		if strings.Contains(idUpper, kw.keyword) {
			productIndex = kw.index
			break
		}
	}
	product := catalog[productIndex]

	daysAgo := rng.intn(60)
	purchaseDate := l.now().UTC().Add(-time.Duration(daysAgo) * 24 * time.Hour).Format("2006-01-02")

	fulfillment := FulfillmentDelivered
	switch roll := rng.next(); {
	case roll > 0.95:
		fulfillment = FulfillmentProcessing
	case roll > 0.90:
		fulfillment = FulfillmentShipped
	}

	sku := fmt.Sprintf("%s-%d-%s",
		strings.ToUpper(prefix(product.name, 3)),
		rng.intn(10000),
		strings.ToUpper(prefix(product.category, 3)))

	var serial string
	if product.category == "Electronics" {
		serial = "SN" + strings.ToUpper(strconv.FormatInt(int64(rng.intn(10000000)), 36))
	}

	userToken := strings.ToUpper(strconv.FormatInt(int64(rng.intn(100000)), 16))
	userIP := fmt.Sprintf("192.168.%d.%d", rng.intn(255), rng.intn(255))
	deviceID := "DEV-" + strconv.FormatInt(int64(rng.intn(100000)), 16)

	return &Order{
		Platform:          platformName(platform),
		OrderID:           idUpper,
		ProductName:       product.name,
		Category:          product.category,
		ProductImage:      product.image,
		PurchaseDate:      purchaseDate,
		Price:             product.price,
		SKU:               sku,
		SerialNumber:      serial,
		FulfillmentStatus: fulfillment,
		UserID:            "USR-" + userToken,
		UserEmail:         "user." + strings.ToLower(userToken) + "@example.com",
		UserIP:            userIP,
		DeviceID:          deviceID,
	}, nil
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) < n {
		return s
	}
	return string(r[:n])
}
