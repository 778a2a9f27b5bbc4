package commerce

import (
	"context"
	"errors"
	"math"
	"regexp"
	"testing"
	"time"
)

var refNow = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

func newTestLookup() *Lookup {
	return NewLookup(func() time.Time { return refNow })
}

func TestSeededRandom(t *testing.T) {
	rng := newSeededRandom("NIKE-123")
	if rng.seed != -915865963 {
		t.Fatalf("seed = %d, want -915865963", rng.seed)
	}
	want := []float64{0.22349944488308365, 0.5416989277776791, 0.3489305802383137}
	for i, w := range want {
		if got := rng.next(); math.Abs(got-w) > 1e-12 {
			t.Errorf("next() #%d = %v, want %v", i, got, w)
		}
	}
}

func TestFetchOrder_Golden(t *testing.T) {
	order, err := newTestLookup().FetchOrder(context.Background(), "amazon", "ord-1001")
	if err != nil {
		t.Fatalf("FetchOrder() error = %v", err)
	}

	tests := []struct {
		field string
		got   string
		want  string
	}{
		{"platform", order.Platform, "Amazon"},
		{"orderId", order.OrderID, "ORD-1001"},
		{"productName", order.ProductName, "Mechanical Gaming Keyboard"},
		{"category", order.Category, "Electronics"},
		{"purchaseDate", order.PurchaseDate, "2025-06-06"},
		{"fulfillment", string(order.FulfillmentStatus), "Delivered"},
		{"sku", order.SKU, "MEC-6977-ELE"},
		{"serial", order.SerialNumber, "SN39GLO"},
		{"userId", order.UserID, "USR-139C6"},
		{"email", order.UserEmail, "user.139c6@example.com"},
		{"ip", order.UserIP, "192.168.118.230"},
		{"device", order.DeviceID, "DEV-d5a5"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("order.%s = %q, want %q", tt.field, tt.got, tt.want)
		}
	}
	if order.Price != 4500 {
		t.Errorf("order.Price = %v, want 4500", order.Price)
	}
	if order.ReceiptVerified != nil {
		t.Errorf("order.ReceiptVerified = %v, want unchecked", *order.ReceiptVerified)
	}
}

func TestFetchOrder_Deterministic(t *testing.T) {
	l := newTestLookup()
	a, err := l.FetchOrder(context.Background(), "flipkart", "ABC-777")
	if err != nil {
		t.Fatal(err)
	}
	b, err := l.FetchOrder(context.Background(), "flipkart", " abc-777 ")
	if err != nil {
		t.Fatal(err)
	}
	if a.SKU != b.SKU || a.PurchaseDate != b.PurchaseDate || a.UserID != b.UserID {
		t.Errorf("FetchOrder() differs for the same trimmed id: %+v vs %+v", a, b)
	}
}

func TestFetchOrder_KeywordOverrides(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"NIKE-42", "Nike Air Max 270 Red"},
		{"sony-xyz", "Sony WH-1000XM5 Wireless Headphones"},
		{"MAC-BOOK", "MacBook Pro 14-inch"},
		{"JEANS01", "Levis Men's Blue Denim Jeans"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			order, err := newTestLookup().FetchOrder(context.Background(), "shopify", tt.id)
			if err != nil {
				t.Fatal(err)
			}
			if order.ProductName != tt.want {
				t.Errorf("FetchOrder(%q).ProductName = %q, want %q", tt.id, order.ProductName, tt.want)
			}
			if order.Platform != "Direct Store" {
				t.Errorf("FetchOrder(%q).Platform = %q, want Direct Store", tt.id, order.Platform)
			}
		})
	}
}

func TestFetchOrder_Shapes(t *testing.T) {
	sku := regexp.MustCompile(`^[A-Z']{3}-\d{1,4}-[A-Z]{3}$`)
	ip := regexp.MustCompile(`^192\.168\.\d{1,3}\.\d{1,3}$`)

	for _, id := range []string{"AAA", "ORDER-1", "NIKE-9", "ZZ-TOP-99", "SYNDICATE-1", "12345"} {
		order, err := newTestLookup().FetchOrder(context.Background(), "unknown-platform", id)
		if err != nil {
			t.Fatalf("FetchOrder(%q) error = %v", id, err)
		}
		if !sku.MatchString(order.SKU) {
			t.Errorf("FetchOrder(%q).SKU = %q, bad shape", id, order.SKU)
		}
		if !ip.MatchString(order.UserIP) {
			t.Errorf("FetchOrder(%q).UserIP = %q, bad shape", id, order.UserIP)
		}
		if (order.Category == "Electronics") != (order.SerialNumber != "") {
			t.Errorf("FetchOrder(%q) category %q with serial %q", id, order.Category, order.SerialNumber)
		}
		if order.Platform != "unknown-platform" {
			t.Errorf("FetchOrder(%q).Platform = %q, want passthrough", id, order.Platform)
		}
	}
}

func TestFetchOrder_InvalidID(t *testing.T) {
	for _, id := range []string{"", "A", "AB"} {
		if _, err := newTestLookup().FetchOrder(context.Background(), "amazon", id); !errors.Is(err, ErrInvalidOrderID) {
			t.Errorf("FetchOrder(%q) error = %v, want ErrInvalidOrderID", id, err)
		}
	}
}

func TestFetchOrder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestLookup().FetchOrder(ctx, "amazon", "ORD-1"); !errors.Is(err, context.Canceled) {
		t.Errorf("FetchOrder() error = %v, want context.Canceled", err)
	}
}

func TestOrderReceipt(t *testing.T) {
	var o Order
	if o.HasVerifiedReceipt() || o.ReceiptRejected() {
		t.Error("unchecked receipt should be neither verified nor rejected")
	}
	o.SetReceiptVerified(false)
	if o.HasVerifiedReceipt() || !o.ReceiptRejected() {
		t.Error("rejected receipt flags wrong")
	}
	o.SetReceiptVerified(true)
	if !o.HasVerifiedReceipt() || o.ReceiptRejected() {
		t.Error("verified receipt flags wrong")
	}
}

func TestFetchPassport(t *testing.T) {
	l := newTestLookup()
	p, err := l.FetchPassport(context.Background(), "MEC-6977-ELE")
	if err != nil {
		t.Fatal(err)
	}
	again, err := l.FetchPassport(context.Background(), "MEC-6977-ELE")
	if err != nil {
		t.Fatal(err)
	}

	if p.UniqueID != "MEC-6977-ELE" {
		t.Errorf("UniqueID = %q", p.UniqueID)
	}
	if len(p.GenesisHash) != 66 || p.GenesisHash[:2] != "0x" {
		t.Errorf("GenesisHash = %q, want 0x + 64 hex", p.GenesisHash)
	}
	if p.GenesisHash != again.GenesisHash || p.OriginFactory != again.OriginFactory {
		t.Error("FetchPassport() not deterministic")
	}

	stages := []string{StageManufacturing, StageManufacturing, StageLogistics, StageWarehouse, StageRetail}
	if len(p.History) != len(stages) {
		t.Fatalf("len(History) = %d, want %d", len(p.History), len(stages))
	}
	for i, stage := range stages {
		if p.History[i].Stage != stage {
			t.Errorf("History[%d].Stage = %q, want %q", i, p.History[i].Stage, stage)
		}
		if _, err := time.Parse(time.RFC3339, p.History[i].Timestamp); err != nil {
			t.Errorf("History[%d].Timestamp = %q: %v", i, p.History[i].Timestamp, err)
		}
	}
	if p.ManufactureDate != p.History[0].Timestamp {
		t.Errorf("ManufactureDate = %q, want first event time %q", p.ManufactureDate, p.History[0].Timestamp)
	}

	mfg, _ := time.Parse(time.RFC3339, p.ManufactureDate)
	age := refNow.Sub(mfg)
	if age < 30*24*time.Hour || age >= 90*24*time.Hour {
		t.Errorf("manufacture age = %v, want 30-90 days", age)
	}
}
