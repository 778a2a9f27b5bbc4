package importer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainguard/tracker/internal/commerce"
	"github.com/chainguard/tracker/internal/ledger"
	"github.com/chainguard/tracker/internal/lifecycle"
)

func TestTransactions(t *testing.T) {
	im := New()

	single := `{"id":"tx-1","timestamp":1,"type":"STATUS_UPDATE","productUid":"PROD-1","actor":"Acme","status":"ARRIVED_WAREHOUSE"}`
	txs, err := im.Transactions([]byte("  " + single + "\n"))
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, lifecycle.Status("ARRIVED_WAREHOUSE"), txs[0].Status)

	many := `[` + single + `,{"id":"tx-2","type":"ANALYSIS_RESULT","productUid":"ORD-9","actor":"bot","analysis":{"orderId":"ORD-9","policyStatus":"APPROVED"}}]`
	txs, err = im.Transactions([]byte(many))
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, ledger.TxAnalysisResult, txs[1].Type)
}

func TestTransactions_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		message string
	}{
		{"empty", "   ", "empty document"},
		{"not json", "{oops", ""},
		{"empty array", "[]", "no transactions"},
		{"missing id", `{"type":"REGISTRATION","productUid":"P","actor":"A","status":"PRODUCT_CREATED"}`, "id is required"},
		{"missing uid and actor", `{"id":"x","type":"REGISTRATION","status":"PRODUCT_CREATED"}`, "productUid is required, actor is required"},
		{"unknown type", `{"id":"x","type":"MINT","productUid":"P","actor":"A","status":"PRODUCT_CREATED"}`, `type "MINT" is not recognised`},
		{"missing status", `{"id":"x","type":"STATUS_UPDATE","productUid":"P","actor":"A"}`, "status is required"},
		{"unknown status", `{"id":"x","type":"STATUS_UPDATE","productUid":"P","actor":"A","status":"LOST"}`, `status "LOST" is not recognised`},
		{"analysis without payload", `{"id":"x","type":"ANALYSIS_RESULT","productUid":"ORD","actor":"A"}`, "analysis is required"},
		{"second entry bad", `[{"id":"a","type":"REGISTRATION","productUid":"P","actor":"A","status":"PRODUCT_CREATED"},{"id":"b"}]`, "transaction 1"},
	}
	im := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := im.Transactions([]byte(tt.doc))
			require.ErrorIs(t, err, ErrMalformedImport)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestOrder_Defaults(t *testing.T) {
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	who := Customer{Platform: "Amazon", UserID: "Asha", Email: "asha@example.com"}

	order, passport, err := New().Order([]byte(`{"orderId":"EXT-1","productName":"Desk Lamp"}`), who, now)
	require.NoError(t, err)
	assert.Nil(t, passport)
	assert.Equal(t, &commerce.Order{
		Platform:          "Amazon",
		OrderID:           "EXT-1",
		ProductName:       "Desk Lamp",
		Category:          "Electronics",
		PurchaseDate:      "2025-06-30T12:00:00.000Z",
		SKU:               "UNKNOWN-SKU",
		FulfillmentStatus: commerce.FulfillmentDelivered,
		UserID:            "Asha",
		UserEmail:         "asha@example.com",
		UserIP:            "127.0.0.1",
		DeviceID:          "BRIDGE-IMPORT",
	}, order)
}

func TestOrder_WithHistory(t *testing.T) {
	doc := `{"platform":"Ajio","orderId":"EXT-2","productName":"Jacket","category":"Fashion","price":2999,
		"sku":"JAC-1","fulfillmentStatus":"Shipped","history":[{"id":"EVT-1","stage":"Manufacturing","action":"Sewn"}]}`

	order, passport, err := New().Order([]byte(doc), Customer{Platform: "Amazon"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Ajio", order.Platform)
	assert.Equal(t, commerce.FulfillmentShipped, order.FulfillmentStatus)
	assert.Equal(t, 2999.0, order.Price)

	require.NotNil(t, passport)
	assert.Same(t, passport, order.Passport)
	assert.Equal(t, "JAC-1", passport.UniqueID)
	assert.Equal(t, "IMPORTED_HASH", passport.GenesisHash)
	assert.Equal(t, "Imported Node", passport.OriginFactory)
	assert.Len(t, passport.History, 1)
}

func TestOrder_Malformed(t *testing.T) {
	im := New()
	for _, doc := range []string{
		`{"productName":"Lamp"}`,
		`{"orderId":"EXT-1"}`,
		`not json`,
		`{"orderId":"EXT-1","productName":"Lamp","fulfillmentStatus":"Teleported"}`,
		`{"orderId":"EXT-1","productName":"Lamp","price":-5}`,
	} {
		_, _, err := im.Order([]byte(doc), Customer{}, time.Now())
		assert.ErrorIs(t, err, ErrMalformedImport, doc)
	}

	_, _, err := im.Order([]byte(`{"orderId":"EXT-1"}`), Customer{}, time.Now())
	assert.EqualError(t, err, "malformed import: Invalid JSON: Missing productName or orderId")
}
