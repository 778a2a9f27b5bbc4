package commerce

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Supply chain stages of a passport event.
const (
	StageManufacturing = "MANUFACTURING"
	StageWarehouse     = "WAREHOUSE"
	StageLogistics     = "LOGISTICS"
	StageRetail        = "RETAIL"
)

// SupplyChainEvent is one step of a product's recorded journey.
type SupplyChainEvent struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Stage     string `json:"stage"`
	Action    string `json:"action"`
	Location  string `json:"location"`
	Actor     string `json:"actor"`
	Hash      string `json:"hash"`
}

// Passport is the manufacturing record linked to a sold item.
type Passport struct {
	UniqueID        string             `json:"uniqueId"`
	GenesisHash     string             `json:"genesisHash"`
	ManufactureDate string             `json:"manufactureDate"`
	OriginFactory   string             `json:"originFactory"`
	History         []SupplyChainEvent `json:"history"`
}

var factories = []string{
	"Factory Node 1 (Shenzhen)",
	"Factory Node 2 (Vietnam)",
	"Assembly Hub Alpha (India)",
}

const isoMillis = "2006-01-02T15:04:05.000Z"

// FetchPassport returns the supply chain passport for uniqueID, usually the
// order SKU. The same id always yields the same passport relative to the
// lookup clock.
func (l *Lookup) FetchPassport(ctx context.Context, uniqueID string) (*Passport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rng := newSeededRandom(uniqueID)
	now := l.now().UTC()
	daysAgo := func(days int) string {
		return now.Add(-time.Duration(days) * 24 * time.Hour).Format(isoMillis)
	}
	eventID := func() string {
		return "EVT-" + strings.ToUpper(strconv.FormatInt(int64(rng.intn(100000)), 16))
	}
	eventHash := func() string {
		return "0x" + strconv.FormatInt(int64(rng.intn(1000000000)), 16)
	}

	factory := pick(rng, factories)
	mfgDaysAgo := 30 + rng.intn(60)

	history := make([]SupplyChainEvent, 0, 5)

	id := eventID()
	actor := fmt.Sprintf("Bot: Assembler-%d", rng.intn(100))
	history = append(history, SupplyChainEvent{
		ID: id, Timestamp: daysAgo(mfgDaysAgo), Stage: StageManufacturing,
		Action: "Component Assembly & QA Check", Location: factory, Actor: actor, Hash: eventHash(),
	})

	id = eventID()
	history = append(history, SupplyChainEvent{
		ID: id, Timestamp: daysAgo(mfgDaysAgo - 1), Stage: StageManufacturing,
		Action: "Digital Twin Created (Genesis Block)", Location: factory, Actor: "Bot: Ledger-Architect", Hash: eventHash(),
	})

	id = eventID()
	history = append(history, SupplyChainEvent{
		ID: id, Timestamp: daysAgo(mfgDaysAgo - 5), Stage: StageLogistics,
		Action: "Departed Manufacturing Facility", Location: "Logistics Hub A", Actor: "System: Logistics-Relay", Hash: eventHash(),
	})

	id = eventID()
	history = append(history, SupplyChainEvent{
		ID: id, Timestamp: daysAgo(mfgDaysAgo - 10), Stage: StageWarehouse,
		Action: "Inbound Scan & Shelving", Location: "Regional Warehouse (Mumbai)", Actor: "Bot: Inventory-Scanner", Hash: eventHash(),
	})

	id = eventID()
	retailAt := daysAgo(rng.intn(10))
	history = append(history, SupplyChainEvent{
		ID: id, Timestamp: retailAt, Stage: StageRetail,
		Action: "Point of Sale Activation", Location: "Online Storefront", Actor: "System: Order-Dispatcher", Hash: eventHash(),
	})

	var genesis strings.Builder
	genesis.WriteString("0x")
	for i := 0; i < 64; i++ {
		genesis.WriteString(strconv.FormatInt(int64(rng.intn(16)), 16))
	}

	return &Passport{
		UniqueID:        uniqueID,
		GenesisHash:     genesis.String(),
		ManufactureDate: daysAgo(mfgDaysAgo),
		OriginFactory:   factory,
		History:         history,
	}, nil
}
