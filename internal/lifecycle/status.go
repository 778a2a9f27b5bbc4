// Package lifecycle holds the product status machine and the role-scoped rules
// that decide who may move a product from one status to the next.
package lifecycle

import "fmt"

// Status is a product lifecycle status as written to the ledger.
type Status string

// Product statuses in lifecycle order.
const (
	StatusCreated              Status = "PRODUCT_CREATED"
	StatusDepartedManufacturer Status = "DEPARTED_MANUFACTURER"
	StatusArrivedWarehouse     Status = "ARRIVED_WAREHOUSE"
	StatusDepartedWarehouse    Status = "DEPARTED_WAREHOUSE"
	StatusArrivedShop          Status = "ARRIVED_SHOP" // shown as "Stocked"
	StatusAvailableForSale     Status = "AVAILABLE_FOR_SALE"
	StatusSold                 Status = "SOLD_TO_CUSTOMER"
	StatusRefunded             Status = "REFUNDED"
)

var allStatuses = []Status{
	StatusCreated,
	StatusDepartedManufacturer,
	StatusArrivedWarehouse,
	StatusDepartedWarehouse,
	StatusArrivedShop,
	StatusAvailableForSale,
	StatusSold,
	StatusRefunded,
}

// Statuses returns every status in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus converts a wire string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown product status %q", s)
	}
	return st, nil
}

// Label is the human-facing name of the status.
func (s Status) Label() string {
	switch s {
	case StatusCreated:
		return "Created"
	case StatusDepartedManufacturer:
		return "Departed Manufacturer"
	case StatusArrivedWarehouse:
		return "Arrived at Warehouse"
	case StatusDepartedWarehouse:
		return "Departed Warehouse"
	case StatusArrivedShop:
		return "Stocked"
	case StatusAvailableForSale:
		return "Available for Sale"
	case StatusSold:
		return "Sold"
	case StatusRefunded:
		return "Refunded"
	default:
		return string(s)
	}
}

// Role classifies the actor requesting a transition.
type Role string

// Actor roles.
const (
	RoleManufacturer Role = "Manufacturer"
	RoleWarehouse    Role = "Warehouse"
	RoleRetailer     Role = "Retailer"
	RoleCustomer     Role = "Customer"
	RoleExplorer     Role = "Chain Explorer"
	RoleAdmin        Role = "System Admin"
)

// ParseRole converts a role name into a Role. Matching is exact on the wire
// name, with a few short aliases accepted for CLI use.
func ParseRole(s string) (Role, error) {
	switch s {
	case string(RoleManufacturer), "manufacturer":
		return RoleManufacturer, nil
	case string(RoleWarehouse), "warehouse":
		return RoleWarehouse, nil
	case string(RoleRetailer), "retailer":
		return RoleRetailer, nil
	case string(RoleCustomer), "customer":
		return RoleCustomer, nil
	case string(RoleExplorer), "explorer":
		return RoleExplorer, nil
	case string(RoleAdmin), "admin":
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}
