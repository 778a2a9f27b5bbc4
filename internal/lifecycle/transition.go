package lifecycle

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is matched by every denial returned from Validate.
var ErrInvalidTransition = errors.New("invalid transition")

// ReasonRefundRequiresSale is the denial reason for refunding an unsold product.
const ReasonRefundRequiresSale = "Product must be SOLD before it can be REFUNDED."

// TransitionError describes a denied status change.
type TransitionError struct {
	From   Status
	To     Status
	Role   Role
	Reason string
}

func (e *TransitionError) Error() string {
	return e.Reason
}

// Is lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

type edge struct {
	from Status
	to   Status
}

// edgesFor lists the transitions a role may drive. Roles without edges
// (customer, explorer, admin) only observe.
func edgesFor(role Role) []edge {
	switch role {
	case RoleManufacturer:
		return []edge{
			{StatusCreated, StatusDepartedManufacturer},
		}
	case RoleWarehouse:
		return []edge{
			{StatusDepartedManufacturer, StatusArrivedWarehouse},
			{StatusArrivedWarehouse, StatusDepartedWarehouse},
		}
	case RoleRetailer:
		return []edge{
			{StatusDepartedWarehouse, StatusArrivedShop},
			{StatusArrivedShop, StatusAvailableForSale},
			{StatusAvailableForSale, StatusSold},
		}
	case RoleCustomer, RoleExplorer, RoleAdmin:
		return nil
	default:
		return nil
	}
}

// Validate decides whether role may move a product from current to next.
// It returns nil when allowed and a *TransitionError otherwise.
func Validate(current, next Status, role Role) error {
	for _, e := range edgesFor(role) {
		if e.from == current && e.to == next {
			return nil
		}
	}

	// The refund path is a system transition and ignores the role table.
	if next == StatusRefunded {
		if current == StatusSold {
			return nil
		}
		return &TransitionError{From: current, To: next, Role: role, Reason: ReasonRefundRequiresSale}
	}

	return &TransitionError{
		From:   current,
		To:     next,
		Role:   role,
		Reason: fmt.Sprintf("Invalid transition from %s to %s by %s", current, next, role),
	}
}

// NextStatuses lists the statuses role may request from current.
func NextStatuses(current Status, role Role) []Status {
	var out []Status
	for _, e := range edgesFor(role) {
		if e.from == current {
			out = append(out, e.to)
		}
	}
	return out
}
