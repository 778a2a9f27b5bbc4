package lifecycle

// Refund eligibility reasons.
const (
	ReasonAlreadyRefunded = "Product has already been refunded."
	ReasonNotSold         = "Product is not marked as 'Sold'. Refund denied."
	ReasonSupplyChainGap  = "Supply Chain Gap Detected. Product history is incomplete."
	ReasonNoInvoice       = "No digital invoice found on blockchain."
)

// requiredRefundSteps must all appear in the history of a refundable product.
// Warehouse steps are not required so direct shipping stays refundable.
var requiredRefundSteps = []Status{
	StatusCreated,
	StatusDepartedManufacturer,
	StatusAvailableForSale,
	StatusSold,
}

// Eligibility is the outcome of a refund eligibility check.
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// CheckRefundEligibility decides whether a product may be refunded given its
// current status, the ordered statuses of its history and whether a sale
// invoice was recorded.
func CheckRefundEligibility(current Status, history []Status, hasInvoice bool) Eligibility {
	if current == StatusRefunded {
		return Eligibility{Reason: ReasonAlreadyRefunded}
	}
	if current != StatusSold {
		return Eligibility{Reason: ReasonNotSold}
	}

	seen := make(map[Status]bool, len(history))
	for _, s := range history {
		seen[s] = true
	}
	for _, step := range requiredRefundSteps {
		if !seen[step] {
			return Eligibility{Reason: ReasonSupplyChainGap}
		}
	}

	if !hasInvoice {
		return Eligibility{Reason: ReasonNoInvoice}
	}
	return Eligibility{Eligible: true}
}
