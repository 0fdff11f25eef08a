package models

// Category is a handling category for an inbound item. The general
// classification procedure only ever emits one of the four closed-set
// labels; Whitelisted is reserved for the whitelist short-circuit.
type Category string

const (
	CategoryEnquiry      Category = "Wedding Enquiry"
	CategoryInvoice      Category = "Invoices"
	CategoryPromotion    Category = "Promotions"
	CategoryNotification Category = "Notifications"
	CategoryWhitelisted  Category = "Whitelisted"
)

// ClosedCategories is the fixed set of labels the external decision
// procedure is allowed to return. Anything else is coerced to the safe
// default (CategoryEnquiry).
var ClosedCategories = []Category{
	CategoryEnquiry,
	CategoryInvoice,
	CategoryPromotion,
	CategoryNotification,
}

// ValidCategory reports whether label is a member of the closed set.
func ValidCategory(label string) bool {
	for _, c := range ClosedCategories {
		if string(c) == label {
			return true
		}
	}
	return false
}

type Routing string

const (
	RoutingAuto       Routing = "auto"
	RoutingNeedsInput Routing = "needs_input"
)

// Classification is the classifier's verdict for one item.
type Classification struct {
	Category    Category   `json:"category"`
	Routing     Routing    `json:"routing"`
	Questions   []Question `json:"questions,omitempty"`
	GuidanceKey string     `json:"guidance_key"`
	Reasoning   string     `json:"reasoning,omitempty"`
}
