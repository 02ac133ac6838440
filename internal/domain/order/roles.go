package order

// Role classifies the actor performing an order operation. Both staff tiers
// of the back office (administrator and operator) map to RoleStaff; their
// distinction only matters outside this core.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
)

// Action names a mutating order operation for capability checks and audit
// entries.
type Action string

const (
	ActionCreate       Action = "order.create"
	ActionConfirm      Action = "order.confirm"
	ActionAdvance      Action = "order.advance"
	ActionCancel       Action = "order.cancel"
	ActionAttachProof  Action = "order.attach_payment_proof"
	ActionMarkNotified Action = "order.mark_whatsapp_sent"
	ActionList         Action = "order.list"
)

// Actor identifies who triggers an operation. ID is empty for guest checkout.
type Actor struct {
	ID   string
	Role Role
}

// capabilities is the explicit (role, action) allow table. Transitions are
// checked against it before any state-machine guard, independent of how HTTP
// routes are organized.
var capabilities = map[Role]map[Action]bool{
	RoleStaff: {
		ActionConfirm:      true,
		ActionAdvance:      true,
		ActionCancel:       true,
		ActionAttachProof:  true,
		ActionMarkNotified: true,
		ActionList:         true,
	},
	RoleCustomer: {
		ActionCreate: true,
		// Customers may cancel only their own order and only while it is
		// still pending_whatsapp; those extra guards live in Service.Cancel.
		ActionCancel:      true,
		ActionAttachProof: true,
	},
}

// Allowed reports whether the role may perform the action at all.
func Allowed(r Role, a Action) bool {
	return capabilities[r][a]
}
