package po

import "strings"

// Status is the purchase-order lifecycle status.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusSentToSupplier  Status = "sent_to_supplier"
	StatusAcknowledged    Status = "acknowledged"
	StatusInProgress      Status = "in_progress"
	StatusDelivered       Status = "delivered"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
)

// Action is a user-triggerable operation on a purchase order.
type Action string

const (
	ActionSubmit           Action = "submit"
	ActionApprove          Action = "approve"
	ActionReject           Action = "reject"
	ActionSend             Action = "send"
	ActionAcknowledge      Action = "acknowledge"
	ActionStartFulfillment Action = "start_fulfillment"
	ActionMarkDelivered    Action = "mark_delivered"
	ActionComplete         Action = "complete"
	ActionCancel           Action = "cancel"
	ActionEdit             Action = "edit"
	ActionDelete           Action = "delete"
	ActionRequestChange    Action = "request_change"
)

// Meta is the status metadata row: label and color used identically by every
// renderer, the allowed successor statuses, and the role-gated actions
// offered while in the status. One table, consumed everywhere, so the
// label/color mapping cannot drift between views.
type Meta struct {
	Label    string
	Color    string
	Terminal bool
	Next     []Status
	Actions  map[Action][]Role
}

var buyerSide = []Role{RoleAdmin, RoleBuyer}
var supplierSide = []Role{RoleSupplier}

var statusTable = map[Status]Meta{
	StatusDraft: {
		Label: "Draft",
		Color: "gray",
		Next:  []Status{StatusPendingApproval, StatusCancelled},
		Actions: map[Action][]Role{
			ActionSubmit: buyerSide,
			ActionCancel: buyerSide,
			ActionDelete: buyerSide,
		},
	},
	StatusPendingApproval: {
		Label: "Pending Approval",
		Color: "amber",
		Next:  []Status{StatusApproved, StatusRejected, StatusCancelled},
		Actions: map[Action][]Role{
			ActionApprove: buyerSide,
			ActionReject:  buyerSide,
			ActionCancel:  buyerSide,
			ActionDelete:  buyerSide,
		},
	},
	StatusApproved: {
		Label: "Approved",
		Color: "green",
		Next:  []Status{StatusSentToSupplier, StatusCancelled},
		Actions: map[Action][]Role{
			ActionSend:   buyerSide,
			ActionCancel: buyerSide,
		},
	},
	StatusRejected: {
		Label:    "Rejected",
		Color:    "red",
		Terminal: true,
	},
	StatusSentToSupplier: {
		Label: "Sent to Supplier",
		Color: "blue",
		Next:  []Status{StatusAcknowledged, StatusInProgress, StatusCancelled},
		Actions: map[Action][]Role{
			ActionAcknowledge:      supplierSide,
			ActionStartFulfillment: supplierSide,
			ActionCancel:           buyerSide,
		},
	},
	StatusAcknowledged: {
		Label: "Acknowledged",
		Color: "indigo",
		Next:  []Status{StatusInProgress, StatusCancelled},
		Actions: map[Action][]Role{
			ActionStartFulfillment: supplierSide,
			ActionCancel:           buyerSide,
		},
	},
	StatusInProgress: {
		Label: "In Progress",
		Color: "purple",
		Next:  []Status{StatusDelivered, StatusCancelled},
		Actions: map[Action][]Role{
			ActionMarkDelivered: supplierSide,
			ActionCancel:        buyerSide,
		},
	},
	StatusDelivered: {
		Label: "Delivered",
		Color: "teal",
		Next:  []Status{StatusCompleted},
		Actions: map[Action][]Role{
			ActionComplete: buyerSide,
		},
	},
	StatusCompleted: {
		Label:    "Completed",
		Color:    "green",
		Terminal: true,
	},
	StatusCancelled: {
		Label:    "Cancelled",
		Color:    "slate",
		Terminal: true,
	},
}

// editableStatuses gates edit and modification proposals alongside the
// server-derived can_be_modified flag.
var editableStatuses = map[Status]bool{
	StatusDraft:           true,
	StatusPendingApproval: true,
	StatusSentToSupplier:  true,
	StatusAcknowledged:    true,
	StatusInProgress:      true,
}

// AllStatuses returns every defined status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusDraft,
		StatusPendingApproval,
		StatusApproved,
		StatusRejected,
		StatusSentToSupplier,
		StatusAcknowledged,
		StatusInProgress,
		StatusDelivered,
		StatusCompleted,
		StatusCancelled,
	}
}

// Valid reports whether s is a defined status.
func (s Status) Valid() bool {
	_, ok := statusTable[s]
	return ok
}

// Label returns the display label. Unknown statuses fall back to a
// title-cased rendering so a newer server cannot blank the UI.
func (s Status) Label() string {
	if meta, ok := statusTable[s]; ok {
		return meta.Label
	}
	words := strings.Split(string(s), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Color returns the UI color token for the status chip.
func (s Status) Color() string {
	if meta, ok := statusTable[s]; ok {
		return meta.Color
	}
	return "gray"
}

// Terminal reports whether the status ends the lifecycle.
func (s Status) Terminal() bool {
	meta, ok := statusTable[s]
	return ok && meta.Terminal
}

// CanTransition reports whether s may progress to target.
func (s Status) CanTransition(target Status) bool {
	meta, ok := statusTable[s]
	if !ok {
		return false
	}
	for _, next := range meta.Next {
		if next == target {
			return true
		}
	}
	return false
}

// Editable reports whether the status belongs to the editable set.
func (s Status) Editable() bool { return editableStatuses[s] }

// allowsAction reports whether the status offers the action to the role.
func (s Status) allowsAction(action Action, role Role) bool {
	meta, ok := statusTable[s]
	if !ok {
		return false
	}
	roles, ok := meta.Actions[action]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// actionOrder fixes the rendering order of offered actions.
var actionOrder = []Action{
	ActionSubmit,
	ActionApprove,
	ActionReject,
	ActionSend,
	ActionAcknowledge,
	ActionStartFulfillment,
	ActionMarkDelivered,
	ActionComplete,
	ActionEdit,
	ActionRequestChange,
	ActionCancel,
	ActionDelete,
}

// AllowedActions computes the actions to offer for the PO as seen by role.
// Transition actions come from the status table; edit and change-request
// availability additionally honors the server-derived can_be_modified gate.
func AllowedActions(p PurchaseOrder, role Role) []Action {
	allowed := make(map[Action]bool)
	for action := range statusTable[p.Status].Actions {
		if p.Status.allowsAction(action, role) {
			allowed[action] = true
		}
	}
	modifiable := p.CanBeModified || p.Status.Editable()
	if modifiable && !p.Status.Terminal() {
		switch role {
		case RoleAdmin, RoleBuyer:
			allowed[ActionEdit] = true
			allowed[ActionRequestChange] = true
		case RoleSupplier:
			allowed[ActionRequestChange] = true
		}
	}
	out := make([]Action, 0, len(allowed))
	for _, action := range actionOrder {
		if allowed[action] {
			out = append(out, action)
		}
	}
	return out
}

// Allows reports whether the action is offered for the PO as seen by role.
func Allows(p PurchaseOrder, role Role, action Action) bool {
	for _, a := range AllowedActions(p, role) {
		if a == action {
			return true
		}
	}
	return false
}
