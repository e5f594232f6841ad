// Package po implements the purchase-order domain: the status lifecycle and
// its metadata table, the workflow client invoking transitions against the
// platform API, the modification-request sub-workflow, and the detail
// controller composing them.
package po

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidState occurs when an action violates the status workflow.
	ErrInvalidState = errors.New("po: invalid state transition")
	// ErrNotFound indicates the record is missing.
	ErrNotFound = errors.New("po: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("po: invalid input")
	// ErrBusy indicates the same action is already in flight for the entity.
	ErrBusy = errors.New("po: action already in progress")
)

// Role is the viewer's platform role. Action availability is gated on it.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleBuyer     Role = "buyer"
	RoleSupplier  Role = "supplier"
	RoleDeveloper Role = "developer"
)

// CompanyRef is a lightweight reference to a buyer or supplier company.
type CompanyRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Item is one ordered line on a purchase order.
type Item struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit_of_measure"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Date is a day-granularity timestamp serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day.
func NewDate(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("po: parse date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) String() string { return d.Format("2006-01-02") }

// MarshalJSON renders the date as a quoted YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts YYYY-MM-DD and full RFC3339 timestamps.
func (d *Date) UnmarshalJSON(raw []byte) error {
	s := strings.Trim(string(raw), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		*d = Date{t}
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("po: parse date %q: %w", s, err)
	}
	*d = NewDate(t)
	return nil
}

// PurchaseOrder is the full PO representation returned by the API. The
// po_number is immutable once issued; workflow fields change only through
// explicit transition, approval, edit, and modification operations.
type PurchaseOrder struct {
	ID       int64  `json:"id"`
	PONumber string `json:"po_number"`

	BuyerCompany    CompanyRef `json:"buyer_company"`
	SupplierCompany CompanyRef `json:"supplier_company"`

	TotalAmount    decimal.Decimal  `json:"total_amount"`
	ApprovedAmount *decimal.Decimal `json:"approved_amount,omitempty"`
	Currency       string           `json:"currency"`
	Items          []Item           `json:"items"`

	DeliveryAddress      string `json:"delivery_address"`
	PaymentTerms         string `json:"payment_terms"`
	ExpectedDeliveryDate *Date  `json:"expected_delivery_date,omitempty"`
	OrderDate            Date   `json:"order_date"`

	Notes           string `json:"notes,omitempty"`
	InternalNotes   string `json:"internal_notes,omitempty"`
	TermsConditions string `json:"terms_conditions,omitempty"`

	Status          Status     `json:"status"`
	ApprovedBy      string     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	ApprovalNotes   string     `json:"approval_notes,omitempty"`
	RejectedBy      string     `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	CanBeModified bool `json:"can_be_modified"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ForRole returns a copy safe to render for the given role. Internal notes
// are buyer-side only and never reach the supplier.
func (p PurchaseOrder) ForRole(role Role) PurchaseOrder {
	if role == RoleSupplier {
		p.InternalNotes = ""
	}
	return p
}

// StatusHistoryEntry is one immutable step in the PO's audit trail. Entries
// are produced exclusively by the server; the client only renders them,
// newest first. StatusFrom is nil on the initial entry.
type StatusHistoryEntry struct {
	ID         int64          `json:"id"`
	StatusFrom *Status        `json:"status_from,omitempty"`
	StatusTo   Status         `json:"status_to"`
	ChangedBy  string         `json:"changed_by"`
	ChangedAt  time.Time      `json:"changed_at"`
	Notes      string         `json:"notes,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ModificationStatus is the lifecycle of a modification request.
type ModificationStatus string

const (
	ModificationPending  ModificationStatus = "pending"
	ModificationApproved ModificationStatus = "approved"
	ModificationRejected ModificationStatus = "rejected"
)

// ModifiableField enumerates the PO fields a modification request may target.
type ModifiableField string

const (
	FieldDeliveryAddress      ModifiableField = "delivery_address"
	FieldPaymentTerms         ModifiableField = "payment_terms"
	FieldNotes                ModifiableField = "notes"
	FieldExpectedDeliveryDate ModifiableField = "expected_delivery_date"
	FieldTermsConditions      ModifiableField = "terms_conditions"
	FieldInternalNotes        ModifiableField = "internal_notes"
)

// ModifiableFields lists the allowed targets in display order.
func ModifiableFields() []ModifiableField {
	return []ModifiableField{
		FieldDeliveryAddress,
		FieldPaymentTerms,
		FieldNotes,
		FieldExpectedDeliveryDate,
		FieldTermsConditions,
		FieldInternalNotes,
	}
}

// InputKind describes the input affordance a field needs.
type InputKind int

const (
	InputText InputKind = iota
	InputTextarea
	InputDate
)

// Kind returns the input affordance for the field.
func (f ModifiableField) Kind() InputKind {
	switch f {
	case FieldExpectedDeliveryDate:
		return InputDate
	case FieldNotes, FieldTermsConditions, FieldInternalNotes:
		return InputTextarea
	default:
		return InputText
	}
}

// Label renders the field name for display.
func (f ModifiableField) Label() string {
	words := strings.Split(string(f), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// ModificationRequest is a proposal to change one field of an in-flight PO.
// OldValue and NewValue are frozen at proposal time and never recomputed;
// approving the request is the only path that writes NewValue onto the PO.
type ModificationRequest struct {
	ID            int64              `json:"id"`
	POID          int64              `json:"purchase_order_id"`
	FieldName     ModifiableField    `json:"field_name"`
	OldValue      string             `json:"old_value"`
	NewValue      string             `json:"new_value"`
	Reason        string             `json:"reason"`
	Status        ModificationStatus `json:"status"`
	ModifiedBy    string             `json:"modified_by"`
	ModifiedAt    time.Time          `json:"modified_at"`
	ApprovalNotes string             `json:"approval_notes,omitempty"`
}

// CurrentFieldValue reads the live value of a modifiable field off the PO,
// shown back to the user when proposing a change.
func CurrentFieldValue(p PurchaseOrder, field ModifiableField) string {
	switch field {
	case FieldDeliveryAddress:
		return p.DeliveryAddress
	case FieldPaymentTerms:
		return p.PaymentTerms
	case FieldNotes:
		return p.Notes
	case FieldExpectedDeliveryDate:
		if p.ExpectedDeliveryDate == nil {
			return ""
		}
		return p.ExpectedDeliveryDate.String()
	case FieldTermsConditions:
		return p.TermsConditions
	case FieldInternalNotes:
		return p.InternalNotes
	default:
		return ""
	}
}
