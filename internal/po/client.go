package po

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/procurahq/procura/internal/shared"
)

// API is the slice of the platform client the workflow needs.
type API interface {
	Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
	Post(ctx context.Context, path string, payload any) (json.RawMessage, error)
	Put(ctx context.Context, path string, payload any) (json.RawMessage, error)
	Delete(ctx context.Context, path string) (json.RawMessage, error)
}

// Client invokes purchase-order operations against the platform. All
// mutating calls pass through the in-flight gate so a double trigger for
// the same entity and action never issues a second request.
type Client struct {
	api      API
	gate     *InflightGate
	validate *validator.Validate
	logger   *slog.Logger
}

// NewClient builds a workflow client.
func NewClient(api API, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		api:      api,
		gate:     NewInflightGate(),
		validate: validator.New(),
		logger:   logger,
	}
}

// Gate exposes the in-flight gate so views can disable busy controls.
func (c *Client) Gate() *InflightGate { return c.gate }

// ListQuery filters the PO list.
type ListQuery struct {
	Page    int
	PerPage int
	Search  string
	Status  Status
}

// ListPage is one page of purchase orders.
type ListPage struct {
	Items      []PurchaseOrder
	Pagination shared.Pagination
}

type pagedEnvelope struct {
	Data        []PurchaseOrder `json:"data"`
	CurrentPage int             `json:"current_page"`
	LastPage    int             `json:"last_page"`
	PerPage     int             `json:"per_page"`
	Total       int             `json:"total"`
}

// List fetches a page of purchase orders.
func (c *Client) List(ctx context.Context, q ListQuery) (ListPage, error) {
	query := url.Values{}
	if q.Page > 0 {
		query.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(q.PerPage))
	}
	if q.Search != "" {
		query.Set("search", q.Search)
	}
	if q.Status != "" {
		query.Set("status", string(q.Status))
	}
	raw, err := c.api.Get(ctx, "purchase-orders", query)
	if err != nil {
		return ListPage{}, err
	}
	var env pagedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ListPage{}, fmt.Errorf("po: decode list: %w", err)
	}
	return ListPage{
		Items:      env.Data,
		Pagination: shared.NewPagination(env.CurrentPage, env.PerPage, env.Total),
	}, nil
}

// Get fetches a single purchase order.
func (c *Client) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	raw, err := c.api.Get(ctx, poPath(id), nil)
	if err != nil {
		return PurchaseOrder{}, err
	}
	return decodePO(raw)
}

// UpdateInput carries the draft-era general edit. Nil fields are untouched.
// This is the simple owner-side correction path; in-flight changes go
// through the modification-request workflow instead.
type UpdateInput struct {
	DeliveryAddress      *string `json:"delivery_address,omitempty"`
	PaymentTerms         *string `json:"payment_terms,omitempty"`
	ExpectedDeliveryDate *Date   `json:"expected_delivery_date,omitempty"`
	Notes                *string `json:"notes,omitempty"`
	InternalNotes        *string `json:"internal_notes,omitempty"`
	TermsConditions      *string `json:"terms_conditions,omitempty"`
}

// Update PUTs a general field edit.
func (c *Client) Update(ctx context.Context, id int64, in UpdateInput) (PurchaseOrder, error) {
	release, ok := c.gate.TryAcquire(string(ActionEdit), id)
	if !ok {
		return PurchaseOrder{}, ErrBusy
	}
	defer release()
	raw, err := c.api.Put(ctx, poPath(id), in)
	if err != nil {
		return PurchaseOrder{}, err
	}
	return decodePO(raw)
}

// DeletePO removes an early-lifecycle purchase order.
func (c *Client) DeletePO(ctx context.Context, id int64) error {
	release, ok := c.gate.TryAcquire(string(ActionDelete), id)
	if !ok {
		return ErrBusy
	}
	defer release()
	_, err := c.api.Delete(ctx, poPath(id))
	return err
}

// Submit moves a draft PO into pending approval.
func (c *Client) Submit(ctx context.Context, id int64) (PurchaseOrder, error) {
	return c.transition(ctx, id, ActionSubmit, "submit", nil)
}

// ApproveInput carries the approval branch payload. The amount defaults to
// the PO total but stays editable for partial or adjusted approvals.
type ApproveInput struct {
	ApprovedAmount decimal.Decimal `json:"approved_amount" validate:"required"`
	Notes          string          `json:"approval_notes,omitempty"`
}

// ApproveInputFor prefills the approval payload from the PO's current total.
func ApproveInputFor(p PurchaseOrder) ApproveInput {
	return ApproveInput{ApprovedAmount: p.TotalAmount}
}

// Approve approves a pending PO with an (adjustable) approved amount.
func (c *Client) Approve(ctx context.Context, id int64, in ApproveInput) (PurchaseOrder, error) {
	if err := c.validate.Struct(in); err != nil {
		return PurchaseOrder{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if in.ApprovedAmount.IsNegative() {
		return PurchaseOrder{}, fmt.Errorf("%w: approved amount must not be negative", ErrValidation)
	}
	return c.transition(ctx, id, ActionApprove, "approve", in)
}

type rejectInput struct {
	Reason string `json:"rejection_reason" validate:"required"`
}

// Reject rejects a pending PO. The reason is mandatory.
func (c *Client) Reject(ctx context.Context, id int64, reason string) (PurchaseOrder, error) {
	in := rejectInput{Reason: reason}
	if err := c.validate.Struct(in); err != nil {
		return PurchaseOrder{}, fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}
	return c.transition(ctx, id, ActionReject, "reject", in)
}

// Send dispatches an approved PO to the supplier. Commercial fields become
// immutable server-side from this point; further changes need the
// modification-request workflow.
func (c *Client) Send(ctx context.Context, id int64) (PurchaseOrder, error) {
	return c.transition(ctx, id, ActionSend, "send", nil)
}

// Acknowledge records the supplier's confirmation of a sent PO.
func (c *Client) Acknowledge(ctx context.Context, id int64) (PurchaseOrder, error) {
	return c.transition(ctx, id, ActionAcknowledge, "confirm", nil)
}

// StartFulfillment marks the supplier as working the order.
func (c *Client) StartFulfillment(ctx context.Context, id int64) (PurchaseOrder, error) {
	return c.transition(ctx, id, ActionStartFulfillment, "start", nil)
}

// MarkDelivered records delivery by the supplier.
func (c *Client) MarkDelivered(ctx context.Context, id int64) (PurchaseOrder, error) {
	return c.transition(ctx, id, ActionMarkDelivered, "deliver", nil)
}

// Complete closes out a delivered PO on the buyer side.
func (c *Client) Complete(ctx context.Context, id int64) (PurchaseOrder, error) {
	return c.transition(ctx, id, ActionComplete, "complete", nil)
}

// Cancel aborts a pre-terminal PO.
func (c *Client) Cancel(ctx context.Context, id int64) (PurchaseOrder, error) {
	return c.transition(ctx, id, ActionCancel, "cancel", nil)
}

func (c *Client) transition(ctx context.Context, id int64, action Action, endpoint string, payload any) (PurchaseOrder, error) {
	release, ok := c.gate.TryAcquire(string(action), id)
	if !ok {
		return PurchaseOrder{}, ErrBusy
	}
	defer release()
	raw, err := c.api.Post(ctx, poPath(id)+"/"+endpoint, payload)
	if err != nil {
		c.logger.Warn("po transition failed",
			slog.Int64("po_id", id),
			slog.String("action", string(action)),
			slog.Any("error", err))
		return PurchaseOrder{}, err
	}
	return decodePO(raw)
}

// StatusHistory fetches the append-only status trail, newest first.
func (c *Client) StatusHistory(ctx context.Context, id int64) ([]StatusHistoryEntry, error) {
	raw, err := c.api.Get(ctx, poPath(id)+"/status-history", nil)
	if err != nil {
		return nil, err
	}
	var entries []StatusHistoryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("po: decode history: %w", err)
	}
	return entries, nil
}

// ListModifications fetches the modification requests for a PO.
func (c *Client) ListModifications(ctx context.Context, id int64) ([]ModificationRequest, error) {
	raw, err := c.api.Get(ctx, poPath(id)+"/modifications", nil)
	if err != nil {
		return nil, err
	}
	var mods []ModificationRequest
	if err := json.Unmarshal(raw, &mods); err != nil {
		return nil, fmt.Errorf("po: decode modifications: %w", err)
	}
	return mods, nil
}

// ProposeInput describes a modification proposal. The server snapshots the
// old value at creation time; the client never supplies it.
type ProposeInput struct {
	Field    ModifiableField `json:"field_name" validate:"required,oneof=delivery_address payment_terms notes expected_delivery_date terms_conditions internal_notes"`
	NewValue string          `json:"new_value" validate:"required"`
	Reason   string          `json:"reason" validate:"required"`
}

// ProposeModification creates a pending modification request. The PO itself
// is untouched until the counterparty approves.
func (c *Client) ProposeModification(ctx context.Context, poID int64, in ProposeInput) (ModificationRequest, error) {
	if err := c.validate.Struct(in); err != nil {
		return ModificationRequest{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if in.Field.Kind() == InputDate {
		if _, err := ParseDate(in.NewValue); err != nil {
			return ModificationRequest{}, fmt.Errorf("%w: new value must be YYYY-MM-DD", ErrValidation)
		}
	}
	raw, err := c.api.Post(ctx, poPath(poID)+"/modifications", in)
	if err != nil {
		return ModificationRequest{}, err
	}
	return decodeMod(raw)
}

const defaultApprovalNote = "Approved"

type modApproveInput struct {
	Notes string `json:"approval_notes"`
}

// ApproveModification applies the frozen new value to the PO and marks the
// request approved. Empty notes default to a fixed acknowledgment string.
func (c *Client) ApproveModification(ctx context.Context, poID, modID int64, notes string) (ModificationRequest, error) {
	release, ok := c.gate.TryAcquire("modification_approve", modID)
	if !ok {
		return ModificationRequest{}, ErrBusy
	}
	defer release()
	if notes == "" {
		notes = defaultApprovalNote
	}
	raw, err := c.api.Post(ctx, modPath(poID, modID)+"/approve", modApproveInput{Notes: notes})
	if err != nil {
		return ModificationRequest{}, err
	}
	return decodeMod(raw)
}

type modRejectInput struct {
	Reason string `json:"reason" validate:"required"`
}

// RejectModification marks the request rejected; the PO stays untouched.
// The reason is mandatory.
func (c *Client) RejectModification(ctx context.Context, poID, modID int64, reason string) (ModificationRequest, error) {
	in := modRejectInput{Reason: reason}
	if err := c.validate.Struct(in); err != nil {
		return ModificationRequest{}, fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}
	release, ok := c.gate.TryAcquire("modification_reject", modID)
	if !ok {
		return ModificationRequest{}, ErrBusy
	}
	defer release()
	raw, err := c.api.Post(ctx, modPath(poID, modID)+"/reject", in)
	if err != nil {
		return ModificationRequest{}, err
	}
	return decodeMod(raw)
}

func poPath(id int64) string {
	return "purchase-orders/" + strconv.FormatInt(id, 10)
}

func modPath(poID, modID int64) string {
	return poPath(poID) + "/modifications/" + strconv.FormatInt(modID, 10)
}

func decodePO(raw json.RawMessage) (PurchaseOrder, error) {
	var p PurchaseOrder
	if err := json.Unmarshal(raw, &p); err != nil {
		return PurchaseOrder{}, fmt.Errorf("po: decode purchase order: %w", err)
	}
	return p, nil
}

func decodeMod(raw json.RawMessage) (ModificationRequest, error) {
	var m ModificationRequest
	if err := json.Unmarshal(raw, &m); err != nil {
		return ModificationRequest{}, fmt.Errorf("po: decode modification: %w", err)
	}
	return m, nil
}
