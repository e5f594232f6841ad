// Package stubapi is an in-memory reference implementation of the platform
// API contract, used by integration tests and as a local development server.
// It enforces the same status machine, history trail, and modification
// workflow the real backend does, behind the same envelope shape.
package stubapi

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/procurahq/procura/internal/notify"
	"github.com/procurahq/procura/internal/po"
)

// User is an authenticated principal, keyed by its bearer token.
type User struct {
	Token string
	Name  string
	Email string
	Role  po.Role
}

// Store holds all stub state behind one mutex. It is not a database on
// purpose: persistence belongs to the real backend.
type Store struct {
	mu            sync.Mutex
	users         map[string]User
	pos           map[int64]*po.PurchaseOrder
	history       map[int64][]po.StatusHistoryEntry
	mods          map[int64][]*po.ModificationRequest
	notifications []*notify.Notification
	nextID        int64
	now           func() time.Time
}

// NewStore builds an empty store. nowFn defaults to time.Now.
func NewStore(nowFn func() time.Time) *Store {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Store{
		users:   make(map[string]User),
		pos:     make(map[int64]*po.PurchaseOrder),
		history: make(map[int64][]po.StatusHistoryEntry),
		mods:    make(map[int64][]*po.ModificationRequest),
		now:     nowFn,
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddUser registers a token.
func (s *Store) AddUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Token] = u
}

func (s *Store) userByToken(token string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[token]
	return u, ok
}

// refreshGates recomputes server-derived fields after any change.
func refreshGates(p *po.PurchaseOrder) {
	p.CanBeModified = p.Status.Editable()
}

// CreatePO inserts a PO in draft with its initial history entry.
func (s *Store) CreatePO(p po.PurchaseOrder, actor string) po.PurchaseOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	p.ID = s.id()
	if p.PONumber == "" {
		p.PONumber = fmt.Sprintf("PO-%04d", p.ID)
	}
	if p.Status == "" {
		p.Status = po.StatusDraft
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	refreshGates(&p)
	s.pos[p.ID] = &p
	s.history[p.ID] = []po.StatusHistoryEntry{{
		ID:        s.id(),
		StatusTo:  p.Status,
		ChangedBy: actor,
		ChangedAt: now,
		Notes:     "Purchase order created",
	}}
	s.pushNotification(notify.TypePOCreated, "Purchase order created",
		fmt.Sprintf("%s was created", p.PONumber), p.ID)
	return p
}

// GetPO returns a copy of the PO.
func (s *Store) GetPO(id int64) (po.PurchaseOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pos[id]
	if !ok {
		return po.PurchaseOrder{}, false
	}
	return *p, true
}

// ListPOs filters by search term (po_number or supplier name) and status,
// then pages the result.
func (s *Store) ListPOs(search string, status po.Status, page, perPage int) ([]po.PurchaseOrder, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.pos))
	for id := range s.pos {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var matched []po.PurchaseOrder
	needle := strings.ToLower(search)
	for _, id := range ids {
		p := s.pos[id]
		if status != "" && p.Status != status {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.PONumber), needle) &&
			!strings.Contains(strings.ToLower(p.SupplierCompany.Name), needle) {
			continue
		}
		matched = append(matched, *p)
	}
	total := len(matched)
	if perPage <= 0 {
		perPage = 10
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= total {
		return nil, total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return matched[start:end], total
}

// UpdatePO applies a draft-era edit. Only editable statuses accept it.
func (s *Store) UpdatePO(id int64, in po.UpdateInput) (po.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pos[id]
	if !ok {
		return po.PurchaseOrder{}, po.ErrNotFound
	}
	if !p.Status.Editable() {
		return po.PurchaseOrder{}, po.ErrInvalidState
	}
	if in.DeliveryAddress != nil {
		p.DeliveryAddress = *in.DeliveryAddress
	}
	if in.PaymentTerms != nil {
		p.PaymentTerms = *in.PaymentTerms
	}
	if in.ExpectedDeliveryDate != nil {
		d := *in.ExpectedDeliveryDate
		p.ExpectedDeliveryDate = &d
	}
	if in.Notes != nil {
		p.Notes = *in.Notes
	}
	if in.InternalNotes != nil {
		p.InternalNotes = *in.InternalNotes
	}
	if in.TermsConditions != nil {
		p.TermsConditions = *in.TermsConditions
	}
	p.UpdatedAt = s.now()
	return *p, nil
}

// DeletePO removes a PO still in an early status.
func (s *Store) DeletePO(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pos[id]
	if !ok {
		return po.ErrNotFound
	}
	if p.Status != po.StatusDraft && p.Status != po.StatusPendingApproval {
		return po.ErrInvalidState
	}
	delete(s.pos, id)
	delete(s.history, id)
	delete(s.mods, id)
	return nil
}

// errForbidden marks an action the actor's role is not offered. The server
// maps it to 403.
var errForbidden = errors.New("stubapi: action not allowed for role")

// TransitionInput carries the optional transition payload.
type TransitionInput struct {
	ApprovedAmount  *decimal.Decimal
	ApprovalNotes   string
	RejectionReason string
}

// Transition moves the PO to target, guarded by the status table both for
// the transition itself and for the actor's role, appending the history
// entry and emitting the matching notification.
func (s *Store) Transition(id int64, action po.Action, target po.Status, in TransitionInput, actor User) (po.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pos[id]
	if !ok {
		return po.PurchaseOrder{}, po.ErrNotFound
	}
	if !p.Status.CanTransition(target) {
		return po.PurchaseOrder{}, fmt.Errorf("%w: %s cannot become %s", po.ErrInvalidState, p.Status, target)
	}
	if !po.Allows(*p, actor.Role, action) {
		return po.PurchaseOrder{}, fmt.Errorf("%w: %s may not %s a %s purchase order", errForbidden, actor.Role, action, p.Status)
	}
	now := s.now()
	from := p.Status
	notes := ""
	metadata := map[string]any{}

	switch target {
	case po.StatusApproved:
		amount := p.TotalAmount
		if in.ApprovedAmount != nil {
			amount = *in.ApprovedAmount
		}
		if amount.IsNegative() {
			return po.PurchaseOrder{}, fmt.Errorf("%w: approved amount must not be negative", po.ErrValidation)
		}
		p.ApprovedAmount = &amount
		p.ApprovedBy = actor.Name
		p.ApprovedAt = &now
		p.ApprovalNotes = in.ApprovalNotes
		notes = in.ApprovalNotes
		metadata["approved_amount"] = amount.String()
	case po.StatusRejected:
		if in.RejectionReason == "" {
			return po.PurchaseOrder{}, fmt.Errorf("%w: rejection reason is required", po.ErrValidation)
		}
		p.RejectedBy = actor.Name
		p.RejectedAt = &now
		p.RejectionReason = in.RejectionReason
		notes = in.RejectionReason
	}

	p.Status = target
	p.UpdatedAt = now
	refreshGates(p)
	s.history[id] = append(s.history[id], po.StatusHistoryEntry{
		ID:         s.id(),
		StatusFrom: &from,
		StatusTo:   target,
		ChangedBy:  actor.Name,
		ChangedAt:  now,
		Notes:      notes,
		Metadata:   metadata,
	})

	switch target {
	case po.StatusApproved:
		s.pushNotification(notify.TypePOApproved, "Purchase order approved",
			fmt.Sprintf("%s was approved", p.PONumber), id)
	case po.StatusSentToSupplier:
		s.pushNotification(notify.TypePOSent, "Purchase order sent",
			fmt.Sprintf("%s was sent to %s", p.PONumber, p.SupplierCompany.Name), id)
	case po.StatusDelivered:
		s.pushNotification(notify.TypePODelivered, "Purchase order delivered",
			fmt.Sprintf("%s was marked delivered", p.PONumber), id)
	}
	return *p, nil
}

// History returns the status trail, newest first.
func (s *Store) History(id int64) ([]po.StatusHistoryEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.history[id]
	if !ok {
		if _, exists := s.pos[id]; !exists {
			return nil, false
		}
		return nil, true
	}
	out := make([]po.StatusHistoryEntry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out, true
}

// ProposeModification snapshots the field's current value and stores a
// pending request. The PO is untouched.
func (s *Store) ProposeModification(poID int64, in po.ProposeInput, actor User) (po.ModificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pos[poID]
	if !ok {
		return po.ModificationRequest{}, po.ErrNotFound
	}
	if !p.CanBeModified && !p.Status.Editable() {
		return po.ModificationRequest{}, po.ErrInvalidState
	}
	if in.Reason == "" || in.NewValue == "" {
		return po.ModificationRequest{}, fmt.Errorf("%w: field, new value and reason are required", po.ErrValidation)
	}
	mod := &po.ModificationRequest{
		ID:         s.id(),
		POID:       poID,
		FieldName:  in.Field,
		OldValue:   po.CurrentFieldValue(*p, in.Field),
		NewValue:   in.NewValue,
		Reason:     in.Reason,
		Status:     po.ModificationPending,
		ModifiedBy: actor.Name,
		ModifiedAt: s.now(),
	}
	s.mods[poID] = append(s.mods[poID], mod)
	return *mod, nil
}

// Modifications lists a PO's modification requests, newest first.
func (s *Store) Modifications(poID int64) ([]po.ModificationRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pos[poID]; !ok {
		return nil, false
	}
	mods := s.mods[poID]
	out := make([]po.ModificationRequest, len(mods))
	for i, m := range mods {
		out[len(mods)-1-i] = *m
	}
	return out, true
}

// ResolveModification approves or rejects a pending request. Approval is
// the only path that writes the frozen new value onto the PO.
func (s *Store) ResolveModification(poID, modID int64, approve bool, notes string) (po.ModificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pos[poID]
	if !ok {
		return po.ModificationRequest{}, po.ErrNotFound
	}
	var mod *po.ModificationRequest
	for _, m := range s.mods[poID] {
		if m.ID == modID {
			mod = m
			break
		}
	}
	if mod == nil {
		return po.ModificationRequest{}, po.ErrNotFound
	}
	if mod.Status != po.ModificationPending {
		return po.ModificationRequest{}, fmt.Errorf("%w: request already %s", po.ErrInvalidState, mod.Status)
	}
	if approve {
		if err := applyField(p, mod.FieldName, mod.NewValue); err != nil {
			return po.ModificationRequest{}, err
		}
		mod.Status = po.ModificationApproved
		mod.ApprovalNotes = notes
		p.UpdatedAt = s.now()
	} else {
		if notes == "" {
			return po.ModificationRequest{}, fmt.Errorf("%w: rejection reason is required", po.ErrValidation)
		}
		mod.Status = po.ModificationRejected
		mod.ApprovalNotes = notes
	}
	return *mod, nil
}

func applyField(p *po.PurchaseOrder, field po.ModifiableField, value string) error {
	switch field {
	case po.FieldDeliveryAddress:
		p.DeliveryAddress = value
	case po.FieldPaymentTerms:
		p.PaymentTerms = value
	case po.FieldNotes:
		p.Notes = value
	case po.FieldExpectedDeliveryDate:
		d, err := po.ParseDate(value)
		if err != nil {
			return fmt.Errorf("%w: %v", po.ErrValidation, err)
		}
		p.ExpectedDeliveryDate = &d
	case po.FieldTermsConditions:
		p.TermsConditions = value
	case po.FieldInternalNotes:
		p.InternalNotes = value
	default:
		return fmt.Errorf("%w: unknown field %s", po.ErrValidation, field)
	}
	return nil
}

func (s *Store) pushNotification(typ notify.Type, title, message string, relatedID int64) {
	s.notifications = append(s.notifications, &notify.Notification{
		ID:        s.id(),
		Type:      typ,
		Title:     title,
		Message:   message,
		Data:      []byte(fmt.Sprintf(`{"id":%d}`, relatedID)),
		CreatedAt: s.now(),
	})
}

// ListNotifications pages notifications, newest first.
func (s *Store) ListNotifications(unreadOnly bool, page, perPage int) ([]notify.Notification, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []notify.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if unreadOnly && n.IsRead {
			continue
		}
		matched = append(matched, *n)
	}
	total := len(matched)
	if perPage <= 0 {
		perPage = 10
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= total {
		return nil, total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return matched[start:end], total
}

// UnreadCount returns the unread aggregate.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.notifications {
		if !n.IsRead {
			count++
		}
	}
	return count
}

// SetRead flips one notification's read state.
func (s *Store) SetRead(id int64, read bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.ID == id {
			n.IsRead = read
			if read {
				now := s.now()
				n.ReadAt = &now
			} else {
				n.ReadAt = nil
			}
			return nil
		}
	}
	return po.ErrNotFound
}

// MarkAllRead marks every notification read.
func (s *Store) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, n := range s.notifications {
		if !n.IsRead {
			n.IsRead = true
			readAt := now
			n.ReadAt = &readAt
		}
	}
}

// DeleteNotification removes one notification.
func (s *Store) DeleteNotification(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifications {
		if n.ID == id {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return nil
		}
	}
	return po.ErrNotFound
}
