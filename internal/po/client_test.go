package po_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/procurahq/procura/internal/api"
	"github.com/procurahq/procura/internal/po"
	"github.com/procurahq/procura/internal/stubapi"
)

type env struct {
	store  *stubapi.Store
	server *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := stubapi.NewStore(nil)
	store.AddUser(stubapi.User{Token: "admin-token", Name: "Ada Admin", Role: po.RoleAdmin})
	store.AddUser(stubapi.User{Token: "buyer-token", Name: "Bo Buyer", Role: po.RoleBuyer})
	store.AddUser(stubapi.User{Token: "supplier-token", Name: "Sam Supplier", Role: po.RoleSupplier})
	server := httptest.NewServer(stubapi.New(store, stubapi.Options{}))
	t.Cleanup(server.Close)
	return &env{store: store, server: server}
}

func (e *env) clientFor(t *testing.T, token string) *po.Client {
	t.Helper()
	apiClient, err := api.NewClient(api.Config{
		BaseURL: e.server.URL + "/api",
		Timeout: 5 * time.Second,
	}, func() string { return token }, nil)
	require.NoError(t, err)
	return po.NewClient(apiClient, nil)
}

func (e *env) seedPO(t *testing.T) po.PurchaseOrder {
	t.Helper()
	created := e.store.CreatePO(po.PurchaseOrder{
		SupplierCompany: po.CompanyRef{ID: 2, Name: "SteelWorks Ltd"},
		BuyerCompany:    po.CompanyRef{ID: 1, Name: "Procura Manufacturing"},
		Currency:        "USD",
		TotalAmount:     decimal.NewFromInt(12500),
		DeliveryAddress: "12 Dock Road",
		PaymentTerms:    "Net 30",
		Notes:           "Handle with care",
		InternalNotes:   "Margin is tight on this one",
		Items: []po.Item{{
			Name:      "Steel beam",
			Quantity:  decimal.NewFromInt(50),
			Unit:      "pcs",
			UnitPrice: decimal.NewFromInt(250),
			LineTotal: decimal.NewFromInt(12500),
		}},
	}, "Bo Buyer")
	return created
}

func TestFullLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	buyer := e.clientFor(t, "buyer-token")
	supplier := e.clientFor(t, "supplier-token")
	seeded := e.seedPO(t)

	p, err := buyer.Get(ctx, seeded.ID)
	require.NoError(t, err)
	require.Equal(t, po.StatusDraft, p.Status)
	require.True(t, p.CanBeModified)

	// Each step must append exactly one history entry whose status_to
	// matches the transition just performed.
	step := func(fn func(context.Context, int64) (po.PurchaseOrder, error), want po.Status) po.PurchaseOrder {
		t.Helper()
		before, err := buyer.StatusHistory(ctx, p.ID)
		require.NoError(t, err)
		next, err := fn(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, want, next.Status)
		after, err := buyer.StatusHistory(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, after, len(before)+1)
		require.Equal(t, want, after[0].StatusTo)
		return next
	}

	p = step(buyer.Submit, po.StatusPendingApproval)

	p, err = buyer.Approve(ctx, p.ID, po.ApproveInputFor(p))
	require.NoError(t, err)
	require.Equal(t, po.StatusApproved, p.Status)
	require.NotNil(t, p.ApprovedAmount)
	require.True(t, p.ApprovedAmount.Equal(seeded.TotalAmount))
	require.Equal(t, "Bo Buyer", p.ApprovedBy)
	require.NotNil(t, p.ApprovedAt)
	// Approved is outside the editable set.
	require.False(t, p.CanBeModified)

	p = step(buyer.Send, po.StatusSentToSupplier)
	p = step(supplier.Acknowledge, po.StatusAcknowledged)
	p = step(supplier.StartFulfillment, po.StatusInProgress)
	p = step(supplier.MarkDelivered, po.StatusDelivered)
	p = step(buyer.Complete, po.StatusCompleted)
	require.True(t, p.Status.Terminal())

	// Creation plus seven transitions, newest first.
	history, err := buyer.StatusHistory(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 8)
	require.Equal(t, po.StatusCompleted, history[0].StatusTo)
	require.Equal(t, po.StatusDelivered, *history[0].StatusFrom)
	oldest := history[len(history)-1]
	require.Nil(t, oldest.StatusFrom)
	require.Equal(t, po.StatusDraft, oldest.StatusTo)

	// The approval step recorded its amount in the entry metadata.
	var approvalEntry *po.StatusHistoryEntry
	for i := range history {
		if history[i].StatusTo == po.StatusApproved {
			approvalEntry = &history[i]
		}
	}
	require.NotNil(t, approvalEntry)
	require.Equal(t, "12500", approvalEntry.Metadata["approved_amount"])
}

func TestRejectionBranch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	buyer := e.clientFor(t, "buyer-token")
	seeded := e.seedPO(t)

	_, err := buyer.Submit(ctx, seeded.ID)
	require.NoError(t, err)

	// Reason is enforced before any request goes out.
	_, err = buyer.Reject(ctx, seeded.ID, "")
	require.ErrorIs(t, err, po.ErrValidation)

	p, err := buyer.Reject(ctx, seeded.ID, "Budget exceeded for Q3")
	require.NoError(t, err)
	require.Equal(t, po.StatusRejected, p.Status)
	require.Equal(t, "Budget exceeded for Q3", p.RejectionReason)
	require.Equal(t, "Bo Buyer", p.RejectedBy)
	require.True(t, p.Status.Terminal())

	// Rejected is terminal; nothing moves it further.
	_, err = buyer.Submit(ctx, seeded.ID)
	apiErr, ok := api.AsError(err)
	require.True(t, ok)
	require.Equal(t, api.KindBusiness, apiErr.Kind)
}

func TestInvalidTransitionRefused(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	buyer := e.clientFor(t, "buyer-token")
	seeded := e.seedPO(t)

	// A draft cannot be approved without going through submission.
	_, err := buyer.Approve(ctx, seeded.ID, po.ApproveInputFor(seeded))
	apiErr, ok := api.AsError(err)
	require.True(t, ok)
	require.Equal(t, api.KindBusiness, apiErr.Kind)

	p, err := buyer.Get(ctx, seeded.ID)
	require.NoError(t, err)
	require.Equal(t, po.StatusDraft, p.Status)
}

func TestListSearchFilterAndPaging(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	buyer := e.clientFor(t, "buyer-token")

	first := e.seedPO(t)
	for i := 0; i < 11; i++ {
		e.seedPO(t)
	}
	_, err := buyer.Submit(ctx, first.ID)
	require.NoError(t, err)

	page, err := buyer.List(ctx, po.ListQuery{Page: 2, PerPage: 5})
	require.NoError(t, err)
	require.Len(t, page.Items, 5)
	require.Equal(t, 12, page.Pagination.Total)
	require.Equal(t, 3, page.Pagination.TotalPages)
	require.True(t, page.Pagination.Multi())

	byStatus, err := buyer.List(ctx, po.ListQuery{Status: po.StatusPendingApproval})
	require.NoError(t, err)
	require.Len(t, byStatus.Items, 1)
	require.Equal(t, first.ID, byStatus.Items[0].ID)

	bySearch, err := buyer.List(ctx, po.ListQuery{Search: "steelworks"})
	require.NoError(t, err)
	require.Equal(t, 12, bySearch.Pagination.Total)

	none, err := buyer.List(ctx, po.ListQuery{Search: "no-such-supplier"})
	require.NoError(t, err)
	require.Empty(t, none.Items)
	require.Equal(t, 0, none.Pagination.TotalPages)
}

func TestSupplierNeverSeesInternalNotes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seeded := e.seedPO(t)

	buyerView, err := e.clientFor(t, "buyer-token").Get(ctx, seeded.ID)
	require.NoError(t, err)
	require.Equal(t, "Margin is tight on this one", buyerView.InternalNotes)

	supplierView, err := e.clientFor(t, "supplier-token").Get(ctx, seeded.ID)
	require.NoError(t, err)
	require.Empty(t, supplierView.InternalNotes)

	supplierList, err := e.clientFor(t, "supplier-token").List(ctx, po.ListQuery{})
	require.NoError(t, err)
	require.Len(t, supplierList.Items, 1)
	require.Empty(t, supplierList.Items[0].InternalNotes)
}

func TestUpdateAndDeleteGating(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	buyer := e.clientFor(t, "buyer-token")
	seeded := e.seedPO(t)

	address := "99 Harbour Street"
	p, err := buyer.Update(ctx, seeded.ID, po.UpdateInput{DeliveryAddress: &address})
	require.NoError(t, err)
	require.Equal(t, address, p.DeliveryAddress)
	// Untouched fields survive a partial update.
	require.Equal(t, "Net 30", p.PaymentTerms)

	// Past pending_approval the direct delete is refused.
	_, err = buyer.Submit(ctx, seeded.ID)
	require.NoError(t, err)
	_, err = buyer.Approve(ctx, seeded.ID, po.ApproveInputFor(p))
	require.NoError(t, err)
	err = buyer.DeletePO(ctx, seeded.ID)
	apiErr, ok := api.AsError(err)
	require.True(t, ok)
	require.Equal(t, api.KindBusiness, apiErr.Kind)

	fresh := e.seedPO(t)
	require.NoError(t, buyer.DeletePO(ctx, fresh.ID))
	_, err = buyer.Get(ctx, fresh.ID)
	apiErr, ok = api.AsError(err)
	require.True(t, ok)
	require.Equal(t, api.KindBusiness, apiErr.Kind)
}

func TestModificationSnapshotStaysFrozen(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	buyer := e.clientFor(t, "buyer-token")
	supplier := e.clientFor(t, "supplier-token")
	seeded := e.seedPO(t)

	mod, err := supplier.ProposeModification(ctx, seeded.ID, po.ProposeInput{
		Field:    po.FieldDeliveryAddress,
		NewValue: "Unit 4, East Industrial Park",
		Reason:   "Loading bay at the old address is closed",
	})
	require.NoError(t, err)
	require.Equal(t, po.ModificationPending, mod.Status)
	require.Equal(t, "12 Dock Road", mod.OldValue)

	// An unrelated direct edit does not rewrite the frozen snapshot.
	interim := "7 Interim Way"
	_, err = buyer.Update(ctx, seeded.ID, po.UpdateInput{DeliveryAddress: &interim})
	require.NoError(t, err)

	mods, err := buyer.ListModifications(ctx, seeded.ID)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	require.Equal(t, "12 Dock Road", mods[0].OldValue)
	require.Equal(t, "Unit 4, East Industrial Park", mods[0].NewValue)

	// Approval applies the frozen new value, not the interim one.
	resolved, err := buyer.ApproveModification(ctx, seeded.ID, mod.ID, "")
	require.NoError(t, err)
	require.Equal(t, po.ModificationApproved, resolved.Status)
	require.Equal(t, "Approved", resolved.ApprovalNotes)

	p, err := buyer.Get(ctx, seeded.ID)
	require.NoError(t, err)
	require.Equal(t, "Unit 4, East Industrial Park", p.DeliveryAddress)

	// A settled request cannot be resolved again.
	_, err = buyer.ApproveModification(ctx, seeded.ID, mod.ID, "")
	apiErr, ok := api.AsError(err)
	require.True(t, ok)
	require.Equal(t, api.KindBusiness, apiErr.Kind)
}

func TestModificationRejectionLeavesPOUntouched(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	buyer := e.clientFor(t, "buyer-token")
	supplier := e.clientFor(t, "supplier-token")
	seeded := e.seedPO(t)

	mod, err := supplier.ProposeModification(ctx, seeded.ID, po.ProposeInput{
		Field:    po.FieldPaymentTerms,
		NewValue: "Net 60",
		Reason:   "Cash flow constraints this quarter",
	})
	require.NoError(t, err)

	// The reject reason is mandatory, client-side first.
	_, err = buyer.RejectModification(ctx, seeded.ID, mod.ID, "")
	require.ErrorIs(t, err, po.ErrValidation)

	resolved, err := buyer.RejectModification(ctx, seeded.ID, mod.ID, "Net 30 is contractual")
	require.NoError(t, err)
	require.Equal(t, po.ModificationRejected, resolved.Status)

	p, err := buyer.Get(ctx, seeded.ID)
	require.NoError(t, err)
	require.Equal(t, "Net 30", p.PaymentTerms)
}

func TestProposeValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	supplier := e.clientFor(t, "supplier-token")
	seeded := e.seedPO(t)

	// Unknown field never leaves the client.
	_, err := supplier.ProposeModification(ctx, seeded.ID, po.ProposeInput{
		Field:    "po_number",
		NewValue: "PO-9999",
		Reason:   "typo",
	})
	require.ErrorIs(t, err, po.ErrValidation)

	// Date fields must carry a parseable day.
	_, err = supplier.ProposeModification(ctx, seeded.ID, po.ProposeInput{
		Field:    po.FieldExpectedDeliveryDate,
		NewValue: "next tuesday",
		Reason:   "delay at the mill",
	})
	require.ErrorIs(t, err, po.ErrValidation)

	mod, err := supplier.ProposeModification(ctx, seeded.ID, po.ProposeInput{
		Field:    po.FieldExpectedDeliveryDate,
		NewValue: "2026-10-01",
		Reason:   "delay at the mill",
	})
	require.NoError(t, err)
	require.Equal(t, "2026-10-01", mod.NewValue)
}

func TestRetryAfterGarbledResponseAppliesOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seeded := e.seedPO(t)

	// A proxy that mangles the first modification response after the server
	// has already applied it. The retry must replay, not re-apply.
	upstream, err := url.Parse(e.server.URL)
	require.NoError(t, err)
	proxy := httputil.NewSingleHostReverseProxy(upstream)
	var garbled atomic.Bool
	proxy.ModifyResponse = func(resp *http.Response) error {
		if resp.Request.Method == http.MethodPost &&
			strings.HasSuffix(resp.Request.URL.Path, "/modifications") &&
			garbled.CompareAndSwap(false, true) {
			resp.Body.Close()
			resp.Body = io.NopCloser(strings.NewReader("mangled"))
			resp.ContentLength = -1
			resp.Header.Del("Content-Length")
		}
		return nil
	}
	front := httptest.NewServer(proxy)
	defer front.Close()

	apiClient, err := api.NewClient(api.Config{
		BaseURL:      front.URL + "/api",
		Timeout:      5 * time.Second,
		MaxRetries:   2,
		RetryBackoff: 5 * time.Millisecond,
	}, func() string { return "supplier-token" }, nil)
	require.NoError(t, err)
	supplier := po.NewClient(apiClient, nil)

	mod, err := supplier.ProposeModification(ctx, seeded.ID, po.ProposeInput{
		Field:    po.FieldPaymentTerms,
		NewValue: "Net 60",
		Reason:   "Cash flow relief",
	})
	require.NoError(t, err)
	require.True(t, garbled.Load())
	require.Equal(t, po.ModificationPending, mod.Status)

	mods, err := supplier.ListModifications(ctx, seeded.ID)
	require.NoError(t, err)
	require.Len(t, mods, 1)
}

// blockingAPI parks every Post until released, standing in for a slow server.
type blockingAPI struct {
	po.API
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingAPI) Post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.API.Post(ctx, path, payload)
}

func TestDoubleTriggerBlockedWhileInFlight(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seeded := e.seedPO(t)

	apiClient, err := api.NewClient(api.Config{
		BaseURL: e.server.URL + "/api",
		Timeout: 5 * time.Second,
	}, func() string { return "buyer-token" }, nil)
	require.NoError(t, err)

	blocking := &blockingAPI{
		API:     apiClient,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	client := po.NewClient(blocking, nil)

	done := make(chan error, 1)
	go func() {
		_, err := client.Submit(ctx, seeded.ID)
		done <- err
	}()
	<-blocking.entered

	require.True(t, client.Gate().Busy(string(po.ActionSubmit), seeded.ID))
	_, err = client.Submit(ctx, seeded.ID)
	require.ErrorIs(t, err, po.ErrBusy)

	// A different entity is unaffected by the busy one.
	require.False(t, client.Gate().Busy(string(po.ActionSubmit), seeded.ID+1))

	close(blocking.release)
	require.NoError(t, <-done)
	require.False(t, client.Gate().Busy(string(po.ActionSubmit), seeded.ID))
}

func TestUnauthenticatedRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	anon := e.clientFor(t, "")
	_, err := anon.List(ctx, po.ListQuery{})
	apiErr, ok := api.AsError(err)
	require.True(t, ok)
	require.Equal(t, api.KindBusiness, apiErr.Kind)
	require.Equal(t, "authentication required", apiErr.Message)

	badToken := e.clientFor(t, "stolen-token")
	_, err = badToken.List(ctx, po.ListQuery{})
	apiErr, ok = api.AsError(err)
	require.True(t, ok)
	require.Equal(t, "invalid token", apiErr.Message)
}
