package po_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/procurahq/procura/internal/po"
)

func TestDetailControllerLoadAndTabs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	buyer := e.clientFor(t, "buyer-token")
	seeded := e.seedPO(t)

	detail := po.NewDetailController(buyer)
	_, ok := detail.PO()
	require.False(t, ok)

	loaded, err := detail.Load(ctx, seeded.ID)
	require.NoError(t, err)
	require.Equal(t, seeded.ID, loaded.ID)
	held, ok := detail.PO()
	require.True(t, ok)
	require.Equal(t, po.StatusDraft, held.Status)

	history, err := detail.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)

	mods, err := detail.Modifications(ctx)
	require.NoError(t, err)
	require.Empty(t, mods)
}

func TestDetailApplyInvalidatesHistory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	buyer := e.clientFor(t, "buyer-token")
	seeded := e.seedPO(t)

	detail := po.NewDetailController(buyer)
	_, err := detail.Load(ctx, seeded.ID)
	require.NoError(t, err)
	history, err := detail.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)

	transitioned, err := buyer.Submit(ctx, seeded.ID)
	require.NoError(t, err)
	detail.Apply(transitioned)

	held, ok := detail.PO()
	require.True(t, ok)
	require.Equal(t, po.StatusPendingApproval, held.Status)

	// Apply dropped the cached trail; the next read refetches it.
	history, err = detail.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, po.StatusPendingApproval, history[0].StatusTo)

	// A result for some other PO is ignored.
	other := e.seedPO(t)
	otherSubmitted, err := buyer.Submit(ctx, other.ID)
	require.NoError(t, err)
	detail.Apply(otherSubmitted)
	held, _ = detail.PO()
	require.Equal(t, seeded.ID, held.ID)
}

func TestDetailSwitchingIDResetsTabs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	buyer := e.clientFor(t, "buyer-token")
	supplier := e.clientFor(t, "supplier-token")
	first := e.seedPO(t)
	second := e.seedPO(t)

	_, err := supplier.ProposeModification(ctx, first.ID, po.ProposeInput{
		Field:    po.FieldNotes,
		NewValue: "Deliver to gate B",
		Reason:   "Site access changed",
	})
	require.NoError(t, err)

	detail := po.NewDetailController(buyer)
	_, err = detail.Load(ctx, first.ID)
	require.NoError(t, err)
	mods, err := detail.Modifications(ctx)
	require.NoError(t, err)
	require.Len(t, mods, 1)

	// The second PO has no modifications; the cached tab must not leak over.
	_, err = detail.Load(ctx, second.ID)
	require.NoError(t, err)
	mods, err = detail.Modifications(ctx)
	require.NoError(t, err)
	require.Empty(t, mods)
}

func TestDetailReloadModifications(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	buyer := e.clientFor(t, "buyer-token")
	supplier := e.clientFor(t, "supplier-token")
	seeded := e.seedPO(t)

	detail := po.NewDetailController(buyer)
	_, err := detail.Load(ctx, seeded.ID)
	require.NoError(t, err)
	mods, err := detail.Modifications(ctx)
	require.NoError(t, err)
	require.Empty(t, mods)

	_, err = supplier.ProposeModification(ctx, seeded.ID, po.ProposeInput{
		Field:    po.FieldPaymentTerms,
		NewValue: "Net 45",
		Reason:   "Updated supplier policy",
	})
	require.NoError(t, err)

	// Cached until explicitly invalidated.
	mods, err = detail.Modifications(ctx)
	require.NoError(t, err)
	require.Empty(t, mods)

	detail.ReloadModifications()
	mods, err = detail.Modifications(ctx)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	require.Equal(t, po.ModificationPending, mods[0].Status)
}
