package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/procurahq/procura/internal/listview"
	"github.com/procurahq/procura/internal/po"
	"github.com/procurahq/procura/internal/shared"
)

func (a *App) runPO(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("po: subcommand required (list|show|submit|approve|reject|send|confirm|start|deliver|complete|cancel|delete|edit|modify)")
	}
	switch args[0] {
	case "list":
		return a.poList(ctx, args[1:])
	case "show":
		return a.poShow(ctx, args[1:])
	case "submit":
		return a.poTransition(ctx, args[1:], po.ActionSubmit, "Submit this purchase order for approval?", a.pos.Submit)
	case "approve":
		return a.poApprove(ctx, args[1:])
	case "reject":
		return a.poReject(ctx, args[1:])
	case "send":
		return a.poTransition(ctx, args[1:], po.ActionSend, "Send this purchase order to the supplier? Commercial fields become final.", a.pos.Send)
	case "confirm":
		return a.poTransition(ctx, args[1:], po.ActionAcknowledge, "Acknowledge receipt of this purchase order?", a.pos.Acknowledge)
	case "start":
		return a.poTransition(ctx, args[1:], po.ActionStartFulfillment, "Start fulfillment?", a.pos.StartFulfillment)
	case "deliver":
		return a.poTransition(ctx, args[1:], po.ActionMarkDelivered, "Mark this purchase order as delivered?", a.pos.MarkDelivered)
	case "complete":
		return a.poTransition(ctx, args[1:], po.ActionComplete, "Complete this purchase order?", a.pos.Complete)
	case "cancel":
		return a.poTransition(ctx, args[1:], po.ActionCancel, "Cancel this purchase order? This cannot be undone.", a.pos.Cancel)
	case "delete":
		return a.poDelete(ctx, args[1:])
	case "edit":
		return a.poEdit(ctx, args[1:])
	case "modify":
		return a.poModify(ctx, args[1:])
	default:
		return fmt.Errorf("po: unknown subcommand %q", args[0])
	}
}

func (a *App) poList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("po list", flag.ContinueOnError)
	page := fs.Int("page", 1, "page number")
	perPage := fs.Int("per-page", 10, "rows per page")
	search := fs.String("search", "", "search term (po number or supplier)")
	status := fs.String("status", "", "filter by status")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctrl := listview.NewController(func(ctx context.Context, q listview.Query) (listview.Page[po.PurchaseOrder], error) {
		result, err := a.pos.List(ctx, po.ListQuery{
			Page:    q.Page,
			PerPage: q.PerPage,
			Search:  q.Search,
			Status:  po.Status(q.Filters["status"]),
		})
		if err != nil {
			return listview.Page[po.PurchaseOrder]{}, err
		}
		return listview.Page[po.PurchaseOrder]{Items: result.Items, Pagination: result.Pagination}, nil
	}, func(p po.PurchaseOrder) int64 { return p.ID }, listview.Options{PerPage: *perPage})
	defer ctrl.Stop()

	if *status != "" {
		if err := ctrl.SetFilter(ctx, "status", *status); err != nil {
			return err
		}
	}
	if *search != "" {
		ctrl.SetSearch(ctx, *search)
		if err := ctrl.FlushSearch(ctx); err != nil {
			return err
		}
	}
	if err := ctrl.SetPage(ctx, *page); err != nil {
		return err
	}

	snap := ctrl.Snapshot()
	if snap.Empty() {
		fmt.Fprintln(a.out, "no purchase orders found")
		return nil
	}
	renderPOTable(a.out, snap.Items, a.role())
	renderPagination(a.out, snap.Pagination)
	return nil
}

func (a *App) poShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("po show", flag.ContinueOnError)
	withHistory := fs.Bool("history", false, "include the status history tab")
	withMods := fs.Bool("modifications", false, "include the modifications tab")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := argID(fs.Args())
	if err != nil {
		return err
	}

	detail := po.NewDetailController(a.pos)
	order, err := detail.Load(ctx, id)
	if err != nil {
		return err
	}
	role := a.role()
	renderPODetail(a.out, order.ForRole(role), role)

	if *withHistory {
		entries, err := detail.History(ctx)
		if err != nil {
			return err
		}
		renderHistory(a.out, entries)
	}
	if *withMods {
		mods, err := detail.Modifications(ctx)
		if err != nil {
			return err
		}
		renderModifications(a.out, mods)
	}
	return nil
}

type transitionFunc func(context.Context, int64) (po.PurchaseOrder, error)

func (a *App) poTransition(ctx context.Context, args []string, action po.Action, prompt string, fn transitionFunc) error {
	id, err := argID(args)
	if err != nil {
		return err
	}
	if err := a.guardAction(ctx, id, action); err != nil {
		return err
	}
	if !a.confirm(prompt) {
		a.toasts.Info("no changes made")
		return nil
	}
	updated, err := fn(ctx, id)
	if err != nil {
		return err
	}
	a.toasts.Success("%s is now %s", updated.PONumber, updated.Status.Label())
	return nil
}

func (a *App) poApprove(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("po approve", flag.ContinueOnError)
	amount := fs.String("amount", "", "approved amount (defaults to the PO total)")
	notes := fs.String("notes", "", "approval notes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := argID(fs.Args())
	if err != nil {
		return err
	}
	if err := a.guardAction(ctx, id, po.ActionApprove); err != nil {
		return err
	}

	order, err := a.pos.Get(ctx, id)
	if err != nil {
		return err
	}
	in := po.ApproveInputFor(order)
	in.Notes = *notes
	if *amount != "" {
		parsed, err := decimal.NewFromString(*amount)
		if err != nil {
			return fmt.Errorf("po approve: invalid amount %q", *amount)
		}
		in.ApprovedAmount = parsed
	}
	if !a.confirm(fmt.Sprintf("Approve %s for %s %s?", order.PONumber, order.Currency, in.ApprovedAmount)) {
		a.toasts.Info("no changes made")
		return nil
	}
	updated, err := a.pos.Approve(ctx, id, in)
	if err != nil {
		return err
	}
	a.toasts.Success("%s approved", updated.PONumber)
	return nil
}

func (a *App) poReject(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("po reject", flag.ContinueOnError)
	reason := fs.String("reason", "", "rejection reason (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := argID(fs.Args())
	if err != nil {
		return err
	}
	if *reason == "" {
		*reason = a.promptLine("Rejection reason (required): ")
	}
	if *reason == "" {
		return errors.New("po reject: a reason is required")
	}
	if err := a.guardAction(ctx, id, po.ActionReject); err != nil {
		return err
	}
	if !a.confirm("Reject this purchase order? This cannot be undone.") {
		a.toasts.Info("no changes made")
		return nil
	}
	updated, err := a.pos.Reject(ctx, id, *reason)
	if err != nil {
		return err
	}
	a.toasts.Success("%s rejected", updated.PONumber)
	return nil
}

func (a *App) poDelete(ctx context.Context, args []string) error {
	id, err := argID(args)
	if err != nil {
		return err
	}
	if err := a.guardAction(ctx, id, po.ActionDelete); err != nil {
		return err
	}
	if !a.confirm("Delete this purchase order? This cannot be undone.") {
		a.toasts.Info("no changes made")
		return nil
	}
	if err := a.pos.DeletePO(ctx, id); err != nil {
		return err
	}
	a.toasts.Success("purchase order deleted")
	return nil
}

func (a *App) poEdit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("po edit", flag.ContinueOnError)
	address := fs.String("delivery-address", "", "new delivery address")
	terms := fs.String("payment-terms", "", "new payment terms")
	notes := fs.String("notes", "", "new notes")
	expected := fs.String("expected-delivery", "", "new expected delivery date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := argID(fs.Args())
	if err != nil {
		return err
	}
	if err := a.guardAction(ctx, id, po.ActionEdit); err != nil {
		return err
	}

	var in po.UpdateInput
	changed := false
	if *address != "" {
		in.DeliveryAddress = address
		changed = true
	}
	if *terms != "" {
		in.PaymentTerms = terms
		changed = true
	}
	if *notes != "" {
		in.Notes = notes
		changed = true
	}
	if *expected != "" {
		d, err := po.ParseDate(*expected)
		if err != nil {
			return err
		}
		in.ExpectedDeliveryDate = &d
		changed = true
	}
	if !changed {
		return errors.New("po edit: nothing to change")
	}
	updated, err := a.pos.Update(ctx, id, in)
	if err != nil {
		return err
	}
	a.toasts.Success("%s updated", updated.PONumber)
	return nil
}

// guardAction hides actions the current role should not see, mirroring the
// web views. The server still decides; this only shapes the UI.
func (a *App) guardAction(ctx context.Context, id int64, action po.Action) error {
	order, err := a.pos.Get(ctx, id)
	if err != nil {
		return err
	}
	if !po.Allows(order, a.role(), action) {
		return fmt.Errorf("%w: action %q is not available for %s while %s",
			shared.ErrForbidden, action, a.role(), order.Status.Label())
	}
	return nil
}

func argID(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, errors.New("a purchase order id is required")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid purchase order id %q", args[0])
	}
	return id, nil
}
