package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"

	"github.com/procurahq/procura/internal/po"
)

func (a *App) poModify(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("po modify: subcommand required (list|propose|approve|reject)")
	}
	switch args[0] {
	case "list":
		return a.modifyList(ctx, args[1:])
	case "propose":
		return a.modifyPropose(ctx, args[1:])
	case "approve":
		return a.modifyApprove(ctx, args[1:])
	case "reject":
		return a.modifyReject(ctx, args[1:])
	default:
		return fmt.Errorf("po modify: unknown subcommand %q", args[0])
	}
}

func (a *App) modifyList(ctx context.Context, args []string) error {
	poID, err := argID(args)
	if err != nil {
		return err
	}
	mods, err := a.pos.ListModifications(ctx, poID)
	if err != nil {
		return err
	}
	renderModifications(a.out, mods)
	return nil
}

func (a *App) modifyPropose(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("po modify propose", flag.ContinueOnError)
	field := fs.String("field", "", "field to change (delivery_address|payment_terms|notes|expected_delivery_date|terms_conditions|internal_notes)")
	value := fs.String("value", "", "proposed new value")
	reason := fs.String("reason", "", "reason for the change (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	poID, err := argID(fs.Args())
	if err != nil {
		return err
	}
	if *field == "" || *value == "" || *reason == "" {
		return errors.New("po modify propose: -field, -value and -reason are required")
	}
	if err := a.guardAction(ctx, poID, po.ActionRequestChange); err != nil {
		return err
	}

	// Read the live value back so the proposer confirms against the real
	// current state, not their assumption of it.
	order, err := a.pos.Get(ctx, poID)
	if err != nil {
		return err
	}
	target := po.ModifiableField(*field)
	current := po.CurrentFieldValue(order, target)
	prompt := fmt.Sprintf("Change %s from %q to %q?", target.Label(), current, *value)
	if !a.confirm(prompt) {
		a.toasts.Info("no changes made")
		return nil
	}
	mod, err := a.pos.ProposeModification(ctx, poID, po.ProposeInput{
		Field:    target,
		NewValue: *value,
		Reason:   *reason,
	})
	if err != nil {
		return err
	}
	a.toasts.Success("modification request #%d submitted for approval", mod.ID)
	return nil
}

func (a *App) modifyApprove(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("po modify approve", flag.ContinueOnError)
	notes := fs.String("notes", "", "approval notes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	poID, modID, err := argModIDs(fs.Args())
	if err != nil {
		return err
	}
	if !a.confirm("Approve this modification? The change applies immediately.") {
		a.toasts.Info("no changes made")
		return nil
	}
	mod, err := a.pos.ApproveModification(ctx, poID, modID, *notes)
	if err != nil {
		return err
	}
	a.toasts.Success("modification #%d approved: %s is now %q", mod.ID, mod.FieldName.Label(), mod.NewValue)
	return nil
}

func (a *App) modifyReject(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("po modify reject", flag.ContinueOnError)
	reason := fs.String("reason", "", "rejection reason (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	poID, modID, err := argModIDs(fs.Args())
	if err != nil {
		return err
	}
	if *reason == "" {
		*reason = a.promptLine("Rejection reason (required): ")
	}
	if *reason == "" {
		return errors.New("po modify reject: a reason is required")
	}
	mod, err := a.pos.RejectModification(ctx, poID, modID, *reason)
	if err != nil {
		return err
	}
	a.toasts.Success("modification #%d rejected", mod.ID)
	return nil
}

func argModIDs(args []string) (int64, int64, error) {
	if len(args) < 2 {
		return 0, 0, errors.New("a purchase order id and a modification id are required")
	}
	poID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || poID <= 0 {
		return 0, 0, fmt.Errorf("invalid purchase order id %q", args[0])
	}
	modID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || modID <= 0 {
		return 0, 0, fmt.Errorf("invalid modification id %q", args[1])
	}
	return poID, modID, nil
}
