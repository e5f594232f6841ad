package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"

	"github.com/procurahq/procura/internal/notify"
)

func (a *App) runNotify(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("notify: subcommand required (list|count|read|unread|read-all|delete|watch)")
	}
	switch args[0] {
	case "list":
		return a.notifyList(ctx, args[1:])
	case "count":
		return a.notifyCount(ctx)
	case "read":
		return a.notifyBulk(ctx, args[1:], a.notifs.MarkReadBulk, "marked read")
	case "unread":
		return a.notifyBulk(ctx, args[1:], a.notifs.MarkUnreadBulk, "marked unread")
	case "read-all":
		return a.notifyReadAll(ctx)
	case "delete":
		return a.notifyBulk(ctx, args[1:], a.notifs.RemoveBulk, "deleted")
	case "watch":
		return a.notifyWatch(ctx)
	default:
		return fmt.Errorf("notify: unknown subcommand %q", args[0])
	}
}

func (a *App) notifyList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("notify list", flag.ContinueOnError)
	page := fs.Int("page", 1, "page number")
	perPage := fs.Int("per-page", 10, "rows per page")
	unread := fs.Bool("unread", false, "unread only")
	if err := fs.Parse(args); err != nil {
		return err
	}
	result, err := a.notifs.List(ctx, notify.ListQuery{Page: *page, PerPage: *perPage, UnreadOnly: *unread})
	if err != nil {
		return err
	}
	if len(result.Items) == 0 {
		fmt.Fprintln(a.out, "no notifications")
		return nil
	}
	renderNotifications(a.out, result.Items)
	renderPagination(a.out, result.Pagination)
	return nil
}

func (a *App) notifyCount(ctx context.Context) error {
	count, err := a.notifs.UnreadCount(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d unread\n", count)
	return nil
}

type bulkFunc func(context.Context, []int64) notify.BulkResult

func (a *App) notifyBulk(ctx context.Context, args []string, fn bulkFunc, verb string) error {
	if len(args) == 0 {
		return errors.New("notify: at least one notification id is required")
	}
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid notification id %q", arg)
		}
		ids = append(ids, id)
	}
	result := fn(ctx, ids)
	if len(result.Done) > 0 {
		a.toasts.Success("%d notification(s) %s", len(result.Done), verb)
	}
	for id, err := range result.Failed {
		a.toasts.Error("notification %d: %s", id, errorMessage(err))
	}
	if !result.OK() {
		return fmt.Errorf("%d of %d failed", len(result.Failed), len(ids))
	}
	return nil
}

func (a *App) notifyReadAll(ctx context.Context) error {
	if err := a.notifs.MarkAllRead(ctx); err != nil {
		return err
	}
	a.toasts.Success("all notifications marked read")
	return nil
}

// notifyWatch polls the unread count until interrupted, the CLI analog of
// the notification bell badge.
func (a *App) notifyWatch(ctx context.Context) error {
	poller := notify.NewPoller(a.notifs, a.cfg.NotifyPollInterval, a.logger, func(count int) {
		fmt.Fprintf(a.out, "unread: %d\n", count)
	})
	poller.Start(ctx)
	<-ctx.Done()
	poller.Stop()
	return nil
}
