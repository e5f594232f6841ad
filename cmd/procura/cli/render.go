package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/procurahq/procura/internal/notify"
	"github.com/procurahq/procura/internal/po"
	"github.com/procurahq/procura/internal/shared"
)

var amounts = message.NewPrinter(language.English)

// ansiByColor maps the status table's color tokens to terminal colors. The
// token set is owned by the status table; this is only its terminal
// projection.
var ansiByColor = map[string]string{
	"gray":   "\033[90m",
	"amber":  "\033[33m",
	"green":  "\033[32m",
	"red":    "\033[31m",
	"blue":   "\033[34m",
	"indigo": "\033[94m",
	"purple": "\033[35m",
	"teal":   "\033[36m",
	"slate":  "\033[37m",
}

const ansiReset = "\033[0m"

func statusChip(s po.Status) string {
	code, ok := ansiByColor[s.Color()]
	if !ok {
		code = ansiByColor["gray"]
	}
	return code + s.Label() + ansiReset
}

func money(currency string, amount decimal.Decimal) string {
	return amounts.Sprintf("%s %v", currency, amount.StringFixed(2))
}

func renderPOTable(w io.Writer, items []po.PurchaseOrder, role po.Role) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNUMBER\tSUPPLIER\tTOTAL\tSTATUS\tACTIONS")
	for _, p := range items {
		p = p.ForRole(role)
		actions := po.AllowedActions(p, role)
		labels := make([]string, len(actions))
		for i, action := range actions {
			labels[i] = string(action)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			p.ID,
			p.PONumber,
			p.SupplierCompany.Name,
			money(p.Currency, p.TotalAmount),
			statusChip(p.Status),
			strings.Join(labels, ","))
	}
	tw.Flush()
}

func renderPODetail(w io.Writer, p po.PurchaseOrder, role po.Role) {
	fmt.Fprintf(w, "%s  %s\n", p.PONumber, statusChip(p.Status))
	fmt.Fprintf(w, "buyer:    %s\n", p.BuyerCompany.Name)
	fmt.Fprintf(w, "supplier: %s\n", p.SupplierCompany.Name)
	fmt.Fprintf(w, "total:    %s\n", money(p.Currency, p.TotalAmount))
	if p.ApprovedAmount != nil {
		fmt.Fprintf(w, "approved: %s by %s\n", money(p.Currency, *p.ApprovedAmount), p.ApprovedBy)
	}
	if p.RejectionReason != "" {
		fmt.Fprintf(w, "rejected: %s (%s)\n", p.RejectedBy, p.RejectionReason)
	}
	fmt.Fprintf(w, "deliver:  %s", p.DeliveryAddress)
	if p.ExpectedDeliveryDate != nil {
		fmt.Fprintf(w, " by %s", p.ExpectedDeliveryDate)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "terms:    %s\n", p.PaymentTerms)
	if p.Notes != "" {
		fmt.Fprintf(w, "notes:    %s\n", p.Notes)
	}
	if p.InternalNotes != "" && role != po.RoleSupplier {
		fmt.Fprintf(w, "internal: %s\n", p.InternalNotes)
	}
	if len(p.Items) > 0 {
		fmt.Fprintln(w, "items:")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  NAME\tQTY\tUNIT\tPRICE\tLINE TOTAL")
		for _, item := range p.Items {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n",
				item.Name,
				item.Quantity,
				item.Unit,
				money(p.Currency, item.UnitPrice),
				money(p.Currency, item.LineTotal))
		}
		tw.Flush()
	}
}

// renderHistory prints the trail newest first; the newest entry gets the
// filled dot.
func renderHistory(w io.Writer, entries []po.StatusHistoryEntry) {
	fmt.Fprintln(w, "status history:")
	for i, entry := range entries {
		dot := "○"
		if i == 0 {
			dot = "●"
		}
		from := ""
		if entry.StatusFrom != nil {
			from = entry.StatusFrom.Label() + " → "
		}
		fmt.Fprintf(w, "  %s %s%s  %s  %s\n",
			dot, from, statusChip(entry.StatusTo), entry.ChangedBy,
			entry.ChangedAt.Format("2006-01-02 15:04"))
		if entry.Notes != "" {
			fmt.Fprintf(w, "      %s\n", entry.Notes)
		}
		for key, value := range entry.Metadata {
			fmt.Fprintf(w, "      %s: %v\n", key, value)
		}
	}
}

func renderModifications(w io.Writer, mods []po.ModificationRequest) {
	if len(mods) == 0 {
		fmt.Fprintln(w, "no modification requests")
		return
	}
	for _, mod := range mods {
		fmt.Fprintf(w, "#%d %s [%s] by %s\n", mod.ID, mod.FieldName.Label(), mod.Status, mod.ModifiedBy)
		fmt.Fprintf(w, "    %q → %q\n", mod.OldValue, mod.NewValue)
		fmt.Fprintf(w, "    reason: %s\n", mod.Reason)
		if mod.ApprovalNotes != "" {
			fmt.Fprintf(w, "    resolution: %s\n", mod.ApprovalNotes)
		}
	}
}

func renderNotifications(w io.Writer, items []notify.Notification) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\t\tTYPE\tTITLE\tWHEN")
	for _, n := range items {
		marker := "●"
		if n.IsRead {
			marker = " "
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			n.ID, marker, n.Type, n.Title, n.CreatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush()
}

func renderPagination(w io.Writer, p shared.Pagination) {
	if !p.Multi() {
		return
	}
	fmt.Fprintf(w, "page %d of %d (%d total)\n", p.Page, p.TotalPages, p.Total)
}

func printToast(w io.Writer, toast notify.Toast) {
	prefix := map[notify.Level]string{
		notify.LevelSuccess: "\033[32m✔\033[0m",
		notify.LevelError:   "\033[31m✘\033[0m",
		notify.LevelInfo:    "\033[34mℹ\033[0m",
	}[toast.Level]
	fmt.Fprintf(w, "%s %s\n", prefix, toast.Message)
}

// confirm asks before an irreversible action fires; declining is a no-op.
func (a *App) confirm(prompt string) bool {
	fmt.Fprintf(a.out, "%s [y/N]: ", prompt)
	line, err := a.in.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func (a *App) promptLine(prompt string) string {
	fmt.Fprint(a.out, prompt)
	line, err := a.in.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}
