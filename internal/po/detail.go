package po

import (
	"context"
	"sync"
)

// DetailController owns the state behind the PO detail screen: the PO
// itself, fetched once per id, plus the status-history and modifications
// tabs, each fetched lazily on first access instead of eagerly with the PO.
type DetailController struct {
	mu     sync.Mutex
	client *Client

	id int64
	po *PurchaseOrder

	history       []StatusHistoryEntry
	historyLoaded bool

	mods       []ModificationRequest
	modsLoaded bool
}

// NewDetailController builds a controller over the workflow client.
func NewDetailController(client *Client) *DetailController {
	return &DetailController{client: client}
}

// Load fetches the PO for id. Loading a different id resets the lazy tabs;
// reloading the same id refreshes the PO but keeps fetched tabs.
func (d *DetailController) Load(ctx context.Context, id int64) (PurchaseOrder, error) {
	fetched, err := d.client.Get(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.id != id {
		d.history = nil
		d.historyLoaded = false
		d.mods = nil
		d.modsLoaded = false
	}
	d.id = id
	d.po = &fetched
	return fetched, nil
}

// PO returns the held purchase order, if loaded.
func (d *DetailController) PO() (PurchaseOrder, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.po == nil {
		return PurchaseOrder{}, false
	}
	return *d.po, true
}

// Apply reconciles a transition result into the held PO and invalidates the
// history tab, since the server appended an entry.
func (d *DetailController) Apply(p PurchaseOrder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.po == nil || d.po.ID != p.ID {
		return
	}
	d.po = &p
	d.historyLoaded = false
	d.history = nil
}

// History returns the status trail, fetching it on first access.
func (d *DetailController) History(ctx context.Context) ([]StatusHistoryEntry, error) {
	d.mu.Lock()
	if d.historyLoaded {
		entries := d.history
		d.mu.Unlock()
		return entries, nil
	}
	id := d.id
	d.mu.Unlock()

	entries, err := d.client.StatusHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.id == id {
		d.history = entries
		d.historyLoaded = true
	}
	return entries, nil
}

// Modifications returns the modification requests, fetching on first access.
func (d *DetailController) Modifications(ctx context.Context) ([]ModificationRequest, error) {
	d.mu.Lock()
	if d.modsLoaded {
		mods := d.mods
		d.mu.Unlock()
		return mods, nil
	}
	id := d.id
	d.mu.Unlock()

	mods, err := d.client.ListModifications(ctx, id)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.id == id {
		d.mods = mods
		d.modsLoaded = true
	}
	return mods, nil
}

// ReloadModifications forces a refetch on next access.
func (d *DetailController) ReloadModifications() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mods = nil
	d.modsLoaded = false
}
