// Package listview implements the shared list-screen behavior: debounced
// search, filter changes snapping back to page one, loading and empty as
// mutually exclusive render states, and local row patching after confirmed
// mutations. Every paginated screen composes one Controller.
package listview

import (
	"context"
	"sync"
	"time"

	"github.com/procurahq/procura/internal/shared"
)

// Query is what a fetch receives: the page window, the debounced search
// term, and any named filters.
type Query struct {
	Page    int
	PerPage int
	Search  string
	Filters map[string]string
}

func (q Query) clone() Query {
	filters := make(map[string]string, len(q.Filters))
	for k, v := range q.Filters {
		filters[k] = v
	}
	q.Filters = filters
	return q
}

// Page is a fetched page of rows with its pagination metadata.
type Page[T any] struct {
	Items      []T
	Pagination shared.Pagination
}

// FetchFunc loads one page from the server.
type FetchFunc[T any] func(ctx context.Context, q Query) (Page[T], error)

// Snapshot is the state a renderer consumes. A failed refresh keeps the
// previous rows and sets Err; the view shows stale data with an error
// indicator instead of blanking.
type Snapshot[T any] struct {
	Items      []T
	Pagination shared.Pagination
	Loading    bool
	Err        error
	loaded     bool
}

// Empty reports whether the empty state should render. Never true while a
// request is in flight or before the first fetch settles.
func (s Snapshot[T]) Empty() bool {
	return s.loaded && !s.Loading && len(s.Items) == 0
}

// Options tunes a Controller.
type Options struct {
	PerPage  int
	Debounce time.Duration // search debounce, defaults to 500ms
	OnChange func()        // invoked after every state change
}

// Controller owns one list screen's fetch lifecycle.
type Controller[T any] struct {
	mu    sync.Mutex
	fetch FetchFunc[T]
	rowID func(T) int64

	query      Query
	items      []T
	pagination shared.Pagination
	loading    bool
	loaded     bool
	err        error

	debounce time.Duration
	timer    *time.Timer
	pending  string
	gen      int

	onChange func()
}

// NewController builds a controller. rowID extracts the entity id used for
// local patches.
func NewController[T any](fetch FetchFunc[T], rowID func(T) int64, opts Options) *Controller[T] {
	if opts.PerPage <= 0 {
		opts.PerPage = 10
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	return &Controller[T]{
		fetch:    fetch,
		rowID:    rowID,
		query:    Query{Page: 1, PerPage: opts.PerPage, Filters: map[string]string{}},
		debounce: opts.Debounce,
		onChange: opts.OnChange,
	}
}

// Snapshot returns the current render state.
func (c *Controller[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]T, len(c.items))
	copy(items, c.items)
	return Snapshot[T]{
		Items:      items,
		Pagination: c.pagination,
		Loading:    c.loading,
		Err:        c.err,
		loaded:     c.loaded,
	}
}

// Refresh re-fetches the current query synchronously.
func (c *Controller[T]) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.loading = true
	q := c.query.clone()
	c.mu.Unlock()
	c.notify()

	page, err := c.fetch(ctx, q)

	c.mu.Lock()
	if gen != c.gen {
		// A newer fetch superseded this one; drop the result.
		c.mu.Unlock()
		return nil
	}
	c.loading = false
	if err != nil {
		c.err = err
	} else {
		c.err = nil
		c.loaded = true
		c.items = page.Items
		c.pagination = page.Pagination
	}
	c.mu.Unlock()
	c.notify()
	return err
}

// SetPage moves to page and re-fetches.
func (c *Controller[T]) SetPage(ctx context.Context, page int) error {
	c.mu.Lock()
	if page < 1 {
		page = 1
	}
	c.query.Page = page
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// SetFilter updates a named filter, resets to page one, and re-fetches.
// An empty value removes the filter.
func (c *Controller[T]) SetFilter(ctx context.Context, key, value string) error {
	c.mu.Lock()
	if value == "" {
		delete(c.query.Filters, key)
	} else {
		c.query.Filters[key] = value
	}
	c.query.Page = 1
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// SetSearch schedules a debounced search. Successive calls within the
// debounce window collapse into one fetch with the final term; the page
// resets to one when the fetch fires.
func (c *Controller[T]) SetSearch(ctx context.Context, term string) {
	c.mu.Lock()
	c.pending = term
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, func() {
		c.mu.Lock()
		c.query.Search = c.pending
		c.query.Page = 1
		c.mu.Unlock()
		_ = c.Refresh(ctx)
	})
	c.mu.Unlock()
}

// FlushSearch applies a pending search immediately, for explicit submits.
func (c *Controller[T]) FlushSearch(ctx context.Context) error {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.query.Search = c.pending
	c.query.Page = 1
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// Query returns a copy of the active query.
func (c *Controller[T]) Query() Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query.clone()
}

// Patch applies fn to the row with the given id, reconciling a confirmed
// server mutation into the rendered page without a refetch.
func (c *Controller[T]) Patch(id int64, fn func(*T)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.rowID(c.items[i]) == id {
			fn(&c.items[i])
			c.notifyLocked()
			return true
		}
	}
	return false
}

// Remove splices the row with the given id out of the rendered page after a
// confirmed delete.
func (c *Controller[T]) Remove(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.rowID(c.items[i]) == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			if c.pagination.Total > 0 {
				c.pagination = shared.NewPagination(c.pagination.Page, c.pagination.PerPage, c.pagination.Total-1)
			}
			c.notifyLocked()
			return true
		}
	}
	return false
}

// Stop cancels any pending debounce timer.
func (c *Controller[T]) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller[T]) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}

func (c *Controller[T]) notifyLocked() {
	if c.onChange != nil {
		// Fire outside the lock to keep renderers free to call back in.
		go c.onChange()
	}
}
