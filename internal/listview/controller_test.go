package listview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/procurahq/procura/internal/shared"
)

type row struct {
	ID   int64
	Name string
}

// fakeSource serves pages out of a fixed slice and records every query.
type fakeSource struct {
	mu      sync.Mutex
	rows    []row
	queries []Query
	err     error
}

func (f *fakeSource) fetch(ctx context.Context, q Query) (Page[row], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return Page[row]{}, f.err
	}
	var matched []row
	for _, r := range f.rows {
		if q.Search != "" && r.Name != q.Search {
			continue
		}
		matched = append(matched, r)
	}
	total := len(matched)
	start := (q.Page - 1) * q.PerPage
	if start > total {
		start = total
	}
	end := start + q.PerPage
	if end > total {
		end = total
	}
	return Page[row]{
		Items:      matched[start:end],
		Pagination: shared.NewPagination(q.Page, q.PerPage, total),
	}, nil
}

func (f *fakeSource) lastQuery(t *testing.T) Query {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.queries)
	return f.queries[len(f.queries)-1]
}

func (f *fakeSource) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func seedRows(n int) []row {
	rows := make([]row, n)
	for i := range rows {
		rows[i] = row{ID: int64(i + 1), Name: "row"}
	}
	return rows
}

func TestEmptyOnlyAfterFirstSettledFetch(t *testing.T) {
	src := &fakeSource{}
	c := NewController(src.fetch, func(r row) int64 { return r.ID }, Options{})
	defer c.Stop()

	// Before any fetch the view must not claim emptiness.
	require.False(t, c.Snapshot().Empty())

	require.NoError(t, c.Refresh(context.Background()))
	snap := c.Snapshot()
	require.True(t, snap.Empty())
	require.False(t, snap.Loading)
	require.NoError(t, snap.Err)
}

func TestRefreshPopulatesSnapshot(t *testing.T) {
	src := &fakeSource{rows: seedRows(25)}
	c := NewController(src.fetch, func(r row) int64 { return r.ID }, Options{PerPage: 10})
	defer c.Stop()

	require.NoError(t, c.Refresh(context.Background()))
	snap := c.Snapshot()
	require.Len(t, snap.Items, 10)
	require.Equal(t, 25, snap.Pagination.Total)
	require.Equal(t, 3, snap.Pagination.TotalPages)
	require.False(t, snap.Empty())
}

func TestSetPageFetchesThatWindow(t *testing.T) {
	src := &fakeSource{rows: seedRows(25)}
	c := NewController(src.fetch, func(r row) int64 { return r.ID }, Options{PerPage: 10})
	defer c.Stop()

	require.NoError(t, c.SetPage(context.Background(), 3))
	snap := c.Snapshot()
	require.Len(t, snap.Items, 5)
	require.Equal(t, int64(21), snap.Items[0].ID)

	// Page floors at one.
	require.NoError(t, c.SetPage(context.Background(), -4))
	require.Equal(t, 1, src.lastQuery(t).Page)
}

func TestFilterChangeResetsToPageOne(t *testing.T) {
	src := &fakeSource{rows: seedRows(25)}
	c := NewController(src.fetch, func(r row) int64 { return r.ID }, Options{PerPage: 10})
	defer c.Stop()

	require.NoError(t, c.SetPage(context.Background(), 3))
	require.NoError(t, c.SetFilter(context.Background(), "status", "draft"))

	q := src.lastQuery(t)
	require.Equal(t, 1, q.Page)
	require.Equal(t, "draft", q.Filters["status"])

	// Clearing the filter removes the key entirely.
	require.NoError(t, c.SetFilter(context.Background(), "status", ""))
	_, present := src.lastQuery(t).Filters["status"]
	require.False(t, present)
}

func TestSearchDebounceCollapsesKeystrokes(t *testing.T) {
	src := &fakeSource{rows: seedRows(5)}
	c := NewController(src.fetch, func(r row) int64 { return r.ID }, Options{Debounce: 30 * time.Millisecond})
	defer c.Stop()

	ctx := context.Background()
	c.SetSearch(ctx, "s")
	c.SetSearch(ctx, "st")
	c.SetSearch(ctx, "ste")
	c.SetSearch(ctx, "steel")

	require.Eventually(t, func() bool {
		return src.queryCount() == 1
	}, time.Second, 5*time.Millisecond)
	// Only the final term ever reached the source.
	q := src.lastQuery(t)
	require.Equal(t, "steel", q.Search)
	require.Equal(t, 1, q.Page)

	// No trailing extra fetch sneaks in after the window.
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 1, src.queryCount())
}

func TestFlushSearchSkipsTheWait(t *testing.T) {
	src := &fakeSource{rows: seedRows(5)}
	c := NewController(src.fetch, func(r row) int64 { return r.ID }, Options{Debounce: time.Hour})
	defer c.Stop()

	ctx := context.Background()
	c.SetSearch(ctx, "row")
	require.NoError(t, c.FlushSearch(ctx))
	require.Equal(t, 1, src.queryCount())
	require.Equal(t, "row", src.lastQuery(t).Search)

	snap := c.Snapshot()
	require.Len(t, snap.Items, 5)
}

func TestStopCancelsPendingDebounce(t *testing.T) {
	src := &fakeSource{rows: seedRows(5)}
	c := NewController(src.fetch, func(r row) int64 { return r.ID }, Options{Debounce: 20 * time.Millisecond})

	c.SetSearch(context.Background(), "row")
	c.Stop()
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, src.queryCount())
}

func TestFailedRefreshKeepsRows(t *testing.T) {
	src := &fakeSource{rows: seedRows(3)}
	c := NewController(src.fetch, func(r row) int64 { return r.ID }, Options{})
	defer c.Stop()

	require.NoError(t, c.Refresh(context.Background()))
	require.Len(t, c.Snapshot().Items, 3)

	boom := errors.New("backend down")
	src.mu.Lock()
	src.err = boom
	src.mu.Unlock()

	require.ErrorIs(t, c.Refresh(context.Background()), boom)
	snap := c.Snapshot()
	// Stale rows survive alongside the error indicator.
	require.Len(t, snap.Items, 3)
	require.ErrorIs(t, snap.Err, boom)
	require.False(t, snap.Empty())

	// A later success clears the error.
	src.mu.Lock()
	src.err = nil
	src.mu.Unlock()
	require.NoError(t, c.Refresh(context.Background()))
	require.NoError(t, c.Snapshot().Err)
}

func TestPatchReconcilesRowLocally(t *testing.T) {
	src := &fakeSource{rows: seedRows(3)}
	c := NewController(src.fetch, func(r row) int64 { return r.ID }, Options{})
	defer c.Stop()
	require.NoError(t, c.Refresh(context.Background()))

	ok := c.Patch(2, func(r *row) { r.Name = "renamed" })
	require.True(t, ok)
	require.Equal(t, "renamed", c.Snapshot().Items[1].Name)

	// No fetch happened for the patch.
	require.Equal(t, 1, src.queryCount())
	require.False(t, c.Patch(99, func(r *row) {}))
}

func TestRemoveSplicesRowAndShrinksTotal(t *testing.T) {
	src := &fakeSource{rows: seedRows(3)}
	c := NewController(src.fetch, func(r row) int64 { return r.ID }, Options{})
	defer c.Stop()
	require.NoError(t, c.Refresh(context.Background()))

	require.True(t, c.Remove(2))
	snap := c.Snapshot()
	require.Len(t, snap.Items, 2)
	require.Equal(t, 2, snap.Pagination.Total)
	for _, r := range snap.Items {
		require.NotEqual(t, int64(2), r.ID)
	}
	require.False(t, c.Remove(2))
}

func TestOnChangeFiresAroundRefresh(t *testing.T) {
	src := &fakeSource{rows: seedRows(1)}
	var calls int
	var mu sync.Mutex
	c := NewController(src.fetch, func(r row) int64 { return r.ID }, Options{
		OnChange: func() { mu.Lock(); calls++; mu.Unlock() },
	})
	defer c.Stop()

	require.NoError(t, c.Refresh(context.Background()))
	mu.Lock()
	defer mu.Unlock()
	// Loading flip plus the settled result.
	require.Equal(t, 2, calls)
}
