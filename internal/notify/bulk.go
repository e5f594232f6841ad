package notify

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BulkResult reports a multi-select action: ids that committed and ids that
// failed with their errors. Callers patch local state for Done only and
// surface Failed per item; nothing is rolled back, since each operation is
// independent server-side.
type BulkResult struct {
	Done   []int64
	Failed map[int64]error
}

// OK reports whether every item committed.
func (r BulkResult) OK() bool { return len(r.Failed) == 0 }

// bulk fires op once per id concurrently and waits for all of them. Failures
// do not cancel the siblings.
func (c *Client) bulk(ctx context.Context, ids []int64, op func(context.Context, int64) error) BulkResult {
	result := BulkResult{Failed: make(map[int64]error)}
	var mu sync.Mutex
	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			err := op(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[id] = err
			} else {
				result.Done = append(result.Done, id)
			}
			return nil
		})
	}
	_ = g.Wait()
	return result
}

// MarkReadBulk marks the selected notifications read, one request per item
// in parallel.
func (c *Client) MarkReadBulk(ctx context.Context, ids []int64) BulkResult {
	return c.bulk(ctx, ids, c.MarkRead)
}

// MarkUnreadBulk marks the selected notifications unread in parallel.
func (c *Client) MarkUnreadBulk(ctx context.Context, ids []int64) BulkResult {
	return c.bulk(ctx, ids, c.MarkUnread)
}

// RemoveBulk deletes the selected notifications in parallel.
func (c *Client) RemoveBulk(ctx context.Context, ids []int64) BulkResult {
	return c.bulk(ctx, ids, c.Remove)
}
