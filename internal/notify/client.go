package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/procurahq/procura/internal/shared"
)

// API is the slice of the platform client the notification subsystem needs.
type API interface {
	Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
	Post(ctx context.Context, path string, payload any) (json.RawMessage, error)
	Delete(ctx context.Context, path string) (json.RawMessage, error)
}

// Client invokes the notification endpoints.
type Client struct {
	api    API
	logger *slog.Logger
}

// NewClient builds a notification client.
func NewClient(api API, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: api, logger: logger}
}

// ListQuery filters the notification list.
type ListQuery struct {
	Page       int
	PerPage    int
	UnreadOnly bool
}

// ListPage is one page of notifications.
type ListPage struct {
	Items      []Notification
	Pagination shared.Pagination
}

type pagedEnvelope struct {
	Data        []Notification `json:"data"`
	CurrentPage int            `json:"current_page"`
	LastPage    int            `json:"last_page"`
	PerPage     int            `json:"per_page"`
	Total       int            `json:"total"`
}

// List fetches a page of notifications.
func (c *Client) List(ctx context.Context, q ListQuery) (ListPage, error) {
	query := url.Values{}
	if q.Page > 0 {
		query.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(q.PerPage))
	}
	if q.UnreadOnly {
		query.Set("unread", "1")
	}
	raw, err := c.api.Get(ctx, "notifications", query)
	if err != nil {
		return ListPage{}, err
	}
	var env pagedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ListPage{}, fmt.Errorf("notify: decode list: %w", err)
	}
	return ListPage{
		Items:      env.Data,
		Pagination: shared.NewPagination(env.CurrentPage, env.PerPage, env.Total),
	}, nil
}

// UnreadCount fetches the unread aggregate, independent of the list.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	raw, err := c.api.Get(ctx, "notifications/unread-count", nil)
	if err != nil {
		return 0, err
	}
	var payload struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, fmt.Errorf("notify: decode count: %w", err)
	}
	return payload.Count, nil
}

// MarkRead marks one notification read.
func (c *Client) MarkRead(ctx context.Context, id int64) error {
	_, err := c.api.Post(ctx, notifPath(id)+"/mark-read", nil)
	return err
}

// MarkUnread marks one notification unread.
func (c *Client) MarkUnread(ctx context.Context, id int64) error {
	_, err := c.api.Post(ctx, notifPath(id)+"/mark-unread", nil)
	return err
}

// MarkAllRead marks every notification read in one server call.
func (c *Client) MarkAllRead(ctx context.Context) error {
	_, err := c.api.Post(ctx, "notifications/mark-all-read", nil)
	return err
}

// Remove deletes one notification.
func (c *Client) Remove(ctx context.Context, id int64) error {
	_, err := c.api.Delete(ctx, notifPath(id))
	return err
}

func notifPath(id int64) string {
	return "notifications/" + strconv.FormatInt(id, 10)
}
