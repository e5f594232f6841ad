// Package notify implements the notification subsystem: the client for the
// notification endpoints, concurrent bulk actions, the unread-count poller,
// and the toast bus carrying transient user feedback.
package notify

import (
	"encoding/json"
	"time"
)

// Type enumerates notification event types emitted by the platform.
type Type string

const (
	TypeRFQCreated       Type = "rfq_created"
	TypeRFQPublished     Type = "rfq_published"
	TypeBidSubmitted     Type = "bid_submitted"
	TypeBidAwarded       Type = "bid_awarded"
	TypeBidRejected      Type = "bid_rejected"
	TypePOCreated        Type = "po_created"
	TypePOApproved       Type = "po_approved"
	TypePOSent           Type = "po_sent"
	TypePODelivered      Type = "po_delivered"
	TypeUserRegistered   Type = "user_registered"
	TypeSupplierApproved Type = "supplier_approved"
)

// Notification is a server-created record of a domain event. It mutates only
// through mark-read, mark-unread, and delete.
type Notification struct {
	ID        int64           `json:"id"`
	Type      Type            `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	IsRead    bool            `json:"is_read"`
	ReadAt    *time.Time      `json:"read_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// relatedKeys are probed in order when resolving the entity a notification
// points at.
var relatedKeys = []string{"id", "purchase_order_id", "rfq_id", "bid_id", "user_id"}

// RelatedID extracts the related entity id from the JSON payload, used to
// deep-link from the bell into the matching detail screen.
func (n Notification) RelatedID() (int64, bool) {
	if len(n.Data) == 0 {
		return 0, false
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(n.Data, &payload); err != nil {
		return 0, false
	}
	for _, key := range relatedKeys {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var id int64
		if err := json.Unmarshal(raw, &id); err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}
