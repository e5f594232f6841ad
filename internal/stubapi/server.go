package stubapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/shopspring/decimal"
	"github.com/unrolled/secure"

	"github.com/procurahq/procura/internal/po"
	"github.com/procurahq/procura/internal/shared"
)

// Options tunes the stub server.
type Options struct {
	RateLimit  int
	RateWindow time.Duration
	Logger     *slog.Logger
}

type ctxKey int

const userKey ctxKey = 0

// Server is the stub API. It satisfies http.Handler.
type Server struct {
	store  *Store
	router chi.Router
	logger *slog.Logger
}

// New builds the stub server over store.
func New(store *Store, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{store: store, logger: opts.Logger}

	secureMW := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
	})

	r := chi.NewRouter()
	r.Use(secureMW.Handler)
	if opts.RateLimit > 0 {
		window := opts.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.LimitByIP(opts.RateLimit, window))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Use(newIdempotencyReplayer().middleware)

		r.Route("/purchase-orders", func(r chi.Router) {
			r.Get("/", s.listPOs)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getPO)
				r.Put("/", s.updatePO)
				r.Delete("/", s.deletePO)
				r.Post("/submit", s.transitionTo(po.ActionSubmit, po.StatusPendingApproval))
				r.Post("/approve", s.transitionTo(po.ActionApprove, po.StatusApproved))
				r.Post("/reject", s.transitionTo(po.ActionReject, po.StatusRejected))
				r.Post("/send", s.transitionTo(po.ActionSend, po.StatusSentToSupplier))
				r.Post("/confirm", s.transitionTo(po.ActionAcknowledge, po.StatusAcknowledged))
				r.Post("/start", s.transitionTo(po.ActionStartFulfillment, po.StatusInProgress))
				r.Post("/deliver", s.transitionTo(po.ActionMarkDelivered, po.StatusDelivered))
				r.Post("/complete", s.transitionTo(po.ActionComplete, po.StatusCompleted))
				r.Post("/cancel", s.transitionTo(po.ActionCancel, po.StatusCancelled))
				r.Get("/status-history", s.statusHistory)
				r.Get("/modifications", s.listModifications)
				r.Post("/modifications", s.proposeModification)
				r.Post("/modifications/{modID}/approve", s.resolveModification(true))
				r.Post("/modifications/{modID}/reject", s.resolveModification(false))
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.listNotifications)
			r.Get("/unread-count", s.unreadCount)
			r.Post("/mark-all-read", s.markAllRead)
			r.Post("/{id}/mark-read", s.setRead(true))
			r.Post("/{id}/mark-unread", s.setRead(false))
			r.Delete("/{id}", s.deleteNotification)
		})
	})

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeFail(w, http.StatusUnauthorized, "authentication required")
			return
		}
		user, ok := s.store.userByToken(token)
		if !ok {
			writeFail(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func currentUser(r *http.Request) User {
	u, _ := r.Context().Value(userKey).(User)
	return u
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) listPOs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage <= 0 {
		perPage = 10
	}
	items, total := s.store.ListPOs(q.Get("search"), po.Status(q.Get("status")), page, perPage)
	user := currentUser(r)
	out := make([]po.PurchaseOrder, 0, len(items))
	for _, p := range items {
		out = append(out, p.ForRole(user.Role))
	}
	meta := shared.NewPagination(page, perPage, total)
	writeOK(w, paged{
		Data:        out,
		CurrentPage: meta.Page,
		LastPage:    meta.TotalPages,
		PerPage:     meta.PerPage,
		Total:       meta.Total,
	})
}

func (s *Server) getPO(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeFail(w, http.StatusBadRequest, "invalid purchase order id")
		return
	}
	p, found := s.store.GetPO(id)
	if !found {
		writeFail(w, http.StatusNotFound, "purchase order not found")
		return
	}
	writeOK(w, p.ForRole(currentUser(r).Role))
}

func (s *Server) updatePO(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeFail(w, http.StatusBadRequest, "invalid purchase order id")
		return
	}
	var in po.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid payload")
		return
	}
	p, err := s.store.UpdatePO(id, in)
	if err != nil {
		s.writeStoreError(w, err, "purchase order can no longer be edited directly")
		return
	}
	writeOK(w, p.ForRole(currentUser(r).Role))
}

func (s *Server) deletePO(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeFail(w, http.StatusBadRequest, "invalid purchase order id")
		return
	}
	if err := s.store.DeletePO(id); err != nil {
		s.writeStoreError(w, err, "purchase order can no longer be deleted")
		return
	}
	writeOK(w, map[string]bool{"deleted": true})
}

type transitionPayload struct {
	ApprovedAmount  *decimal.Decimal `json:"approved_amount"`
	ApprovalNotes   string           `json:"approval_notes"`
	RejectionReason string           `json:"rejection_reason"`
}

func (s *Server) transitionTo(action po.Action, target po.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			writeFail(w, http.StatusBadRequest, "invalid purchase order id")
			return
		}
		var payload transitionPayload
		if r.Body != nil {
			// Transition payloads are optional; ignore an empty body.
			_ = json.NewDecoder(r.Body).Decode(&payload)
		}
		user := currentUser(r)
		p, err := s.store.Transition(id, action, target, TransitionInput{
			ApprovedAmount:  payload.ApprovedAmount,
			ApprovalNotes:   payload.ApprovalNotes,
			RejectionReason: payload.RejectionReason,
		}, user)
		if err != nil {
			s.writeStoreError(w, err, err.Error())
			return
		}
		s.logger.Info("po transition",
			slog.Int64("po_id", id),
			slog.String("to", string(target)),
			slog.String("actor", user.Name))
		writeOK(w, p.ForRole(user.Role))
	}
}

func (s *Server) statusHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeFail(w, http.StatusBadRequest, "invalid purchase order id")
		return
	}
	entries, found := s.store.History(id)
	if !found {
		writeFail(w, http.StatusNotFound, "purchase order not found")
		return
	}
	writeOK(w, entries)
}

func (s *Server) listModifications(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeFail(w, http.StatusBadRequest, "invalid purchase order id")
		return
	}
	mods, found := s.store.Modifications(id)
	if !found {
		writeFail(w, http.StatusNotFound, "purchase order not found")
		return
	}
	writeOK(w, mods)
}

func (s *Server) proposeModification(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeFail(w, http.StatusBadRequest, "invalid purchase order id")
		return
	}
	var in po.ProposeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if in.Reason == "" {
		writeFieldErrors(w, "validation failed", map[string][]string{"reason": {"reason is required"}})
		return
	}
	mod, err := s.store.ProposeModification(id, in, currentUser(r))
	if err != nil {
		s.writeStoreError(w, err, err.Error())
		return
	}
	writeOK(w, mod)
}

type resolvePayload struct {
	ApprovalNotes string `json:"approval_notes"`
	Reason        string `json:"reason"`
}

func (s *Server) resolveModification(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		poID, ok := pathID(r, "id")
		if !ok {
			writeFail(w, http.StatusBadRequest, "invalid purchase order id")
			return
		}
		modID, ok := pathID(r, "modID")
		if !ok {
			writeFail(w, http.StatusBadRequest, "invalid modification id")
			return
		}
		var payload resolvePayload
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&payload)
		}
		notes := payload.ApprovalNotes
		if !approve {
			notes = payload.Reason
		}
		mod, err := s.store.ResolveModification(poID, modID, approve, notes)
		if err != nil {
			s.writeStoreError(w, err, err.Error())
			return
		}
		writeOK(w, mod)
	}
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage <= 0 {
		perPage = 10
	}
	items, total := s.store.ListNotifications(q.Get("unread") == "1", page, perPage)
	meta := shared.NewPagination(page, perPage, total)
	writeOK(w, paged{
		Data:        items,
		CurrentPage: meta.Page,
		LastPage:    meta.TotalPages,
		PerPage:     meta.PerPage,
		Total:       meta.Total,
	})
}

func (s *Server) unreadCount(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]int{"count": s.store.UnreadCount()})
}

func (s *Server) markAllRead(w http.ResponseWriter, r *http.Request) {
	s.store.MarkAllRead()
	writeOK(w, map[string]bool{"updated": true})
}

func (s *Server) setRead(read bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			writeFail(w, http.StatusBadRequest, "invalid notification id")
			return
		}
		if err := s.store.SetRead(id, read); err != nil {
			s.writeStoreError(w, err, err.Error())
			return
		}
		writeOK(w, map[string]bool{"updated": true})
	}
}

func (s *Server) deleteNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeFail(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	if err := s.store.DeleteNotification(id); err != nil {
		s.writeStoreError(w, err, err.Error())
		return
	}
	writeOK(w, map[string]bool{"deleted": true})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, po.ErrNotFound):
		writeFail(w, http.StatusNotFound, "not found")
	case errors.Is(err, errForbidden):
		writeFail(w, http.StatusForbidden, message)
	case errors.Is(err, po.ErrValidation):
		writeFail(w, http.StatusUnprocessableEntity, message)
	case errors.Is(err, po.ErrInvalidState):
		writeFail(w, http.StatusConflict, message)
	default:
		s.logger.Error("stubapi internal error", slog.Any("error", err))
		writeFail(w, http.StatusInternalServerError, "internal error")
	}
}
