package stubapi

import (
	"bytes"
	"net/http"
	"sync"
)

type storedResponse struct {
	status int
	header http.Header
	body   []byte
}

// idempotencyReplayer caches the first response produced under each
// Idempotency-Key and replays it verbatim for later requests carrying the
// same key, so a client retry after a lost or garbled response cannot apply
// the mutation twice. Keys are scoped to the bearer token.
type idempotencyReplayer struct {
	mu   sync.Mutex
	seen map[string]storedResponse
}

func newIdempotencyReplayer() *idempotencyReplayer {
	return &idempotencyReplayer{seen: make(map[string]storedResponse)}
}

func (ir *idempotencyReplayer) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		key = r.Header.Get("Authorization") + "\x00" + key

		ir.mu.Lock()
		stored, replay := ir.seen[key]
		ir.mu.Unlock()
		if replay {
			for name, values := range stored.header {
				w.Header()[name] = values
			}
			w.WriteHeader(stored.status)
			_, _ = w.Write(stored.body)
			return
		}

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		ir.mu.Lock()
		ir.seen[key] = storedResponse{
			status: rec.status,
			header: w.Header().Clone(),
			body:   rec.body.Bytes(),
		}
		ir.mu.Unlock()
	})
}

// responseRecorder tees status and body while writing through.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
