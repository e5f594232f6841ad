// Package session holds the authenticated user state for the running
// client. It replaces the browser pattern of a token in local storage plus
// ad hoc DOM events with one typed store: explicit login/logout/update
// actions, a single subscription channel for change propagation, and a JSON
// file for persistence across invocations.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// User is the lightweight identity stored alongside the token.
type User struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session pairs the bearer token with its user.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// EventKind enumerates session change events.
type EventKind int

const (
	EventLogin EventKind = iota
	EventLogout
	EventUpdate
)

// Event notifies subscribers of a session change. Session is the state
// after the change; zero-valued after logout.
type Event struct {
	Kind    EventKind
	Session Session
}

// Store is the session store. The zero value is not usable; call NewStore.
type Store struct {
	mu      sync.Mutex
	path    string
	current *Session
	subs    map[int]chan Event
	nextSub int
}

// NewStore loads any persisted session from path. A missing file simply
// means unauthenticated.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, subs: make(map[int]chan Event)}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("session: read %s: %w", path, err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("session: parse %s: %w", path, err)
	}
	if sess.Token != "" {
		s.current = &sess
	}
	return s, nil
}

// Login stores the session and notifies subscribers.
func (s *Store) Login(token string, user User) error {
	if token == "" {
		return errors.New("session: empty token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &Session{Token: token, User: user}
	if err := s.persist(); err != nil {
		return err
	}
	s.broadcast(Event{Kind: EventLogin, Session: *s.current})
	return nil
}

// Logout clears the session and removes the persisted file.
func (s *Store) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session: remove %s: %w", s.path, err)
	}
	s.broadcast(Event{Kind: EventLogout})
	return nil
}

// UpdateEmail rewrites the stored email for the logged-in user.
func (s *Store) UpdateEmail(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return errors.New("session: not logged in")
	}
	s.current.User.Email = email
	if err := s.persist(); err != nil {
		return err
	}
	s.broadcast(Event{Kind: EventUpdate, Session: *s.current})
	return nil
}

// Current returns the active session, if any.
func (s *Store) Current() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// Token returns the bearer token or "" when unauthenticated. Shaped to be
// used directly as an api.TokenSource.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.Token
}

// Subscribe registers a change listener. The returned cancel func must be
// called on teardown. Slow subscribers miss events rather than block the
// store.
func (s *Store) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, 8)
	s.subs[id] = ch
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (s *Store) broadcast(evt Event) {
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (s *Store) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("session: mkdir: %w", err)
	}
	raw, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("session: write: %w", err)
	}
	return os.Rename(tmp, s.path)
}
