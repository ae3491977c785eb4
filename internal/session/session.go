// Package session holds the per-user chat selection and the block state that
// decides whether sending is allowed.
package session

import (
	"sync"

	"github.com/safechathub/safechat/internal/models"
)

type Gate int

const (
	Unblocked Gate = iota
	CurrentUserBlockedByPeer
	PeerBlockedByCurrentUser
)

func (g Gate) String() string {
	switch g {
	case CurrentUserBlockedByPeer:
		return "current_user_blocked"
	case PeerBlockedByCurrentUser:
		return "receiver_blocked"
	default:
		return "unblocked"
	}
}

type State struct {
	ChatID string `json:"chat_id"`
	PeerID string `json:"peer_id"`
	// Peer is nil while the peer blocks the current user.
	Peer               *models.User `json:"peer"`
	CurrentUserBlocked bool         `json:"is_current_user_blocked"`
	ReceiverBlocked    bool         `json:"is_receiver_blocked"`
}

func (s State) Gate() Gate {
	switch {
	case s.CurrentUserBlocked:
		return CurrentUserBlockedByPeer
	case s.ReceiverBlocked:
		return PeerBlockedByCurrentUser
	default:
		return Unblocked
	}
}

func (s State) CanSend() bool {
	return s.ChatID != "" && s.Gate() == Unblocked
}

// Derive computes the state for current viewing chatID with peer. Being
// blocked by the peer takes precedence.
func Derive(chatID string, current, peer *models.User) State {
	switch {
	case peer.HasBlocked(current.ID):
		return State{ChatID: chatID, PeerID: peer.ID, CurrentUserBlocked: true}
	case current.HasBlocked(peer.ID):
		return State{ChatID: chatID, PeerID: peer.ID, Peer: peer, ReceiverBlocked: true}
	default:
		return State{ChatID: chatID, PeerID: peer.ID, Peer: peer}
	}
}

type Action interface {
	apply(State) State
}

type Select struct {
	ChatID  string
	Current *models.User
	Peer    *models.User
}

func (a Select) apply(State) State { return Derive(a.ChatID, a.Current, a.Peer) }

// ToggleBlock flips the current user's block on the peer.
type ToggleBlock struct{}

func (ToggleBlock) apply(s State) State {
	if s.Peer == nil {
		return s
	}
	s.ReceiverBlocked = !s.ReceiverBlocked
	return s
}

// SetReceiverBlocked puts back a known block state for ChatID. It is a no-op
// once the session has moved to another thread or lost the peer.
type SetReceiverBlocked struct {
	ChatID  string
	Blocked bool
}

func (a SetReceiverBlocked) apply(s State) State {
	if s.ChatID != a.ChatID || s.Peer == nil {
		return s
	}
	s.ReceiverBlocked = a.Blocked
	return s
}

type Reset struct{}

func (Reset) apply(State) State { return State{} }

// Store is the single source of truth for one user's session. All changes go
// through Dispatch and every change is delivered to subscribers.
type Store struct {
	// op serializes read-modify-persist sequences; mu only guards state.
	op        sync.Mutex
	mu        sync.Mutex
	state     State
	observers map[int]func(State)
	next      int
}

func NewStore() *Store {
	return &Store{observers: make(map[int]func(State))}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) Dispatch(a Action) State {
	s.mu.Lock()
	s.state = a.apply(s.state)
	state := s.state
	observers := make([]func(State), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
	return state
}

// Exclusive blocks until no other Exclusive section runs on this store and
// returns the func that ends the section. Dispatch does not take this lock.
func (s *Store) Exclusive() (release func()) {
	s.op.Lock()
	return s.op.Unlock
}

// Subscribe registers fn for every new state. The returned func removes it
// and is safe to call more than once.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// Registry hands out one Store per user.
type Registry struct {
	mu     sync.Mutex
	stores map[string]*Store
	onNew  func(userID string, st *Store)
}

// NewRegistry creates a registry. onNew, when set, runs once for each new
// Store before it is returned.
func NewRegistry(onNew func(userID string, st *Store)) *Registry {
	return &Registry{stores: make(map[string]*Store), onNew: onNew}
}

func (r *Registry) For(userID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stores[userID]
	if !ok {
		st = NewStore()
		if r.onNew != nil {
			r.onNew(userID, st)
		}
		r.stores[userID] = st
	}
	return st
}
