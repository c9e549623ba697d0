package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/girjesh-suryawanshi/secureshare-sub000/codes"
	"github.com/girjesh-suryawanshi/secureshare-sub000/health"
	"github.com/girjesh-suryawanshi/secureshare-sub000/models"
)

type ConnectionStore interface {
	Open(peer models.Peer) (string, error)
	Touch(connectionID string) bool
	Get(connectionID string) (models.Peer, bool)
	Session(connectionID string) (models.ConnectionSession, bool)
	Close(connectionID string) (models.Peer, bool)
	Stale(now time.Time, timeout time.Duration) []string
	PurgeRetired(now time.Time) int
	Count() int

	health.ReadinessCheck
}

type connection struct {
	peer     models.Peer
	openedAt time.Time
	lastSeen time.Time
}

type ConnectionOption func(*MemoryConnectionStore)

func WithConnectionClock(now Clock) ConnectionOption {
	return func(s *MemoryConnectionStore) { s.now = now }
}

func WithConnectionIDGenerator(gen codes.Generator) ConnectionOption {
	return func(s *MemoryConnectionStore) { s.generate = gen }
}

// WithRetirement sets how long a closed id is withheld from reissue.
func WithRetirement(d time.Duration) ConnectionOption {
	return func(s *MemoryConnectionStore) { s.retireFor = d }
}

// MemoryConnectionStore is the directory of live client sessions.
type MemoryConnectionStore struct {
	mu       sync.RWMutex
	sessions map[string]*connection
	retired  map[string]time.Time

	retireFor time.Duration
	attempts  int
	generate  codes.Generator
	now       Clock
}

func NewMemoryConnectionStore(opts ...ConnectionOption) *MemoryConnectionStore {
	s := &MemoryConnectionStore{
		sessions:  make(map[string]*connection),
		retired:   make(map[string]time.Time),
		retireFor: 10 * time.Minute,
		attempts:  defaultCodeAttempts,
		generate:  codes.NewConnectionID,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryConnectionStore) IsReady(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryConnectionStore) Name() string {
	return "ConnectionStore[memory]"
}

func (s *MemoryConnectionStore) Open(peer models.Peer) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := codes.Issue(s.generate, s.takenLocked, s.attempts)
	if err != nil {
		return "", err
	}
	now := s.now()
	s.sessions[id] = &connection{peer: peer, openedAt: now, lastSeen: now}
	return id, nil
}

func (s *MemoryConnectionStore) Touch(connectionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.sessions[connectionID]
	if !ok {
		return false
	}
	c.lastSeen = s.now()
	return true
}

func (s *MemoryConnectionStore) Get(connectionID string) (models.Peer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.sessions[connectionID]
	if !ok {
		return nil, false
	}
	return c.peer, true
}

func (s *MemoryConnectionStore) Session(connectionID string) (models.ConnectionSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.sessions[connectionID]
	if !ok {
		return models.ConnectionSession{}, false
	}
	return models.ConnectionSession{
		ConnectionID: connectionID,
		OpenedAt:     c.openedAt,
		LastSeen:     c.lastSeen,
	}, true
}

// Close removes the session and retires its id. The second result is false
// when the id was already gone, which lets callers run teardown once.
func (s *MemoryConnectionStore) Close(connectionID string) (models.Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.sessions[connectionID]
	if !ok {
		return nil, false
	}
	delete(s.sessions, connectionID)
	s.retired[connectionID] = s.now()
	return c.peer, true
}

func (s *MemoryConnectionStore) Stale(now time.Time, timeout time.Duration) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []string
	for id, c := range s.sessions {
		if now.Sub(c.lastSeen) > timeout {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	return stale
}

func (s *MemoryConnectionStore) PurgeRetired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, at := range s.retired {
		if now.Sub(at) > s.retireFor {
			delete(s.retired, id)
			n++
		}
	}
	return n
}

func (s *MemoryConnectionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryConnectionStore) takenLocked(id string) bool {
	if _, ok := s.sessions[id]; ok {
		return true
	}
	_, ok := s.retired[id]
	return ok
}
