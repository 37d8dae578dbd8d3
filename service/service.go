package service

import (
	"errors"
	"sync"
	"time"

	"github.com/wepaintai/wepaintai-sub000/cache"
	"github.com/wepaintai/wepaintai-sub000/mq"
	"github.com/wepaintai/wepaintai-sub000/store"
	"github.com/wepaintai/wepaintai-sub000/worker"
)

// Rejected mutations surface as sentinel errors so the API layer can
// answer without string matching.
var (
	ErrSessionNotFound = errors.New("session does not exist")
	ErrLayerNotFound   = errors.New("layer does not exist")
	ErrLastPaintLayer  = errors.New("a session must retain at least one paint layer")
	ErrQuotaExceeded   = errors.New("session stroke quota exceeded")
)

type Service struct {
	Store         store.PaintStore
	Cache         cache.PaintCache
	MQ            mq.MessageQueue
	StrokeBatcher *worker.StrokeBatcher
	StatBatcher   *worker.StatBatcher
	JWTSecret     []byte

	// Per-session serialization of layer registry mutations. The store
	// enforces the version CAS regardless; the mutex just keeps local
	// mutators from burning retries against each other. Entries are
	// reference counted and dropped when the last holder releases.
	layerMusMu sync.Mutex
	layerMus   map[string]*sessionLock

	// Sessions recently confirmed to exist, consulted by the live path.
	liveSessionsMu sync.Mutex
	liveSessions   map[string]time.Time
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewService(
	paintStore store.PaintStore,
	paintCache cache.PaintCache,
	purgeQueue mq.MessageQueue,
	strokeBatcher *worker.StrokeBatcher,
	statBatcher *worker.StatBatcher,
	jwtSecret []byte,
) (*Service, error) {
	return &Service{
		Store:         paintStore,
		Cache:         paintCache,
		MQ:            purgeQueue,
		StrokeBatcher: strokeBatcher,
		StatBatcher:   statBatcher,
		JWTSecret:     jwtSecret,
		layerMus:      make(map[string]*sessionLock),
		liveSessions:  make(map[string]time.Time),
	}, nil
}

// lockSession acquires the session's registry mutex and returns its
// release func. The map entry lives only while someone holds or waits
// on the lock, so idle sessions do not pin a mutex forever.
func (s *Service) lockSession(sessionId string) func() {
	s.layerMusMu.Lock()
	l, ok := s.layerMus[sessionId]
	if !ok {
		l = &sessionLock{}
		s.layerMus[sessionId] = l
	}
	l.refs++
	s.layerMusMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.layerMusMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.layerMus, sessionId)
		}
		s.layerMusMu.Unlock()
	}
}
