package server

import (
	"errors"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"pricemap/backend/mapengine"
	"pricemap/backend/metrics"
	"pricemap/backend/model"
)

var ErrUnknownSession = errors.New("unknown map session")

type session struct {
	id     string
	engine *mapengine.Engine

	mu       sync.Mutex
	selected *model.PriceObservation
	lastUsed time.Time
}

func (ss *session) selectPrice(p model.PriceObservation) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.selected = &p
}

func (ss *session) selection() *model.PriceObservation {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.selected
}

// sessions expires engines idle for longer than ttl. Expired sessions are
// swept whenever a new one is created.
type sessions struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	byID map[string]*session
}

func newSessions(ttl time.Duration) *sessions {
	return &sessions{
		ttl:  ttl,
		now:  time.Now,
		byID: map[string]*session{},
	}
}

// create registers a session whose engine is built by build. The session is
// passed in so engine callbacks can reach it.
func (s *sessions) create(build func(*session) (*mapengine.Engine, error)) (*session, error) {
	s.sweep()
	ss := &session{id: uuid.NewString(), lastUsed: s.now()}
	e, err := build(ss)
	if err != nil {
		return nil, err
	}
	ss.engine = e

	s.mu.Lock()
	s.byID[ss.id] = ss
	metrics.ActiveSessions.Set(float64(len(s.byID)))
	s.mu.Unlock()
	return ss, nil
}

func (s *sessions) get(id string) (*session, error) {
	s.mu.Lock()
	ss, ok := s.byID[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrUnknownSession
	}
	ss.mu.Lock()
	ss.lastUsed = s.now()
	ss.mu.Unlock()
	return ss, nil
}

func (s *sessions) remove(id string) error {
	s.mu.Lock()
	ss, ok := s.byID[id]
	delete(s.byID, id)
	metrics.ActiveSessions.Set(float64(len(s.byID)))
	s.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}
	ss.engine.Close()
	return nil
}

func (s *sessions) sweep() {
	if s.ttl <= 0 {
		return
	}
	cutoff := s.now().Add(-s.ttl)
	var expired []*session
	s.mu.Lock()
	for id, ss := range s.byID {
		ss.mu.Lock()
		idle := ss.lastUsed.Before(cutoff)
		ss.mu.Unlock()
		if idle {
			expired = append(expired, ss)
			delete(s.byID, id)
		}
	}
	metrics.ActiveSessions.Set(float64(len(s.byID)))
	s.mu.Unlock()

	for _, ss := range expired {
		log.Infof("Closing idle map session %s", ss.id)
		ss.engine.Close()
	}
}

func (s *sessions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *sessions) closeAll() {
	s.mu.Lock()
	all := s.byID
	s.byID = map[string]*session{}
	metrics.ActiveSessions.Set(0)
	s.mu.Unlock()
	for _, ss := range all {
		ss.engine.Close()
	}
}
