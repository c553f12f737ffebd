package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard-api/board"
)

// SessionManager owns one board session per authenticated owner. A session
// is created on the owner's first request (login) and dropped on explicit
// logout or after sitting idle, so owner identity is always an explicit
// argument rather than process-global state.
type SessionManager struct {
	svc     RecordService
	logger  *log.Logger
	opts    board.Options
	idleTTL time.Duration

	mu       sync.Mutex
	sessions map[string]*sessionEntry

	stopJanitor chan struct{}
	janitorWG   sync.WaitGroup
	closeOnce   sync.Once
}

type sessionEntry struct {
	session  *board.Session
	lastSeen time.Time

	noteMu sync.Mutex
	notes  []board.Notification
}

func (e *sessionEntry) pushNotification(n board.Notification) {
	e.noteMu.Lock()
	defer e.noteMu.Unlock()
	e.notes = append(e.notes, n)
}

func (e *sessionEntry) drainNotifications() []board.Notification {
	e.noteMu.Lock()
	defer e.noteMu.Unlock()
	out := e.notes
	e.notes = nil
	return out
}

// NewSessionManager starts the manager and its idle-session janitor.
func NewSessionManager(svc RecordService, logger *log.Logger, opts board.Options, idleTTL time.Duration) *SessionManager {
	if idleTTL <= 0 {
		idleTTL = time.Hour
	}
	m := &SessionManager{
		svc:         svc,
		logger:      logger,
		opts:        opts,
		idleTTL:     idleTTL,
		sessions:    make(map[string]*sessionEntry),
		stopJanitor: make(chan struct{}),
	}
	m.janitorWG.Add(1)
	go m.janitor()
	return m
}

// Acquire returns the owner's session, creating and populating it on first
// use.
func (m *SessionManager) Acquire(ctx context.Context, ownerID string) (*board.Session, error) {
	m.mu.Lock()
	if entry, ok := m.sessions[ownerID]; ok {
		entry.lastSeen = time.Now()
		m.mu.Unlock()
		return entry.session, nil
	}
	m.mu.Unlock()

	// Populate outside the lock; the initial fetch may be slow.
	entry := &sessionEntry{lastSeen: time.Now()}
	opts := m.opts
	opts.Notify = entry.pushNotification
	sess, err := board.NewSession(ctx, ownerID, m.svc, m.logger, opts)
	if err != nil {
		return nil, err
	}
	entry.session = sess

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[ownerID]; ok {
		// Lost the race to another request; keep the first session.
		go sess.Close()
		existing.lastSeen = time.Now()
		return existing.session, nil
	}
	m.sessions[ownerID] = entry
	return sess, nil
}

// Notifications drains the owner's pending transient notifications.
func (m *SessionManager) Notifications(ownerID string) []board.Notification {
	m.mu.Lock()
	entry, ok := m.sessions[ownerID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return entry.drainNotifications()
}

// Evict closes and removes the owner's session. It reports whether a
// session existed.
func (m *SessionManager) Evict(ownerID string) bool {
	m.mu.Lock()
	entry, ok := m.sessions[ownerID]
	if ok {
		delete(m.sessions, ownerID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	entry.session.Close()
	return true
}

// Close stops the janitor and closes every session, draining pending
// persistence work.
func (m *SessionManager) Close() {
	m.closeOnce.Do(func() { close(m.stopJanitor) })
	m.janitorWG.Wait()

	m.mu.Lock()
	entries := make([]*sessionEntry, 0, len(m.sessions))
	for _, entry := range m.sessions {
		entries = append(entries, entry)
	}
	m.sessions = make(map[string]*sessionEntry)
	m.mu.Unlock()

	for _, entry := range entries {
		entry.session.Close()
	}
}

func (m *SessionManager) janitor() {
	defer m.janitorWG.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopJanitor:
			return
		case <-ticker.C:
			m.evictIdle(time.Now())
		}
	}
}

func (m *SessionManager) evictIdle(now time.Time) {
	m.mu.Lock()
	var stale []*sessionEntry
	for owner, entry := range m.sessions {
		if now.Sub(entry.lastSeen) > m.idleTTL {
			delete(m.sessions, owner)
			stale = append(stale, entry)
		}
	}
	m.mu.Unlock()

	for _, entry := range stale {
		entry.session.Close()
	}
	if len(stale) > 0 {
		m.logger.WithField("count", len(stale)).Info("evicted idle sessions")
	}
}
