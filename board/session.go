package board

import (
	"context"

	log "github.com/sirupsen/logrus"

	"taskboard-api/store"
)

// Session ties one authenticated owner to their canonical store and
// coordinator. It is created at login and closed at logout; owner identity
// is never read from process-global state.
type Session struct {
	Owner       string
	Store       *store.TaskStore
	Coordinator *Coordinator
}

// NewSession populates a fresh store from the backend and starts the
// owner's coordinator.
func NewSession(ctx context.Context, owner string, backend Backend, logger *log.Logger, opts Options) (*Session, error) {
	st := store.New()
	tasks, err := backend.FetchTasks(ctx, owner)
	if err != nil {
		return nil, err
	}
	st.Load(tasks)

	return &Session{
		Owner:       owner,
		Store:       st,
		Coordinator: NewCoordinator(owner, st, backend, logger, opts),
	}, nil
}

// Close drains pending persistence work and releases the session.
func (s *Session) Close() {
	s.Coordinator.Close()
}
