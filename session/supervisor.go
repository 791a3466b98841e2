package session

import (
	"context"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"wolfpack-sync/domain"
	"wolfpack-sync/stream"
)

// Conn is one live delta connection.
type Conn interface {
	Deltas() <-chan domain.Delta
	Send(v any) error
	Close()
}

// Connector opens a live connection for a (user, project) key. onOpen fires
// on every successful dial, including reconnects.
type Connector interface {
	Open(ctx context.Context, userID, projectID string, onOpen func()) Conn
}

// WSConnector opens gorilla websocket connections against a base URL.
type WSConnector struct {
	URL string
	Log *log.Logger
}

// Open starts a supervised stream client.
func (w WSConnector) Open(ctx context.Context, userID, projectID string, onOpen func()) Conn {
	c := stream.New(stream.Config{
		URL:       w.URL,
		UserID:    userID,
		ProjectID: projectID,
		Logger:    w.Log,
	}, onOpen)
	go c.Run(ctx)
	return c
}

// Supervisor owns exactly one live connection keyed by (user id, project
// id). Whenever the key changes the existing connection is closed and a new
// one opened; there is no in-place reconfiguration and never two concurrent
// connections.
type Supervisor struct {
	sess    *Session
	connect Connector
	userID  string
	log     *log.Logger

	mu        sync.Mutex
	projectID string
	current   Conn
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    bool
}

// NewSupervisor creates a supervisor without an open connection.
func NewSupervisor(sess *Session, connect Connector, userID string, logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Supervisor{sess: sess, connect: connect, userID: userID, log: logger}
}

// SetProject switches the active project: the old connection closes, the
// snapshot loads, and a new connection opens for the new key. An empty id
// leaves the session cleared with no connection.
func (sv *Supervisor) SetProject(ctx context.Context, projectID string) error {
	sv.mu.Lock()
	if sv.closed {
		sv.mu.Unlock()
		return nil
	}
	keyChanged := projectID != sv.projectID
	sv.projectID = projectID
	if keyChanged {
		sv.teardownLocked()
	}
	sv.mu.Unlock()

	err := sv.sess.SelectProject(ctx, projectID)

	if keyChanged && projectID != "" {
		sv.mu.Lock()
		if !sv.closed && sv.projectID == projectID && sv.current == nil {
			sv.openLocked(projectID)
		}
		sv.mu.Unlock()
	}
	return err
}

// openLocked dials the new key and wires its delta channel into the
// session. The onOpen hook skips the initial dial (the snapshot was just
// loaded) and reloads the snapshot on every reconnect to cover missed
// deltas.
func (sv *Supervisor) openLocked(projectID string) {
	ctx, cancel := context.WithCancel(context.Background())
	sv.cancel = cancel

	var first atomic.Bool
	first.Store(true)
	onOpen := func() {
		if first.CompareAndSwap(true, false) {
			return
		}
		sv.log.WithField("project", projectID).Info("stream reconnected, reloading snapshot")
		if err := sv.sess.Reload(ctx); err != nil {
			sv.log.WithError(err).Error("snapshot reload after reconnect failed")
		}
	}

	conn := sv.connect.Open(ctx, sv.userID, projectID, onOpen)
	sv.current = conn
	sv.wg.Add(1)
	go func() {
		defer sv.wg.Done()
		for d := range conn.Deltas() {
			sv.sess.Apply(d)
		}
	}()
}

func (sv *Supervisor) teardownLocked() {
	if sv.current != nil {
		sv.current.Close()
		sv.current = nil
	}
	if sv.cancel != nil {
		sv.cancel()
		sv.cancel = nil
	}
}

// Send forwards a message on the live connection.
func (sv *Supervisor) Send(v any) error {
	sv.mu.Lock()
	conn := sv.current
	sv.mu.Unlock()
	if conn == nil {
		return stream.ErrNotOpen
	}
	return conn.Send(v)
}

// Close tears down the connection for good, e.g. at sign-out.
func (sv *Supervisor) Close() {
	sv.mu.Lock()
	sv.closed = true
	sv.teardownLocked()
	sv.mu.Unlock()
	sv.wg.Wait()
}
