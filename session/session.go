// Package session holds the reconciled client-side view of one project:
// the REST snapshot baseline plus every delta folded in on arrival.
package session

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"wolfpack-sync/client"
	"wolfpack-sync/domain"
)

// Loader produces the baseline snapshot for a project.
type Loader interface {
	LoadSnapshot(ctx context.Context, projectID string) (*client.Snapshot, error)
}

// TaskAPI is the subset of the REST client used by the optimistic task
// operations.
type TaskAPI interface {
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID, status string) (domain.Task, error)
	CompleteTask(ctx context.Context, taskID string) (domain.TaskCompletedData, error)
}

// Hooks are fire-and-forget side effects triggered by specific delta types.
// They run outside the session lock and must not call back into the session
// synchronously.
type Hooks struct {
	OnTaskCompleted   func(domain.Task)
	OnBoardInvitation func(domain.BoardInvitation)
	OnNewMatch        func(domain.Match)
}

// Session is the shared project state. All mutation goes through
// SelectProject, Apply and the task operations; readers get copies via View.
type Session struct {
	loader Loader
	api    TaskAPI
	log    *log.Logger
	hooks  Hooks

	mu         sync.Mutex
	projectID  string
	loadGen    uint64
	cancelLoad context.CancelFunc
	ready      bool
	loadErr    string

	projects    []domain.Project
	project     domain.Project
	tasks       []domain.Task
	board       domain.Gameboard
	leaderboard []domain.LeaderboardEntry
	matches     []domain.Match

	// deltaLog is append-only for the life of the live connection; cursor
	// marks the next unprocessed entry.
	deltaLog []domain.Delta
	cursor   int
	// pending holds deltas that arrived while a snapshot load was in
	// flight; they apply after the baseline installs.
	pending []domain.Delta

	watchers map[chan struct{}]struct{}
}

// New creates an empty session.
func New(loader Loader, api TaskAPI, hooks Hooks, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Session{
		loader:   loader,
		api:      api,
		hooks:    hooks,
		log:      logger,
		watchers: make(map[chan struct{}]struct{}),
	}
}

// View is a point-in-time copy of the session state for consumers.
type View struct {
	ProjectID   string                    `json:"project_id,omitempty"`
	Ready       bool                      `json:"ready"`
	Error       string                    `json:"error,omitempty"`
	Project     domain.Project            `json:"project"`
	Projects    []domain.Project          `json:"projects,omitempty"`
	Tasks       []domain.Task             `json:"tasks"`
	Gameboard   domain.Gameboard          `json:"gameboard"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard,omitempty"`
	Matches     []domain.Match            `json:"matches,omitempty"`
}

// View returns a copy of the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		ProjectID:   s.projectID,
		Ready:       s.ready,
		Error:       s.loadErr,
		Project:     copyProject(s.project),
		Gameboard:   s.board,
		Projects:    append([]domain.Project(nil), s.projects...),
		Tasks:       append([]domain.Task(nil), s.tasks...),
		Leaderboard: append([]domain.LeaderboardEntry(nil), s.leaderboard...),
		Matches:     append([]domain.Match(nil), s.matches...),
	}
	if v.Tasks == nil {
		v.Tasks = []domain.Task{}
	}
	return v
}

// ProjectID returns the currently active project id, empty when none.
func (s *Session) ProjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectID
}

// SelectProject switches the active project and loads its baseline
// snapshot. An empty id clears all project state. Switching back to a
// previously loaded project re-fetches from scratch; nothing is cached.
func (s *Session) SelectProject(ctx context.Context, projectID string) error {
	s.mu.Lock()
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
	s.loadGen++
	gen := s.loadGen
	s.projectID = projectID
	s.project = domain.Project{}
	s.tasks = nil
	s.board = domain.Gameboard{}
	s.ready = false
	s.loadErr = ""
	s.pending = nil
	if projectID == "" {
		s.mu.Unlock()
		s.notify()
		return nil
	}
	loadCtx, cancel := context.WithCancel(ctx)
	s.cancelLoad = cancel
	s.mu.Unlock()

	snap, err := s.loader.LoadSnapshot(loadCtx, projectID)
	cancel()

	s.mu.Lock()
	if gen != s.loadGen || s.projectID != projectID {
		// A newer selection superseded this load; discard the result.
		s.mu.Unlock()
		return nil
	}
	s.cancelLoad = nil
	if err != nil {
		s.loadErr = err.Error()
		s.pending = nil
		s.mu.Unlock()
		s.notify()
		return err
	}
	s.installLocked(snap)
	hooks := s.drainPendingLocked()
	s.mu.Unlock()
	s.runHooks(hooks)
	s.notify()
	return nil
}

// Reload re-runs the snapshot load for the active project. The stream
// supervisor calls this after a reconnect to cover deltas missed while the
// connection was down.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	id := s.projectID
	s.mu.Unlock()
	if id == "" {
		return nil
	}
	return s.SelectProject(ctx, id)
}

// installLocked replaces the baseline wholesale. No trace of the previous
// project's state survives.
func (s *Session) installLocked(snap *client.Snapshot) {
	s.project = copyProject(snap.Project)
	s.tasks = append([]domain.Task(nil), snap.Tasks...)
	s.board = snap.Gameboard
	s.ready = true
	s.loadErr = ""
}

// copyProject clones the member slice so views and installed baselines never
// share a backing array with the session's live state.
func copyProject(p domain.Project) domain.Project {
	p.Members = append([]domain.Member(nil), p.Members...)
	return p
}

// SetProjects installs the user's project list (dashboard view).
func (s *Session) SetProjects(projects []domain.Project) {
	s.mu.Lock()
	s.projects = append([]domain.Project(nil), projects...)
	s.mu.Unlock()
	s.notify()
}

// SetMatches installs the current match list.
func (s *Session) SetMatches(matches []domain.Match) {
	s.mu.Lock()
	s.matches = append([]domain.Match(nil), matches...)
	s.mu.Unlock()
	s.notify()
}

// SetLeaderboard installs the current leaderboard.
func (s *Session) SetLeaderboard(entries []domain.LeaderboardEntry) {
	s.mu.Lock()
	s.leaderboard = append([]domain.LeaderboardEntry(nil), entries...)
	s.mu.Unlock()
	s.notify()
}

// Subscribe registers a change-notification channel for consumers such as
// the local SSE server. Notifications are best-effort, coalesced.
func (s *Session) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel registered with Subscribe.
func (s *Session) Unsubscribe(ch chan struct{}) {
	s.mu.Lock()
	delete(s.watchers, ch)
	s.mu.Unlock()
}

func (s *Session) notify() {
	s.mu.Lock()
	for ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Session) runHooks(hooks []func()) {
	for _, h := range hooks {
		h()
	}
}
