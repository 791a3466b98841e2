package session

import (
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"wolfpack-sync/domain"
)

// Apply appends a delta to the log and folds every unprocessed entry into
// the session state, in arrival order. Deltas that arrive while a snapshot
// load is in flight are held back and applied once the baseline installs.
func (s *Session) Apply(d domain.Delta) {
	s.mu.Lock()
	s.deltaLog = append(s.deltaLog, d)
	if !s.ready && s.projectID != "" {
		s.pending = append(s.pending, d)
		s.cursor = len(s.deltaLog)
		s.mu.Unlock()
		return
	}
	var hooks []func()
	for s.cursor < len(s.deltaLog) {
		hooks = append(hooks, s.applyLocked(s.deltaLog[s.cursor])...)
		s.cursor++
	}
	s.mu.Unlock()
	s.runHooks(hooks)
	s.notify()
}

func (s *Session) drainPendingLocked() []func() {
	var hooks []func()
	for _, d := range s.pending {
		hooks = append(hooks, s.applyLocked(d)...)
	}
	s.pending = nil
	return hooks
}

// applyLocked folds one delta into the state and returns the side-effect
// hooks it triggered. Merge rules: *_created appends unconditionally,
// *_updated and *_completed replace by id and no-op when the id is absent.
func (s *Session) applyLocked(d domain.Delta) []func() {
	// Every scoped message is filtered against the active project before
	// it may touch visible state.
	if d.ProjectID != "" && d.ProjectID != s.projectID {
		s.log.WithFields(log.Fields{"type": d.Type, "project": d.ProjectID}).
			Debug("reconcile: dropping delta for non-active project")
		return nil
	}

	switch d.Type {
	case domain.TaskCreated:
		var t domain.Task
		if err := sonic.Unmarshal(d.Data, &t); err != nil {
			s.log.WithError(err).Warn("reconcile: bad task_created payload")
			return nil
		}
		// Append without a duplicate-id check; a duplicated creation
		// message yields a duplicated entity.
		s.tasks = append(s.tasks, t)

	case domain.TaskUpdated, domain.TaskStatusUpdated:
		var t domain.Task
		if err := sonic.Unmarshal(d.Data, &t); err != nil {
			s.log.WithError(err).Warn("reconcile: bad task payload")
			return nil
		}
		s.replaceTaskLocked(t)

	case domain.TaskCompleted:
		var data domain.TaskCompletedData
		if err := sonic.Unmarshal(d.Data, &data); err != nil {
			s.log.WithError(err).Warn("reconcile: bad task_completed payload")
			return nil
		}
		s.replaceTaskLocked(data.Task)
		if data.Project.ID != "" {
			s.project = copyProject(data.Project)
			s.replaceProjectLocked(data.Project)
		}
		s.board = data.Gameboard
		if h := s.hooks.OnTaskCompleted; h != nil {
			task := data.Task
			return []func(){func() { h(task) }}
		}

	case domain.ProjectCreated:
		var p domain.Project
		if err := sonic.Unmarshal(d.Data, &p); err != nil {
			s.log.WithError(err).Warn("reconcile: bad project_created payload")
			return nil
		}
		s.projects = append(s.projects, p)

	case domain.ProjectUpdated:
		var p domain.Project
		if err := sonic.Unmarshal(d.Data, &p); err != nil {
			s.log.WithError(err).Warn("reconcile: bad project_updated payload")
			return nil
		}
		if p.ID == s.project.ID {
			s.project = copyProject(p)
		}
		s.replaceProjectLocked(p)

	case domain.MemberAdded:
		var data domain.MemberChangeData
		if err := sonic.Unmarshal(d.Data, &data); err != nil {
			s.log.WithError(err).Warn("reconcile: bad member_added payload")
			return nil
		}
		s.project.Members = append(s.project.Members, data.Member)

	case domain.MemberRemoved:
		var data domain.MemberChangeData
		if err := sonic.Unmarshal(d.Data, &data); err != nil {
			s.log.WithError(err).Warn("reconcile: bad member_removed payload")
			return nil
		}
		members := make([]domain.Member, 0, len(s.project.Members))
		for _, m := range s.project.Members {
			if m.UserID != data.Member.UserID {
				members = append(members, m)
			}
		}
		s.project.Members = members

	case domain.NewMatch:
		var m domain.Match
		if err := sonic.Unmarshal(d.Data, &m); err != nil {
			s.log.WithError(err).Warn("reconcile: bad new_match payload")
			return nil
		}
		s.matches = append(s.matches, m)
		if h := s.hooks.OnNewMatch; h != nil {
			match := m
			return []func(){func() { h(match) }}
		}

	case domain.NewBoardInvitation:
		var inv domain.BoardInvitation
		if err := sonic.Unmarshal(d.Data, &inv); err != nil {
			s.log.WithError(err).Warn("reconcile: bad board_invitation payload")
			return nil
		}
		if h := s.hooks.OnBoardInvitation; h != nil {
			return []func(){func() { h(inv) }}
		}

	case domain.LeaderboardUpdated:
		var data domain.LeaderboardData
		if err := sonic.Unmarshal(d.Data, &data); err != nil {
			s.log.WithError(err).Warn("reconcile: bad leaderboard payload")
			return nil
		}
		s.leaderboard = data.Entries

	default:
		s.log.WithField("type", d.Type).Debug("reconcile: ignoring unknown delta type")
	}
	return nil
}

// replaceTaskLocked swaps in the task with a matching id. Every occurrence
// is replaced so duplicated entries stay in lockstep; no match means no-op.
func (s *Session) replaceTaskLocked(t domain.Task) {
	for i := range s.tasks {
		if s.tasks[i].ID == t.ID {
			s.tasks[i] = t
		}
	}
}

func (s *Session) replaceProjectLocked(p domain.Project) {
	for i := range s.projects {
		if s.projects[i].ID == p.ID {
			s.projects[i] = p
		}
	}
}
