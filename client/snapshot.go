package client

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"wolfpack-sync/domain"
)

// Snapshot is a point-in-time REST copy of one project's state.
type Snapshot struct {
	Project   domain.Project
	Tasks     []domain.Task
	Gameboard domain.Gameboard
}

// LoadSnapshot issues the three baseline calls for a project (detail, task
// list, gameboard). Any failure fails the whole load with a single
// aggregate error; partial results are discarded.
func (c *Client) LoadSnapshot(ctx context.Context, projectID string) (*Snapshot, error) {
	m := newSnapshotMetrics(c.log, projectID)

	project, err := c.GetProject(ctx, projectID)
	if err != nil {
		m.Fail(err)
		return nil, fmt.Errorf("load snapshot %s: %w", projectID, err)
	}
	tasks, err := c.ListTasks(ctx, projectID)
	if err != nil {
		m.Fail(err)
		return nil, fmt.Errorf("load snapshot %s: %w", projectID, err)
	}
	board, err := c.GetGameboard(ctx, projectID)
	if err != nil {
		m.Fail(err)
		return nil, fmt.Errorf("load snapshot %s: %w", projectID, err)
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	m.Done(len(tasks), board.FillCount())
	return &Snapshot{Project: project, Tasks: tasks, Gameboard: board}, nil
}

type snapshotMetrics struct {
	logger    *log.Logger
	projectID string
	start     time.Time
}

func newSnapshotMetrics(logger *log.Logger, projectID string) *snapshotMetrics {
	return &snapshotMetrics{logger: logger, projectID: projectID, start: time.Now()}
}

func (m *snapshotMetrics) Done(tasks, tiles int) {
	if m == nil || m.logger == nil {
		return
	}
	m.logger.WithFields(log.Fields{
		"project":  m.projectID,
		"total_ms": float64(time.Since(m.start)) / float64(time.Millisecond),
		"tasks":    tasks,
		"tiles":    tiles,
	}).Info("snapshot.load.metrics")
}

func (m *snapshotMetrics) Fail(err error) {
	if m == nil || m.logger == nil {
		return
	}
	m.logger.WithFields(log.Fields{
		"project":  m.projectID,
		"total_ms": float64(time.Since(m.start)) / float64(time.Millisecond),
		"error":    err.Error(),
	}).Warn("snapshot.load.metrics")
}
