package domain

import "encoding/json"

// Delta message types pushed over the live connection.
const (
	ProjectCreated     = "project_created"
	ProjectUpdated     = "project_updated"
	MemberAdded        = "member_added"
	MemberRemoved      = "member_removed"
	TaskCreated        = "task_created"
	TaskUpdated        = "task_updated"
	TaskStatusUpdated  = "task_status_updated"
	TaskCompleted      = "task_completed"
	NewMatch           = "new_match"
	NewBoardInvitation = "new_board_invitation"
	LeaderboardUpdated = "leaderboard_updated"
)

// Delta is a single typed event describing one change to server-side state.
// Data carries the full updated entity, not a partial patch.
type Delta struct {
	Type      string          `json:"type"`
	ProjectID string          `json:"project_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// MemberChangeData is the payload of member_added / member_removed.
type MemberChangeData struct {
	ProjectID string `json:"project_id,omitempty"`
	Member    Member `json:"member"`
}

// TaskCompletedData bundles the entities refreshed by a task completion.
type TaskCompletedData struct {
	Task      Task      `json:"task"`
	Project   Project   `json:"project"`
	Gameboard Gameboard `json:"gameboard"`
}

// LeaderboardData is the payload of leaderboard_updated.
type LeaderboardData struct {
	Entries []LeaderboardEntry `json:"entries"`
}
