package domain

// Task statuses follow the kanban columns of the board.
const (
	StatusBacklog = "backlog"
	StatusTodo    = "todo"
	StatusDoing   = "doing"
	StatusDone    = "done"
)

// Pacing tags describe the expected velocity of a task.
const (
	PaceCrawl = "crawl"
	PaceWalk  = "walk"
	PaceRun   = "run"
)

// Task represents a single board item. The ID is assigned once at creation
// and is the merge key across optimistic edits, REST responses and inbound
// delta messages.
type Task struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status"`
	Assignees   []string `json:"assignees,omitempty"`
	Value       int      `json:"value,omitempty"`
	Pace        string   `json:"pace,omitempty"`
	Phase       string   `json:"phase,omitempty"`
	Step        int      `json:"step,omitempty"`
}

// ValidStatus reports whether s is one of the board columns.
func ValidStatus(s string) bool {
	switch s {
	case StatusBacklog, StatusTodo, StatusDoing, StatusDone:
		return true
	}
	return false
}
