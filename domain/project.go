package domain

// GameboardSize is the fixed number of tile slots on a project gameboard.
const GameboardSize = 40

// Project represents one startup project and its member list.
type Project struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Stage       string   `json:"stage,omitempty"`
	OwnerID     string   `json:"owner_id,omitempty"`
	Members     []Member `json:"members,omitempty"`
}

// Member is one entry in a project's equity/member list.
type Member struct {
	UserID string  `json:"user_id"`
	Name   string  `json:"name"`
	Role   string  `json:"role,omitempty"`
	Equity float64 `json:"equity,omitempty"`
}

// Tile records a completed task occupying one gameboard slot. Once set a
// slot is never cleared by the client.
type Tile struct {
	Slot        int    `json:"slot"`
	TaskID      string `json:"task_id"`
	Title       string `json:"title"`
	Value       int    `json:"value,omitempty"`
	CompletedAt int64  `json:"completed_at,omitempty"`
}

// Gameboard holds the fixed 40-slot tile array for one project.
type Gameboard struct {
	ProjectID string               `json:"project_id"`
	Tiles     [GameboardSize]*Tile `json:"tiles"`
}

// FillCount returns the number of occupied slots.
func (g *Gameboard) FillCount() int {
	n := 0
	for _, t := range g.Tiles {
		if t != nil {
			n++
		}
	}
	return n
}

// LeaderboardEntry is one row of the leaderboard read model.
type LeaderboardEntry struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
	Rank   int    `json:"rank,omitempty"`
}

// Match represents a radar matchmaking hit between two users.
type Match struct {
	ID            string  `json:"id"`
	UserID        string  `json:"user_id"`
	MatchedUserID string  `json:"matched_user_id"`
	Score         float64 `json:"score,omitempty"`
}

// Pack is a user-formed group with its own chat channel.
type Pack struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids,omitempty"`
}

// BoardInvitation invites a user onto another project's board.
type BoardInvitation struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name,omitempty"`
	InviterID   string `json:"inviter_id,omitempty"`
}
