package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"wolfpack-sync/client"
	"wolfpack-sync/domain"
)

type fakeLoader struct {
	snapshots map[string]*client.Snapshot
	err       error
	calls     int
}

func (f *fakeLoader) LoadSnapshot(ctx context.Context, projectID string) (*client.Snapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	snap, ok := f.snapshots[projectID]
	if !ok {
		return nil, errors.New("unknown project")
	}
	cp := *snap
	return &cp, nil
}

// gatedLoader signals when a load starts and blocks it until released, so
// tests can inject deltas while the snapshot is in flight.
type gatedLoader struct {
	snap    *client.Snapshot
	started chan struct{}
	release chan struct{}
}

func (g *gatedLoader) LoadSnapshot(ctx context.Context, projectID string) (*client.Snapshot, error) {
	close(g.started)
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	cp := *g.snap
	return &cp, nil
}

func delta(t *testing.T, typ, projectID string, payload any) domain.Delta {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return domain.Delta{Type: typ, ProjectID: projectID, Data: data}
}

func newTestSession(t *testing.T, loader *fakeLoader) *Session {
	t.Helper()
	return New(loader, nil, Hooks{}, nil)
}

func TestUpdateMergeIsIdempotent(t *testing.T) {
	loader := &fakeLoader{snapshots: map[string]*client.Snapshot{
		"p1": {
			Project: domain.Project{ID: "p1"},
			Tasks:   []domain.Task{{ID: "t1", Status: domain.StatusTodo}},
		},
	}}
	s := newTestSession(t, loader)
	if err := s.SelectProject(context.Background(), "p1"); err != nil {
		t.Fatalf("select project: %v", err)
	}

	d := delta(t, domain.TaskUpdated, "p1", domain.Task{ID: "t1", Status: domain.StatusDoing})
	s.Apply(d)
	s.Apply(d)

	v := s.View()
	if len(v.Tasks) != 1 {
		t.Fatalf("expected exactly one task, got %d", len(v.Tasks))
	}
	if v.Tasks[0].Status != domain.StatusDoing {
		t.Fatalf("expected status doing, got %s", v.Tasks[0].Status)
	}
}

func TestUpdateForUnknownIDIsNoOp(t *testing.T) {
	loader := &fakeLoader{snapshots: map[string]*client.Snapshot{
		"p1": {Project: domain.Project{ID: "p1"}, Tasks: []domain.Task{}},
	}}
	s := newTestSession(t, loader)
	if err := s.SelectProject(context.Background(), "p1"); err != nil {
		t.Fatalf("select project: %v", err)
	}
	s.Apply(delta(t, domain.TaskUpdated, "p1", domain.Task{ID: "ghost", Status: domain.StatusDone}))
	if v := s.View(); len(v.Tasks) != 0 {
		t.Fatalf("update must not insert, got %d tasks", len(v.Tasks))
	}
}

func TestDuplicateCreateYieldsDuplicateEntity(t *testing.T) {
	loader := &fakeLoader{snapshots: map[string]*client.Snapshot{
		"p1": {Project: domain.Project{ID: "p1"}, Tasks: []domain.Task{}},
	}}
	s := newTestSession(t, loader)
	if err := s.SelectProject(context.Background(), "p1"); err != nil {
		t.Fatalf("select project: %v", err)
	}

	d := delta(t, domain.TaskCreated, "p1", domain.Task{ID: "t2", Title: "X"})
	s.Apply(d)
	s.Apply(d)

	v := s.View()
	count := 0
	for _, task := range v.Tasks {
		if task.ID == "t2" {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("expected duplicated entity, got %d entries for t2", count)
	}
}

func TestNonActiveProjectDeltaIsDiscarded(t *testing.T) {
	loader := &fakeLoader{snapshots: map[string]*client.Snapshot{
		"p1": {Project: domain.Project{ID: "p1"}, Tasks: []domain.Task{{ID: "t1", Status: domain.StatusTodo}}},
	}}
	s := newTestSession(t, loader)
	if err := s.SelectProject(context.Background(), "p1"); err != nil {
		t.Fatalf("select project: %v", err)
	}

	s.Apply(delta(t, domain.TaskCreated, "p2", domain.Task{ID: "t9"}))
	s.Apply(delta(t, domain.TaskUpdated, "p2", domain.Task{ID: "t1", Status: domain.StatusDone}))
	s.Apply(delta(t, domain.MemberAdded, "p2", domain.MemberChangeData{Member: domain.Member{UserID: "u2"}}))

	v := s.View()
	if len(v.Tasks) != 1 || v.Tasks[0].Status != domain.StatusTodo {
		t.Fatalf("state mutated by non-active project delta: %+v", v.Tasks)
	}
	if len(v.Project.Members) != 0 {
		t.Fatal("member list mutated by non-active project delta")
	}
}

func TestSnapshotReplacesWholesale(t *testing.T) {
	loader := &fakeLoader{snapshots: map[string]*client.Snapshot{
		"p1": {Project: domain.Project{ID: "p1"}, Tasks: []domain.Task{{ID: "t1"}, {ID: "t2"}}},
		"p2": {Project: domain.Project{ID: "p2"}, Tasks: []domain.Task{{ID: "t3"}}},
	}}
	s := newTestSession(t, loader)
	if err := s.SelectProject(context.Background(), "p1"); err != nil {
		t.Fatalf("select p1: %v", err)
	}
	if err := s.SelectProject(context.Background(), "p2"); err != nil {
		t.Fatalf("select p2: %v", err)
	}

	v := s.View()
	if len(v.Tasks) != 1 || v.Tasks[0].ID != "t3" {
		t.Fatalf("expected only t3 after switch, got %+v", v.Tasks)
	}
	for _, task := range v.Tasks {
		if task.ID == "t1" || task.ID == "t2" {
			t.Fatal("trace of previous project survived the switch")
		}
	}
}

func TestSelectNilProjectClearsState(t *testing.T) {
	loader := &fakeLoader{snapshots: map[string]*client.Snapshot{
		"p1": {Project: domain.Project{ID: "p1"}, Tasks: []domain.Task{{ID: "t1"}}},
	}}
	s := newTestSession(t, loader)
	if err := s.SelectProject(context.Background(), "p1"); err != nil {
		t.Fatalf("select p1: %v", err)
	}
	if err := s.SelectProject(context.Background(), ""); err != nil {
		t.Fatalf("clear: %v", err)
	}
	v := s.View()
	if v.ProjectID != "" || len(v.Tasks) != 0 || v.Project.ID != "" {
		t.Fatalf("state not cleared: %+v", v)
	}
}

func TestSwitchingBackRefetches(t *testing.T) {
	loader := &fakeLoader{snapshots: map[string]*client.Snapshot{
		"p1": {Project: domain.Project{ID: "p1"}},
		"p2": {Project: domain.Project{ID: "p2"}},
	}}
	s := newTestSession(t, loader)
	for _, id := range []string{"p1", "p2", "p1"} {
		if err := s.SelectProject(context.Background(), id); err != nil {
			t.Fatalf("select %s: %v", id, err)
		}
	}
	if loader.calls != 3 {
		t.Fatalf("expected 3 loads (no caching), got %d", loader.calls)
	}
}

func TestLoadFailureRetainsErrorString(t *testing.T) {
	loader := &fakeLoader{err: errors.New("boom")}
	s := newTestSession(t, loader)
	if err := s.SelectProject(context.Background(), "p1"); err == nil {
		t.Fatal("expected error")
	}
	v := s.View()
	if v.Error == "" {
		t.Fatal("expected user-visible error string")
	}
	if v.Ready {
		t.Fatal("failed load must not mark the session ready")
	}
}

func TestEndToEndCreateThenComplete(t *testing.T) {
	loader := &fakeLoader{snapshots: map[string]*client.Snapshot{
		"P": {Project: domain.Project{ID: "P"}, Tasks: []domain.Task{}},
	}}
	var completed []domain.Task
	s := New(loader, nil, Hooks{
		OnTaskCompleted: func(task domain.Task) { completed = append(completed, task) },
	}, nil)
	if err := s.SelectProject(context.Background(), "P"); err != nil {
		t.Fatalf("select project: %v", err)
	}
	if v := s.View(); len(v.Tasks) != 0 {
		t.Fatalf("expected empty baseline, got %+v", v.Tasks)
	}

	s.Apply(delta(t, domain.TaskCreated, "P",
		domain.Task{ID: "t1", Title: "Ideation", Status: domain.StatusBacklog}))
	if v := s.View(); len(v.Tasks) != 1 || v.Tasks[0].ID != "t1" {
		t.Fatalf("expected [t1], got %+v", s.View().Tasks)
	}

	var board domain.Gameboard
	board.ProjectID = "P"
	board.Tiles[0] = &domain.Tile{Slot: 0, TaskID: "t1", Title: "Ideation"}
	s.Apply(delta(t, domain.TaskCompleted, "", domain.TaskCompletedData{
		Task:      domain.Task{ID: "t1", Title: "Ideation", Status: domain.StatusDone},
		Project:   domain.Project{ID: "P"},
		Gameboard: board,
	}))

	v := s.View()
	if v.Tasks[0].Status != domain.StatusDone {
		t.Fatalf("expected done, got %s", v.Tasks[0].Status)
	}
	if v.Gameboard.Tiles[0] == nil {
		t.Fatal("expected gameboard slot 0 to be filled")
	}
	if len(completed) != 1 || completed[0].ID != "t1" {
		t.Fatalf("expected completion hook once, got %+v", completed)
	}
}

func TestMemberAddRemove(t *testing.T) {
	loader := &fakeLoader{snapshots: map[string]*client.Snapshot{
		"p1": {Project: domain.Project{ID: "p1", Members: []domain.Member{{UserID: "u1", Equity: 0.6}}}},
	}}
	s := newTestSession(t, loader)
	if err := s.SelectProject(context.Background(), "p1"); err != nil {
		t.Fatalf("select project: %v", err)
	}
	s.Apply(delta(t, domain.MemberAdded, "p1", domain.MemberChangeData{Member: domain.Member{UserID: "u2", Equity: 0.4}}))
	if v := s.View(); len(v.Project.Members) != 2 {
		t.Fatalf("expected 2 members, got %+v", v.Project.Members)
	}
	s.Apply(delta(t, domain.MemberRemoved, "p1", domain.MemberChangeData{Member: domain.Member{UserID: "u1"}}))
	v := s.View()
	if len(v.Project.Members) != 1 || v.Project.Members[0].UserID != "u2" {
		t.Fatalf("unexpected members %+v", v.Project.Members)
	}
}

func TestViewIsIsolatedFromLaterMemberChanges(t *testing.T) {
	loader := &fakeLoader{snapshots: map[string]*client.Snapshot{
		"p1": {Project: domain.Project{ID: "p1", Members: []domain.Member{
			{UserID: "u1", Equity: 0.6},
			{UserID: "u2", Equity: 0.4},
		}}},
	}}
	s := newTestSession(t, loader)
	if err := s.SelectProject(context.Background(), "p1"); err != nil {
		t.Fatalf("select project: %v", err)
	}

	before := s.View()
	s.Apply(delta(t, domain.MemberRemoved, "p1", domain.MemberChangeData{Member: domain.Member{UserID: "u1"}}))
	s.Apply(delta(t, domain.MemberAdded, "p1", domain.MemberChangeData{Member: domain.Member{UserID: "u3", Equity: 0.2}}))

	if len(before.Project.Members) != 2 ||
		before.Project.Members[0].UserID != "u1" || before.Project.Members[1].UserID != "u2" {
		t.Fatalf("earlier view mutated after the fact: %+v", before.Project.Members)
	}
	after := s.View()
	if len(after.Project.Members) != 2 ||
		after.Project.Members[0].UserID != "u2" || after.Project.Members[1].UserID != "u3" {
		t.Fatalf("unexpected current members %+v", after.Project.Members)
	}
}

func TestDeltasDuringLoadApplyAfterInstall(t *testing.T) {
	loader := &gatedLoader{
		snap:    &client.Snapshot{Project: domain.Project{ID: "p1"}, Tasks: []domain.Task{{ID: "t1", Status: domain.StatusTodo}}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := New(loader, nil, Hooks{}, nil)

	done := make(chan error, 1)
	go func() { done <- s.SelectProject(context.Background(), "p1") }()
	<-loader.started

	// The load is in flight; these must be held back, not dropped, and must
	// not touch state before the baseline lands.
	s.Apply(delta(t, domain.TaskCreated, "p1", domain.Task{ID: "t2", Title: "Mid-load"}))
	s.Apply(delta(t, domain.TaskUpdated, "p1", domain.Task{ID: "t1", Status: domain.StatusDoing}))
	if v := s.View(); v.Ready || len(v.Tasks) != 0 {
		t.Fatalf("delta applied before snapshot install: %+v", v)
	}

	close(loader.release)
	if err := <-done; err != nil {
		t.Fatalf("select project: %v", err)
	}

	v := s.View()
	if !v.Ready {
		t.Fatal("expected ready after install")
	}
	if len(v.Tasks) != 2 {
		t.Fatalf("expected baseline plus buffered create, got %+v", v.Tasks)
	}
	if v.Tasks[0].ID != "t1" || v.Tasks[0].Status != domain.StatusDoing {
		t.Fatalf("buffered update not applied after install: %+v", v.Tasks[0])
	}
	if v.Tasks[1].ID != "t2" {
		t.Fatalf("buffered create not applied after install: %+v", v.Tasks)
	}
}

func TestLeaderboardReplaced(t *testing.T) {
	s := newTestSession(t, &fakeLoader{snapshots: map[string]*client.Snapshot{
		"p1": {Project: domain.Project{ID: "p1"}},
	}})
	if err := s.SelectProject(context.Background(), "p1"); err != nil {
		t.Fatalf("select project: %v", err)
	}
	s.Apply(delta(t, domain.LeaderboardUpdated, "", domain.LeaderboardData{
		Entries: []domain.LeaderboardEntry{{UserID: "u1", Score: 10, Rank: 1}},
	}))
	s.Apply(delta(t, domain.LeaderboardUpdated, "", domain.LeaderboardData{
		Entries: []domain.LeaderboardEntry{{UserID: "u2", Score: 20, Rank: 1}},
	}))
	v := s.View()
	if len(v.Leaderboard) != 1 || v.Leaderboard[0].UserID != "u2" {
		t.Fatalf("expected replaced leaderboard, got %+v", v.Leaderboard)
	}
}

func TestBoardInvitationFiresNavigationHook(t *testing.T) {
	var navigated []domain.BoardInvitation
	s := New(&fakeLoader{snapshots: map[string]*client.Snapshot{
		"p1": {Project: domain.Project{ID: "p1"}},
	}}, nil, Hooks{
		OnBoardInvitation: func(inv domain.BoardInvitation) { navigated = append(navigated, inv) },
	}, nil)
	if err := s.SelectProject(context.Background(), "p1"); err != nil {
		t.Fatalf("select project: %v", err)
	}
	s.Apply(delta(t, domain.NewBoardInvitation, "", domain.BoardInvitation{ProjectID: "p7"}))
	if len(navigated) != 1 || navigated[0].ProjectID != "p7" {
		t.Fatalf("expected navigation hook, got %+v", navigated)
	}
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	s := newTestSession(t, &fakeLoader{snapshots: map[string]*client.Snapshot{
		"p1": {Project: domain.Project{ID: "p1"}, Tasks: []domain.Task{{ID: "t1"}}},
	}})
	if err := s.SelectProject(context.Background(), "p1"); err != nil {
		t.Fatalf("select project: %v", err)
	}
	s.Apply(domain.Delta{Type: domain.TaskUpdated, ProjectID: "p1", Data: []byte(`{broken`)})
	if v := s.View(); len(v.Tasks) != 1 {
		t.Fatalf("malformed payload mutated state: %+v", v.Tasks)
	}
}
