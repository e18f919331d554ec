package timeline

import (
	"path/filepath"
	"testing"
	"time"
)

func newService(t *testing.T) *TimelineService {
	t.Helper()
	s, err := NewTimelineService(filepath.Join(t.TempDir(), "timeline.db"))
	if err != nil {
		t.Fatalf("NewTimelineService: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTurnLifecycle(t *testing.T) {
	s := newService(t)

	if err := s.CreateTurn("turn-1", "trace-1", "conv-1", "cli", "list users"); err != nil {
		t.Fatalf("CreateTurn: %v", err)
	}
	r, err := s.GetTurn("turn-1")
	if err != nil {
		t.Fatalf("GetTurn: %v", err)
	}
	if r.State != TurnStatusRunning || r.ContentIn != "list users" {
		t.Errorf("turn = %+v", r)
	}
	if r.CompletedAt != nil {
		t.Error("fresh turn already completed")
	}

	if err := s.CompleteTurn("turn-1", TurnStatusEnded, 2, "done", ""); err != nil {
		t.Fatalf("CompleteTurn: %v", err)
	}
	r, err = s.GetTurn("turn-1")
	if err != nil {
		t.Fatalf("GetTurn: %v", err)
	}
	if r.State != TurnStatusEnded || r.Iterations != 2 || r.ContentOut != "done" {
		t.Errorf("completed turn = %+v", r)
	}
	if r.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
}

func TestApprovalLifecycle(t *testing.T) {
	s := newService(t)

	if err := s.InsertApprovalRequest("appr-1", "trace-1", "turn-1", `[{"name":"list_users"}]`, "alice", "slack"); err != nil {
		t.Fatalf("InsertApprovalRequest: %v", err)
	}
	if err := s.InsertApprovalRequest("appr-2", "trace-2", "turn-2", `[]`, "bob", "cli"); err != nil {
		t.Fatalf("InsertApprovalRequest: %v", err)
	}

	pending, err := s.GetPendingApprovals()
	if err != nil {
		t.Fatalf("GetPendingApprovals: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}

	if err := s.UpdateApprovalStatus("appr-1", ApprovalStatusApproved); err != nil {
		t.Fatalf("UpdateApprovalStatus: %v", err)
	}
	pending, err = s.GetPendingApprovals()
	if err != nil {
		t.Fatalf("GetPendingApprovals: %v", err)
	}
	if len(pending) != 1 || pending[0].ApprovalID != "appr-2" {
		t.Errorf("pending after approve = %+v", pending)
	}
}

func TestJobRecording(t *testing.T) {
	s := newService(t)

	if err := s.InsertJob("101", "trace-1", "call-1", "create_organization", 35); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	if err := s.FinishJob("101", "successful", 1500*time.Millisecond); err != nil {
		t.Fatalf("FinishJob: %v", err)
	}

	jobs, err := s.JobsForTrace("trace-1")
	if err != nil {
		t.Fatalf("JobsForTrace: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d", len(jobs))
	}
	j := jobs[0]
	if j.Status != "successful" || j.DurationMs != 1500 || j.TemplateID != 35 {
		t.Errorf("job = %+v", j)
	}
	if j.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
}

func TestEventsAndSettings(t *testing.T) {
	s := newService(t)

	for _, et := range []string{"state_change", "llm_call", "extraction"} {
		if err := s.AddEvent("trace-1", et, et, ""); err != nil {
			t.Fatalf("AddEvent: %v", err)
		}
	}
	events, err := s.EventsForTrace("trace-1")
	if err != nil {
		t.Fatalf("EventsForTrace: %v", err)
	}
	if len(events) != 3 || events[0].EventType != "state_change" {
		t.Errorf("events = %+v", events)
	}

	if _, ok := s.GetSetting("approval_timeout"); ok {
		t.Error("unexpected setting present")
	}
	if err := s.SetSetting("approval_timeout", "90s"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.SetSetting("approval_timeout", "120s"); err != nil {
		t.Fatalf("SetSetting upsert: %v", err)
	}
	if v, ok := s.GetSetting("approval_timeout"); !ok || v != "120s" {
		t.Errorf("GetSetting = %q, %v", v, ok)
	}
}
