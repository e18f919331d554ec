package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ansibot/ansibot/internal/approval"
	"github.com/ansibot/ansibot/internal/bus"
	"github.com/ansibot/ansibot/internal/classify"
	"github.com/ansibot/ansibot/internal/controller"
	"github.com/ansibot/ansibot/internal/executor"
	"github.com/ansibot/ansibot/internal/extract"
	"github.com/ansibot/ansibot/internal/provider"
	"github.com/ansibot/ansibot/internal/session"
	"github.com/ansibot/ansibot/internal/tools"
)

// scriptedProvider returns canned replies in order, repeating the last one.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []string
	calls   int
	err     error
}

func (p *scriptedProvider) Chat(_ context.Context, _ *provider.ChatRequest) (*provider.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	idx := p.calls
	p.calls++
	if idx >= len(p.replies) {
		idx = len(p.replies) - 1
	}
	return &provider.ChatResponse{Content: p.replies[idx], FinishReason: "stop"}, nil
}

func (p *scriptedProvider) DefaultModel() string { return "test-model" }

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeBackend counts launches and replays a scripted status sequence.
type fakeBackend struct {
	mu       sync.Mutex
	launches int
	states   []controller.JobState
	idx      int
	output   string
}

func (b *fakeBackend) Launch(_ context.Context, _ int, _ map[string]any, _ controller.Credentials) (controller.JobHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.launches++
	b.idx = 0
	return controller.JobHandle{ID: 101}, nil
}

func (b *fakeBackend) Status(_ context.Context, _ controller.JobHandle, _ controller.Credentials) (controller.JobState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.idx >= len(b.states) {
		return b.states[len(b.states)-1], nil
	}
	s := b.states[b.idx]
	b.idx++
	return s, nil
}

func (b *fakeBackend) Output(_ context.Context, _ controller.JobHandle, _ controller.Credentials) (string, error) {
	return b.output, nil
}

func (b *fakeBackend) launchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.launches
}

// collector records outbound messages and optionally answers approval
// prompts the way a human would: with the reply token the prompt names.
type collector struct {
	mu      sync.Mutex
	msgs    []*bus.OutboundMessage
	approve *bool // nil means never answer
	gate    *approval.Manager
}

func (c *collector) record(msg *bus.OutboundMessage) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()

	if msg.Kind == bus.KindApprovalPrompt && c.approve != nil {
		if id, ok := promptApprovalID(msg.Content); ok {
			_ = c.gate.Respond(id, *c.approve)
		}
	}
}

func (c *collector) byKind(kind string) []*bus.OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*bus.OutboundMessage
	for _, m := range c.msgs {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func (c *collector) allContent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b strings.Builder
	for _, m := range c.msgs {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// promptApprovalID pulls the batch ID out of a rendered approval prompt.
func promptApprovalID(content string) (string, bool) {
	i := strings.Index(content, "approve:")
	if i < 0 {
		return "", false
	}
	rest := content[i+len("approve:"):]
	if j := strings.IndexAny(rest, " \n"); j >= 0 {
		rest = rest[:j]
	}
	return rest, rest != ""
}

type harness struct {
	orch     *Orchestrator
	planner  *scriptedProvider
	reasoner *scriptedProvider
	backend  *fakeBackend
	out      *collector
}

func newHarness(t *testing.T, plannerReplies []string, reasonerReply string, backend *fakeBackend, opts Options) *harness {
	t.Helper()

	planner := &scriptedProvider{replies: plannerReplies}
	reasoner := &scriptedProvider{replies: []string{reasonerReply}}
	registry := tools.Builtin()
	gate := approval.NewManager(nil)
	mb := bus.NewMessageBus()
	exec := executor.New(backend, nil, 2*time.Millisecond, 30*time.Millisecond)

	if opts.ApprovalTimeout == 0 {
		opts.ApprovalTimeout = time.Second
	}

	orch := New(planner, classify.New(reasoner, "r"), extract.New(registry), registry,
		gate, exec, mb, nil, nil, nil, opts)

	out := &collector{gate: gate}
	mb.Subscribe("test", out.record)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = mb.DispatchOutbound(ctx) }()

	return &harness{orch: orch, planner: planner, reasoner: reasoner, backend: backend, out: out}
}

// waitFor polls cond until true or the deadline passes. Outbound delivery is
// asynchronous, so assertions about received messages go through here.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func inboundText(content string) *bus.InboundMessage {
	return &bus.InboundMessage{
		Channel:        "test",
		SenderID:       "U1",
		ConversationID: "conv-1",
		Content:        content,
	}
}

const listOrgsPlan = `I will list your organizations now.
[{"name": "list_organizations", "args": {}}]`

func TestTurnListThenSummarize(t *testing.T) {
	backend := &fakeBackend{states: []controller.JobState{controller.StateRunning, controller.StateSuccessful}, output: "Default\nEngineering"}
	approve := true
	h := newHarness(t, []string{listOrgsPlan, "You have two organizations: Default and Engineering."}, "yes", backend, Options{})
	h.out.approve = &approve

	h.orch.RunTurn(context.Background(), inboundText("list organizations"))

	if got := backend.launchCount(); got != 1 {
		t.Fatalf("launches = %d, want 1", got)
	}
	if !waitFor(t, func() bool { return len(h.out.byKind(bus.KindToolResult)) == 1 }) {
		t.Fatal("tool result not delivered")
	}
	if got := h.out.byKind(bus.KindToolResult)[0].Content; !strings.Contains(got, "Default") {
		t.Errorf("result missing job output: %q", got)
	}
	if !waitFor(t, func() bool { return strings.Contains(h.out.allContent(), "two organizations") }) {
		t.Error("final summary not delivered")
	}

	conv := h.orch.Conversation("conv-1")
	if conv.Iteration != 1 {
		t.Errorf("iteration = %d, want 1", conv.Iteration)
	}
	var toolMsgs int
	for _, m := range conv.Messages {
		if m.Role == "tool" {
			toolMsgs++
		}
	}
	if toolMsgs != 1 {
		t.Errorf("tool messages in conversation = %d, want 1", toolMsgs)
	}
}

func TestDeniedBatchNeverExecutes(t *testing.T) {
	backend := &fakeBackend{states: []controller.JobState{controller.StateSuccessful}}
	deny := false
	h := newHarness(t, []string{listOrgsPlan}, "yes", backend, Options{})
	h.out.approve = &deny

	h.orch.RunTurn(context.Background(), inboundText("list organizations"))

	if got := backend.launchCount(); got != 0 {
		t.Fatalf("launches = %d, want 0 after denial", got)
	}
	if !waitFor(t, func() bool { return strings.Contains(h.out.allContent(), "nothing was executed") }) {
		t.Error("denial message not delivered")
	}

	// Conversation stays open: a follow-up turn still plans.
	h.orch.RunTurn(context.Background(), inboundText("never mind, just chat"))
	if h.planner.callCount() < 2 {
		t.Error("conversation did not accept a follow-up turn")
	}
}

func TestApprovalTimeoutNeverExecutes(t *testing.T) {
	backend := &fakeBackend{states: []controller.JobState{controller.StateSuccessful}}
	h := newHarness(t, []string{listOrgsPlan}, "yes", backend, Options{ApprovalTimeout: 30 * time.Millisecond})
	// no responder: the prompt goes unanswered

	h.orch.RunTurn(context.Background(), inboundText("list organizations"))

	if got := backend.launchCount(); got != 0 {
		t.Fatalf("launches = %d, want 0 after timeout", got)
	}
	if !waitFor(t, func() bool { return strings.Contains(h.out.allContent(), "No decision arrived") }) {
		t.Error("timeout message not delivered")
	}
}

func TestJobTimeoutReportsStatusUnknown(t *testing.T) {
	backend := &fakeBackend{states: []controller.JobState{controller.StateRunning}}
	approve := true
	h := newHarness(t, []string{listOrgsPlan, "The job is still running."}, "yes", backend, Options{})
	h.out.approve = &approve

	h.orch.RunTurn(context.Background(), inboundText("list organizations"))

	if !waitFor(t, func() bool { return len(h.out.byKind(bus.KindToolResult)) == 1 }) {
		t.Fatal("tool result not delivered")
	}
	got := h.out.byKind(bus.KindToolResult)[0].Content
	if !strings.Contains(got, "status unknown") {
		t.Errorf("timed-out job not reported as status unknown: %q", got)
	}
	if strings.Contains(got, "failed:") {
		t.Errorf("timed-out job reported as failure: %q", got)
	}
}

func TestPlainReplySkipsClassifierAndEnds(t *testing.T) {
	backend := &fakeBackend{states: []controller.JobState{controller.StateSuccessful}}
	h := newHarness(t, []string{"Hello! Tell me what you would like to automate."}, "yes", backend, Options{})

	h.orch.RunTurn(context.Background(), inboundText("hi"))

	if got := h.reasoner.callCount(); got != 0 {
		t.Errorf("reasoner calls = %d, want 0 for a reply with no tool calls", got)
	}
	if got := backend.launchCount(); got != 0 {
		t.Errorf("launches = %d, want 0", got)
	}
	if !waitFor(t, func() bool { return len(h.out.byKind(bus.KindText)) == 1 }) {
		t.Fatal("assistant text not delivered")
	}
	if got := h.out.byKind(bus.KindText)[0].Content; !strings.Contains(got, "automate") {
		t.Errorf("unexpected assistant text: %q", got)
	}
}

func TestClassifierNoEndsWithoutPrompt(t *testing.T) {
	backend := &fakeBackend{states: []controller.JobState{controller.StateSuccessful}}
	h := newHarness(t, []string{listOrgsPlan}, "no", backend, Options{})

	h.orch.RunTurn(context.Background(), inboundText("maybe list organizations later"))

	if !waitFor(t, func() bool { return len(h.out.byKind(bus.KindText)) == 1 }) {
		t.Fatal("assistant text not delivered")
	}
	if prompts := h.out.byKind(bus.KindApprovalPrompt); len(prompts) != 0 {
		t.Fatalf("approval prompts = %d, want 0 when classifier says no", len(prompts))
	}
	if got := backend.launchCount(); got != 0 {
		t.Errorf("launches = %d, want 0", got)
	}
}

func TestIterationLimitStopsLoop(t *testing.T) {
	// Planner always proposes another call, classifier always says yes,
	// everything is approved. Only the iteration ceiling stops the turn.
	backend := &fakeBackend{states: []controller.JobState{controller.StateSuccessful}, output: "ok"}
	approve := true
	h := newHarness(t, []string{listOrgsPlan}, "yes", backend, Options{MaxIterations: 2})
	h.out.approve = &approve

	h.orch.RunTurn(context.Background(), inboundText("list organizations forever"))

	if got := backend.launchCount(); got != 2 {
		t.Fatalf("launches = %d, want 2", got)
	}
	if !waitFor(t, func() bool { return strings.Contains(h.out.allContent(), "Stopping after 2") }) {
		t.Error("iteration-limit notice not delivered")
	}
	if conv := h.orch.Conversation("conv-1"); conv.Iteration != 2 {
		t.Errorf("iteration = %d, want 2", conv.Iteration)
	}
}

func TestPlannerFailureLeavesConversationOpen(t *testing.T) {
	backend := &fakeBackend{states: []controller.JobState{controller.StateSuccessful}}
	h := newHarness(t, []string{"unused"}, "yes", backend, Options{})
	h.planner.err = context.DeadlineExceeded

	h.orch.RunTurn(context.Background(), inboundText("list organizations"))

	if !waitFor(t, func() bool { return len(h.out.byKind(bus.KindError)) == 1 }) {
		t.Fatal("planner failure not surfaced")
	}
	if got := h.out.byKind(bus.KindError)[0].Content; !strings.Contains(got, "unavailable") {
		t.Errorf("unexpected failure text: %q", got)
	}

	h.planner.mu.Lock()
	h.planner.err = nil
	h.planner.replies = []string{"Back online. How can I help?"}
	h.planner.calls = 0
	h.planner.mu.Unlock()

	h.orch.RunTurn(context.Background(), inboundText("are you there"))
	if !waitFor(t, func() bool { return len(h.out.byKind(bus.KindText)) > 0 }) {
		t.Error("conversation did not recover after planner outage")
	}
}

func TestApprovalPromptRedactsSecrets(t *testing.T) {
	plan := `Creating the credential now.
[{"name": "create_credential", "args": {"credential_name": "deploy", "credential_organization": "Default", "credential_type": "Machine", "credential_description": "login password=sup3rs3cret"}}]`
	backend := &fakeBackend{states: []controller.JobState{controller.StateSuccessful}}
	h := newHarness(t, []string{plan, "Done."}, "yes", backend, Options{ApprovalTimeout: 30 * time.Millisecond})

	h.orch.RunTurn(context.Background(), inboundText("add a machine credential"))

	if !waitFor(t, func() bool { return len(h.out.byKind(bus.KindApprovalPrompt)) == 1 }) {
		t.Fatal("approval prompt not delivered")
	}
	prompt := h.out.byKind(bus.KindApprovalPrompt)[0].Content
	if strings.Contains(prompt, "sup3rs3cret") {
		t.Fatalf("secret leaked into approval prompt: %q", prompt)
	}
	if !strings.Contains(prompt, "[REDACTED]") {
		t.Errorf("expected redaction mask in prompt: %q", prompt)
	}
}

func TestToolResultRedactsJobOutput(t *testing.T) {
	backend := &fakeBackend{
		states: []controller.JobState{controller.StateSuccessful},
		output: "created user\npassword=sup3rs3cretvalue",
	}
	approve := true
	h := newHarness(t, []string{listOrgsPlan, "Done."}, "yes", backend, Options{})
	h.out.approve = &approve

	h.orch.RunTurn(context.Background(), inboundText("list organizations"))

	if !waitFor(t, func() bool { return len(h.out.byKind(bus.KindToolResult)) == 1 }) {
		t.Fatal("tool result not delivered")
	}
	got := h.out.byKind(bus.KindToolResult)[0].Content
	if strings.Contains(got, "sup3rs3cretvalue") {
		t.Fatalf("secret leaked into tool result: %q", got)
	}
	if !strings.Contains(got, "password=[REDACTED]") {
		t.Errorf("expected redaction mask in tool result: %q", got)
	}
	if !strings.Contains(got, "created user") {
		t.Errorf("non-sensitive output missing from tool result: %q", got)
	}
}

func TestBareYesApprovesSolePendingBatch(t *testing.T) {
	backend := &fakeBackend{states: []controller.JobState{controller.StateSuccessful}, output: "ok"}
	h := newHarness(t, []string{listOrgsPlan, "Done."}, "yes", backend, Options{})

	done := make(chan struct{})
	go func() {
		h.orch.RunTurn(context.Background(), inboundText("list organizations"))
		close(done)
	}()

	if !waitFor(t, func() bool { return len(h.out.byKind(bus.KindApprovalPrompt)) == 1 }) {
		t.Fatal("approval prompt not delivered")
	}
	h.orch.HandleInbound(context.Background(), inboundText("yes"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("turn did not finish after bare approval")
	}
	if got := backend.launchCount(); got != 1 {
		t.Fatalf("launches = %d, want 1", got)
	}
}

func TestHandleInboundRoutesDecisionTokens(t *testing.T) {
	backend := &fakeBackend{states: []controller.JobState{controller.StateSuccessful}}
	h := newHarness(t, []string{"hello"}, "yes", backend, Options{})

	h.orch.HandleInbound(context.Background(), inboundText("approve:deadbeef"))

	if !waitFor(t, func() bool { return len(h.out.byKind(bus.KindError)) == 1 }) {
		t.Fatal("stale decision token not reported")
	}
	if got := h.out.byKind(bus.KindError)[0].Content; !strings.Contains(got, "No pending approval") {
		t.Errorf("unexpected reply: %q", got)
	}
	if h.planner.callCount() != 0 {
		t.Error("decision token must not start a planning turn")
	}
}

func TestConversationHistorySurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	backend := &fakeBackend{states: []controller.JobState{controller.StateSuccessful}}
	registry := tools.Builtin()

	build := func() *Orchestrator {
		planner := &scriptedProvider{replies: []string{"Hello again."}}
		reasoner := &scriptedProvider{replies: []string{"no"}}
		mb := bus.NewMessageBus()
		return New(planner, classify.New(reasoner, "r"), extract.New(registry), registry,
			approval.NewManager(nil), executor.New(backend, nil, time.Millisecond, 10*time.Millisecond),
			mb, nil, nil, nil, Options{History: session.NewManager(dir)})
	}

	first := build()
	first.RunTurn(context.Background(), inboundText("remember me"))

	second := build()
	conv := second.Conversation("conv-1")
	if len(conv.Messages) == 0 {
		t.Fatal("restored conversation has no messages")
	}
	found := false
	for _, m := range conv.Messages {
		if m.Role == "user" && strings.Contains(m.Content, "remember me") {
			found = true
		}
	}
	if !found {
		t.Errorf("restored messages missing user input: %v", conv.Messages)
	}
}

func TestExpireIdleDropsInactiveConversations(t *testing.T) {
	backend := &fakeBackend{states: []controller.JobState{controller.StateSuccessful}}
	h := newHarness(t, []string{"Hello."}, "no", backend, Options{})

	h.orch.RunTurn(context.Background(), inboundText("hi"))

	conv := h.orch.Conversation("conv-1")
	if len(conv.Messages) == 0 {
		t.Fatal("turn left no messages")
	}

	// A conversation mid-turn holds its own lock and must survive a sweep.
	conv.mu.Lock()
	if n := h.orch.ExpireIdle(time.Minute); n != 0 {
		t.Errorf("dropped %d conversations with a turn in flight", n)
	}
	conv.mu.Unlock()

	// Recently active conversations stay.
	if n := h.orch.ExpireIdle(time.Minute); n != 0 {
		t.Errorf("dropped %d recently active conversations", n)
	}

	conv.LastActive = time.Now().Add(-time.Hour)
	if n := h.orch.ExpireIdle(time.Minute); n != 1 {
		t.Fatalf("dropped %d conversations, want 1", n)
	}
	if fresh := h.orch.Conversation("conv-1"); len(fresh.Messages) != 0 {
		t.Errorf("expired conversation kept %d messages", len(fresh.Messages))
	}
}

func TestEndConversationDropsStateAndHistory(t *testing.T) {
	dir := t.TempDir()
	backend := &fakeBackend{states: []controller.JobState{controller.StateSuccessful}}

	build := func() *Orchestrator {
		planner := &scriptedProvider{replies: []string{"Hello."}}
		reasoner := &scriptedProvider{replies: []string{"no"}}
		mb := bus.NewMessageBus()
		return New(planner, classify.New(reasoner, "r"), extract.New(tools.Builtin()), tools.Builtin(),
			approval.NewManager(nil), executor.New(backend, nil, time.Millisecond, 10*time.Millisecond),
			mb, nil, nil, nil, Options{History: session.NewManager(dir)})
	}

	first := build()
	first.RunTurn(context.Background(), inboundText("remember me"))
	first.EndConversation("conv-1")

	if conv := first.Conversation("conv-1"); len(conv.Messages) != 0 {
		t.Errorf("ended conversation kept %d messages", len(conv.Messages))
	}
	// Persisted history is gone too, so a restart starts clean.
	second := build()
	if conv := second.Conversation("conv-1"); len(conv.Messages) != 0 {
		t.Errorf("history survived EndConversation: %v", conv.Messages)
	}
}

func TestStateTable(t *testing.T) {
	legal := []struct{ from, to State }{
		{StateSummarize, StatePlan},
		{StatePlan, StateExtract},
		{StateExtract, StateClassify},
		{StateClassify, StateEnd},
		{StateClassify, StateAwaitApproval},
		{StateAwaitApproval, StateExecute},
		{StateAwaitApproval, StateCancelled},
		{StateExecute, StateFeedback},
		{StateFeedback, StatePlan},
		{StateFeedback, StateIterationLimit},
		{StateExtract, StateFailed},
	}
	for _, tc := range legal {
		if !canTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be legal", tc.from, tc.to)
		}
	}
	illegal := []struct{ from, to State }{
		{StateClassify, StateExecute},
		{StateSummarize, StateExecute},
		{StatePlan, StateAwaitApproval},
		{StateEnd, StatePlan},
		{StateCancelled, StateExecute},
	}
	for _, tc := range illegal {
		if canTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be illegal", tc.from, tc.to)
		}
	}
}
