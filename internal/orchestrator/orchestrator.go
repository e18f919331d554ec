// Package orchestrator drives the per-conversation turn loop: summarize the
// user input, plan with the model, extract tool calls, classify execution
// intent, gate execution behind human approval, run approved jobs, and feed
// results back into the next planning pass. Iteration and transition ceilings
// are enforced here and nowhere else.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ansibot/ansibot/internal/approval"
	"github.com/ansibot/ansibot/internal/audit"
	"github.com/ansibot/ansibot/internal/bus"
	"github.com/ansibot/ansibot/internal/classify"
	"github.com/ansibot/ansibot/internal/controller"
	"github.com/ansibot/ansibot/internal/executor"
	"github.com/ansibot/ansibot/internal/extract"
	"github.com/ansibot/ansibot/internal/prompts"
	"github.com/ansibot/ansibot/internal/provider"
	"github.com/ansibot/ansibot/internal/redact"
	"github.com/ansibot/ansibot/internal/session"
	"github.com/ansibot/ansibot/internal/timeline"
	"github.com/ansibot/ansibot/internal/tools"
)

// Conversation is the per-conversation state the orchestrator owns. Messages
// are append-only; exactly one turn mutates a conversation at a time.
type Conversation struct {
	ID         string
	Messages   []provider.Message
	Inputs     []string
	Iteration  int
	Creds      controller.Credentials
	LastActive time.Time

	mu sync.Mutex
}

// Options groups the tunable limits of the turn loop.
type Options struct {
	MaxIterations   int
	MaxTransitions  int
	ApprovalTimeout time.Duration
	// DefaultCredentials are used for conversations that carry no session
	// token, e.g. chat channels authenticated out of band.
	DefaultCredentials controller.Credentials
	// History persists conversation messages across restarts when set.
	History *session.Manager
}

// Orchestrator composes the turn-loop components. One instance serves all
// conversations; per-conversation state lives in the conversations map.
type Orchestrator struct {
	planner    provider.LLMProvider
	classifier *classify.Classifier
	extractor  *extract.Extractor
	registry   *tools.Registry
	gate       *approval.Manager
	exec       *executor.Executor
	bus        *bus.MessageBus
	timeline   *timeline.TimelineService
	audit      *audit.Publisher
	sessions   *session.Store
	opts       Options

	mu            sync.Mutex
	conversations map[string]*Conversation
}

// New creates an orchestrator. Timeline, audit, and sessions may be nil.
func New(planner provider.LLMProvider, classifier *classify.Classifier, extractor *extract.Extractor, registry *tools.Registry, gate *approval.Manager, exec *executor.Executor, mb *bus.MessageBus, tl *timeline.TimelineService, pub *audit.Publisher, sessions *session.Store, opts Options) *Orchestrator {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 8
	}
	if opts.MaxTransitions <= 0 {
		opts.MaxTransitions = 300
	}
	if opts.ApprovalTimeout <= 0 {
		opts.ApprovalTimeout = 60 * time.Second
	}
	return &Orchestrator{
		planner:       planner,
		classifier:    classifier,
		extractor:     extractor,
		registry:      registry,
		gate:          gate,
		exec:          exec,
		bus:           mb,
		timeline:      tl,
		audit:         pub,
		sessions:      sessions,
		opts:          opts,
		conversations: make(map[string]*Conversation),
	}
}

// Run consumes inbound messages until the context is cancelled. Each message
// is handled on its own goroutine so a turn blocked on approval never stalls
// the decision message that resolves it.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		msg, err := o.bus.ConsumeInbound(ctx)
		if err != nil {
			return err
		}
		go o.HandleInbound(ctx, msg)
	}
}

// HandleInbound routes one inbound message: approval reply tokens go to the
// gate, everything else starts a turn.
func (o *Orchestrator) HandleInbound(ctx context.Context, in *bus.InboundMessage) {
	if id, approved, ok := approval.ParseDecisionToken(in.Content); ok {
		if err := o.gate.Respond(id, approved); err != nil {
			o.reply(in, bus.KindError, fmt.Sprintf("No pending approval %s. It may have expired.", id))
		}
		return
	}
	// A bare yes/no resolves the prompt when only one batch is pending.
	if approved, ok := approval.ParseBareDecision(in.Content); ok {
		if id, sole := o.gate.SolePending(); sole {
			_ = o.gate.Respond(id, approved)
			return
		}
	}
	o.RunTurn(ctx, in)
}

// Conversation returns the state for an ID, creating it on first use.
func (o *Orchestrator) Conversation(id string) *Conversation {
	o.mu.Lock()
	defer o.mu.Unlock()
	conv, ok := o.conversations[id]
	if !ok {
		conv = &Conversation{ID: id, LastActive: time.Now()}
		if o.opts.History != nil {
			for _, m := range o.opts.History.GetOrCreate(id).Recent(historyReplayLimit) {
				conv.Messages = append(conv.Messages, provider.Message{Role: m.Role, Content: m.Content})
			}
		}
		o.conversations[id] = conv
	}
	return conv
}

// EndConversation drops a conversation's state, including any persisted
// history. Idle expiry keeps history so a returning user resumes where they
// left off; an explicit end does not.
func (o *Orchestrator) EndConversation(id string) {
	o.mu.Lock()
	delete(o.conversations, id)
	o.mu.Unlock()
	if o.opts.History != nil {
		o.opts.History.Delete(id)
	}
}

// ExpireIdle drops conversations that have been inactive for longer than
// maxIdle. Conversations with a turn in flight hold their own lock and are
// skipped. Returns the number dropped.
func (o *Orchestrator) ExpireIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	o.mu.Lock()
	defer o.mu.Unlock()

	dropped := 0
	for id, conv := range o.conversations {
		if !conv.mu.TryLock() {
			continue
		}
		idle := conv.LastActive.Before(cutoff)
		conv.mu.Unlock()
		if idle {
			delete(o.conversations, id)
			dropped++
		}
	}
	return dropped
}

// StartSweeper expires idle conversations until the context is cancelled.
// This should be run as a goroutine.
func (o *Orchestrator) StartSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	if interval <= 0 || maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := o.ExpireIdle(maxIdle); n > 0 {
				slog.Debug("expired idle conversations", "count", n)
			}
		}
	}
}

// SetCredentials attaches controller credentials to a conversation, for
// channels that authenticate out of band.
func (o *Orchestrator) SetCredentials(conversationID string, creds controller.Credentials) {
	conv := o.Conversation(conversationID)
	conv.mu.Lock()
	conv.Creds = creds
	conv.mu.Unlock()
}

// historyReplayLimit bounds how many persisted messages seed a restored
// conversation.
const historyReplayLimit = 40

// turn carries the mutable context of one RunTurn invocation.
type turn struct {
	id          string
	traceID     string
	in          *bus.InboundMessage
	conv        *Conversation
	state       State
	transitions int
}

// step advances the state machine, enforcing the edge table and the
// transition ceiling. Returns false when the ceiling is hit, in which case
// the state is forced to StateIterationLimit.
func (o *Orchestrator) step(t *turn, to State) bool {
	if !canTransition(t.state, to) {
		slog.Error("illegal state transition", "from", t.state, "to", to, "trace_id", t.traceID)
		t.state = StateFailed
		return false
	}
	t.transitions++
	if t.transitions > o.opts.MaxTransitions && !to.Terminal() {
		t.state = StateIterationLimit
		return false
	}
	t.state = to
	return true
}

// RunTurn drives one full turn for an inbound user message. It returns when
// the turn reaches a terminal state; the conversation stays open afterwards
// unless the session itself expired.
func (o *Orchestrator) RunTurn(ctx context.Context, in *bus.InboundMessage) {
	conv := o.Conversation(in.ConversationID)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	conv.LastActive = time.Now()

	t := &turn{
		id:      uuid.NewString()[:8],
		traceID: in.TraceID,
		in:      in,
		conv:    conv,
		state:   StateSummarize,
	}
	if t.traceID == "" {
		t.traceID = uuid.NewString()
	}
	ctx = executor.WithTrace(ctx, t.traceID)

	if !o.resolveCredentials(t) {
		return
	}

	if o.timeline != nil {
		_ = o.timeline.CreateTurn(t.id, t.traceID, conv.ID, in.Channel, in.Content)
	}
	o.audit.Publish(ctx, audit.EventTurnStarted, t.traceID, in.Content)
	slog.Info("turn started", "turn_id", t.id, "trace_id", t.traceID, "conversation_id", conv.ID)

	// SUMMARIZE: fold the raw input into the conversation as a framed
	// user message. No model call is needed for this step.
	conv.Inputs = append(conv.Inputs, in.Content)
	conv.Messages = append(conv.Messages, provider.Message{
		Role:    "user",
		Content: prompts.Summarize(in.Content),
	})
	conv.Iteration = 0

	// runPlan always leaves the turn either back at StatePlan (another
	// loop pass) or in a terminal state.
	o.step(t, StatePlan)
	for t.state == StatePlan {
		o.runPlan(ctx, t)
	}
	o.finish(ctx, t)
}

// resolveCredentials verifies the inbound session token, if any. A missing
// token falls back to credentials previously attached to the conversation.
func (o *Orchestrator) resolveCredentials(t *turn) bool {
	if o.sessions != nil && t.in.SessionToken != "" {
		creds, err := o.sessions.Verify(t.in.SessionToken)
		if err != nil {
			o.reply(t.in, bus.KindError, "Your session is no longer valid. Please log in again.")
			slog.Warn("session verification failed", "trace_id", t.traceID, "error", err)
			return false
		}
		t.conv.Creds = creds
		return true
	}
	if t.conv.Creds == (controller.Credentials{}) {
		t.conv.Creds = o.opts.DefaultCredentials
	}
	return true
}

// runPlan executes one PLAN → EXTRACT → CLASSIFY pass and the branch it
// selects. It drives t.state to the next loop entry or to a terminal state.
func (o *Orchestrator) runPlan(ctx context.Context, t *turn) {
	resp, err := o.plan(ctx, t)
	if err != nil {
		slog.Error("planner failed", "trace_id", t.traceID, "error", err)
		o.reply(t.in, bus.KindError, "The planning model is unavailable right now. Your conversation is intact; please try again.")
		t.state = StateFailed
		return
	}
	assistant := resp.Content
	t.conv.Messages = append(t.conv.Messages, provider.Message{Role: "assistant", Content: assistant})

	if !o.step(t, StateExtract) {
		return
	}
	calls, extractErrs := o.extractor.Extract(assistant)
	for _, e := range extractErrs {
		if errors.Is(e, extract.ErrNoSegment) {
			continue
		}
		slog.Warn("tool call rejected", "trace_id", t.traceID, "error", e)
		if o.timeline != nil {
			_ = o.timeline.AddEvent(t.traceID, "extract_error", "tool call rejected", e.Error())
		}
	}

	if !o.step(t, StateClassify) {
		return
	}
	execute := false
	if len(calls) > 0 {
		execute, err = o.classifier.ShouldExecute(ctx, assistant, o.registry.Names())
		if err != nil {
			// Bias toward not executing: an unreachable reasoner
			// means the user gets asked again, never surprised.
			slog.Warn("classifier unavailable, defaulting to no execution", "trace_id", t.traceID, "error", err)
			execute = false
		}
	}

	if !execute || len(calls) == 0 {
		o.reply(t.in, bus.KindText, assistant)
		o.step(t, StateEnd)
		return
	}

	if !o.step(t, StateAwaitApproval) {
		return
	}
	o.runApproval(ctx, t, calls)
}

// plan asks the planning model for a continuation of the conversation.
func (o *Orchestrator) plan(ctx context.Context, t *turn) (*provider.ChatResponse, error) {
	msgs := make([]provider.Message, 0, len(t.conv.Messages)+1)
	msgs = append(msgs, provider.Message{Role: "system", Content: prompts.Planner(o.registry.Describe())})
	msgs = append(msgs, t.conv.Messages...)
	return o.planner.Chat(ctx, &provider.ChatRequest{Messages: msgs})
}

// runApproval presents the batch, waits for a decision, and on approve runs
// the EXECUTE and FEEDBACK states.
func (o *Orchestrator) runApproval(ctx context.Context, t *turn, calls []extract.ToolCall) {
	req := approval.NewRequest(t.traceID, t.id, t.conv.ID, t.in.SenderID, t.in.Channel, calls)
	id := o.gate.Create(req)
	o.reply(t.in, bus.KindApprovalPrompt, approval.Render(req))
	o.audit.Publish(ctx, audit.EventApprovalAsked, t.traceID, fmt.Sprintf("approval %s: %d call(s)", id, len(calls)))

	waitCtx, cancel := context.WithTimeout(ctx, o.opts.ApprovalTimeout)
	decision, err := o.gate.Wait(waitCtx, id)
	cancel()
	if err != nil {
		slog.Error("approval wait failed", "trace_id", t.traceID, "error", err)
		t.state = StateFailed
		return
	}
	o.audit.Publish(ctx, audit.EventApprovalResult, t.traceID, fmt.Sprintf("approval %s: %s", id, decision))

	switch decision {
	case approval.Approved:
		if !o.step(t, StateExecute) {
			return
		}
		o.runExecute(ctx, t, calls)
	case approval.TimedOut:
		o.reply(t.in, bus.KindText, "No decision arrived in time, so nothing was executed. Send your request again when ready.")
		o.step(t, StateCancelled)
	default:
		o.reply(t.in, bus.KindText, "Understood, nothing was executed. What would you like to do instead?")
		o.step(t, StateCancelled)
	}
}

// runExecute runs every approved call independently and folds the results
// back into the conversation (FEEDBACK). Sibling failures do not abort the
// rest of the batch.
func (o *Orchestrator) runExecute(ctx context.Context, t *turn, calls []extract.ToolCall) {
	results := make([]executor.JobResult, 0, len(calls))
	for _, call := range calls {
		schema, ok := o.registry.Get(call.Name)
		if !ok {
			// The extractor only emits registered tools, so this is
			// a programming error, not user input.
			slog.Error("approved call references unknown tool", "tool", call.Name, "trace_id", t.traceID)
			continue
		}
		result := o.exec.Execute(ctx, call, schema, t.conv.Creds)
		results = append(results, result)
		// Job output can echo credentials a playbook touched; mask it
		// before it reaches the channel.
		o.reply(t.in, bus.KindToolResult, redact.Redact(result.Render()))
		o.audit.Publish(ctx, audit.EventJobFinished, t.traceID,
			fmt.Sprintf("tool %s job %d: %s", result.Tool, result.JobID, result.Status))
	}

	if !o.step(t, StateFeedback) {
		return
	}
	for _, r := range results {
		t.conv.Messages = append(t.conv.Messages, provider.Message{Role: "tool", Content: r.Render()})
	}
	t.conv.Iteration++
	if t.conv.Iteration >= o.opts.MaxIterations {
		o.step(t, StateIterationLimit)
		return
	}
	o.step(t, StatePlan)
}

// finish records the terminal state and emits any closing user-visible text.
func (o *Orchestrator) finish(ctx context.Context, t *turn) {
	status := timeline.TurnStatusEnded
	switch t.state {
	case StateFailed:
		status = timeline.TurnStatusFailed
	case StateCancelled:
		status = timeline.TurnStatusCancelled
	case StateIterationLimit:
		status = timeline.TurnStatusIterationLimit
		o.reply(t.in, bus.KindText, fmt.Sprintf(
			"Stopping after %d execution rounds this turn. Work so far is recorded above; send a new message to continue.", t.conv.Iteration))
	}

	if o.timeline != nil {
		_ = o.timeline.CompleteTurn(t.id, status, t.conv.Iteration, lastAssistant(t.conv.Messages), "")
	}
	if o.opts.History != nil {
		h := o.opts.History.GetOrCreate(t.conv.ID)
		h.AddMessage("user", t.in.Content)
		if last := lastAssistant(t.conv.Messages); last != "" {
			h.AddMessage("assistant", last)
		}
		if err := o.opts.History.Save(h); err != nil {
			slog.Warn("history save failed", "conversation_id", t.conv.ID, "error", err)
		}
	}
	o.audit.Publish(ctx, audit.EventTurnFinished, t.traceID, status)
	slog.Info("turn finished", "turn_id", t.id, "trace_id", t.traceID, "state", t.state.String(), "iterations", t.conv.Iteration)
}

// reply publishes an outbound message addressed to the turn's channel.
func (o *Orchestrator) reply(in *bus.InboundMessage, kind, content string) {
	o.bus.PublishOutbound(&bus.OutboundMessage{
		Channel:        in.Channel,
		ConversationID: in.ConversationID,
		TraceID:        in.TraceID,
		Kind:           kind,
		Content:        content,
	})
}

func lastAssistant(msgs []provider.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "assistant" {
			return msgs[i].Content
		}
	}
	return ""
}
