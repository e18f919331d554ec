package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ansibot/ansibot/internal/approval"
	"github.com/ansibot/ansibot/internal/audit"
	"github.com/ansibot/ansibot/internal/bus"
	"github.com/ansibot/ansibot/internal/classify"
	"github.com/ansibot/ansibot/internal/config"
	"github.com/ansibot/ansibot/internal/controller"
	"github.com/ansibot/ansibot/internal/executor"
	"github.com/ansibot/ansibot/internal/extract"
	"github.com/ansibot/ansibot/internal/orchestrator"
	"github.com/ansibot/ansibot/internal/provider"
	"github.com/ansibot/ansibot/internal/provider/middleware"
	"github.com/ansibot/ansibot/internal/session"
	"github.com/ansibot/ansibot/internal/timeline"
	"github.com/ansibot/ansibot/internal/tools"
)

// runtime is the assembled component graph shared by chat and serve.
type runtime struct {
	cfg      *config.Config
	bus      *bus.MessageBus
	orch     *orchestrator.Orchestrator
	timeline *timeline.TimelineService
	sessions *session.Store
	client   *controller.Client
	audit    *audit.Publisher
}

// newRuntime wires every component from config. The timeline database lives
// under the configured data dir.
func newRuntime(cfg *config.Config) (*runtime, error) {
	if err := config.EnsureDir(cfg.Paths.DataDir); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	tl, err := timeline.NewTimelineService(filepath.Join(cfg.Paths.DataDir, "timeline.db"))
	if err != nil {
		return nil, fmt.Errorf("open timeline: %w", err)
	}

	registry := tools.Builtin()
	mb := bus.NewMessageBus()

	planner := middleware.NewChain(provider.NewOpenAIProvider(
		cfg.Planner.APIKey, cfg.Planner.APIBase, cfg.Planner.Model))
	planner.Use(middleware.NewOutputSanitizer(0))

	reasoner := provider.NewOpenAIProvider(
		cfg.Reasoner.APIKey, cfg.Reasoner.APIBase, cfg.Reasoner.Model)

	client := controller.NewClient(cfg.Controller.BaseURL, cfg.Controller.RequestTimeout, cfg.Controller.InsecureSkipVerify)
	exec := executor.New(client, tl, cfg.Agent.JobPollInterval, cfg.Agent.JobPollTimeout)
	gate := approval.NewManager(tl)
	sessions := session.NewStore(cfg.Session.Expiry)

	var pub *audit.Publisher
	if cfg.Audit.Enabled {
		pub = audit.NewPublisher(cfg.Audit.Brokers, cfg.Audit.Topic)
	}

	var defaultCreds controller.Credentials
	if token, ok := tl.GetSetting("controller.token"); ok && token != "" {
		defaultCreds = controller.TokenCredentials(token)
	}

	approvalTimeout := cfg.Agent.ApprovalTimeout
	if raw, ok := tl.GetSetting("approval.timeout"); ok {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			approvalTimeout = d
		}
	}

	orch := orchestrator.New(
		planner,
		classify.New(reasoner, cfg.Reasoner.Model),
		extract.New(registry),
		registry,
		gate,
		exec,
		mb,
		tl,
		pub,
		sessions,
		orchestrator.Options{
			MaxIterations:      cfg.Agent.MaxIterations,
			MaxTransitions:     cfg.Agent.RecursionLimit,
			ApprovalTimeout:    approvalTimeout,
			DefaultCredentials: defaultCreds,
			History:            session.NewManager(filepath.Join(cfg.Paths.DataDir, "sessions")),
		},
	)

	return &runtime{
		cfg:      cfg,
		bus:      mb,
		orch:     orch,
		timeline: tl,
		sessions: sessions,
		client:   client,
		audit:    pub,
	}, nil
}

func (r *runtime) close() {
	if r.audit != nil {
		_ = r.audit.Close()
	}
	if r.timeline != nil {
		_ = r.timeline.Close()
	}
}

// storedCredentials returns controller credentials persisted by `ansibot
// login`, if any.
func (r *runtime) storedCredentials() (controller.Credentials, bool) {
	token, ok := r.timeline.GetSetting("controller.token")
	if !ok || token == "" {
		return controller.Credentials{}, false
	}
	return controller.TokenCredentials(token), true
}

const sessionSweepFloor = time.Minute

func (r *runtime) sweepInterval() time.Duration {
	if r.cfg.Session.SweepInterval < sessionSweepFloor {
		return sessionSweepFloor
	}
	return r.cfg.Session.SweepInterval
}
