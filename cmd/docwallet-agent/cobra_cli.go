// docwallet-agent — document-driven treasury agent
// License: MIT

package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/docwallet-hq/agent/pkg/advisor"
	"github.com/docwallet-hq/agent/pkg/approval"
	"github.com/docwallet-hq/agent/pkg/audit"
	"github.com/docwallet-hq/agent/pkg/bus"
	"github.com/docwallet-hq/agent/pkg/command"
	"github.com/docwallet-hq/agent/pkg/config"
	"github.com/docwallet-hq/agent/pkg/dispatcher"
	"github.com/docwallet-hq/agent/pkg/docadapter"
	"github.com/docwallet-hq/agent/pkg/engine"
	"github.com/docwallet-hq/agent/pkg/health"
	"github.com/docwallet-hq/agent/pkg/model"
	"github.com/docwallet-hq/agent/pkg/notify"
	"github.com/docwallet-hq/agent/pkg/observability"
	"github.com/docwallet-hq/agent/pkg/ports"
	"github.com/docwallet-hq/agent/pkg/rbac"
	"github.com/docwallet-hq/agent/pkg/repository"
	"github.com/docwallet-hq/agent/pkg/resilience"
	"github.com/docwallet-hq/agent/pkg/scheduler"
	"github.com/docwallet-hq/agent/pkg/tui"
	"github.com/docwallet-hq/agent/pkg/vault"
)

var flagDebug bool

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagDebug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "docwallet-agent",
		Short:         "docwallet-agent — document-driven treasury agent",
		Long:          "docwallet-agent polls cells of a shared document, parses treasury commands, obtains approval, and executes them against wired blockchain and payment integrations, writing results back into the same document.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newStatusCmd(),
		newApproveCmd(),
		newTUICmd(),
		newConsoleCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion()
		},
	}
}

// resolveMasterKey loads the vault master key, either from
// DOCWALLET_MASTER_KEY (base64, for containerized deployments) or from
// the on-disk key file at cfg.MasterKeyPath (created on first run).
func resolveMasterKey(cfg *config.Config) ([]byte, error) {
	if env := os.Getenv("DOCWALLET_MASTER_KEY"); env != "" {
		key, err := base64.StdEncoding.DecodeString(env)
		if err != nil {
			return nil, fmt.Errorf("decode DOCWALLET_MASTER_KEY: %w", err)
		}
		return key, nil
	}
	return vault.LoadOrCreateMasterKey(cfg.MasterKeyPath)
}

// stack bundles every long-lived component a running agent process
// needs; serve builds it with buildStack.
type stack struct {
	logger    *slog.Logger
	cfg       *config.Config
	repo      repository.Repository
	adapter   docadapter.Adapter
	v         *vault.Vault
	auditLog  *audit.Logger
	metrics   *observability.AgentMetrics
	enforcer  *rbac.Enforcer
	guard     *rbac.CommandGuard
	engineCtx *engine.Context
	disp      *dispatcher.Dispatcher
	fanout    *notify.Fanout
}

func buildStack(logger *slog.Logger, cfg *config.Config) (*stack, error) {
	repo, err := repository.New(cfg.RepositoryConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	masterKey, err := resolveMasterKey(cfg)
	if err != nil {
		return nil, fmt.Errorf("load master key: %w", err)
	}
	v, err := vault.New(masterKey)
	if err != nil {
		return nil, fmt.Errorf("init vault: %w", err)
	}

	auditLog := audit.NewLogger(audit.NewFileStore(cfg.DataDir), "docwallet-agent")
	metrics := observability.NewAgentMetrics()

	adv, err := advisor.New(cfg.AdvisorBackend, cfg.AnthropicAPIKey, cfg.OpenAIAPIKey, cfg.CopilotAPIKey)
	if err != nil {
		logger.Warn("advisor: falling back to no-op advisor", "error", err)
		adv = advisor.NoopAdvisor{}
	}

	disp := dispatcher.New(logger, auditLog, ports.NewBreakerSet(), resilience.NewRateLimiterRegistry(20, 5))

	b := bus.NewMessageBus()
	fanout := notify.NewFanout(logger, cfg.NotifyConfig())
	go fanout.Run(context.Background(), b)

	adapter := docadapter.NewTemplateAdapter()

	enforcer := rbac.NewEnforcer(nil)
	guard := rbac.NewCommandGuard(enforcer, !cfg.DemoMode)

	ec := engine.New(logger, repo, adapter, v, disp, b, adv, auditLog, metrics)
	ec.ExecutorBudget = cfg.ExecutorBudget

	return &stack{
		logger:    logger,
		cfg:       cfg,
		repo:      repo,
		adapter:   adapter,
		v:         v,
		auditLog:  auditLog,
		metrics:   metrics,
		enforcer:  enforcer,
		guard:     guard,
		engineCtx: ec,
		disp:      disp,
		fanout:    fanout,
	}, nil
}

func registerDocument(ctx context.Context, ec *engine.Context, repo repository.Repository, adapter docadapter.Adapter, externalDocID string, demoMode bool) (*model.Document, error) {
	tmpl, ok := adapter.(*docadapter.TemplateAdapter)
	if ok {
		tmpl.Seed(externalDocID, engine.TableCommands, nil)
	}

	doc := &model.Document{ID: model.DocumentID(externalDocID), ExternalDocID: externalDocID}
	if err := repo.UpsertDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("track document: %w", err)
	}
	if err := repo.PutConfig(ctx, &model.DocConfig{DocumentID: doc.ID, DemoMode: demoMode}); err != nil {
		return nil, fmt.Errorf("init document config: %w", err)
	}
	if demoMode {
		ec.SetRegistry(doc.ID, engine.DemoRegistry())
	}
	return doc, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent's tick scheduler and HTTP surfaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			st, err := buildStack(logger, cfg)
			if err != nil {
				return err
			}
			defer st.repo.Close()
			defer st.fanout.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if docID := os.Getenv("DOCWALLET_DOC_ID"); docID != "" {
				if _, err := registerDocument(ctx, st.engineCtx, st.repo, st.adapter, docID, cfg.DemoMode); err != nil {
					return err
				}
			}

			approvalSrv := approval.New(logger, st.repo, st.adapter, st.guard, os.Getenv("PUBLIC_BASE_URL"))
			if err := approvalSrv.Start(cfg.ApprovalAddr); err != nil {
				return fmt.Errorf("start approval server: %w", err)
			}
			defer approvalSrv.Stop(context.Background())

			healthSrv := healthServerFor(cfg)
			if err := healthSrv.Start(); err != nil {
				return fmt.Errorf("start health server: %w", err)
			}
			healthSrv.SetReady(true)
			defer healthSrv.Stop(context.Background())

			sched := scheduler.New(logger)
			registerTicks(sched, st.engineCtx, cfg, approvalSrv)

			logger.Info("docwallet-agent: serving", "approval_addr", cfg.ApprovalAddr, "health_addr", cfg.HealthAddr, "demo_mode", cfg.DemoMode)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				logger.Info("docwallet-agent: shutdown signal received")
				cancel()
			}()

			return sched.Run(ctx, 30*time.Second)
		},
	}
}

func healthServerFor(cfg *config.Config) *health.Server {
	host, port := splitAddr(cfg.HealthAddr)
	return health.NewServer(host, port)
}

func splitAddr(addr string) (string, int) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, 8080
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil {
		port = 8080
	}
	return addr[:idx], port
}

// registerTicks wires the Nine Ticks onto sched using cfg's configured
// intervals, wrapping each with the engine's generic tick metrics and a
// notification to the approval server's /ws/status feed.
func registerTicks(sched *scheduler.Scheduler, ec *engine.Context, cfg *config.Config, approvalSrv *approval.Server) {
	register := func(name string, interval time.Duration, fn scheduler.TickFunc) {
		instrumented := ec.Instrument(fn)
		sched.Register(name, interval, func(ctx context.Context) error {
			err := instrumented(ctx)
			approvalSrv.NotifyTick(name)
			return err
		})
	}

	register("discovery", cfg.DiscoveryInterval, ec.DiscoveryTick)
	register("poll", cfg.PollInterval, ec.PollTick)
	register("executor", cfg.ExecutorInterval, ec.ExecutorTick)
	register("chat", cfg.ChatInterval, ec.ChatTick)
	register("balances", cfg.BalancesInterval, ec.BalancesTick)
	register("schedule", cfg.SchedulerInterval, ec.ScheduleTick)
	register("price", cfg.PriceInterval, ec.PriceTick)
	register("agent_decision", cfg.AdvisorInterval, ec.AgentDecisionTick)
	register("payout", cfg.PayoutInterval, ec.PayoutRulesTick)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Open (and initialize, if new) the configured durable store",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			repo, err := repository.New(cfg.RepositoryConfig(), logger)
			if err != nil {
				return fmt.Errorf("open repository: %w", err)
			}
			defer repo.Close()
			fmt.Printf("repository initialized (backend=%s)\n", cfg.Backend)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tracked documents and command counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			repo, err := repository.New(cfg.RepositoryConfig(), logger)
			if err != nil {
				return fmt.Errorf("open repository: %w", err)
			}
			defer repo.Close()

			ctx := context.Background()
			docs, err := repo.ListDocuments(ctx)
			if err != nil {
				return fmt.Errorf("list documents: %w", err)
			}
			fmt.Printf("%-24s %-24s %-10s\n", "DOCUMENT", "EXTERNAL ID", "ARCHIVED")
			for _, d := range docs {
				fmt.Printf("%-24s %-24s %-10v\n", d.ID, d.ExternalDocID, d.Archived)
			}

			for _, status := range []model.CommandStatus{
				model.StatusDraft, model.StatusInvalid, model.StatusPending, model.StatusApproved,
				model.StatusExecuting, model.StatusDone, model.StatusFailed,
				model.StatusRejected, model.StatusExpired,
			} {
				cmds, err := repo.ListCommandsByStatus(ctx, status)
				if err != nil {
					return fmt.Errorf("count %s commands: %w", status, err)
				}
				fmt.Printf("%-12s %d\n", status, len(cmds))
			}
			return nil
		},
	}
}

func newApproveCmd() *cobra.Command {
	var reject bool
	cmd := &cobra.Command{
		Use:   "approve <document-id> <command-id>",
		Short: "Approve or reject a pending command directly against the durable store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			repo, err := repository.New(cfg.RepositoryConfig(), logger)
			if err != nil {
				return fmt.Errorf("open repository: %w", err)
			}
			defer repo.Close()

			to := model.StatusApproved
			if reject {
				to = model.StatusRejected
			}
			ctx := context.Background()
			if err := repo.SetCommandStatus(ctx, model.CommandID(args[1]), to, repository.CommandStatusFields{ApprovedBy: "cli"}); err != nil {
				return fmt.Errorf("set command status: %w", err)
			}
			fmt.Printf("command %s -> %s\n", args[1], to)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reject, "reject", false, "reject instead of approve")
	return cmd
}

func newTUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui <document-id>",
		Short: "Open the live document dashboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			repo, err := repository.New(cfg.RepositoryConfig(), logger)
			if err != nil {
				return fmt.Errorf("open repository: %w", err)
			}
			defer repo.Close()
			return tui.RunDocDashboard(repo, model.DocumentID(args[0]))
		},
	}
}

// newConsoleCmd starts an offline REPL for trying command-grammar lines
// against the parser before pasting them into a real document, prompting
// for the vault master key with echo disabled if it isn't already set.
func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactively parse command lines offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if os.Getenv("DOCWALLET_MASTER_KEY") == "" {
				fmt.Print("master key (leave blank to use the on-disk key file): ")
				keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Println()
				if err != nil {
					return fmt.Errorf("read master key: %w", err)
				}
				if len(keyBytes) > 0 {
					os.Setenv("DOCWALLET_MASTER_KEY", string(keyBytes))
				}
			}

			rl, err := readline.New("docwallet> ")
			if err != nil {
				return fmt.Errorf("start console: %w", err)
			}
			defer rl.Close()

			for {
				line, err := rl.Readline()
				if err != nil { // io.EOF or readline.ErrInterrupt
					return nil
				}
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					return nil
				}

				kind, parsedArgs, ok, err := command.ParseText(line)
				if err != nil {
					fmt.Printf("invalid command: %v\n", err)
					continue
				}
				if !ok {
					fmt.Println("not recognized as a command")
					continue
				}
				fmt.Printf("kind=%s args=%+v\n", kind, parsedArgs)
			}
		},
	}
}

