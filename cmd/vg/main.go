package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vigilops/vigil/internal/audit"
	"github.com/vigilops/vigil/internal/config"
	"github.com/vigilops/vigil/internal/configfile"
	"github.com/vigilops/vigil/internal/debug"
	"github.com/vigilops/vigil/internal/eventbus"
	"github.com/vigilops/vigil/internal/logging"
	"github.com/vigilops/vigil/internal/rules"
	"github.com/vigilops/vigil/internal/service"
	"github.com/vigilops/vigil/internal/sop"
	"github.com/vigilops/vigil/internal/storage"
	"github.com/vigilops/vigil/internal/storage/factory"
	"github.com/vigilops/vigil/internal/telemetry"
	"github.com/vigilops/vigil/internal/types"
)

var (
	actorFlag   string
	roleFlag    string
	jsonOutput  bool
	quietFlag   bool
	verboseFlag bool

	vigilDir string
	cfg      *configfile.Config
	store    storage.Storage
	svc      *service.Service
	auditLog *audit.Log
	logger   *zap.Logger

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

// noEngineCommands lists command (and command group) names that run without
// opening the store or wiring the service. Everything else gets a full
// engine in PersistentPreRun.
var noEngineCommands = []string{
	"init",
	"config",
	"rules",
	"audit",
	"version",
	"help",
	"completion",
}

func isNoEngineCommand(cmd *cobra.Command) bool {
	if cmd.Parent() != nil && slices.Contains(noEngineCommands, cmd.Parent().Name()) {
		return true
	}
	if slices.Contains(noEngineCommands, cmd.Name()) {
		return true
	}
	// Root command with no subcommand just shows help.
	if cmd.Parent() == nil {
		return true
	}
	return false
}

// resolveActor returns the actor identity for audit trails.
// Priority: --actor flag > VIGIL_ACTOR env / config.yaml > git config
// user.name > $USER > "unknown". The git identity is the natural default
// for operators working out of a checkout.
func resolveActor() string {
	if actorFlag != "" {
		return actorFlag
	}
	if v := config.GetString("actor"); v != "" {
		return v
	}
	if out, err := exec.Command("git", "config", "user.name").Output(); err == nil {
		if gitUser := strings.TrimSpace(string(out)); gitUser != "" {
			return gitUser
		}
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

// resolveRole maps the configured role name to a types.Role, rejecting
// unknown values before any engine call sees them.
func resolveRole() types.Role {
	raw := config.GetString("role")
	if roleFlag != "" {
		raw = roleFlag
	}
	role := types.Role(raw)
	if !role.IsValid() {
		FatalErrorWithHint(fmt.Sprintf("invalid role %q", raw), "valid roles: officer, supervisor, admin")
	}
	if role == types.RoleSystem {
		FatalErrorWithHint("role 'system' is reserved for internal workers", "valid roles: officer, supervisor, admin")
	}
	return role
}

// actorContext builds the ActorContext attached to every mutating call.
func actorContext(reason string) types.ActorContext {
	name := resolveActor()
	return types.ActorContext{
		ID:     name,
		Name:   name,
		Role:   resolveRole(),
		Reason: reason,
	}
}

// findVigilDir resolves the data directory: $VIGIL_DIR wins, then the
// nearest .vigil directory walking up from the working directory, then
// ./.vigil as the place a fresh init would create one.
func findVigilDir() string {
	if dir := os.Getenv("VIGIL_DIR"); dir != "" {
		return dir
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ".vigil"
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, ".vigil")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		if dir == filepath.Dir(dir) {
			break
		}
	}
	return filepath.Join(cwd, ".vigil")
}

// applyFlagOverrides pushes explicitly set persistent flags into the config
// layer so every config read sees flag > env > config.yaml > default, and
// pulls config values into the globals when the flag was left unset.
func applyFlagOverrides(cmd *cobra.Command) {
	if cmd.Flags().Changed("actor") {
		config.Set("actor", actorFlag)
	}
	if cmd.Flags().Changed("role") {
		config.Set("role", roleFlag)
	}
	if cmd.Flags().Changed("json") {
		config.Set("json", jsonOutput)
	} else {
		jsonOutput = config.GetBool("json")
	}
	if cmd.Flags().Changed("quiet") {
		config.Set("quiet", quietFlag)
	} else {
		quietFlag = config.GetBool("quiet")
	}
}

// loadProjectConfig reads .vigil/config.json, falling back to the in-memory
// defaults when the project was never initialized.
func loadProjectConfig() {
	loaded, err := configfile.Load(vigilDir)
	if err != nil {
		FatalError("%v", err)
	}
	if loaded == nil {
		loaded = configfile.DefaultConfig()
	}
	cfg = loaded
}

// effectiveRulesPath resolves the rules file: config.yaml / VIGIL_RULES_FILE
// override first, then the project config, empty for compiled-in defaults.
func effectiveRulesPath() string {
	if p := config.GetString("rules-file"); p != "" {
		return p
	}
	return cfg.RulesPath(vigilDir)
}

func loadRuleSet() *rules.RuleSet {
	path := effectiveRulesPath()
	if path == "" {
		return rules.Default()
	}
	rs, err := rules.LoadFile(path)
	if err != nil {
		FatalErrorWithHint(fmt.Sprintf("loading rules from %s: %v", path, err),
			"run 'vg rules check' to see every validation error")
	}
	return rs
}

// openEngine wires storage, audit, the event bus, SOPs, and rules into a
// service. Fatal on any failure: commands past this point assume a live
// engine.
func openEngine() {
	backend := cfg.GetBackend()
	if b := config.GetString("backend"); b != "" {
		backend = b
	}
	dsn := cfg.DSN
	if d := config.GetString("dsn"); d != "" {
		dsn = d
	}

	st, err := factory.Open(rootCtx, backend, dsn)
	if err != nil {
		FatalErrorWithHint(fmt.Sprintf("opening %s storage: %v", backend, err),
			"check backend and dsn in .vigil/config.json ('vg init' creates one)")
	}
	if telemetry.Enabled() {
		if err := telemetry.Init(rootCtx, "vigil", Version); err != nil {
			WarnError("telemetry init failed: %v", err)
		}
		st = telemetry.WrapStorage(st)
	}
	store = st

	auditLog = audit.New(audit.DefaultPath(vigilDir))

	bus := eventbus.New(logger)
	bus.Register(eventbus.NewLogHandler(logger))
	bus.Register(eventbus.NewFileHandler(filepath.Join(vigilDir, eventbus.EventsFileName)))

	svc, err = service.New(service.Options{
		Storage:         store,
		Rules:           loadRuleSet(),
		Audit:           auditLog,
		Bus:             bus,
		SOPs:            sop.NewLibrary(filepath.Join(vigilDir, "sops")),
		DecisionTimeout: config.GetDuration("decision-timeout"),
		Logger:          logger,
	})
	if err != nil {
		FatalError("%v", err)
	}
	if err := svc.RegisterBuiltins(); err != nil {
		FatalError("registering handlers: %v", err)
	}
}

func init() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Actor name for the audit trail (default: $VIGIL_ACTOR, git user.name, $USER)")
	rootCmd.PersistentFlags().StringVar(&roleFlag, "role", "", "Actor role: officer, supervisor, admin (default: $VIGIL_ROLE or officer)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

var rootCmd = &cobra.Command{
	Use:   "vg",
	Short: "vg - Incident escalation and case management",
	Long: `Vigil tracks field activities, escalates them into incidents, routes
incidents through the handler orchestrator, and manages formal cases with
evidence custody and gated closure. Every mutation is audited.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("vg version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		debug.SetVerbose(verboseFlag)
		debug.SetQuiet(quietFlag)
		applyFlagOverrides(cmd)

		vigilDir = findVigilDir()

		level := config.GetLogLevel()
		if verboseFlag {
			level = "debug"
		}
		logger = logging.New(logging.Config{
			Level: level,
			File:  config.GetString("log-file"),
		})

		if isNoEngineCommand(cmd) {
			return
		}
		loadProjectConfig()
		openEngine()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			if err := store.Close(); err != nil {
				WarnError("closing storage: %v", err)
			}
		}
		if telemetry.Enabled() {
			telemetry.Shutdown(rootCtx)
		}
		logging.Sync(logger)
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
