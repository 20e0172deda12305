package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AbdrAbdr/swarm-mcp/internal/arbiter"
	"github.com/AbdrAbdr/swarm-mcp/internal/election"
	"github.com/AbdrAbdr/swarm-mcp/internal/eventlog"
	"github.com/AbdrAbdr/swarm-mcp/internal/health"
	"github.com/AbdrAbdr/swarm-mcp/internal/identity"
	"github.com/AbdrAbdr/swarm-mcp/internal/models"
	"github.com/AbdrAbdr/swarm-mcp/internal/output"
	"github.com/AbdrAbdr/swarm-mcp/internal/preempt"
	"github.com/AbdrAbdr/swarm-mcp/internal/pulse"
	"github.com/AbdrAbdr/swarm-mcp/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "swarm",
	Short: "Swarm coordination for concurrent editing agents",
	Long: `swarm coordinates many independent editing agents working on one
shared codebase: orchestrator election, liveness pulses, file
reservations, task auctions, and urgent preemption. All state lives
in a shared store; there is no lock server.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/swarm/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "swarm")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SWARM")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "swarm")

	viper.SetDefault("state_dir", defaultConfigDir)
	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "swarm.db"))
	viper.SetDefault("liveness.threshold_minutes", 30)
	viper.SetDefault("liveness.stale_window_minutes", 15)
	viper.SetDefault("election.timeout_seconds", 60)
	viper.SetDefault("arbiter.url", "")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Store is initialized lazily so config/version commands run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// Configured policy windows, read from viper each call so flags and env
// overrides are honored.
func livenessThreshold() time.Duration {
	return time.Duration(viper.GetInt("liveness.threshold_minutes")) * time.Minute
}

func staleWindow() time.Duration {
	return time.Duration(viper.GetInt("liveness.stale_window_minutes")) * time.Minute
}

func electionTimeout() time.Duration {
	return time.Duration(viper.GetInt("election.timeout_seconds")) * time.Second
}

// Component constructors over the shared store.

func getRegistrar() (*identity.Registrar, store.Store, error) {
	s, err := getStore()
	if err != nil {
		return nil, nil, err
	}
	return identity.NewRegistrar(s), s, nil
}

func getTracker() (*pulse.Tracker, store.Store, error) {
	s, err := getStore()
	if err != nil {
		return nil, nil, err
	}
	return pulse.NewTracker(s, staleWindow()), s, nil
}

func getElection() (*election.Manager, error) {
	tracker, s, err := getTracker()
	if err != nil {
		return nil, err
	}
	return election.New(s, tracker, electionTimeout()), nil
}

func getMonitor() (*health.Monitor, store.Store, error) {
	tracker, s, err := getTracker()
	if err != nil {
		return nil, nil, err
	}
	return health.NewMonitor(s, tracker), s, nil
}

func getArbiter() (*arbiter.Arbiter, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	return arbiter.New(s), nil
}

// getLocker picks the lock backend: the remote arbiter when one is
// configured, otherwise the shared store.
func getLocker() (arbiter.FileLocker, error) {
	if viper.GetString("arbiter.url") != "" {
		c, err := arbiterClient()
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	arb, err := getArbiter()
	if err != nil {
		return nil, err
	}
	return arb, nil
}

// getClaimer picks the task-claim backend the same way.
func getClaimer() (arbiter.TaskClaimer, error) {
	if viper.GetString("arbiter.url") != "" {
		c, err := arbiterClient()
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	return s, nil
}

func getEventLog() (*eventlog.Log, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	return eventlog.New(s), nil
}

func getPreempt() (*preempt.Controller, error) {
	tracker, s, err := getTracker()
	if err != nil {
		return nil, err
	}
	return preempt.New(s, tracker), nil
}

// selfIdentity resolves this agent's registered identity, failing with a
// hint when the agent has never registered.
func selfIdentity(cmd *cobra.Command) (string, *models.AgentInfo, error) {
	reg, _, err := getRegistrar()
	if err != nil {
		return "", nil, err
	}
	agentID, err := reg.AgentID()
	if err != nil {
		return "", nil, err
	}
	info, found, err := reg.Whoami(cmd.Context())
	if err != nil {
		return "", nil, err
	}
	if !found {
		return "", nil, fmt.Errorf("not registered yet, run 'swarm agent register' first")
	}
	return agentID, info, nil
}
