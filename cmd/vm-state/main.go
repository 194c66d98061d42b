package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vmstated/vmstate/pkg/config"
	"github.com/vmstated/vmstate/pkg/dataset"
	"github.com/vmstated/vmstate/pkg/journal"
	"github.com/vmstated/vmstate/pkg/log"
	"github.com/vmstated/vmstate/pkg/metrics"
	"github.com/vmstated/vmstate/pkg/registry"
	"github.com/vmstated/vmstate/pkg/state"
	"github.com/vmstated/vmstate/pkg/types"
	"github.com/vmstated/vmstate/pkg/vmctl"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fail(err.Error())
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vm-state",
	Short: "Manage portable VM states",
	Long: `vm-state manages portable VM disk states backed by ZFS datasets.

Slots are fixed network identities (slot1 = 10.1.0.2 through slot5 =
10.5.0.2 by default). States are portable persistent data stored as ZFS
datasets under the states directory. Any state can run on any slot:
assign rebinds the slot's data.img symlink, snapshot/clone/restore work
through ZFS snapshots and promoted clones, and migrate moves a state to
a slot with a stop/start cycle.`,
	Example: `  # Snapshot slot1's current state
  vm-state snapshot slot1 before-update

  # Run the dev-env state on slot2
  vm-state assign slot2 dev-env

  # Clone production to test and run it on slot3
  vm-state clone prod-env test-env
  vm-state migrate test-env slot3

  # Restore a snapshot into a new state
  vm-state restore before-update recovered-state`,
	Version:       Version,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return nil
		}
		if cmd.Parent() != nil && cmd.Parent().Name() == "completion" {
			return nil
		}
		if os.Geteuid() != 0 {
			return errors.New("This command must be run as root")
		}
		return setup()
	},
	// Bare invocation behaves like "vm-state list".
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.Context())
	},
}

var cfgPath string

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"vm-state version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath, "Path to the configuration file")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(cloneCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(historyCmd)
}

// application holds everything a command needs once configuration is loaded.
type application struct {
	cfg    *config.Config
	slots  *types.SlotSet
	mgr    *state.Manager
	vms    vmctl.Controller
	logger zerolog.Logger
}

var app *application

func setup() error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log.Init(log.Config{Level: log.Level(cfg.LogLevel)})

	slots, err := cfg.SlotSet()
	if err != nil {
		return err
	}

	var drv dataset.Driver
	switch cfg.Backend {
	case config.BackendLibZFS:
		if drv, err = dataset.NewLibZFSDriver(); err != nil {
			return err
		}
	default:
		drv = dataset.NewCLIDriver(nil)
	}

	mgr, err := state.NewManager(state.Config{
		Pool:        cfg.Pool,
		BaseDataset: cfg.BaseDataset,
		StatesDir:   cfg.StatesDir,
		SlotsDir:    cfg.SlotsDir,
		Slots:       slots,
		OwnerUser:   cfg.OwnerUser,
		OwnerGroup:  cfg.OwnerGroup,
	}, drv, registry.New(cfg.AssignmentsFile))
	if err != nil {
		return err
	}

	var vms vmctl.Controller
	switch cfg.VMControl {
	case config.VMControlDBus:
		vms = vmctl.NewDBus(cfg.ServicePrefix)
	default:
		vms = vmctl.NewSystemctl(nil, cfg.ServicePrefix)
	}

	app = &application{
		cfg:    cfg,
		slots:  slots,
		mgr:    mgr,
		vms:    vms,
		logger: log.WithComponent("cli"),
	}
	return nil
}

func (a *application) slot(name string) (types.Slot, error) {
	slot, ok := a.slots.Lookup(name)
	if !ok {
		return types.Slot{}, fmt.Errorf("Invalid slot name '%s'. Valid slots: %s",
			name, strings.Join(a.slots.Names(), ", "))
	}
	return slot, nil
}

// unitHint renders the systemd unit the way operators type it.
func (a *application) unitHint(slot types.Slot) string {
	return strings.TrimSuffix(slot.Unit(a.cfg.ServicePrefix), ".service")
}

// finish records the operation in the journal and refreshes the metrics
// textfile. Both are best-effort and never fail the command they follow.
func (a *application) finish(ctx context.Context, op string, args []string, opErr error) {
	if a.cfg.JournalFile != "" {
		if j, err := journal.Open(a.cfg.JournalFile); err != nil {
			a.logger.Debug().Err(err).Msg("journal unavailable")
		} else {
			entry := journal.Entry{Op: op, Args: args, OK: opErr == nil}
			if opErr != nil {
				entry.Error = opErr.Error()
			}
			if err := j.Record(entry); err != nil {
				a.logger.Debug().Err(err).Msg("failed to record operation")
			}
			j.Close()
		}
	}

	if a.cfg.MetricsFile != "" {
		if err := metrics.Export(ctx, a.mgr, a.cfg.MetricsFile); err != nil {
			a.logger.Debug().Err(err).Msg("failed to export metrics")
		}
	}
}
