package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vmstated/vmstate/pkg/types"
)

// DefaultPath is where Load looks when no --config flag is given.
const DefaultPath = "/etc/vm-state/config.yaml"

// Storage backend strategies.
const (
	BackendCLI    = "cli"
	BackendLibZFS = "libzfs"
)

// VM control strategies.
const (
	VMControlSystemctl = "systemctl"
	VMControlDBus      = "dbus"
)

// Duration wraps time.Duration so YAML values like "2s" parse directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("failed to parse duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the full vm-state configuration. A missing config file means
// the built-in defaults; a present file overrides only the keys it names.
type Config struct {
	Pool            string   `yaml:"pool"`
	BaseDataset     string   `yaml:"base_dataset"`
	StatesDir       string   `yaml:"states_dir"`
	SlotsDir        string   `yaml:"slots_dir"`
	AssignmentsFile string   `yaml:"assignments_file"`
	Slots           []string `yaml:"slots"`
	ServicePrefix   string   `yaml:"service_prefix"`
	OwnerUser       string   `yaml:"owner_user"`
	OwnerGroup      string   `yaml:"owner_group"`
	Backend         string   `yaml:"backend"`
	VMControl       string   `yaml:"vm_control"`
	StopGracePeriod Duration `yaml:"stop_grace_period"`
	JournalFile     string   `yaml:"journal_file,omitempty"`
	MetricsFile     string   `yaml:"metrics_file,omitempty"`
	LogLevel        string   `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Pool:            "microvms",
		BaseDataset:     "storage/states",
		StatesDir:       "/var/lib/microvms/states",
		SlotsDir:        "/var/lib/microvms",
		AssignmentsFile: "/etc/vm-state-assignments.json",
		Slots:           []string{"slot1", "slot2", "slot3", "slot4", "slot5"},
		ServicePrefix:   "microvm@",
		OwnerUser:       "microvm",
		OwnerGroup:      "kvm",
		Backend:         BackendCLI,
		VMControl:       VMControlSystemctl,
		StopGracePeriod: Duration(2 * time.Second),
		LogLevel:        "info",
	}
}

// Load reads the configuration file at path. An absent file yields the
// defaults; a present file is parsed over them and validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Pool == "" {
		return fmt.Errorf("pool must not be empty")
	}
	if c.BaseDataset == "" {
		return fmt.Errorf("base_dataset must not be empty")
	}
	if c.StatesDir == "" || c.SlotsDir == "" {
		return fmt.Errorf("states_dir and slots_dir must not be empty")
	}
	if c.AssignmentsFile == "" {
		return fmt.Errorf("assignments_file must not be empty")
	}
	if _, err := types.NewSlotSet(c.Slots); err != nil {
		return fmt.Errorf("invalid slots: %w", err)
	}
	switch c.Backend {
	case BackendCLI, BackendLibZFS:
	default:
		return fmt.Errorf("unknown backend %q (want %q or %q)", c.Backend, BackendCLI, BackendLibZFS)
	}
	switch c.VMControl {
	case VMControlSystemctl, VMControlDBus:
	default:
		return fmt.Errorf("unknown vm_control %q (want %q or %q)", c.VMControl, VMControlSystemctl, VMControlDBus)
	}
	if c.StopGracePeriod < 0 {
		return fmt.Errorf("stop_grace_period must not be negative")
	}
	return nil
}

// SlotSet builds the validated slot set from the configured names.
func (c *Config) SlotSet() (*types.SlotSet, error) {
	return types.NewSlotSet(c.Slots)
}

// BaseDatasetPath returns the pool-qualified base dataset, e.g.
// "microvms/storage/states".
func (c *Config) BaseDatasetPath() string {
	return c.Pool + "/" + c.BaseDataset
}
