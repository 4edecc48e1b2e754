// Package cfg holds edenfs's mount-time configuration and the pflag/viper
// wiring that lets it come from flags, a YAML config file, or both.
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full set of options a mount can be started with.
type Config struct {
	Journal    JournalConfig    `yaml:"journal"`
	Management ManagementConfig `yaml:"management"`
	Debug      DebugConfig      `yaml:"debug"`
}

type JournalConfig struct {
	// Capacity bounds how many deltas the in-memory journal ring retains
	// before evicting the oldest.
	Capacity int `yaml:"capacity"`
}

type ManagementConfig struct {
	// ListenAddress is where the management HTTP endpoint (status, metrics,
	// graceful shutdown) listens. Empty disables it.
	ListenAddress string `yaml:"listen-address"`
}

type DebugConfig struct {
	// EnableFuseTrace is accepted from flags and config but not read
	// anywhere; no per-op trace is written.
	EnableFuseTrace bool `yaml:"enable-fuse-trace"`

	// ExitOnInvariantViolation is accepted from flags and config but not
	// read anywhere; it does not change how invariant failures are handled.
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`
}

// BindFlags registers every Config field as a pflag and binds it into
// viper, mirroring the teacher's generated cfg.BindFlags in spirit (one
// flag per field, bound under the same dotted key used for YAML).
func BindFlags(flagSet *pflag.FlagSet) error {
	flagSet.IntP("journal.capacity", "", 4096,
		"Number of journal deltas retained in memory before the oldest are evicted.")
	if err := viper.BindPFlag("journal.capacity", flagSet.Lookup("journal.capacity")); err != nil {
		return err
	}

	flagSet.StringP("management.listen-address", "", "",
		"Address for the management HTTP endpoint (status, metrics, shutdown). Empty disables it.")
	if err := viper.BindPFlag("management.listen-address", flagSet.Lookup("management.listen-address")); err != nil {
		return err
	}

	flagSet.BoolP("debug.enable-fuse-trace", "", false,
		"Accepted but currently has no effect; no per-op trace is written.")
	if err := viper.BindPFlag("debug.enable-fuse-trace", flagSet.Lookup("debug.enable-fuse-trace")); err != nil {
		return err
	}

	flagSet.BoolP("debug.exit-on-invariant-violation", "", false,
		"Accepted but currently has no effect on invariant check failures.")
	if err := viper.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("debug.exit-on-invariant-violation")); err != nil {
		return err
	}

	return nil
}
