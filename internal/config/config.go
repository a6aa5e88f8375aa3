// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keep fields unexported where possible and use functional options.
// - Provide New(...Option) initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Redundancy is the per-task cap N: how many annotators each task is
	// handed to before consensus is evaluated.
	Redundancy int `koanf:"redundancy"`

	// ReservationTTLSeconds bounds how long an allocation may sit without
	// a submission before the sweeper reclaims its slot.
	ReservationTTLSeconds int `koanf:"reservation_ttl_s"`

	// SweepIntervalSeconds sets how often the reservation sweeper runs.
	SweepIntervalSeconds int `koanf:"sweep_interval_s"`

	// DefaultBounty is used when addTask passes a zero bounty.
	DefaultBounty float64 `koanf:"default_bounty"`

	// MaxBounty rejects addTask requests above this amount.
	MaxBounty float64 `koanf:"max_bounty"`

	// JournalSize bounds the in-memory audit journal.
	JournalSize int `koanf:"journal_size"`

	// StoreDriver selects the entity store: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`

	// StoreDSN is the database DSN for sqlite/postgres drivers.
	StoreDSN string `koanf:"store_dsn"`
}

// Supported store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Default configuration constants.
const (
	defaultRedundancy     = 5
	defaultReservationTTL = 900
	defaultSweepInterval  = 60
	defaultBounty         = 0.50
	defaultMaxBounty      = 1000
	defaultJournalSize    = 1024
)

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":8080",
		Redundancy:            defaultRedundancy,
		ReservationTTLSeconds: defaultReservationTTL,
		SweepIntervalSeconds:  defaultSweepInterval,
		DefaultBounty:         defaultBounty,
		MaxBounty:             defaultMaxBounty,
		JournalSize:           defaultJournalSize,
		StoreDriver:           DriverMemory,
		StoreDSN:              "",
	}
}
