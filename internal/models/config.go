package models

import "time"

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Ledger     LedgerConfig
	Audit      AuditConfig
	Scheduler  SchedulerConfig
	Server     ServerConfig
	GrantsFile string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // sqlite3, pgx or memory
	Path            string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	BusyTimeout     time.Duration
}

// LedgerConfig holds the credit ledger policy knobs
type LedgerConfig struct {
	RefundWindow time.Duration
	// FailOpenReads makes balance reads return zero instead of an error when
	// storage is unreachable. Degraded mode, off by default.
	FailOpenReads  bool
	SweepOnConsume bool
}

// AuditConfig holds audit notifier settings
type AuditConfig struct {
	Sink          string // log, formance or none
	BufferSize    int
	Workers       int
	NotifyTimeout time.Duration
	Formance      FormanceConfig
}

// FormanceConfig holds Formance Stack credentials for the audit mirror
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// SchedulerConfig holds expiration sweep scheduling settings
type SchedulerConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string
	CorsOrigins     []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}
