// Package config holds the small, env-driven configuration surface for the
// IVM core: where the SQLite replica lives, the cost model's constants, and
// the cooperative time-slice budget. Kept on stdlib env parsing rather than
// a file-format config library — see DESIGN.md for why.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for a pipeline instance.
type Config struct {
	SQLite     SQLiteConfig
	CostModel  CostModelConfig
	TimeSlice  TimeSliceConfig
	Statements StatementCacheConfig
}

// SQLiteConfig configures the replica TableSource reads/writes through.
type SQLiteConfig struct {
	Path     string // filesystem path to the SQLite database; "" means in-memory
	ReadOnly bool   // analyzer runs open replicas read-only
}

// CostModelConfig mirrors the teacher's OptimizerConfig cost constants,
// retargeted at SQLite's own cost units instead of a custom page cache.
type CostModelConfig struct {
	SeqScanRowCost   float64 // per-row cost of scanning without an index
	IndexLookupCost  float64 // per-row cost of an index-assisted lookup
	IndexStartupCost float64 // fixed cost of opening an index cursor
	MaxJoinTables    int     // bound on flip-pattern enumeration (2^MaxJoinTables attempts)
}

// TimeSliceConfig drives cooperative yielding (spec §4.4, §5).
type TimeSliceConfig struct {
	LapThreshold time.Duration // how long a fetch may run before yielding
}

// StatementCacheConfig bounds the prepared-statement LRU (spec §4.6).
type StatementCacheConfig struct {
	HighWaterMark int // max cached prepared statements per database handle
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		SQLite: SQLiteConfig{
			Path: "./data/replica.db",
		},
		CostModel: CostModelConfig{
			SeqScanRowCost:   1.0,
			IndexLookupCost:  0.05,
			IndexStartupCost: 2.0,
			MaxJoinTables:    8,
		},
		TimeSlice: TimeSliceConfig{
			LapThreshold: 200 * time.Millisecond,
		},
		Statements: StatementCacheConfig{
			HighWaterMark: 256,
		},
	}
}

// LoadFromEnv loads configuration from environment variables, falling back
// to defaults for anything unset.
func LoadFromEnv() *Config {
	cfg := Default()

	if p := os.Getenv("IVM_SQLITE_PATH"); p != "" {
		cfg.SQLite.Path = p
	}
	if ro := os.Getenv("IVM_SQLITE_READONLY"); ro != "" {
		cfg.SQLite.ReadOnly = ro == "1" || ro == "true"
	}
	if v := os.Getenv("IVM_COST_SEQ_SCAN_ROW"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.CostModel.SeqScanRowCost = f
		}
	}
	if v := os.Getenv("IVM_COST_INDEX_LOOKUP"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.CostModel.IndexLookupCost = f
		}
	}
	if v := os.Getenv("IVM_MAX_JOIN_TABLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CostModel.MaxJoinTables = n
		}
	}
	if v := os.Getenv("IVM_TIMESLICE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TimeSlice.LapThreshold = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("IVM_STMT_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Statements.HighWaterMark = n
		}
	}

	return cfg
}

// Validate checks the configuration's invariants.
func (c *Config) Validate() error {
	if c.CostModel.MaxJoinTables <= 0 {
		return fmt.Errorf("max join tables must be positive: %d", c.CostModel.MaxJoinTables)
	}
	if c.CostModel.MaxJoinTables > 24 {
		return fmt.Errorf("max join tables too large for flip-pattern enumeration: %d", c.CostModel.MaxJoinTables)
	}
	if c.TimeSlice.LapThreshold <= 0 {
		return fmt.Errorf("time-slice lap threshold must be positive: %v", c.TimeSlice.LapThreshold)
	}
	if c.Statements.HighWaterMark <= 0 {
		return fmt.Errorf("statement cache high-water mark must be positive: %d", c.Statements.HighWaterMark)
	}
	return nil
}

// String returns a formatted representation of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf(`IVM Core Configuration:
  SQLite:
    Path: %s
    ReadOnly: %v
  CostModel:
    SeqScanRowCost: %.4f
    IndexLookupCost: %.4f
    IndexStartupCost: %.4f
    MaxJoinTables: %d
  TimeSlice:
    LapThreshold: %v
  Statements:
    HighWaterMark: %d`,
		c.SQLite.Path, c.SQLite.ReadOnly,
		c.CostModel.SeqScanRowCost, c.CostModel.IndexLookupCost, c.CostModel.IndexStartupCost, c.CostModel.MaxJoinTables,
		c.TimeSlice.LapThreshold,
		c.Statements.HighWaterMark)
}
