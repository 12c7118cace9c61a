package sheetsync

import (
	"fmt"
	"time"
)

// UpdatePolicy decides when an existing row is rewritten
type UpdatePolicy string

const (
	// UpdateOnChange rewrites a row only when a compared column differs
	UpdateOnChange UpdatePolicy = "on-change"
	// UpdateAlways rewrites every row whose id was seen in the source
	UpdateAlways UpdatePolicy = "always"
)

// Config represents configuration for one reconciliation run
type Config struct {
	IDColumn       string        // Sink column holding the record id
	Headers        []string      // Fixed header; derived from the first page when empty
	ExcludeColumns []string      // Fields never written when deriving the header
	Mappings       []Mapping     // Candidate source fields per column
	PageSize       int           // Records requested per page (default: 200)
	MaxPages       int           // Hard ceiling on pages per run (default: 500)
	MaxRetries     int           // Retries per failed page (0 disables retries)
	RetryDelay     time.Duration // Fixed delay between retries (default: 5s)
	PageDelay      time.Duration // Delay between pages (default: none)
	DeleteStale    bool          // Remove rows whose id the source no longer returns
	UpdatePolicy   UpdatePolicy  // default: on-change
	CompareColumns []string      // Columns checked by on-change; all header columns when empty
	VersionColumn  string        // Optional timestamp column; older incoming records never overwrite
	Filter         Filter        // Records to drop before reconciling
	DryRun         bool          // Plan only, write nothing
}

// DefaultConfig returns the defaults used for zero values
func DefaultConfig() *Config {
	return &Config{
		PageSize:     200,
		MaxPages:     500,
		MaxRetries:   3,
		RetryDelay:   5 * time.Second,
		UpdatePolicy: UpdateOnChange,
	}
}

// applyDefaults fills zero values
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = d.MaxPages
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.UpdatePolicy == "" {
		c.UpdatePolicy = d.UpdatePolicy
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.UpdatePolicy {
	case UpdateOnChange, UpdateAlways:
	default:
		return fmt.Errorf("invalid update policy %q", c.UpdatePolicy)
	}
	if c.DeleteStale && c.IDColumn == "" {
		return fmt.Errorf("%w: id column is required for delete tracking", ErrMissingConfig)
	}
	if len(c.Headers) > 0 && c.IDColumn != "" && !contains(c.Headers, c.IDColumn) {
		return fmt.Errorf("%w: %q", ErrIDColumnMissing, c.IDColumn)
	}
	if err := c.Filter.Validate(); err != nil {
		return fmt.Errorf("invalid filter: %w", err)
	}
	return nil
}
