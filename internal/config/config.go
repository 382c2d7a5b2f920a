// Package config provides configuration structures and defaults for cairn.
package config

const (
	defaultMemtableThreshold    = 2000
	defaultSSTableIndexInterval = 16
)

// Config holds the tunable parameters of the storage engine.
type Config struct {
	// MemtableThreshold is the number of records the memtable may hold
	// before a flush is triggered.
	MemtableThreshold int
	// SSTableIndexInterval is the sparse-index sampling stride: every
	// Nth record is indexed. 1 indexes every key; 0 is treated as unset
	// and replaced by the default (16) in FillDefaults; a negative value
	// disables the index (lookups fall back to a full scan from offset 0).
	SSTableIndexInterval int
}

// DefaultConfig returns a Config populated with default values.
func DefaultConfig() *Config {
	return &Config{
		MemtableThreshold:    defaultMemtableThreshold,
		SSTableIndexInterval: defaultSSTableIndexInterval,
	}
}

// FillDefaults sets any zero-value fields to their defaults.
func (c *Config) FillDefaults() {
	def := DefaultConfig()
	if c.MemtableThreshold == 0 {
		c.MemtableThreshold = def.MemtableThreshold
	}
	if c.SSTableIndexInterval == 0 {
		c.SSTableIndexInterval = def.SSTableIndexInterval
	}
}
