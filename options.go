package nffs

import "log"

// PoolConfig gives the fixed capacity of every resource pool NFFS draws
// from (spec.md §5, supplemented with the original's per-kind pool
// inventory). A capacity of 0 means unbounded, useful for tests.
type PoolConfig struct {
	Inodes      int
	Blocks      int
	CacheInodes int
	CacheBlocks int
	DirHandles  int
	FileHandles int
}

func defaultPoolConfig() PoolConfig {
	return PoolConfig{
		Inodes:      256,
		Blocks:      1024,
		CacheInodes: 8,
		CacheBlocks: 32,
		DirHandles:  8,
		FileHandles: 8,
	}
}

// Config is the mount/format configuration (spec.md §6).
type Config struct {
	Pools  PoolConfig
	Logger *log.Logger
}

// Option configures a Filesystem at construction time, in the same
// functional-options style as the teacher's WriterOption.
type Option func(*Config)

// WithPoolSizes overrides the default resource pool capacities.
func WithPoolSizes(p PoolConfig) Option {
	return func(c *Config) {
		c.Pools = p
	}
}

// WithLogger overrides the default logger (log.Default()).
func WithLogger(l *log.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}
