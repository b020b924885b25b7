package host

import (
	"github.com/caarlos0/env/v11"

	"github.com/wasmhive/hive/errors"
)

// WASM page size in bytes.
const pageSize = 64 * 1024

// Config holds host runtime configuration.
type Config struct {
	// MemoryPages is the initial size of the shared memory in 64KB pages.
	MemoryPages uint32 `env:"HIVE_MEMORY_PAGES" envDefault:"256"`

	// MemoryMaxPages caps shared memory growth. The arena manages the full
	// capped range; pages are committed lazily as spans are reserved.
	MemoryMaxPages uint32 `env:"HIVE_MEMORY_MAX_PAGES" envDefault:"1024"`

	// ModuleHeapSize is the heap region reserved per module, in bytes.
	ModuleHeapSize uint32 `env:"HIVE_MODULE_HEAP" envDefault:"524288"`

	// ModuleStackSize is the stack region reserved per module, in bytes.
	ModuleStackSize uint32 `env:"HIVE_MODULE_STACK" envDefault:"131072"`

	// ColumnCapacity is the row capacity new component columns start with.
	ColumnCapacity uint32 `env:"HIVE_COLUMN_CAPACITY" envDefault:"16"`
}

// DefaultConfig returns the built-in defaults: a 16MB initial shared
// memory growable to 64MB, 512KB heap and 128KB stack per module.
func DefaultConfig() Config {
	return Config{
		MemoryPages:     256,
		MemoryMaxPages:  1024,
		ModuleHeapSize:  512 * 1024,
		ModuleStackSize: 128 * 1024,
		ColumnCapacity:  16,
	}
}

// ConfigFromEnv parses configuration from HIVE_* environment variables,
// falling back to the defaults.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(errors.PhaseHost, errors.KindInvalidInput, err, "parse environment")
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.MemoryPages == 0 {
		return errors.InvalidInput(errors.PhaseHost, "memory pages cannot be zero")
	}
	if c.MemoryMaxPages < c.MemoryPages {
		return errors.InvalidInput(errors.PhaseHost, "max pages below initial pages")
	}
	if c.MemoryMaxPages > 32768 {
		return errors.InvalidInput(errors.PhaseHost, "max pages exceeds the 2GB addressable arena")
	}
	if c.ModuleHeapSize == 0 || c.ModuleStackSize == 0 {
		return errors.InvalidInput(errors.PhaseHost, "module heap and stack sizes cannot be zero")
	}
	perModule := uint64(c.ModuleHeapSize) + uint64(c.ModuleStackSize)
	if perModule > uint64(c.MemoryMaxPages)*pageSize {
		return errors.InvalidInput(errors.PhaseHost, "per-module regions exceed shared memory capacity")
	}
	return nil
}
