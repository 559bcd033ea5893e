// Package config holds the machine and translation settings of a run.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/rvjit/emu"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Backend names accepted in JITConfig.Backend.
const (
	BackendQBE  = "qbe"
	BackendEval = "eval"
	BackendNone = "none"
)

// Config holds the settings of one emulation session.
type Config struct {
	// RAMSize is the guest RAM size in bytes. Default: 64 MiB.
	RAMSize uint32 `json:"ram_size" yaml:"ram_size"`

	// RAMBase is the guest physical address of RAM. Default: 0x80000000.
	RAMBase uint32 `json:"ram_base" yaml:"ram_base"`

	// MMIOStart and MMIOEnd bound the device window [start, end).
	MMIOStart uint32 `json:"mmio_start" yaml:"mmio_start"`
	MMIOEnd   uint32 `json:"mmio_end" yaml:"mmio_end"`

	// FailOnAllFaults aborts on any guest exception instead of trapping.
	FailOnAllFaults bool `json:"fail_on_all_faults" yaml:"fail_on_all_faults"`

	// InstructionsPerStep is the instruction budget of one Step call.
	// Default: 1024.
	InstructionsPerStep int `json:"instructions_per_step" yaml:"instructions_per_step"`

	// TimeDivisor slows the guest timer down by this factor. Default: 1.
	TimeDivisor uint64 `json:"time_divisor" yaml:"time_divisor"`

	// FixedUpdate derives guest time from the cycle counter instead of
	// the host clock, making runs reproducible.
	FixedUpdate bool `json:"fixed_update" yaml:"fixed_update"`

	// JIT configures block translation.
	JIT JITConfig `json:"jit" yaml:"jit"`
}

// JITConfig configures block translation.
type JITConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Backend is qbe, eval or none. Default: qbe.
	Backend string `json:"backend" yaml:"backend"`

	// WorkDir is the parent of per-block build directories. Empty means a
	// fresh temporary directory.
	WorkDir string `json:"work_dir" yaml:"work_dir"`

	// IRCompiler and Assembler name the external tools. Default: qbe, cc.
	IRCompiler string `json:"ir_compiler" yaml:"ir_compiler"`
	Assembler  string `json:"assembler" yaml:"assembler"`

	// MaxBlockInstructions caps the length of a block. Default: 64.
	MaxBlockInstructions int `json:"max_block_instructions" yaml:"max_block_instructions"`

	// HotThreshold is the number of visits to a pc before it is
	// translated. Default: 16.
	HotThreshold uint32 `json:"hot_threshold" yaml:"hot_threshold"`

	// HotSets and HotWays size the hot pc tracker. Default: 256 x 4.
	HotSets int `json:"hot_sets" yaml:"hot_sets"`
	HotWays int `json:"hot_ways" yaml:"hot_ways"`

	// AllowMemory lets blocks contain loads and stores. Accesses through
	// constant device addresses stay interpreted; native blocks do not
	// check pointers computed at run time.
	AllowMemory bool `json:"allow_memory" yaml:"allow_memory"`

	// KeepArtifacts leaves build outputs on disk.
	KeepArtifacts bool `json:"keep_artifacts" yaml:"keep_artifacts"`

	// Async builds blocks in the background while interpreting.
	Async bool `json:"async" yaml:"async"`
}

// Default returns a Config with the default machine and an enabled QBE JIT.
func Default() *Config {
	return &Config{
		RAMSize:             emu.DefaultRAMSize,
		RAMBase:             emu.DefaultRAMBase,
		MMIOStart:           emu.DefaultMMIOStart,
		MMIOEnd:             emu.DefaultMMIOEnd,
		InstructionsPerStep: 1024,
		TimeDivisor:         1,
		JIT: JITConfig{
			Enabled:              true,
			Backend:              BackendQBE,
			IRCompiler:           "qbe",
			Assembler:            "cc",
			MaxBlockInstructions: 64,
			HotThreshold:         16,
			HotSets:              256,
			HotWays:              4,
		},
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads a Config from a JSON file, or YAML for .yaml and .yml files.
// Fields missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return config, nil
}

// Save writes the Config as JSON, or YAML for .yaml and .yml files.
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that the Config describes a usable machine.
func (c *Config) Validate() error {
	if c.RAMSize == 0 || c.RAMSize%4 != 0 {
		return fmt.Errorf("%w: ram_size must be a non-zero multiple of 4", ErrInvalid)
	}
	if c.RAMSize > emu.MaxRAMSize {
		return fmt.Errorf("%w: ram_size must be at most %d bytes", ErrInvalid, emu.MaxRAMSize)
	}
	if c.RAMBase%4 != 0 {
		return fmt.Errorf("%w: ram_base must be 4-byte aligned", ErrInvalid)
	}
	if uint64(c.RAMBase)+uint64(c.RAMSize) > 1<<32 {
		return fmt.Errorf("%w: RAM must end below 4 GiB", ErrInvalid)
	}
	if c.MMIOStart > c.MMIOEnd {
		return fmt.Errorf("%w: mmio_start must be <= mmio_end", ErrInvalid)
	}
	if uint64(c.MMIOStart) < uint64(c.RAMBase)+uint64(c.RAMSize) && c.RAMBase < c.MMIOEnd {
		return fmt.Errorf("%w: MMIO window overlaps RAM", ErrInvalid)
	}
	if c.InstructionsPerStep <= 0 {
		return fmt.Errorf("%w: instructions_per_step must be > 0", ErrInvalid)
	}
	if c.TimeDivisor == 0 {
		return fmt.Errorf("%w: time_divisor must be > 0", ErrInvalid)
	}

	return c.JIT.validate()
}

func (j *JITConfig) validate() error {
	switch j.Backend {
	case BackendQBE:
		if j.IRCompiler == "" || j.Assembler == "" {
			return fmt.Errorf("%w: jit.ir_compiler and jit.assembler are required for the qbe backend", ErrInvalid)
		}
	case BackendEval, BackendNone:
	default:
		return fmt.Errorf("%w: unknown jit.backend %q", ErrInvalid, j.Backend)
	}
	if j.MaxBlockInstructions <= 0 {
		return fmt.Errorf("%w: jit.max_block_instructions must be > 0", ErrInvalid)
	}
	if j.HotThreshold == 0 {
		return fmt.Errorf("%w: jit.hot_threshold must be > 0", ErrInvalid)
	}
	if j.HotSets <= 0 || j.HotWays <= 0 {
		return fmt.Errorf("%w: jit.hot_sets and jit.hot_ways must be > 0", ErrInvalid)
	}
	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
