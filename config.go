package datastruct

import (
	"encoding/binary"
	"strings"

	"github.com/wippyai/datastruct/errors"
)

// Endianness is the default byte order of primitive layouts that carry no
// explicit prefix.
type Endianness uint8

const (
	Little Endianness = iota
	Big
	Native

	// Network is the byte order used by network protocols.
	Network = Big
)

// ByteOrder returns the encoding/binary order for e.
func (e Endianness) ByteOrder() binary.ByteOrder {
	switch e {
	case Big:
		return binary.BigEndian
	case Native:
		return binary.NativeEndian
	}
	return binary.LittleEndian
}

func (e Endianness) String() string {
	switch e {
	case Big:
		return "big"
	case Native:
		return "native"
	}
	return "little"
}

// ParseEndianness accepts little, big, network and native.
func ParseEndianness(s string) (Endianness, error) {
	switch strings.ToLower(s) {
	case "little", "le", "<":
		return Little, nil
	case "big", "be", ">", "network", "!":
		return Big, nil
	case "native", "=", "@":
		return Native, nil
	}
	return Little, errors.New(errors.PhaseConfig, errors.KindInvalidData).
		Value(s).
		Detail("unknown endianness %q", s).
		Build()
}

// Config holds the settings a traversal reads. It is read-only during a call.
type Config struct {
	PaddingPattern []byte
	Endianness     Endianness
	PaddingCheck   bool
	RepeatFill     bool
}

var defaultConfig = &Config{
	Endianness:     Little,
	PaddingPattern: []byte{0xFF},
}

// DefaultConfig returns the process-wide default configuration.
// Callers must not modify it; use Clone.
func DefaultConfig() *Config {
	return defaultConfig
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.PaddingPattern = append([]byte(nil), c.PaddingPattern...)
	return &out
}

// TypeOption overrides one configuration setting for a structure type.
type TypeOption func(*Config)

// Endian sets the structure's default byte order.
func Endian(e Endianness) TypeOption {
	return func(c *Config) { c.Endianness = e }
}

// PaddingPattern sets the fill pattern of padding fields.
func PaddingPattern(p ...byte) TypeOption {
	return func(c *Config) { c.PaddingPattern = append([]byte(nil), p...) }
}

// CheckPadding enables verification of padding contents on unpack.
func CheckPadding(on bool) TypeOption {
	return func(c *Config) { c.PaddingCheck = on }
}

// FillRepeats enables the repeat list fill policy on pack.
func FillRepeats(on bool) TypeOption {
	return func(c *Config) { c.RepeatFill = on }
}

// CallOption configures a single pack/unpack/sizeof call.
type CallOption func(*callConfig)

type callConfig struct {
	cfg *Config
	env *Values
}

// WithConfig replaces the default configuration for one call.
func WithConfig(cfg *Config) CallOption {
	return func(c *callConfig) { c.cfg = cfg }
}

// WithEnv adds a caller value, visible to expressions as ctx.G.Env.
func WithEnv(key string, value any) CallOption {
	return func(c *callConfig) { c.env.Set(key, value) }
}

func newCallConfig(opts []CallOption) *callConfig {
	cc := &callConfig{cfg: defaultConfig, env: NewValues()}
	for _, opt := range opts {
		opt(cc)
	}
	if cc.cfg == nil {
		cc.cfg = defaultConfig
	}
	return cc
}
