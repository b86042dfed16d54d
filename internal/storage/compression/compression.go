// Package compression encodes cached track entries for storage.
//
// Entries are serialized with msgpack and, above a size threshold, compressed
// with one of the supported algorithms:
//
//   - Zstandard (zstd): best ratio with fast decompression (default)
//   - LZ4: fastest, moderate ratio
//   - Gzip: widely compatible
//
// Every stored value starts with a one-byte header naming the algorithm used,
// so values written under a different configuration still decode.
package compression

import (
	"fmt"
)

// Algorithm represents a compression algorithm
type Algorithm string

const (
	// AlgorithmNone disables compression
	AlgorithmNone Algorithm = "none"
	// AlgorithmZstd uses Zstandard compression
	AlgorithmZstd Algorithm = "zstd"
	// AlgorithmLZ4 uses LZ4 compression
	AlgorithmLZ4 Algorithm = "lz4"
	// AlgorithmGzip uses Gzip compression
	AlgorithmGzip Algorithm = "gzip"
)

// Level represents compression level
type Level int

const (
	// LevelFastest prioritizes speed over compression ratio
	LevelFastest Level = 1
	// LevelDefault balances speed and compression
	LevelDefault Level = 3
	// LevelBest prioritizes compression ratio over speed
	LevelBest Level = 9
)

// Config holds compression configuration
type Config struct {
	Algorithm Algorithm `mapstructure:"algorithm" yaml:"algorithm"`
	Level     Level     `mapstructure:"level" yaml:"level"`
	// MinSize is the smallest encoded entry that gets compressed (bytes).
	MinSize int `mapstructure:"min_size" yaml:"min_size"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Algorithm: AlgorithmZstd,
		Level:     LevelDefault,
		MinSize:   512,
	}
}

// Compressor compresses and decompresses whole buffers.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Algorithm() Algorithm
}

// NewCompressor returns the compressor for alg. AlgorithmNone returns nil.
func NewCompressor(alg Algorithm, level Level) (Compressor, error) {
	switch alg {
	case AlgorithmNone, "":
		return nil, nil
	case AlgorithmZstd:
		return NewZstdCompressor(level)
	case AlgorithmLZ4:
		return NewLZ4Compressor(level)
	case AlgorithmGzip:
		return NewGzipCompressor(level)
	default:
		return nil, fmt.Errorf("unknown compression algorithm: %s", alg)
	}
}
