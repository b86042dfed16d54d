package compression

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/piwi3910/trackcache/internal/track"
)

// Header bytes prefixed to every encoded value.
const (
	headerRaw  byte = 0x00
	headerZstd byte = 0x01
	headerLZ4  byte = 0x02
	headerGzip byte = 0x03
)

// ErrCorrupt is returned when a stored value cannot be decoded.
var ErrCorrupt = errors.New("corrupt entry value")

// Codec turns entries into stored bytes and back.
type Codec struct {
	cfg        Config
	compressor Compressor
	decoders   map[byte]Compressor
}

// NewCodec builds a codec for cfg.
func NewCodec(cfg Config) (*Codec, error) {
	comp, err := NewCompressor(cfg.Algorithm, cfg.Level)
	if err != nil {
		return nil, err
	}

	zs, err := NewZstdCompressor(LevelDefault)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	lz, _ := NewLZ4Compressor(LevelDefault)
	gz, _ := NewGzipCompressor(LevelDefault)

	return &Codec{
		cfg:        cfg,
		compressor: comp,
		decoders: map[byte]Compressor{
			headerZstd: zs,
			headerLZ4:  lz,
			headerGzip: gz,
		},
	}, nil
}

// Encode serializes an entry.
func (c *Codec) Encode(e *track.Entry) ([]byte, error) {
	raw, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry: %w", err)
	}

	if c.compressor == nil || len(raw) < c.cfg.MinSize {
		return append([]byte{headerRaw}, raw...), nil
	}

	compressed, err := c.compressor.Compress(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to compress entry: %w", err)
	}
	if len(compressed) >= len(raw) {
		return append([]byte{headerRaw}, raw...), nil
	}

	return append([]byte{headerFor(c.compressor.Algorithm())}, compressed...), nil
}

// Decode deserializes a value produced by Encode under any configuration.
func (c *Codec) Decode(data []byte) (*track.Entry, error) {
	if len(data) == 0 {
		return nil, ErrCorrupt
	}

	body := data[1:]
	if h := data[0]; h != headerRaw {
		dec, ok := c.decoders[h]
		if !ok {
			return nil, fmt.Errorf("%w: unknown header 0x%02x", ErrCorrupt, h)
		}
		var err error
		body, err = dec.Decompress(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}

	var e track.Entry
	if err := msgpack.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &e, nil
}

func headerFor(alg Algorithm) byte {
	switch alg {
	case AlgorithmZstd:
		return headerZstd
	case AlgorithmLZ4:
		return headerLZ4
	case AlgorithmGzip:
		return headerGzip
	}
	return headerRaw
}
