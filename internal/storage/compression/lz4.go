package compression

import (
	"bytes"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"
)

// LZ4Compressor implements LZ4 frame compression. Writers are pooled and
// reset per entry.
type LZ4Compressor struct {
	level   lz4.CompressionLevel
	writers sync.Pool
}

// NewLZ4Compressor creates a new LZ4 compressor
func NewLZ4Compressor(level Level) (*LZ4Compressor, error) {
	c := &LZ4Compressor{level: lz4.Level4}
	switch level {
	case LevelFastest:
		c.level = lz4.Fast
	case LevelBest:
		c.level = lz4.Level9
	}

	// Validate the options once so Compress can apply them blindly.
	if err := lz4.NewWriter(io.Discard).Apply(lz4.CompressionLevelOption(c.level)); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *LZ4Compressor) Algorithm() Algorithm {
	return AlgorithmLZ4
}

// Compress compresses one entry into a single LZ4 frame.
func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, _ := c.writers.Get().(*lz4.Writer)
	if w == nil {
		w = lz4.NewWriter(&buf)
	} else {
		w.Reset(&buf)
	}
	defer c.writers.Put(w)

	if err := w.Apply(lz4.CompressionLevelOption(c.level), lz4.ChecksumOption(true)); err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *LZ4Compressor) Decompress(data []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
}

var _ Compressor = (*LZ4Compressor)(nil)
