package compression

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// GzipCompressor implements Gzip compression with pooled writers.
type GzipCompressor struct {
	level   int
	writers sync.Pool
}

// NewGzipCompressor creates a new Gzip compressor.
func NewGzipCompressor(level Level) (*GzipCompressor, error) {
	gzipLevel := gzip.DefaultCompression
	switch level {
	case LevelFastest:
		gzipLevel = gzip.BestSpeed
	case LevelBest:
		gzipLevel = gzip.BestCompression
	}

	// Surface a bad level here rather than on the first write.
	if _, err := gzip.NewWriterLevel(io.Discard, gzipLevel); err != nil {
		return nil, err
	}
	return &GzipCompressor{level: gzipLevel}, nil
}

func (c *GzipCompressor) Algorithm() Algorithm {
	return AlgorithmGzip
}

// Compress compresses one entry.
func (c *GzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(data) / 2)

	w, _ := c.writers.Get().(*gzip.Writer)
	if w == nil {
		w, _ = gzip.NewWriterLevel(&buf, c.level)
	} else {
		w.Reset(&buf)
	}
	defer c.writers.Put(w)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *GzipCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	return io.ReadAll(r)
}

var _ Compressor = (*GzipCompressor)(nil)
