package compression

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/trackcache/internal/track"
)

func TestCompressors(t *testing.T) {
	testData := []byte("Hello, World! This is some test data that should be compressed.")
	repetitiveData := bytes.Repeat([]byte("AAAAAAAAAA"), 1000)

	tests := []struct {
		name    string
		newFunc func() (Compressor, error)
		data    []byte
	}{
		{"Zstd-small", func() (Compressor, error) { return NewZstdCompressor(LevelDefault) }, testData},
		{"Zstd-repetitive", func() (Compressor, error) { return NewZstdCompressor(LevelBest) }, repetitiveData},
		{"LZ4-small", func() (Compressor, error) { return NewLZ4Compressor(LevelDefault) }, testData},
		{"LZ4-repetitive", func() (Compressor, error) { return NewLZ4Compressor(LevelFastest) }, repetitiveData},
		{"Gzip-small", func() (Compressor, error) { return NewGzipCompressor(LevelDefault) }, testData},
		{"Gzip-repetitive", func() (Compressor, error) { return NewGzipCompressor(LevelBest) }, repetitiveData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp, err := tt.newFunc()
			if err != nil {
				t.Fatalf("failed to create compressor: %v", err)
			}

			compressed, err := comp.Compress(tt.data)
			if err != nil {
				t.Fatalf("compression failed: %v", err)
			}
			if len(compressed) == 0 {
				t.Error("compressed data is empty")
			}

			decompressed, err := comp.Decompress(compressed)
			if err != nil {
				t.Fatalf("decompression failed: %v", err)
			}
			if !bytes.Equal(tt.data, decompressed) {
				t.Error("decompressed data doesn't match original")
			}
		})
	}
}

func TestNewCompressorUnknown(t *testing.T) {
	_, err := NewCompressor("brotli", LevelDefault)
	assert.Error(t, err)

	c, err := NewCompressor(AlgorithmNone, LevelDefault)
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func sampleEntry() *track.Entry {
	e := track.NewSkeleton(track.Metadata{
		TrackID:    "abc",
		Title:      "Song",
		ArtistName: "Artist",
		ImageURL:   "https://img.test/a.jpg",
	})
	e.Lyrics = strings.Repeat("la la la\n", 200)
	e.CachedAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return e
}

func TestCodecRoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{AlgorithmNone, AlgorithmZstd, AlgorithmLZ4, AlgorithmGzip} {
		t.Run(string(alg), func(t *testing.T) {
			codec, err := NewCodec(Config{Algorithm: alg, Level: LevelDefault, MinSize: 64})
			require.NoError(t, err)

			in := sampleEntry()
			data, err := codec.Encode(in)
			require.NoError(t, err)

			if alg == AlgorithmNone {
				assert.Equal(t, headerRaw, data[0])
			} else {
				assert.Equal(t, headerFor(alg), data[0])
			}

			out, err := codec.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, in.Lyrics, out.Lyrics)
			assert.Equal(t, in.TrackID, out.TrackID)
			assert.True(t, in.CachedAt.Equal(out.CachedAt))
		})
	}
}

func TestCodecSmallValuesStayRaw(t *testing.T) {
	codec, err := NewCodec(Config{Algorithm: AlgorithmZstd, MinSize: 1 << 20})
	require.NoError(t, err)

	data, err := codec.Encode(sampleEntry())
	require.NoError(t, err)
	assert.Equal(t, headerRaw, data[0])
}

func TestCodecDecodesOtherAlgorithms(t *testing.T) {
	writer, err := NewCodec(Config{Algorithm: AlgorithmLZ4, MinSize: 1})
	require.NoError(t, err)
	reader, err := NewCodec(Config{Algorithm: AlgorithmZstd, MinSize: 1})
	require.NoError(t, err)

	data, err := writer.Encode(sampleEntry())
	require.NoError(t, err)

	out, err := reader.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "abc", out.TrackID)
}

func TestCodecCorrupt(t *testing.T) {
	codec, err := NewCodec(DefaultConfig())
	require.NoError(t, err)

	_, err = codec.Decode(nil)
	assert.True(t, errors.Is(err, ErrCorrupt))

	_, err = codec.Decode([]byte{0x7f, 1, 2})
	assert.True(t, errors.Is(err, ErrCorrupt))

	_, err = codec.Decode([]byte{headerZstd, 1, 2, 3})
	assert.True(t, errors.Is(err, ErrCorrupt))
}
