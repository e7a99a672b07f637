package codec

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Pooled zstd coders, reused across tiles.
var zstdDecoderPool = sync.Pool{
	New: func() any {
		decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
		}
		return decoder
	},
}

var zstdEncoderPool = sync.Pool{
	New: func() any {
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
		}
		return encoder
	},
}

// Compress returns data as a zstd frame.
func Compress(data []byte) []byte {
	encoder := zstdEncoderPool.Get().(*zstd.Encoder)
	defer zstdEncoderPool.Put(encoder)

	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

// Decompress decodes a zstd frame.
func Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	decoder := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(decoder)

	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	return out, nil
}

// EncodeTile returns the file contents of t, optionally zstd-compressed.
func EncodeTile(t *Tile, full, compress bool) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(TileSize(t.Width, t.Height, full))
	if err := WriteTile(&buf, t, full); err != nil {
		return nil, err
	}
	if compress {
		return Compress(buf.Bytes()), nil
	}
	return buf.Bytes(), nil
}

// DecodeTile parses file contents produced by EncodeTile.
func DecodeTile(data []byte, width, height int, full, compressed bool) (*Tile, error) {
	if compressed {
		raw, err := Decompress(data)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	if want := TileSize(width, height, full); len(data) != want {
		return nil, fmt.Errorf("%w: have %d bytes, want %d for %dx%d tile", ErrSizeMismatch, len(data), want, width, height)
	}
	return ReadTile(bytes.NewReader(data), width, height, full)
}
