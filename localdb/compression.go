package localdb

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how document contents are compressed at rest.
type Compression uint8

const (
	NoCompression Compression = iota
	Snappy
	Zstd
	LZ4

	compressionCount
)

// DefaultCompressionThreshold is the smallest contents size worth compressing.
const DefaultCompressionThreshold = 512

func (c Compression) String() string {
	switch c {
	case NoCompression:
		return "none"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

func ParseCompression(s string) (Compression, error) {
	for c := NoCompression; c < compressionCount; c++ {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	if s == "" {
		return NoCompression, nil
	}
	return 0, fmt.Errorf("unknown compression %q", s)
}

func (c Compression) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Compression) UnmarshalText(b []byte) error {
	v, err := ParseCompression(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

var (
	zstdEncoder = sync.OnceValue(func() *zstd.Encoder {
		return must(zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)))
	})
	zstdDecoder = sync.OnceValue(func() *zstd.Decoder {
		return must(zstd.NewReader(nil))
	})
)

func compress(c Compression, dst, data []byte) ([]byte, error) {
	switch c {
	case NoCompression:
		return append(dst, data...), nil
	case Snappy:
		n := snappy.MaxEncodedLen(len(data))
		off, dst := grow(dst, n)
		enc := snappy.Encode(dst[off:], data)
		return dst[:off+len(enc)], nil
	case Zstd:
		return zstdEncoder().EncodeAll(data, dst), nil
	case LZ4:
		buf := bytes.NewBuffer(dst)
		w := lz4.NewWriter(buf)
		if err := w.Apply(lz4.CompressionLevelOption(lz4.Fast)); err != nil {
			return nil, fmt.Errorf("lz4 apply level: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 close: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression %v", c)
	}
}

func decompress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case NoCompression:
		return data, nil
	case Snappy:
		return snappy.Decode(nil, data)
	case Zstd:
		return zstdDecoder().DecodeAll(data, nil)
	case LZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	default:
		return nil, fmt.Errorf("unsupported compression %v", c)
	}
}
