package columnar

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// CompressionType identifies the algorithm used for a state snapshot
type CompressionType uint8

const (
	CompressionNone   CompressionType = 0
	CompressionGzip   CompressionType = 1
	CompressionSnappy CompressionType = 2
	CompressionZstd   CompressionType = 3
)

func (ct CompressionType) String() string {
	switch ct {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionSnappy:
		return "snappy"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(ct))
	}
}

// ParseCompressionType maps a config name to a CompressionType
func ParseCompressionType(name string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CompressionNone, nil
	case "gzip":
		return CompressionGzip, nil
	case "snappy":
		return CompressionSnappy, nil
	case "zstd":
		return CompressionZstd, nil
	}
	return CompressionNone, fmt.Errorf("unsupported compression type: %s", name)
}

// CompressionLevel represents compression level for algorithms that support it
type CompressionLevel int

const (
	CompressionLevelFastest CompressionLevel = 1
	CompressionLevelDefault CompressionLevel = 0
	CompressionLevelBetter  CompressionLevel = 3
	CompressionLevelBest    CompressionLevel = 9
)

// Compressor interface for different compression algorithms
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Type() CompressionType
}

// NoCompressor passes data through
type NoCompressor struct{}

func (n *NoCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (n *NoCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }
func (n *NoCompressor) Type() CompressionType                  { return CompressionNone }

// SnappyCompressor implements Snappy compression
type SnappyCompressor struct{}

func (s *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (s *SnappyCompressor) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

func (s *SnappyCompressor) Type() CompressionType {
	return CompressionSnappy
}

// ZstdCompressor implements Zstandard compression
type ZstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewZstdCompressor(level CompressionLevel) (*ZstdCompressor, error) {
	zstdLevel := zstd.SpeedDefault
	switch level {
	case CompressionLevelFastest:
		zstdLevel = zstd.SpeedFastest
	case CompressionLevelBetter:
		zstdLevel = zstd.SpeedBetterCompression
	case CompressionLevelBest:
		zstdLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel))
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, err
	}
	return &ZstdCompressor{encoder: encoder, decoder: decoder}, nil
}

func (z *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	return z.encoder.EncodeAll(data, nil), nil
}

func (z *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	return z.decoder.DecodeAll(data, nil)
}

func (z *ZstdCompressor) Type() CompressionType {
	return CompressionZstd
}

func (z *ZstdCompressor) Close() {
	if z.encoder != nil {
		z.encoder.Close()
	}
	if z.decoder != nil {
		z.decoder.Close()
	}
}

// GzipCompressor implements Gzip compression
type GzipCompressor struct {
	level int
}

func NewGzipCompressor(level CompressionLevel) *GzipCompressor {
	gzipLevel := gzip.DefaultCompression
	switch level {
	case CompressionLevelFastest:
		gzipLevel = gzip.BestSpeed
	case CompressionLevelBest:
		gzipLevel = gzip.BestCompression
	}
	return &GzipCompressor{level: gzipLevel}
}

func (g *GzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer, err := gzip.NewWriterLevel(&buf, g.level)
	if err != nil {
		return nil, err
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *GzipCompressor) Decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func (g *GzipCompressor) Type() CompressionType {
	return CompressionGzip
}

// CreateCompressor creates compressor instances
func CreateCompressor(compressionType CompressionType, level CompressionLevel) (Compressor, error) {
	switch compressionType {
	case CompressionNone:
		return &NoCompressor{}, nil
	case CompressionSnappy:
		return &SnappyCompressor{}, nil
	case CompressionZstd:
		return NewZstdCompressor(level)
	case CompressionGzip:
		return NewGzipCompressor(level), nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %d", compressionType)
	}
}

// Pack compresses data and prefixes the one-byte compression type so
// that Unpack can restore it without being told the algorithm
func Pack(c Compressor, data []byte) ([]byte, error) {
	compressed, err := c.Compress(data)
	if err != nil {
		return nil, fmt.Errorf("failed to compress with %s: %w", c.Type(), err)
	}
	out := make([]byte, 0, len(compressed)+1)
	out = append(out, byte(c.Type()))
	return append(out, compressed...), nil
}

// Unpack reverses Pack
func Unpack(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty packed buffer")
	}
	c, err := CreateCompressor(CompressionType(data[0]), CompressionLevelDefault)
	if err != nil {
		return nil, err
	}
	if z, ok := c.(*ZstdCompressor); ok {
		defer z.Close()
	}
	out, err := c.Decompress(data[1:])
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s payload: %w", c.Type(), err)
	}
	return out, nil
}
