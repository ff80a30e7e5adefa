package http

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compression algorithm identifiers accepted by Config.Compression.
const (
	CompressionNone   = "none"
	CompressionGzip   = "gzip"
	CompressionZstd   = "zstd"
	CompressionZlib   = "zlib"
	CompressionSnappy = "snappy"
)

// wireEncoder is the strategy interface each compression algorithm
// implements. A codec looks one up by name from encoderRegistry
// rather than branching on the algorithm string at every call site,
// so adding an algorithm means registering a constructor, not
// extending a switch spread across encode/contentEncoding/close.
type wireEncoder interface {
	encode(data []byte) ([]byte, error)
	contentEncoding() string
	close() error
}

var encoderRegistry = map[string]func() (wireEncoder, error){
	CompressionNone:   func() (wireEncoder, error) { return noneEncoder{}, nil },
	"":                func() (wireEncoder, error) { return noneEncoder{}, nil },
	CompressionGzip:   func() (wireEncoder, error) { return gzipEncoder{}, nil },
	CompressionZlib:   func() (wireEncoder, error) { return zlibEncoder{}, nil },
	CompressionSnappy: func() (wireEncoder, error) { return snappyEncoder{}, nil },
	CompressionZstd:   func() (wireEncoder, error) { return newZstdEncoder(), nil },
}

// codec is the handle an Exporter holds; it delegates every call to
// whichever wireEncoder newCodec resolved for Config.Compression.
type codec struct {
	enc wireEncoder
}

func newCodec(algorithm string) (*codec, error) {
	factory, ok := encoderRegistry[algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}

	enc, err := factory()
	if err != nil {
		return nil, err
	}

	return &codec{enc: enc}, nil
}

func (c *codec) encode(data []byte) ([]byte, error) { return c.enc.encode(data) }
func (c *codec) contentEncoding() string             { return c.enc.contentEncoding() }
func (c *codec) close() error                        { return c.enc.close() }

type noneEncoder struct{}

func (noneEncoder) encode(data []byte) ([]byte, error) { return data, nil }
func (noneEncoder) contentEncoding() string             { return "" }
func (noneEncoder) close() error                        { return nil }

type gzipEncoder struct{}

func (gzipEncoder) encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := gzip.NewWriter(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}

	return buf.Bytes(), nil
}

func (gzipEncoder) contentEncoding() string { return "gzip" }
func (gzipEncoder) close() error            { return nil }

type zlibEncoder struct{}

func (zlibEncoder) encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := zlib.NewWriter(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("zlib write: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib close: %w", err)
	}

	return buf.Bytes(), nil
}

func (zlibEncoder) contentEncoding() string { return "deflate" }
func (zlibEncoder) close() error            { return nil }

type snappyEncoder struct{}

func (snappyEncoder) encode(data []byte) ([]byte, error) { return snappy.Encode(nil, data), nil }
func (snappyEncoder) contentEncoding() string             { return "snappy" }
func (snappyEncoder) close() error                        { return nil }

// zstdEncoder checks out a *zstd.Encoder from a self-managed free
// list for each call instead of sharing one across every export
// worker. Config.Workers lets the batch processor call encode from
// several goroutines at once, and EncodeAll's documented concurrency
// story is about its internal compression workers, not about
// multiple outside goroutines driving the same *zstd.Encoder value
// simultaneously — so each call borrows an encoder, uses it, and
// returns it, and close drains the free list instead of closing one
// shared instance.
type zstdEncoder struct {
	mu   sync.Mutex
	free []*zstd.Encoder
}

func newZstdEncoder() *zstdEncoder {
	return &zstdEncoder{}
}

func (z *zstdEncoder) checkout() (*zstd.Encoder, error) {
	z.mu.Lock()
	if n := len(z.free); n > 0 {
		enc := z.free[n-1]
		z.free = z.free[:n-1]
		z.mu.Unlock()

		return enc, nil
	}
	z.mu.Unlock()

	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func (z *zstdEncoder) checkin(enc *zstd.Encoder) {
	z.mu.Lock()
	z.free = append(z.free, enc)
	z.mu.Unlock()
}

func (z *zstdEncoder) encode(data []byte) ([]byte, error) {
	enc, err := z.checkout()
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}

	out := enc.EncodeAll(data, make([]byte, 0, len(data)))
	z.checkin(enc)

	return out, nil
}

func (z *zstdEncoder) contentEncoding() string { return "zstd" }

func (z *zstdEncoder) close() error {
	z.mu.Lock()
	defer z.mu.Unlock()

	for _, enc := range z.free {
		if err := enc.Close(); err != nil {
			return err
		}
	}

	z.free = nil

	return nil
}

// DecodeGzip reverses gzipEncoder.encode. Exported for round-trip tests.
func DecodeGzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

// DecodeZstd reverses zstdEncoder.encode. Exported for round-trip tests.
func DecodeZstd(data []byte) ([]byte, error) {
	d, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer d.Close()

	return io.ReadAll(d)
}

// DecodeZlib reverses zlibEncoder.encode. Exported for round-trip tests.
func DecodeZlib(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

// DecodeSnappy reverses snappyEncoder.encode. Exported for round-trip tests.
func DecodeSnappy(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}
