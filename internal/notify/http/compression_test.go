package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_Gzip(t *testing.T) {
	c, err := newCodec(CompressionGzip)
	require.NoError(t, err)
	defer c.close()

	original := []byte("trace event payload, trace event payload, trace event payload")
	encoded, err := c.encode(original)
	require.NoError(t, err)

	assert.Less(t, len(encoded), len(original))
	assert.Equal(t, "gzip", c.contentEncoding())

	decoded, err := DecodeGzip(encoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestCodec_Zstd(t *testing.T) {
	c, err := newCodec(CompressionZstd)
	require.NoError(t, err)
	defer c.close()

	original := []byte("trace event payload")
	encoded, err := c.encode(original)
	require.NoError(t, err)
	assert.Equal(t, "zstd", c.contentEncoding())

	decoded, err := DecodeZstd(encoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestCodec_Zlib(t *testing.T) {
	c, err := newCodec(CompressionZlib)
	require.NoError(t, err)
	defer c.close()

	original := []byte("trace event payload, trace event payload, trace event payload")
	encoded, err := c.encode(original)
	require.NoError(t, err)

	assert.Less(t, len(encoded), len(original))
	assert.Equal(t, "deflate", c.contentEncoding())

	decoded, err := DecodeZlib(encoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestCodec_Snappy(t *testing.T) {
	c, err := newCodec(CompressionSnappy)
	require.NoError(t, err)
	defer c.close()

	original := []byte("trace event payload, trace event payload")
	encoded, err := c.encode(original)
	require.NoError(t, err)
	assert.Equal(t, "snappy", c.contentEncoding())

	decoded, err := DecodeSnappy(encoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestCodec_None(t *testing.T) {
	c, err := newCodec(CompressionNone)
	require.NoError(t, err)
	defer c.close()

	original := []byte("trace event payload")
	encoded, err := c.encode(original)
	require.NoError(t, err)

	assert.Equal(t, original, encoded)
	assert.Equal(t, "", c.contentEncoding())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Enabled:      true,
				Address:      "http://localhost:8080",
				BatchSize:    100,
				MaxQueueSize: 1000,
				Workers:      1,
			},
		},
		{
			name: "disabled config skips validation",
			cfg:  Config{Enabled: false},
		},
		{
			name:    "missing address",
			cfg:     Config{Enabled: true},
			wantErr: true,
		},
		{
			name: "invalid compression",
			cfg: Config{
				Enabled:     true,
				Address:     "http://localhost:8080",
				Compression: "invalid",
			},
			wantErr: true,
		},
		{
			name: "batch size exceeds queue size",
			cfg: Config{
				Enabled:      true,
				Address:      "http://localhost:8080",
				BatchSize:    1000,
				MaxQueueSize: 100,
				Workers:      1,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.ApplyDefaults()
			err := tt.cfg.Validate()

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
