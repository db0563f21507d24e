// Package compress provides the codecs used for binary pipeline artifacts.
package compress

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/pkg/errors"
)

// Compressor compresses a byte slice.
type Compressor interface {
	Compress(b []byte) ([]byte, error)
}

// Decompressor reverses a Compressor.
type Decompressor interface {
	Decompress(b []byte) ([]byte, error)
}

// ZlibCompressor compresses with zlib at a fixed level. It is not safe for concurrent use.
type ZlibCompressor struct {
	buffer bytes.Buffer
	writer *zlib.Writer
}

func NewZlibCompressor(level int) (*ZlibCompressor, error) {
	c := &ZlibCompressor{}
	w, err := zlib.NewWriterLevel(&c.buffer, level)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	c.writer = w
	return c, nil
}

func (c *ZlibCompressor) Compress(b []byte) ([]byte, error) {
	c.buffer.Reset()
	c.writer.Reset(&c.buffer)
	if _, err := c.writer.Write(b); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := c.writer.Close(); err != nil {
		return nil, errors.WithStack(err)
	}
	out := make([]byte, c.buffer.Len())
	copy(out, c.buffer.Bytes())
	return out, nil
}

// ZlibDecompressor decompresses zlib. It is stateless and safe for concurrent use.
type ZlibDecompressor struct{}

func NewZlibDecompressor() *ZlibDecompressor {
	return &ZlibDecompressor{}
}

func (d *ZlibDecompressor) Decompress(b []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer reader.Close()
	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return out, nil
}
