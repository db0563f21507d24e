// Package dataset reads and writes categorical datasets: a named array of small integer codes, one per record,
// stored zlib compressed behind a fixed header.
//
// Layout, all integers big endian:
//
//	magic    [8]byte  "PPPPCDS1"
//	keyLen   uint16
//	key      [keyLen]byte
//	count    uint64   number of codes
//	payload  zlib stream of count bytes
package dataset

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/G-Research/pppp/internal/common/compress"
	"github.com/G-Research/pppp/internal/common/util"
)

const (
	Magic = "PPPPCDS1"
	// FileSuffix is appended to the unit name to form the dataset file name.
	FileSuffix = "_dose_point.cds"
	// DefaultKey is the key the downstream grouping stage reads.
	DefaultKey = "dose_point"
)

// Dataset is an ordered sequence of category codes stored under Key.
type Dataset struct {
	Key   string
	Codes []uint8
}

// FileName returns the dataset file name for unit.
func FileName(unit string) string {
	return unit + FileSuffix
}

// Write replaces the file at path with d.
func Write(path string, d Dataset) error {
	if len(d.Key) == 0 || len(d.Key) > 0xffff {
		return errors.Errorf("invalid dataset key length %d", len(d.Key))
	}
	compressor, err := compress.NewZlibCompressor(zlib.BestCompression)
	if err != nil {
		return err
	}
	payload, err := compressor.Compress(d.Codes)
	if err != nil {
		return err
	}
	return util.WriteFileAtomic(path, 0o644, func(w io.Writer) error {
		if _, err := io.WriteString(w, Magic); err != nil {
			return errors.WithStack(err)
		}
		if err := binary.Write(w, binary.BigEndian, uint16(len(d.Key))); err != nil {
			return errors.WithStack(err)
		}
		if _, err := io.WriteString(w, d.Key); err != nil {
			return errors.WithStack(err)
		}
		if err := binary.Write(w, binary.BigEndian, uint64(len(d.Codes))); err != nil {
			return errors.WithStack(err)
		}
		_, err := w.Write(payload)
		return errors.WithStack(err)
	})
}

// Read loads the dataset at path.
func Read(path string) (Dataset, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, errors.WithStack(err)
	}
	return decode(contents, compress.NewZlibDecompressor())
}

func decode(contents []byte, decompressor compress.Decompressor) (Dataset, error) {
	r := bytes.NewReader(contents)

	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != Magic {
		return Dataset{}, errors.New("not a categorical dataset")
	}
	var keyLen uint16
	if err := binary.Read(r, binary.BigEndian, &keyLen); err != nil {
		return Dataset{}, errors.Wrap(err, "truncated header")
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return Dataset{}, errors.Wrap(err, "truncated key")
	}
	var count uint64
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return Dataset{}, errors.Wrap(err, "truncated header")
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return Dataset{}, errors.WithStack(err)
	}
	codes, err := decompressor.Decompress(payload)
	if err != nil {
		return Dataset{}, errors.WithMessage(err, "corrupt payload")
	}
	if uint64(len(codes)) != count {
		return Dataset{}, errors.Errorf("header declares %d codes but payload holds %d", count, len(codes))
	}
	return Dataset{Key: string(key), Codes: codes}, nil
}
