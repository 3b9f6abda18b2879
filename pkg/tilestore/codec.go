// Package tilestore reads and writes the files that travel between tiling
// and stitching: one file per tile holding a raw/label pair, the JSON
// reconstruction log, and whole stacks.
//
// Every file uses the same envelope: a format byte naming the compression
// and checksum, an optional CRC32 of the stored payload, then the payload,
// a gob-encoded Bundle.
package tilestore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"labelstitch/internal/models"
)

// Bundle is the content of a tile or stack file: the raw image X and the
// labels y. Either may be nil.
type Bundle struct {
	X *models.ImageTensor
	Y *models.ImageTensor
}

// Compression of the payload.
type Compression uint8

const (
	Uncompressed Compression = 0
	Snappy       Compression = 1
)

func (c Compression) String() string {
	switch c {
	case Uncompressed:
		return "none"
	case Snappy:
		return "snappy"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// Checksum over the stored payload.
type Checksum uint8

const (
	NoChecksum Checksum = 0
	CRC32      Checksum = 1
)

// Format is the single leading byte of a file.
type Format uint8

// DefaultFormat is snappy with a CRC32 checksum.
var DefaultFormat = EncodeFormat(Snappy, CRC32)

// EncodeFormat packs compression into the high nibble and checksum into the
// low nibble.
func EncodeFormat(c Compression, s Checksum) Format {
	return Format(uint8(c)<<4 | uint8(s)&0x0f)
}

// Decode splits a Format.
func (f Format) Decode() (Compression, Checksum) {
	return Compression(uint8(f) >> 4), Checksum(uint8(f) & 0x0f)
}

// Encode writes b to w in the given format.
func Encode(w io.Writer, b *Bundle, format Format) error {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(b); err != nil {
		return errors.Wrap(err, "encoding bundle")
	}
	compress, checksum := format.Decode()

	var data []byte
	switch compress {
	case Uncompressed:
		data = payload.Bytes()
	case Snappy:
		data = snappy.Encode(nil, payload.Bytes())
	default:
		return errors.Errorf("illegal compression %s", compress)
	}

	if _, err := w.Write([]byte{byte(format)}); err != nil {
		return errors.Wrap(err, "writing format")
	}
	switch checksum {
	case NoChecksum:
	case CRC32:
		if err := binary.Write(w, binary.LittleEndian, crc32.ChecksumIEEE(data)); err != nil {
			return errors.Wrap(err, "writing checksum")
		}
	default:
		return errors.Errorf("illegal checksum %d", checksum)
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "writing payload")
	}
	return nil
}

// Decode reads a Bundle written by Encode.
func Decode(r io.Reader) (*Bundle, error) {
	var header [1]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errors.Wrap(err, "reading format")
	}
	compress, checksum := Format(header[0]).Decode()

	var want uint32
	switch checksum {
	case NoChecksum:
	case CRC32:
		if err := binary.Read(r, binary.LittleEndian, &want); err != nil {
			return nil, errors.Wrap(err, "reading checksum")
		}
	default:
		return nil, errors.Errorf("illegal checksum %d", checksum)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading payload")
	}
	if checksum == CRC32 {
		if got := crc32.ChecksumIEEE(data); got != want {
			return nil, errors.Errorf("bad checksum: stored %08x, computed %08x", want, got)
		}
	}

	switch compress {
	case Uncompressed:
	case Snappy:
		if data, err = snappy.Decode(nil, data); err != nil {
			return nil, errors.Wrap(err, "snappy decode")
		}
	default:
		return nil, errors.Errorf("illegal compression %s", compress)
	}

	var b Bundle
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return nil, errors.Wrap(err, "decoding bundle")
	}
	for _, t := range []*models.ImageTensor{b.X, b.Y} {
		if t != nil {
			if err := t.Validate(); err != nil {
				return nil, err
			}
		}
	}
	return &b, nil
}
