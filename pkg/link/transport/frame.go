package transport

import (
	"encoding/binary"
	"io"

	"github.com/yanun0323/errors"

	"github.com/yanun0323/go-link/pkg/exception"
	"github.com/yanun0323/go-link/pkg/link"
)

// headerSize is the length prefix of every frame: body length, big endian.
const headerSize = 4

// ReadFrame reads one frame body into buf, growing it when needed.
func ReadFrame(r io.Reader, buf []byte, maxSize int) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return buf, err
	}

	n := binary.BigEndian.Uint32(header[:])
	if maxSize < 0 || uint64(n) > uint64(maxSize) {
		return buf, errors.Wrap(exception.ErrLinkFrameTooLarge, "read frame").With("size", n)
	}
	size := int(n)

	if cap(buf) < size {
		buf = make([]byte, size)
	}
	buf = buf[:size]
	if _, err := io.ReadFull(r, buf); err != nil {
		return buf, err
	}
	return buf, nil
}

// AppendFrame appends msg, encoded by codec and length prefixed, to dst.
func AppendFrame(dst []byte, codec link.Codec, msg link.Message) ([]byte, error) {
	start := len(dst)
	dst = append(dst, 0, 0, 0, 0)
	dst, err := codec.Encode(dst, msg)
	if err != nil {
		return dst[:start], err
	}
	binary.BigEndian.PutUint32(dst[start:start+headerSize], uint32(len(dst)-start-headerSize))
	return dst, nil
}
