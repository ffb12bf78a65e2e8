package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"
)

// binaryReader reads big-endian values and tracks the current offset so
// decode errors can point at the failing byte.
type binaryReader struct {
	reader    *bytes.Reader
	bytesRead int64
}

func newBinaryReader(data []byte) *binaryReader {
	return &binaryReader{reader: bytes.NewReader(data)}
}

// Remaining returns the number of unread bytes.
func (br *binaryReader) Remaining() int {
	return br.reader.Len()
}

// fail builds a DecodeError at the current offset.
func (br *binaryReader) fail(err error, format string, args ...any) *DecodeError {
	return &DecodeError{
		Offset:  br.bytesRead,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// readN reads exactly n bytes.
func (br *binaryReader) readN(n int, what string) ([]byte, error) {
	if n > br.reader.Len() {
		return nil, br.fail(io.ErrUnexpectedEOF, "truncated %s: need %d bytes, have %d", what, n, br.reader.Len())
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(br.reader, buf)
	br.bytesRead += int64(read)
	if err != nil {
		return nil, br.fail(err, "reading %s", what)
	}
	return buf, nil
}

// u1 reads a single unsigned byte.
func (br *binaryReader) u1(what string) (uint8, error) {
	buf, err := br.readN(1, what)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// u2 reads a 2-byte unsigned integer (big-endian).
func (br *binaryReader) u2(what string) (uint16, error) {
	buf, err := br.readN(2, what)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

// u4 reads a 4-byte unsigned integer (big-endian).
func (br *binaryReader) u4(what string) (uint32, error) {
	buf, err := br.readN(4, what)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

// str reads a u2 length-prefixed UTF-8 string.
func (br *binaryReader) str(what string) (string, error) {
	n, err := br.u2(what + " length")
	if err != nil {
		return "", err
	}
	buf, err := br.readN(int(n), what)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", br.fail(nil, "%s is not valid UTF-8", what)
	}
	return string(buf), nil
}

// binaryWriter is the encoding counterpart of binaryReader.
type binaryWriter struct {
	buf bytes.Buffer
}

func (bw *binaryWriter) u1(v uint8) {
	bw.buf.WriteByte(v)
}

func (bw *binaryWriter) u2(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	bw.buf.Write(b[:])
}

func (bw *binaryWriter) u4(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	bw.buf.Write(b[:])
}

func (bw *binaryWriter) str(s string) {
	bw.u2(uint16(len(s)))
	bw.buf.WriteString(s)
}

func (bw *binaryWriter) Bytes() []byte {
	return bw.buf.Bytes()
}
