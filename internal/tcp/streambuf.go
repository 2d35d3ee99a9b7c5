package tcp

import (
	"bytes"
	"errors"
	"io"
)

// DefaultBufferSize is the buffer size used when NewStreamBuf gets a
// non-positive size.
const DefaultBufferSize = 8192

var errInvalidUnreadByte = errors.New("tcp: invalid use of UnreadByte")

// StreamBuf layers fixed-size read and write buffers over a raw stream.
//
// Reads refill the buffer with a single Read of the underlying stream when
// it runs dry. Writes collect bytes until the buffer is full and then hand
// it to the underlying stream. A failed write is sticky: every later Write
// and Flush returns the same error.
type StreamBuf struct {
	rw io.ReadWriter

	rbuf     []byte
	r, w     int
	lastByte int

	wbuf []byte
	wn   int
	werr error
}

// NewStreamBuf returns a StreamBuf with read and write buffers of size bytes.
func NewStreamBuf(rw io.ReadWriter, size int) *StreamBuf {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &StreamBuf{
		rw:       rw,
		rbuf:     make([]byte, size),
		wbuf:     make([]byte, size),
		lastByte: -1,
	}
}

// Reset discards buffered data and errors and switches to rw.
func (b *StreamBuf) Reset(rw io.ReadWriter) {
	b.rw = rw
	b.r, b.w = 0, 0
	b.lastByte = -1
	b.wn = 0
	b.werr = nil
}

// Size returns the size of each buffer.
func (b *StreamBuf) Size() int {
	return len(b.rbuf)
}

// Buffered returns the number of bytes that can be read without touching the
// underlying stream.
func (b *StreamBuf) Buffered() int {
	return b.w - b.r
}

// Pending returns the number of written bytes not yet handed to the
// underlying stream.
func (b *StreamBuf) Pending() int {
	return b.wn
}

func (b *StreamBuf) underflow() error {
	n, err := b.rw.Read(b.rbuf)
	if n > 0 {
		b.r, b.w = 0, n
		return nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return err
}

// Read copies buffered bytes into p, refilling the buffer first when it is
// empty. Errors of the underlying stream are returned unchanged.
func (b *StreamBuf) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if b.r == b.w {
		if err := b.underflow(); err != nil {
			return 0, err
		}
	}
	n := copy(p, b.rbuf[b.r:b.w])
	b.r += n
	b.lastByte = int(b.rbuf[b.r-1])
	return n, nil
}

// ReadByte reads a single byte.
func (b *StreamBuf) ReadByte() (byte, error) {
	if b.r == b.w {
		if err := b.underflow(); err != nil {
			return 0, err
		}
	}
	c := b.rbuf[b.r]
	b.r++
	b.lastByte = int(c)
	return c, nil
}

// UnreadByte steps back over the byte returned by the last read.
func (b *StreamBuf) UnreadByte() error {
	if b.lastByte < 0 || b.r == 0 {
		return errInvalidUnreadByte
	}
	b.r--
	b.lastByte = -1
	return nil
}

// ReadLine reads up to and including the next '\n' and returns the line
// without its terminator (a trailing '\r' is stripped too). A max > 0 limits
// the line length; longer lines fail with ErrLineTooLong. End of stream in
// the middle of a line is io.ErrUnexpectedEOF.
func (b *StreamBuf) ReadLine(max int) (string, error) {
	var line []byte
	for {
		if b.r == b.w {
			if err := b.underflow(); err != nil {
				if err == io.EOF && len(line) > 0 {
					return "", io.ErrUnexpectedEOF
				}
				return "", err
			}
		}

		chunk := b.rbuf[b.r:b.w]
		if i := bytes.IndexByte(chunk, '\n'); i >= 0 {
			line = append(line, chunk[:i]...)
			b.r += i + 1
			break
		}
		line = append(line, chunk...)
		b.r = b.w
		if max > 0 && len(line) > max {
			return "", ErrLineTooLong
		}
	}
	b.lastByte = -1

	line = bytes.TrimSuffix(line, []byte{'\r'})
	if max > 0 && len(line) > max {
		return "", ErrLineTooLong
	}
	return string(line), nil
}

// sync hands pending output to the underlying stream.
func (b *StreamBuf) sync() error {
	if b.werr != nil {
		return b.werr
	}
	if b.wn == 0 {
		return nil
	}
	n, err := b.rw.Write(b.wbuf[:b.wn])
	if err == nil && n < b.wn {
		err = io.ErrShortWrite
	}
	if err != nil {
		b.werr = err
		return err
	}
	b.wn = 0
	return nil
}

// overflow empties a full write buffer. The buffer is reset even when the
// write fails so later bytes have room; the failure stays recorded.
func (b *StreamBuf) overflow() error {
	err := b.sync()
	b.wn = 0
	return err
}

// Write buffers p, flushing whenever the buffer fills up.
func (b *StreamBuf) Write(p []byte) (int, error) {
	if b.werr != nil {
		return 0, b.werr
	}
	total := 0
	for len(p) > 0 {
		if b.wn == len(b.wbuf) {
			if err := b.overflow(); err != nil {
				return total, err
			}
		}
		n := copy(b.wbuf[b.wn:], p)
		b.wn += n
		total += n
		p = p[n:]
	}
	return total, nil
}

// WriteString buffers s.
func (b *StreamBuf) WriteString(s string) (int, error) {
	if b.werr != nil {
		return 0, b.werr
	}
	total := 0
	for len(s) > 0 {
		if b.wn == len(b.wbuf) {
			if err := b.overflow(); err != nil {
				return total, err
			}
		}
		n := copy(b.wbuf[b.wn:], s)
		b.wn += n
		total += n
		s = s[n:]
	}
	return total, nil
}

// WriteByte buffers a single byte.
func (b *StreamBuf) WriteByte(c byte) error {
	if b.werr != nil {
		return b.werr
	}
	if b.wn == len(b.wbuf) {
		if err := b.overflow(); err != nil {
			return err
		}
	}
	b.wbuf[b.wn] = c
	b.wn++
	return nil
}

// Flush writes any pending output.
func (b *StreamBuf) Flush() error {
	return b.sync()
}
