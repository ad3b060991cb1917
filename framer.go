// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

import (
	"bytes"

	"github.com/bassosimone/runtimex"
)

// Frame is one unit of wire data extracted by a framer.
//
// Either Err is nil and Data holds the candidate syslog message, or Err is a
// [*DecodeError] explaining why the bytes could not be framed and Data holds
// whatever part of them is worth reporting.
type Frame struct {
	// Data contains the frame bytes. The framer never reuses this memory.
	Data []byte

	// Err is the framing error, if any.
	Err error
}

// FrameDatagram returns the single [Frame] contained in a datagram.
//
// Trailing LF, CR and NUL bytes are trimmed. Empty and oversized datagrams
// yield a [Frame] with a non-nil Err.
func FrameDatagram(datagram []byte, maxSize int) Frame {
	data := trimTrailer(datagram)
	switch {
	case len(data) <= 0:
		return Frame{Data: []byte{}, Err: newDecodeError("empty datagram")}
	case len(data) > maxSize:
		return Frame{Data: clone(data[:min(len(data), maxReportedBytes)]),
			Err: newDecodeError("frame too large: %d bytes exceeds %d", len(data), maxSize)}
	default:
		return Frame{Data: clone(data)}
	}
}

// StreamFramer splits a byte stream into syslog frames according to RFC 6587.
//
// The framing method is detected for each frame by looking at its first byte:
//
//   - '1'...'9' selects octet counting (MSG-LEN SP SYSLOG-MSG);
//
//   - any other byte selects non-transparent framing, where LF or NUL
//     terminates the frame and a trailing CR is removed.
//
// LF, CR, NUL, SP and TAB bytes found between frames are skipped.
//
// When an unterminated non-transparent frame is pending and the next chunk
// starts with a well formed PRI, the pending frame ends at the chunk
// boundary. Senders that write one message per write without trailer
// therefore produce one frame per write.
//
// A malformed octet count header is reported together with the rest of
// its token, up to the next inter-frame byte or '<', and parsing resumes
// right after it.
//
// A StreamFramer is not safe for concurrent use: each connection owns one.
type StreamFramer struct {
	buf      []byte
	discard  int
	maxSize  int
	skipLine bool
}

// NewStreamFramer creates a [*StreamFramer] accepting frames up to maxSize bytes.
func NewStreamFramer(maxSize int) *StreamFramer {
	runtimex.Assert(maxSize > 0)
	return &StreamFramer{maxSize: maxSize}
}

// maxOctetCountDigits bounds the MSG-LEN field of octet counted frames.
const maxOctetCountDigits = 10

// maxReportedBytes bounds the bytes we attach to framing errors.
const maxReportedBytes = 256

// Feed appends chunk to the buffer and returns all the frames that are
// now complete, in arrival order. An incomplete frame remains buffered
// until the next call; incompleteness alone is never an error.
func (f *StreamFramer) Feed(chunk []byte) (frames []Frame) {
	if f.Flushable() && startsWithPRI(chunk) {
		frame, _ := f.Flush()
		frames = append(frames, frame)
	}
	f.buf = append(f.buf, chunk...)
	off := 0

	for {
		rest := f.buf[off:]

		if f.discard > 0 {
			count := min(f.discard, len(rest))
			off += count
			f.discard -= count
			if f.discard > 0 {
				break
			}
			continue
		}

		if f.skipLine {
			idx := indexTrailer(rest)
			if idx < 0 {
				off = len(f.buf)
				break
			}
			off += idx + 1
			f.skipLine = false
			continue
		}

		if len(rest) <= 0 {
			break
		}

		var (
			consumed int
			frame    Frame
			found    bool
		)
		switch b := rest[0]; {
		case isInterFrameByte(b):
			off++
			continue

		case b >= '1' && b <= '9':
			frame, consumed, found = f.octetCounted(rest)

		default:
			frame, consumed, found = f.nonTransparent(rest)
		}

		off += consumed
		if found {
			frames = append(frames, frame)
		}
		if consumed <= 0 {
			break
		}
	}

	f.compact(off)
	return
}

// octetCounted extracts an octet counted frame from the start of buf.
//
// Returns the frame, how many bytes to consume, and whether a frame
// (possibly an error frame) was found. Zero consumed bytes means that
// the frame is still incomplete.
func (f *StreamFramer) octetCounted(buf []byte) (Frame, int, bool) {
	var msgLen int64
	idx := 0
	for ; idx < len(buf) && buf[idx] != ' '; idx++ {
		b := buf[idx]
		if b < '0' || b > '9' {
			return f.headerError(buf, idx, "invalid octet count")
		}
		if idx >= maxOctetCountDigits {
			return f.headerError(buf, idx, "octet count has too many digits")
		}
		msgLen = msgLen*10 + int64(b-'0')
	}
	if idx >= len(buf) {
		return Frame{}, 0, false
	}

	header := idx + 1
	if msgLen > int64(f.maxSize) {
		f.discard = int(msgLen)
		return Frame{
			Data: clone(buf[:header]),
			Err:  newDecodeError("frame too large: %d bytes exceeds %d", msgLen, f.maxSize),
		}, header, true
	}

	total := header + int(msgLen)
	if len(buf) < total {
		return Frame{}, 0, false
	}
	return Frame{Data: clone(buf[header:total])}, total, true
}

// nonTransparent extracts a trailer-delimited frame from the start of buf.
func (f *StreamFramer) nonTransparent(buf []byte) (Frame, int, bool) {
	idx := indexTrailer(buf)
	switch {
	case idx < 0 && len(buf) > f.maxSize:
		f.skipLine = true
		return f.tooLarge(buf), len(buf), true

	case idx < 0:
		return Frame{}, 0, false

	case idx > f.maxSize:
		return f.tooLarge(buf[:idx]), idx + 1, true

	default:
		data := trimCR(buf[:idx])
		if len(data) <= 0 {
			return Frame{}, idx + 1, false
		}
		return Frame{Data: clone(data)}, idx + 1, true
	}
}

// headerError reports the malformed header token starting at buf[0], whose
// first bad byte is at idx, and consumes it.
func (f *StreamFramer) headerError(buf []byte, idx int, reason string) (Frame, int, bool) {
	end := idx + tokenEnd(buf[idx:])
	return Frame{
		Data: clone(buf[:min(end, maxReportedBytes)]),
		Err:  newDecodeError("%s", reason),
	}, end, true
}

// tokenEnd returns the index of the first byte that may precede or start
// a frame, or len(buf).
func tokenEnd(buf []byte) int {
	for idx, b := range buf {
		if b == '<' || isInterFrameByte(b) {
			return idx
		}
	}
	return len(buf)
}

// startsWithPRI returns whether chunk begins with a well formed "<N>".
func startsWithPRI(chunk []byte) bool {
	_, _, err := parsePRI(chunk)
	return err == nil
}

func (f *StreamFramer) tooLarge(data []byte) Frame {
	return Frame{
		Data: clone(data[:min(len(data), maxReportedBytes)]),
		Err:  newDecodeError("frame too large: more than %d bytes without trailer", f.maxSize),
	}
}

// compact drops the first off bytes of the buffer.
func (f *StreamFramer) compact(off int) {
	remaining := copy(f.buf, f.buf[off:])
	f.buf = f.buf[:remaining]
}

// Pending returns the number of buffered bytes not yet framed.
func (f *StreamFramer) Pending() int {
	return len(f.buf)
}

// Flushable returns whether the buffer starts with an unterminated
// non-transparent frame that [Flush] would return.
func (f *StreamFramer) Flushable() bool {
	if len(f.buf) <= 0 || f.skipLine || f.discard > 0 {
		return false
	}
	b := f.buf[0]
	return !(b >= '1' && b <= '9') && !isInterFrameByte(b)
}

// Flush returns the buffered unterminated non-transparent frame as if its
// trailer had been received. Octet counted partial frames are never flushed
// because their length is known and more bytes are expected.
func (f *StreamFramer) Flush() (Frame, bool) {
	if !f.Flushable() {
		return Frame{}, false
	}
	frames := f.Feed([]byte{'\n'})
	runtimex.Assert(len(frames) == 1)
	return frames[0], true
}

// Reset discards any buffered bytes and returns a copy of them.
func (f *StreamFramer) Reset() []byte {
	dropped := clone(f.buf)
	f.buf = f.buf[:0]
	f.discard = 0
	f.skipLine = false
	return dropped
}

func isInterFrameByte(b byte) bool {
	return b == '\n' || b == '\r' || b == 0 || b == ' ' || b == '\t'
}

func indexTrailer(buf []byte) int {
	return bytes.IndexAny(buf, "\n\x00")
}

func trimCR(b []byte) []byte {
	return bytes.TrimSuffix(b, []byte{'\r'})
}

func trimTrailer(b []byte) []byte {
	return bytes.TrimRight(b, "\r\n\x00")
}

func clone(b []byte) []byte {
	return append([]byte{}, b...)
}
