// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frameStrings converts frames to strings, marking error frames with "!".
func frameStrings(frames []Frame) (out []string) {
	for _, frame := range frames {
		if frame.Err != nil {
			out = append(out, "!"+string(frame.Data))
			continue
		}
		out = append(out, string(frame.Data))
	}
	return
}

func TestStreamFramerFeed(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// maxSize is the framer size limit.
		maxSize int

		// chunks is the sequence of reads.
		chunks []string

		// want contains the expected frames ("!" prefix means error frame).
		want []string

		// pending is the expected number of buffered bytes at the end.
		pending int
	}{
		{
			name:    "LF terminated frames",
			maxSize: 1024,
			chunks:  []string{"<34>msg1\n<34>msg2\n"},
			want:    []string{"<34>msg1", "<34>msg2"},
		},
		{
			name:    "CRLF and NUL terminated frames",
			maxSize: 1024,
			chunks:  []string{"<34>a\r\n<34>b\x00"},
			want:    []string{"<34>a", "<34>b"},
		},
		{
			name:    "octet counted frame",
			maxSize: 1024,
			chunks:  []string{"8 <34>test"},
			want:    []string{"<34>test"},
		},
		{
			name:    "octet counted frame may contain LF",
			maxSize: 1024,
			chunks:  []string{"9 <34>a\nbcd"},
			want:    []string{"<34>a\nbcd"},
		},
		{
			name:    "frame split across reads",
			maxSize: 1024,
			chunks:  []string{"<34>he", "llo\n"},
			want:    []string{"<34>hello"},
		},
		{
			name:    "octet counted frame split inside the header",
			maxSize: 1024,
			chunks:  []string{"1", "0 <34>he", "llo!"},
			want:    []string{"<34>hello!"},
		},
		{
			name:    "mixed framing methods",
			maxSize: 1024,
			chunks:  []string{"6 <34>ok<34>nt\n4 <1>x"},
			want:    []string{"<34>ok", "<34>nt", "<1>x"},
		},
		{
			name:    "bytes between frames are skipped",
			maxSize: 1024,
			chunks:  []string{"\n\r\n \t<34>x\n\x00\n"},
			want:    []string{"<34>x"},
		},
		{
			name:    "incomplete frame stays buffered",
			maxSize: 1024,
			chunks:  []string{"<34>msg1\n<34>par"},
			want:    []string{"<34>msg1"},
			pending: len("<34>par"),
		},
		{
			name:    "bad then good",
			maxSize: 1024,
			chunks:  []string{"bad\n<34>good\n"},
			want:    []string{"bad", "<34>good"},
		},
		{
			name:    "invalid octet count resyncs at the next PRI",
			maxSize: 1024,
			chunks:  []string{"12x<34>a\n<34>b\n"},
			want:    []string{"!12x", "<34>a", "<34>b"},
		},
		{
			name:    "invalid octet count keeps the following octet counted frames",
			maxSize: 1024,
			chunks:  []string{"1x 8 <34>good8 <34>next"},
			want:    []string{"!1x", "<34>good", "<34>next"},
		},
		{
			name:    "invalid octet count token is reported whole",
			maxSize: 1024,
			chunks:  []string{"12ab34 6 <34>ok"},
			want:    []string{"!12ab34", "<34>ok"},
		},
		{
			name:    "too many digits",
			maxSize: 1024,
			chunks:  []string{"123456789012 6 <34>ok"},
			want:    []string{"!123456789012", "<34>ok"},
		},
		{
			name:    "pending frame ends where a chunk starts with a PRI",
			maxSize: 1024,
			chunks:  []string{"<34>msg1", "<34>msg2"},
			want:    []string{"<34>msg1"},
			pending: len("<34>msg2"),
		},
		{
			name:    "chunk without PRI continues the pending frame",
			maxSize: 1024,
			chunks:  []string{"<34>msg1", " <34>still msg1\n"},
			want:    []string{"<34>msg1 <34>still msg1"},
		},
		{
			name:    "chunk with an invalid PRI continues the pending frame",
			maxSize: 1024,
			chunks:  []string{"<34>a", "<999>b\n"},
			want:    []string{"<34>a<999>b"},
		},
		{
			name:    "oversized octet counted frame is skipped",
			maxSize: 10,
			chunks:  []string{"20 " + strings.Repeat("z", 15), strings.Repeat("z", 5) + "<34>ok\n"},
			want:    []string{"!20 ", "<34>ok"},
		},
		{
			name:    "oversized terminated frame",
			maxSize: 8,
			chunks:  []string{"<34>0123456789\n<34>ok\n"},
			want:    []string{"!<34>0123456789", "<34>ok"},
		},
		{
			name:    "oversized unterminated frame resyncs at the next line",
			maxSize: 8,
			chunks:  []string{"<34>0123456789", "abc\n<34>ok\n"},
			want:    []string{"!<34>0123456789", "<34>ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			framer := NewStreamFramer(tt.maxSize)
			var frames []Frame
			for _, chunk := range tt.chunks {
				frames = append(frames, framer.Feed([]byte(chunk))...)
			}
			assert.Equal(t, tt.want, frameStrings(frames))
			assert.Equal(t, tt.pending, framer.Pending())
		})
	}
}

// Framing errors carry a DecodeError.
func TestStreamFramerErrorType(t *testing.T) {
	framer := NewStreamFramer(4)
	frames := framer.Feed([]byte("<34>toolong\n"))
	require.Len(t, frames, 1)
	var decodeErr *DecodeError
	require.ErrorAs(t, frames[0].Err, &decodeErr)
	assert.Contains(t, decodeErr.Reason, "too large")
}

// Frames do not alias the framer buffer.
func TestStreamFramerFramesAreCopies(t *testing.T) {
	framer := NewStreamFramer(1024)
	chunk := []byte("<34>one\n")
	frames := framer.Feed(chunk)
	require.Len(t, frames, 1)
	chunk[1] = 'X'
	framer.Feed([]byte("<34>two\n"))
	assert.Equal(t, "<34>one", string(frames[0].Data))
}

// Flush returns an unterminated non-transparent frame.
func TestStreamFramerFlush(t *testing.T) {
	framer := NewStreamFramer(1024)
	assert.Empty(t, framer.Feed([]byte("<34>msg1")))
	assert.True(t, framer.Flushable())

	frame, ok := framer.Flush()
	require.True(t, ok)
	require.NoError(t, frame.Err)
	assert.Equal(t, "<34>msg1", string(frame.Data))
	assert.Equal(t, 0, framer.Pending())

	_, ok = framer.Flush()
	assert.False(t, ok)
}

// Flush never returns a partial octet counted frame.
func TestStreamFramerFlushOctetCounted(t *testing.T) {
	framer := NewStreamFramer(1024)
	assert.Empty(t, framer.Feed([]byte("10 <34>")))
	assert.False(t, framer.Flushable())
	_, ok := framer.Flush()
	assert.False(t, ok)
}

// Reset returns and drops the buffered bytes.
func TestStreamFramerReset(t *testing.T) {
	framer := NewStreamFramer(1024)
	framer.Feed([]byte("<34>partial"))
	assert.Equal(t, []byte("<34>partial"), framer.Reset())
	assert.Equal(t, 0, framer.Pending())
	assert.Empty(t, framer.Reset())
}

func TestFrameDatagram(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// datagram is the received datagram.
		datagram string

		// want is the expected frame ("!" prefix means error frame).
		want string
	}{
		{name: "plain", datagram: "<34>hello", want: "<34>hello"},
		{name: "trailer trimmed", datagram: "<34>hello\r\n\x00", want: "<34>hello"},
		{name: "empty", datagram: "", want: "!"},
		{name: "only trailer", datagram: "\n", want: "!"},
		{name: "too large", datagram: "<34>0123456789", want: "!<34>0123456789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := FrameDatagram([]byte(tt.datagram), 10)
			assert.Equal(t, []string{tt.want}, frameStrings([]Frame{frame}))
		})
	}
}
