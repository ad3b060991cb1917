// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// acceptLoop accepts stream connections until the listening socket is closed.
func (l *Listener) acceptLoop(ctx context.Context, ln net.Listener, setup Func[net.Conn, net.Conn], registry *Registry) {
	defer l.wg.Done()
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if isClosedErr(err) || ctx.Err() != nil {
				return
			}
			l.dispatcher.Dispatch(Event{
				Kind: EventTransportError,
				Peer: Peer{LocalAddr: ln.Addr().String(), Protocol: l.protocol()},
				Err:  err,
			})
			var ok bool
			if delay, ok = retryDelay(ctx, delay); !ok {
				return
			}
			continue
		}
		delay = 0
		l.wg.Add(1)
		go l.serveStream(ctx, conn, setup, registry)
	}
}

// serveStream owns an accepted connection until it ends.
//
// A setup failure, such as a failed TLS handshake, is a transport error
// of this connection only.
func (l *Listener) serveStream(ctx context.Context, raw net.Conn, setup Func[net.Conn, net.Conn], registry *Registry) {
	defer l.wg.Done()

	conn, err := setup.Call(ctx, raw)
	if err != nil {
		raw.Close()
		l.dispatcher.Dispatch(Event{
			Kind: EventTransportError,
			Peer: newConnPeer("", l.protocol(), raw),
			Err:  err,
		})
		return
	}

	handle, ok := registry.OnConnect(conn, l.protocol(), NewStreamFramer(l.opts.MaxMessageSize))
	if !ok {
		conn.Close()
		return
	}
	defer func() {
		conn.Close()
		registry.OnDisconnect(handle)
	}()
	l.readStream(handle)
}

// readStream reads, frames, and decodes until EOF or a read error.
//
// An unterminated non-transparent frame is flushed after the connection
// has been idle for [Config.IdleFlushTimeout].
func (l *Listener) readStream(handle *ConnectionHandle) {
	var (
		buf         = make([]byte, l.opts.ReadBufferSize)
		conn        = handle.Conn()
		decoder     = NewDecoder()
		framer      = handle.Framer()
		idleFlush   = l.opts.IdleFlushTimeout > 0
		deadlineSet bool
	)

	for {
		switch {
		case idleFlush && framer.Flushable():
			conn.SetReadDeadline(time.Now().Add(l.opts.IdleFlushTimeout))
			deadlineSet = true
		case deadlineSet:
			conn.SetReadDeadline(time.Time{})
			deadlineSet = false
		}

		count, err := conn.Read(buf)
		for _, frame := range framer.Feed(buf[:count]) {
			l.emitFrame(decoder, handle.Peer, frame)
		}

		switch {
		case err == nil:
			continue

		case errors.Is(err, os.ErrDeadlineExceeded):
			if frame, ok := framer.Flush(); ok {
				l.emitFrame(decoder, handle.Peer, frame)
			}
			continue

		case errors.Is(err, io.EOF):
			if l.opts.FlushOnClose {
				if frame, ok := framer.Flush(); ok {
					l.emitFrame(decoder, handle.Peer, frame)
				}
			}

		case isClosedErr(err):
			// closed locally

		default:
			l.dispatcher.Dispatch(Event{Kind: EventTransportError, Peer: handle.Peer, Err: err})
		}

		if dropped := framer.Reset(); len(dropped) > 0 {
			l.dispatcher.Dispatch(Event{Kind: EventPartialFrameDiscarded, Peer: handle.Peer, Raw: dropped})
		}
		return
	}
}
