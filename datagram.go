// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

import (
	"context"
	"net"
	"time"
)

// serveDatagrams reads datagrams until the socket is closed. Each
// datagram carries exactly one message.
func (l *Listener) serveDatagrams(ctx context.Context, pconn net.PacketConn) {
	defer l.wg.Done()

	// One extra byte so that truncated datagrams are detected as too large.
	buf := make([]byte, max(l.opts.ReadBufferSize, l.opts.MaxMessageSize+1))
	decoder := NewDecoder()
	localAddr := pconn.LocalAddr().String()
	var delay time.Duration

	for {
		count, addr, err := pconn.ReadFrom(buf)
		if err != nil {
			if isClosedErr(err) || ctx.Err() != nil {
				return
			}
			l.dispatcher.Dispatch(Event{
				Kind: EventTransportError,
				Peer: newPeer("", l.protocol(), localAddr, addrString(addr)),
				Err:  err,
			})
			var ok bool
			if delay, ok = retryDelay(ctx, delay); !ok {
				return
			}
			continue
		}
		delay = 0
		peer := newPeer("", l.protocol(), localAddr, addrString(addr))
		l.emitFrame(decoder, peer, FrameDatagram(buf[:count], l.opts.MaxMessageSize))
	}
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
