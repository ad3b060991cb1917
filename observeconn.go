// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bassosimone/safeconn"
)

// NewObserveConnFunc returns a new [*ObserveConnFunc] with default logging.
//
// The cfg argument contains the common configuration for syslisten operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewObserveConnFunc(cfg *Config, logger SLogger) *ObserveConnFunc {
	return &ObserveConnFunc{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// ObserveConnFunc observes an accepted [net.Conn] to log I/O operations.
//
// A [*Listener] wraps every accepted stream connection so that reads,
// idle-flush deadline changes, and the final close show up in the debug
// log next to the syslog messages they carried. Shutdown is enforced by
// [CancelWatchFunc], which closes the connection when the listener stops.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type ObserveConnFunc struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewObserveConnFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewObserveConnFunc] to the user-provided logger.
	Logger SLogger

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewObserveConnFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[net.Conn, net.Conn] = &ObserveConnFunc{}

// Call invokes the [*ObserveConnFunc] to observe a [net.Conn].
func (op *ObserveConnFunc) Call(ctx context.Context, conn net.Conn) (net.Conn, error) {
	observed := &observedConn{
		Conn:     conn,
		laddr:    safeconn.LocalAddr(conn),
		op:       op,
		protocol: safeconn.Network(conn),
		raddr:    safeconn.RemoteAddr(conn),
		t0:       op.TimeNow(),
	}
	return observed, nil
}

// observedConn observes a [net.Conn].
//
// Writes and write deadlines are not logged: a syslog receiver never
// writes to its clients.
type observedConn struct {
	net.Conn
	bytesRead atomic.Int64
	closeonce sync.Once
	laddr     string
	op        *ObserveConnFunc
	protocol  string
	raddr     string
	reads     atomic.Int64
	t0        time.Time
}

// Close implements [net.Conn].
//
// Subsequent calls return [net.ErrClosed], consistent with Go's standard
// library behavior for closed connections.
func (c *observedConn) Close() (err error) {
	err = net.ErrClosed
	c.closeonce.Do(func() {
		t0 := c.op.TimeNow()
		c.op.Logger.Info(
			"closeStart",
			slog.String("localAddr", c.laddr),
			slog.String("protocol", c.protocol),
			slog.String("remoteAddr", c.raddr),
			slog.Time("t", t0),
		)

		err = c.Conn.Close()

		c.op.Logger.Info(
			"closeDone",
			slog.Any("err", err),
			slog.String("errClass", c.op.ErrClassifier.Classify(err)),
			slog.Int64("ioBytesRead", c.bytesRead.Load()),
			slog.Int64("ioReads", c.reads.Load()),
			slog.String("localAddr", c.laddr),
			slog.String("protocol", c.protocol),
			slog.String("remoteAddr", c.raddr),
			slog.Time("t0", c.t0),
			slog.Time("t", c.op.TimeNow()),
		)
	})
	return
}

// Read implements [net.Conn].
func (c *observedConn) Read(buf []byte) (int, error) {
	t0 := c.op.TimeNow()
	count, err := c.Conn.Read(buf)
	c.bytesRead.Add(int64(count))
	c.reads.Add(1)

	c.op.Logger.Debug(
		"readDone",
		slog.Int("ioBufferSize", len(buf)),
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", c.op.ErrClassifier.Classify(err)),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t0", t0),
		slog.Time("t", c.op.TimeNow()),
	)

	return count, err
}

// SetReadDeadline implements [net.Conn].
func (c *observedConn) SetReadDeadline(t time.Time) error {
	c.op.Logger.Debug(
		"setReadDeadline",
		slog.Time("deadline", t),
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t", c.op.TimeNow()),
	)
	return c.Conn.SetReadDeadline(t)
}
