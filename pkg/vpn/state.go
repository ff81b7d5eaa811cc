package vpn

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

var (
	interrupted atomic.Bool
	connected   atomic.Bool
	listening   atomic.Bool
)

// Interrupted reports whether shutdown has been requested.
func Interrupted() bool { return interrupted.Load() }

// Connected reports whether a client session has completed its handshake.
func Connected() bool { return connected.Load() }

// SetConnected updates the diagnostic connected flag.
func SetConnected(v bool) { connected.Store(v) }

// Listening reports whether a server has bound its socket and is ready to
// accept registrations.
func Listening() bool { return listening.Load() }

// SetListening updates the diagnostic listening flag.
func SetListening(v bool) { listening.Store(v) }

// WatchSignals arranges for SIGINT and SIGTERM to set the interrupted flag
// exactly once, and returns a channel that is closed the moment that
// happens. Engines select on this channel alongside their ioloop events so
// shutdown is observed without polling.
func WatchSignals() <-chan struct{} {
	done := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		interrupted.Store(true)
		close(done)
	}()
	return done
}
