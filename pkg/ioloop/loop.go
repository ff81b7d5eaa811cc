// Package ioloop demultiplexes the two I/O sources a tunnel engine ever
// waits on, the TUN device and the UDP socket, into a single ordered
// stream of events a session engine processes one at a time.
//
// The original engine this mirrors waits on both file descriptors in one
// poller thread. A raw TUN file descriptor isn't available through this
// module's TUN device library, so this package gets the same
// single-consumer, one-reader-per-source ordering by giving each source
// its own blocking-read goroutine and fanning their results into one
// channel; the engine still processes exactly one event at a time, off a
// single select loop.
package ioloop

import (
	"net"
	"time"
)

// SourceKind identifies which source produced an Event.
type SourceKind int

const (
	FromSocket SourceKind = iota
	FromTun
	Tick
)

// Reader is the minimal surface ioloop needs from the TUN device.
type Reader interface {
	Read(p []byte) (int, error)
}

// Event is one delivery from a watched source. Err is set instead of Data
// when the source's Read failed, which for both sources means "the
// underlying fd was closed" during shutdown.
type Event struct {
	Kind SourceKind
	Data []byte
	Addr *net.UDPAddr
	Err  error
}

// Loop fans in events from whatever sources have been registered with
// WatchUDP, WatchTun and WatchTicker.
type Loop struct {
	events chan Event
}

// New builds a Loop with the given event channel buffer size.
func New(buffer int) *Loop {
	return &Loop{events: make(chan Event, buffer)}
}

// Events returns the channel a session engine should range or select over.
func (l *Loop) Events() <-chan Event {
	return l.events
}

// WatchUDP starts a goroutine that blocks on conn.ReadFromUDP and emits one
// FromSocket Event per datagram, stopping the first time Read errors.
func (l *Loop) WatchUDP(conn *net.UDPConn, bufSize int) {
	go func() {
		buf := make([]byte, bufSize)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				l.events <- Event{Kind: FromSocket, Err: err}
				return
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			l.events <- Event{Kind: FromSocket, Data: data, Addr: addr}
		}
	}()
}

// WatchTun starts a goroutine that blocks on r.Read and emits one FromTun
// Event per packet, stopping the first time Read errors.
func (l *Loop) WatchTun(r Reader, bufSize int) {
	go func() {
		buf := make([]byte, bufSize)
		for {
			n, err := r.Read(buf)
			if err != nil {
				l.events <- Event{Kind: FromTun, Err: err}
				return
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			l.events <- Event{Kind: FromTun, Data: data}
		}
	}()
}

// WatchTicker starts a goroutine that emits a Tick event every interval,
// giving the engine a chance to run periodic housekeeping (registry
// pruning) without a third real fd to poll.
func (l *Loop) WatchTicker(interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for range t.C {
			l.events <- Event{Kind: Tick}
		}
	}()
}
