package vpn

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/changlan/kytan/pkg/crypto"
	"github.com/changlan/kytan/pkg/ioloop"
	"github.com/changlan/kytan/pkg/layer3"
	"github.com/changlan/kytan/pkg/protocol"
	"github.com/changlan/kytan/pkg/registry"
	"github.com/changlan/kytan/pkg/routing"
)

// ServerConfig is everything the server engine needs to run.
type ServerConfig struct {
	Listen string
	Port   uint16
	Key    string
	DNS    string
}

// pruneInterval is how often the server's Tick source fires to run
// registry housekeeping and give the shutdown check a bounded latency
// even if neither fd is ever ready.
const pruneInterval = time.Second

// RunServer drives the server engine: bring up the virtual interface,
// bind the UDP socket, and run the registration/forwarder loop until
// shutdown is requested.
func RunServer(cfg ServerConfig, log zerolog.Logger) error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("vpn: server requires linux, running on %s", runtime.GOOS)
	}

	if ip := fetchPublicIP(context.Background()); ip != "" {
		log.Info().Str("public_ip", ip).Msg("startup")
	}

	if err := routing.EnableIPv4Forwarding(); err != nil {
		return fmt.Errorf("vpn: enable ip forwarding: %w", err)
	}

	envelope, err := crypto.NewEnvelope(cfg.Key)
	if err != nil {
		return fmt.Errorf("vpn: derive key: %w", err)
	}

	dev, err := layer3.Create(0)
	if err != nil {
		return fmt.Errorf("vpn: create tun device: %w", err)
	}
	defer dev.Close()

	const serverID protocol.Id = 1
	if err := dev.Up(serverID); err != nil {
		return fmt.Errorf("vpn: bring up tun device: %w", err)
	}
	log.Info().Str("iface", dev.Name()).Msg("virtual interface up")

	listenIP := net.ParseIP(cfg.Listen)
	if listenIP == nil {
		return fmt.Errorf("vpn: invalid listen address %q", cfg.Listen)
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: listenIP, Port: int(cfg.Port)})
	if err != nil {
		return fmt.Errorf("vpn: bind udp socket: %w", err)
	}
	defer conn.Close()

	SetListening(true)
	defer SetListening(false)
	log.Info().Str("listen", conn.LocalAddr().String()).Msg("listening")

	reg := registry.New()
	return serverForward(conn, dev, envelope, reg, cfg.DNS, log)
}

func serverForward(conn *net.UDPConn, dev *layer3.Device, envelope *crypto.Envelope, reg *registry.Registry, dns string, log zerolog.Logger) error {
	loop := ioloop.New(256)
	loop.WatchUDP(conn, 2048)
	loop.WatchTun(dev, layer3.MTU+64)
	loop.WatchTicker(pruneInterval)
	done := WatchSignals()

	for {
		select {
		case <-done:
			log.Info().Msg("interrupted, shutting down")
			return nil

		case ev := <-loop.Events():
			switch ev.Kind {
			case ioloop.Tick:
				for _, id := range reg.Prune(time.Now()) {
					log.Info().Uint8("id", id).Msg("registration expired")
				}

			case ioloop.FromSocket:
				if ev.Err != nil {
					return nil
				}
				handleServerDatagram(ev, conn, dev, envelope, reg, dns, log)

			case ioloop.FromTun:
				if ev.Err != nil {
					return nil
				}
				handleServerPacket(ev.Data, conn, envelope, reg, log)
			}
		}
	}
}

func handleServerDatagram(ev ioloop.Event, conn *net.UDPConn, dev *layer3.Device, envelope *crypto.Envelope, reg *registry.Registry, dns string, log zerolog.Logger) {
	plaintext, err := envelope.Open(ev.Data)
	if err != nil {
		log.Warn().Err(err).Msg("dropping datagram: authentication failed")
		return
	}
	msg, err := protocol.Decode(plaintext)
	if err != nil {
		log.Warn().Err(err).Msg("dropping datagram: decode failed")
		return
	}

	switch m := msg.(type) {
	case protocol.Request:
		handleRequest(ev.Addr, conn, envelope, reg, dns, log)

	case protocol.Response:
		log.Warn().Stringer("from", ev.Addr).Msg("dropping Response received on server side")

	case protocol.Data:
		entry, ok := reg.Lookup(m.ID)
		if !ok {
			log.Warn().Uint8("id", m.ID).Msg("dropping datagram: unknown id")
			return
		}
		if entry.Token != m.Token {
			log.Warn().Uint8("id", m.ID).Msg("dropping datagram: token mismatch")
			return
		}
		packet, err := protocol.Decompress(m.Payload)
		if err != nil {
			log.Warn().Err(err).Msg("dropping datagram: decompression failed")
			return
		}
		if err := writeFull(dev, packet); err != nil {
			log.Warn().Err(err).Msg("write to tun failed")
		}
	}
}

func handleRequest(from *net.UDPAddr, conn *net.UDPConn, envelope *crypto.Envelope, reg *registry.Registry, dns string, log zerolog.Logger) {
	token := newToken()
	id, err := reg.Register(token, from)
	if err != nil {
		log.Warn().Err(err).Stringer("from", from).Msg("dropping Request: identity pool exhausted")
		return
	}

	resp := protocol.Response{ID: id, Token: token, DNS: dns}
	encoded, err := protocol.Encode(resp)
	if err != nil {
		log.Warn().Err(err).Msg("encode Response failed")
		return
	}
	if err := sendToFull(conn, from, envelope.Seal(encoded)); err != nil {
		log.Warn().Err(err).Msg("send Response failed")
		return
	}
	log.Info().Uint8("id", id).Stringer("peer", from).Msg("registered client")
}

// handleServerPacket implements the octet-19 dispatch shortcut: the
// destination address's last octet is read directly out of the IPv4
// header rather than parsed, because the virtual subnet is fixed at
// 10.10.10.0/24 and that octet alone identifies the registered client.
func handleServerPacket(packet []byte, conn *net.UDPConn, envelope *crypto.Envelope, reg *registry.Registry, log zerolog.Logger) {
	if len(packet) < 20 {
		log.Warn().Int("len", len(packet)).Msg("dropping short ip packet from tun")
		return
	}
	clientID := packet[19]

	entry, ok := reg.Lookup(clientID)
	if !ok {
		log.Warn().Uint8("id", clientID).Msg("dropping packet: destination not registered")
		return
	}

	msg := protocol.Data{ID: clientID, Token: entry.Token, Payload: protocol.Compress(packet)}
	encoded, err := protocol.Encode(msg)
	if err != nil {
		log.Warn().Err(err).Msg("encode Data failed")
		return
	}
	if err := sendToFull(conn, entry.Addr, envelope.Seal(encoded)); err != nil {
		log.Warn().Err(err).Msg("send to client failed")
	}
}

func newToken() protocol.Token {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("vpn: reading random token: %v", err))
	}
	return binary.BigEndian.Uint64(b[:])
}
