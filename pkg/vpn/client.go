package vpn

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"

	"github.com/changlan/kytan/pkg/crypto"
	"github.com/changlan/kytan/pkg/ioloop"
	"github.com/changlan/kytan/pkg/layer3"
	"github.com/changlan/kytan/pkg/protocol"
	"github.com/changlan/kytan/pkg/routing"
)

// ClientConfig is everything the client engine needs to run a session.
type ClientConfig struct {
	ServerHost     string
	ServerPort     uint16
	Key            string
	NoDefaultRoute bool
}

// RunClient drives a client session end to end: Init, Handshaking,
// Established, and Closing, in the order the engine's state machine
// names them. It returns once the session has fully torn down, either
// because of a fatal error or because shutdown was requested.
func RunClient(cfg ClientConfig, log zerolog.Logger) error {
	serverAddr, err := resolveServer(cfg.ServerHost, cfg.ServerPort)
	if err != nil {
		return fmt.Errorf("vpn: resolve server: %w", err)
	}

	envelope, err := crypto.NewEnvelope(cfg.Key)
	if err != nil {
		return fmt.Errorf("vpn: derive key: %w", err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return fmt.Errorf("vpn: bind udp socket: %w", err)
	}
	defer conn.Close()

	log.Info().Str("server", serverAddr.String()).Msg("handshaking")
	id, token, dns, err := clientHandshake(conn, serverAddr, envelope)
	if err != nil {
		return fmt.Errorf("vpn: handshake: %w", err)
	}
	SetConnected(true)
	defer SetConnected(false)
	log.Info().Uint8("id", id).Str("dns", dns).Msg("registered")

	dev, err := layer3.Create(0)
	if err != nil {
		return fmt.Errorf("vpn: create tun device: %w", err)
	}
	defer dev.Close()

	if err := dev.Up(id); err != nil {
		return fmt.Errorf("vpn: bring up tun device: %w", err)
	}
	log.Info().Str("iface", dev.Name()).Msg("virtual interface up")

	if err := routing.SetDNS(dns); err != nil {
		return fmt.Errorf("vpn: set dns: %w", err)
	}

	gw, err := routing.Acquire(serverAddr.IP.String(), "10.10.10.1", !cfg.NoDefaultRoute)
	if err != nil {
		return fmt.Errorf("vpn: acquire routing: %w", err)
	}
	defer func() {
		for _, err := range gw.Release() {
			log.Warn().Err(err).Msg("routing cleanup")
		}
	}()

	return clientForward(conn, dev, serverAddr, envelope, id, token, log)
}

// clientHandshake performs the Init→Handshaking transition: send a sealed
// Request, block on one recv_from, and validate the reply came from the
// server and decodes to a Response.
func clientHandshake(conn *net.UDPConn, serverAddr *net.UDPAddr, envelope *crypto.Envelope) (id protocol.Id, token protocol.Token, dns string, err error) {
	reqBytes, err := protocol.Encode(protocol.Request{})
	if err != nil {
		return 0, 0, "", err
	}
	if _, err := conn.WriteToUDP(envelope.Seal(reqBytes), serverAddr); err != nil {
		return 0, 0, "", fmt.Errorf("send request: %w", err)
	}

	buf := make([]byte, 2048)
	n, from, err := conn.ReadFromUDP(buf)
	if err != nil {
		return 0, 0, "", fmt.Errorf("recv response: %w", err)
	}
	if !from.IP.Equal(serverAddr.IP) || from.Port != serverAddr.Port {
		return 0, 0, "", fmt.Errorf("response from unexpected sender %s", from)
	}

	plaintext, err := envelope.Open(buf[:n])
	if err != nil {
		return 0, 0, "", err
	}
	msg, err := protocol.Decode(plaintext)
	if err != nil {
		return 0, 0, "", err
	}
	resp, ok := msg.(protocol.Response)
	if !ok {
		return 0, 0, "", fmt.Errorf("expected Response, got %v", msg.Kind())
	}
	return resp.ID, resp.Token, resp.DNS, nil
}

// clientForward is the Established-state bidirectional forwarder loop.
func clientForward(conn *net.UDPConn, dev *layer3.Device, serverAddr *net.UDPAddr, envelope *crypto.Envelope, id protocol.Id, token protocol.Token, log zerolog.Logger) error {
	loop := ioloop.New(64)
	loop.WatchUDP(conn, 2048)
	loop.WatchTun(dev, layer3.MTU+64)
	done := WatchSignals()

	for {
		select {
		case <-done:
			log.Info().Msg("interrupted, shutting down")
			return nil

		case ev := <-loop.Events():
			switch ev.Kind {
			case ioloop.FromSocket:
				if ev.Err != nil {
					return nil
				}
				handleClientDatagram(ev, dev, envelope, token, log)

			case ioloop.FromTun:
				if ev.Err != nil {
					return nil
				}
				if err := sendDataPacket(conn, serverAddr, envelope, id, token, ev.Data); err != nil {
					log.Warn().Err(err).Msg("send to server failed")
				}
			}
		}
	}
}

func handleClientDatagram(ev ioloop.Event, dev *layer3.Device, envelope *crypto.Envelope, token protocol.Token, log zerolog.Logger) {
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

	data, ok := msg.(protocol.Data)
	if !ok {
		log.Warn().Str("kind", msg.Kind().String()).Msg("dropping unexpected message on data path")
		return
	}
	if data.Token != token {
		log.Warn().Msg("dropping datagram: token mismatch")
		return
	}

	packet, err := protocol.Decompress(data.Payload)
	if err != nil {
		log.Warn().Err(err).Msg("dropping datagram: decompression failed")
		return
	}
	if err := writeFull(dev, packet); err != nil {
		log.Warn().Err(err).Msg("write to tun failed")
	}
}

func sendDataPacket(conn *net.UDPConn, dst *net.UDPAddr, envelope *crypto.Envelope, id protocol.Id, token protocol.Token, packet []byte) error {
	msg := protocol.Data{ID: id, Token: token, Payload: protocol.Compress(packet)}
	encoded, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return sendToFull(conn, dst, envelope.Seal(encoded))
}

func resolveServer(host string, port uint16) (*net.UDPAddr, error) {
	if ip := net.ParseIP(host); ip != nil {
		return &net.UDPAddr{IP: ip, Port: int(port)}, nil
	}
	ips, err := net.LookupHost(host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses found for %s", host)
	}
	ip := net.ParseIP(ips[0])
	if ip == nil {
		return nil, fmt.Errorf("unparseable address %q for %s", ips[0], host)
	}
	return &net.UDPAddr{IP: ip, Port: int(port)}, nil
}
