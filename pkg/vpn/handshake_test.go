package vpn

import (
	"net"
	"testing"

	"github.com/rs/zerolog"

	"github.com/changlan/kytan/pkg/crypto"
	"github.com/changlan/kytan/pkg/protocol"
	"github.com/changlan/kytan/pkg/registry"
)

func loopbackConn(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestClientHandshakeAgainstFakeServer(t *testing.T) {
	envelope, err := crypto.NewEnvelope("password")
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	server := loopbackConn(t)
	client := loopbackConn(t)
	serverAddr := server.LocalAddr().(*net.UDPAddr)

	go func() {
		buf := make([]byte, 2048)
		n, from, err := server.ReadFromUDP(buf)
		if err != nil {
			return
		}
		plaintext, err := envelope.Open(buf[:n])
		if err != nil {
			return
		}
		msg, err := protocol.Decode(plaintext)
		if err != nil {
			return
		}
		if _, ok := msg.(protocol.Request); !ok {
			return
		}
		resp := protocol.Response{ID: 253, Token: 0xdeadbeef, DNS: "8.8.8.8"}
		encoded, err := protocol.Encode(resp)
		if err != nil {
			return
		}
		server.WriteToUDP(envelope.Seal(encoded), from)
	}()

	id, token, dns, err := clientHandshake(client, serverAddr, envelope)
	if err != nil {
		t.Fatalf("clientHandshake: %v", err)
	}
	if id != 253 || token != 0xdeadbeef || dns != "8.8.8.8" {
		t.Fatalf("got (%d, %d, %q), want (253, 0xdeadbeef, \"8.8.8.8\")", id, token, dns)
	}
}

func TestClientHandshakeRejectsWrongSender(t *testing.T) {
	envelope, _ := crypto.NewEnvelope("password")
	client := loopbackConn(t)
	impostor := loopbackConn(t)
	declaredServer := loopbackConn(t)
	declaredServerAddr := declaredServer.LocalAddr().(*net.UDPAddr)
	declaredServer.Close() // nothing ever listens here; impostor answers instead

	go func() {
		buf := make([]byte, 2048)
		n, from, err := impostor.ReadFromUDP(buf)
		if err != nil {
			return
		}
		_ = n
		resp := protocol.Response{ID: 10, Token: 1, DNS: "1.1.1.1"}
		encoded, _ := protocol.Encode(resp)
		impostor.WriteToUDP(envelope.Seal(encoded), from)
	}()

	// Send the Request to the impostor directly (simulating an attacker who
	// intercepts and answers in the real server's place), but tell
	// clientHandshake to expect declaredServerAddr.
	reqBytes, _ := protocol.Encode(protocol.Request{})
	client.WriteToUDP(envelope.Seal(reqBytes), impostor.LocalAddr().(*net.UDPAddr))

	if _, _, _, err := clientHandshake(client, declaredServerAddr, envelope); err == nil {
		t.Fatal("expected clientHandshake to reject a reply from an unexpected sender")
	}
}

func TestHandleRequestRegistersAndReplies(t *testing.T) {
	envelope, _ := crypto.NewEnvelope("password")
	reg := registry.New()
	server := loopbackConn(t)
	client := loopbackConn(t)
	log := zerolog.Nop()

	handleRequest(client.LocalAddr().(*net.UDPAddr), server, envelope, reg, "8.8.8.8", log)

	buf := make([]byte, 2048)
	n, _, err := client.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	plaintext, err := envelope.Open(buf[:n])
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	msg, err := protocol.Decode(plaintext)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	resp, ok := msg.(protocol.Response)
	if !ok {
		t.Fatalf("expected Response, got %v", msg.Kind())
	}
	if resp.ID != 253 {
		t.Fatalf("expected first assigned id 253, got %d", resp.ID)
	}
	if resp.DNS != "8.8.8.8" {
		t.Fatalf("expected dns 8.8.8.8, got %q", resp.DNS)
	}
	if !reg.Authenticate(resp.ID, resp.Token) {
		t.Fatal("registry does not authenticate the token it just handed out")
	}
}
