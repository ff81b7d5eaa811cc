package protocol

import (
	"encoding/binary"
	"fmt"
)

// Encode serializes a Message into the bytes that go directly into a UDP
// datagram, before the crypto envelope seals them. There is no outer length
// prefix: one Message fills exactly one datagram.
func Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case Request:
		return []byte{byte(KindRequest)}, nil

	case Response:
		dns := []byte(m.DNS)
		if len(dns) > 0xFFFF {
			return nil, fmt.Errorf("protocol: dns field too long (%d bytes)", len(dns))
		}
		buf := make([]byte, 0, 1+1+8+2+len(dns))
		buf = append(buf, byte(KindResponse))
		buf = append(buf, m.ID)
		buf = binary.BigEndian.AppendUint64(buf, m.Token)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(dns)))
		buf = append(buf, dns...)
		return buf, nil

	case Data:
		if len(m.Payload) > 0xFFFFFFFF {
			return nil, fmt.Errorf("protocol: data payload too long (%d bytes)", len(m.Payload))
		}
		buf := make([]byte, 0, 1+1+8+4+len(m.Payload))
		buf = append(buf, byte(KindData))
		buf = append(buf, m.ID)
		buf = binary.BigEndian.AppendUint64(buf, m.Token)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Payload)))
		buf = append(buf, m.Payload...)
		return buf, nil

	default:
		return nil, fmt.Errorf("protocol: unknown message type %T", msg)
	}
}

// Decode parses a datagram's plaintext bytes (already opened by the crypto
// envelope) back into a Message. It returns an error on truncated input or
// an unrecognized tag.
func Decode(buf []byte) (Message, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("protocol: empty message")
	}

	switch Kind(buf[0]) {
	case KindRequest:
		return Request{}, nil

	case KindResponse:
		const head = 1 + 1 + 8 + 2
		if len(buf) < head {
			return nil, fmt.Errorf("protocol: truncated Response header")
		}
		id := buf[1]
		token := binary.BigEndian.Uint64(buf[2:10])
		dnsLen := int(binary.BigEndian.Uint16(buf[10:12]))
		if len(buf) < head+dnsLen {
			return nil, fmt.Errorf("protocol: truncated Response dns field")
		}
		dns := string(buf[head : head+dnsLen])
		return Response{ID: id, Token: token, DNS: dns}, nil

	case KindData:
		const head = 1 + 1 + 8 + 4
		if len(buf) < head {
			return nil, fmt.Errorf("protocol: truncated Data header")
		}
		id := buf[1]
		token := binary.BigEndian.Uint64(buf[2:10])
		dataLen := int(binary.BigEndian.Uint32(buf[10:14]))
		if len(buf) < head+dataLen {
			return nil, fmt.Errorf("protocol: truncated Data payload")
		}
		payload := make([]byte, dataLen)
		copy(payload, buf[head:head+dataLen])
		return Data{ID: id, Token: token, Payload: payload}, nil

	default:
		return nil, fmt.Errorf("protocol: unknown message tag %d", buf[0])
	}
}
