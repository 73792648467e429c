package gameserver

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/udisondev/la2go/internal/crypto"
)

const packetHeaderSize = 2

// EncodeClientPacket encrypts payload in-place with gc and writes the
// 2-byte length header, returning the total framed length (header+payload).
// Precondition: payload lives at buf[packetHeaderSize : packetHeaderSize+payloadLen].
//
// Client↔GameServer framing: a 2-byte little-endian length header followed
// by the XOR-rolling-ciphered payload — no checksum, no block padding (the
// GameCrypt stream cipher needs neither).
func EncodeClientPacket(gc *crypto.GameCrypt, buf []byte, payloadLen int) (int, error) {
	if payloadLen < 0 || payloadLen > len(buf)-packetHeaderSize {
		return 0, fmt.Errorf("invalid payload length: %d", payloadLen)
	}

	gc.Encrypt(buf[packetHeaderSize : packetHeaderSize+payloadLen])

	total := packetHeaderSize + payloadLen
	binary.LittleEndian.PutUint16(buf[0:packetHeaderSize], uint16(total))

	return total, nil
}

// WriteClientPacket encodes payload (see EncodeClientPacket) and writes the
// framed packet to w directly, bypassing any per-client send queue.
func WriteClientPacket(w io.Writer, gc *crypto.GameCrypt, buf []byte, payloadLen int) error {
	total, err := EncodeClientPacket(gc, buf, payloadLen)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf[0:total]); err != nil {
		return fmt.Errorf("writing packet: %w", err)
	}
	return nil
}

// ReadClientPacket reads one framed packet from r into buf and returns the
// decrypted payload (a subslice of buf).
func ReadClientPacket(r io.Reader, gc *crypto.GameCrypt, buf []byte) ([]byte, error) {
	var header [packetHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("reading packet header: %w", err)
	}

	total := int(binary.LittleEndian.Uint16(header[:]))
	if total < packetHeaderSize {
		return nil, fmt.Errorf("invalid packet length: %d", total)
	}
	payloadLen := total - packetHeaderSize
	if payloadLen > len(buf) {
		return nil, fmt.Errorf("packet too large: %d bytes (buffer: %d)", payloadLen, len(buf))
	}

	payload := buf[0:payloadLen]
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("reading packet payload: %w", err)
	}

	gc.Decrypt(payload)
	return payload, nil
}
