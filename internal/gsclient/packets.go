package gsclient

import (
	"fmt"
	"unicode/utf16"

	"github.com/udisondev/la2go/internal/gslistener/packet"
	"github.com/udisondev/la2go/internal/login"
)

// HostEntry is one (subnet, host) pair advertised in GameServerAuth. An
// empty Hosts list tells the LS to resolve clients by the GS↔LS connection's
// own IP instead.
type HostEntry struct {
	Subnet string
	Host   string
}

// ServerStatus attribute IDs (the LS-side handler switches on the same
// values, defined in the gameserver package as ServerListStatus..ServerAge).
const (
	AttrServerListStatus = 0x01
	AttrServerType       = 0x02
	AttrSquareBracket    = 0x03
	AttrMaxPlayers       = 0x04
	AttrServerAge        = 0x06
)

// Attribute is one (id, value) pair reported in ServerStatus.
type Attribute struct {
	ID    int32
	Value int32
}

func putString(buf []byte, pos int, s string) int {
	for _, r := range utf16.Encode([]rune(s)) {
		buf[pos] = byte(r)
		buf[pos+1] = byte(r >> 8)
		pos += 2
	}
	buf[pos] = 0
	buf[pos+1] = 0
	return pos + 2
}

// buildBlowFishKey encodes opcode 0x00: the RSA-encrypted Blowfish key block.
func buildBlowFishKey(buf []byte, encryptedKey []byte) int {
	buf[0] = opcodeBlowFishKey
	copy(buf[1:], encryptedKey)
	return 1 + len(encryptedKey)
}

// buildGameServerAuth encodes opcode 0x01: the registration request.
func buildGameServerAuth(buf []byte, id byte, acceptAlternate bool, maxPlayers int32, port int16, hosts []HostEntry, hexID []byte) int {
	pos := 0
	buf[pos] = opcodeGameServerAuth
	pos++

	buf[pos] = id
	pos++

	if acceptAlternate {
		buf[pos] = 1
	}
	pos++

	buf[pos] = 0 // reserved
	pos++

	buf[pos] = byte(maxPlayers)
	buf[pos+1] = byte(maxPlayers >> 8)
	pos += 2

	buf[pos] = byte(port)
	buf[pos+1] = byte(port >> 8)
	pos += 2

	buf[pos] = byte(len(hosts))
	pos++
	for _, h := range hosts {
		pos = putString(buf, pos, h.Subnet)
		pos = putString(buf, pos, h.Host)
	}

	copy(buf[pos:], hexID)
	pos += len(hexID)

	return pos
}

// buildPlayerInGame encodes opcode 0x02: accounts that just entered the world.
func buildPlayerInGame(buf []byte, accounts []string) int {
	pos := 0
	buf[pos] = opcodePlayerInGame
	pos++
	buf[pos] = byte(len(accounts))
	buf[pos+1] = byte(len(accounts) >> 8)
	pos += 2
	for _, a := range accounts {
		pos = putString(buf, pos, a)
	}
	return pos
}

// buildPlayerLogout encodes opcode 0x03: an account that left the world.
func buildPlayerLogout(buf []byte, account string) int {
	buf[0] = opcodePlayerLogout
	return putString(buf, 1, account)
}

// buildPlayerAuthRequest encodes opcode 0x05: a session-key validation request.
func buildPlayerAuthRequest(buf []byte, account string, sk login.SessionKey) int {
	pos := 0
	buf[pos] = opcodePlayerAuthRequest
	pos++
	pos = putString(buf, pos, account)

	putInt32(buf, pos, sk.PlayOkID1)
	pos += 4
	putInt32(buf, pos, sk.PlayOkID2)
	pos += 4
	putInt32(buf, pos, sk.LoginOkID1)
	pos += 4
	putInt32(buf, pos, sk.LoginOkID2)
	pos += 4

	return pos
}

// buildServerStatus encodes opcode 0x06: server attribute updates.
func buildServerStatus(buf []byte, attrs []Attribute) int {
	pos := 0
	buf[pos] = opcodeServerStatus
	pos++
	putInt32(buf, pos, int32(len(attrs)))
	pos += 4
	for _, a := range attrs {
		putInt32(buf, pos, a.ID)
		pos += 4
		putInt32(buf, pos, a.Value)
		pos += 4
	}
	return pos
}

// buildReplyCharacters encodes opcode 0x08: the answer to a RequestChars call.
func buildReplyCharacters(buf []byte, account string, chars int, toDelete []string) int {
	pos := 0
	buf[pos] = opcodeReplyCharacters
	pos++
	pos = putString(buf, pos, account)
	buf[pos] = byte(chars)
	pos++
	buf[pos] = byte(len(toDelete))
	pos++
	for _, name := range toDelete {
		pos = putString(buf, pos, name)
	}
	return pos
}

func putInt32(buf []byte, pos int, v int32) {
	buf[pos] = byte(v)
	buf[pos+1] = byte(v >> 8)
	buf[pos+2] = byte(v >> 16)
	buf[pos+3] = byte(v >> 24)
}

// parseInitLS decodes opcode 0x00 from the LS: protocol revision and the
// raw (unscrambled) RSA-512 modulus.
func parseInitLS(body []byte) (revision int32, modulus []byte, err error) {
	r := packet.NewReader(body)
	revision, err = r.ReadInt()
	if err != nil {
		return 0, nil, fmt.Errorf("reading revision: %w", err)
	}
	keySize, err := r.ReadInt()
	if err != nil {
		return 0, nil, fmt.Errorf("reading key size: %w", err)
	}
	modulus, err = r.ReadBytes(int(keySize))
	if err != nil {
		return 0, nil, fmt.Errorf("reading modulus: %w", err)
	}
	return revision, modulus, nil
}

// parseAuthResponse decodes opcode 0x02: registration accepted.
func parseAuthResponse(body []byte) (serverID byte, serverName string, err error) {
	r := packet.NewReader(body)
	serverID, err = r.ReadByte()
	if err != nil {
		return 0, "", fmt.Errorf("reading server id: %w", err)
	}
	serverName, err = r.ReadString()
	if err != nil {
		return 0, "", fmt.Errorf("reading server name: %w", err)
	}
	return serverID, serverName, nil
}

// parseLoginServerFail decodes opcode 0x01: registration rejected.
func parseLoginServerFail(body []byte) (reason byte, err error) {
	if len(body) < 1 {
		return 0, fmt.Errorf("LoginServerFail packet too short")
	}
	return body[0], nil
}

// parsePlayerAuthResponse decodes opcode 0x03: the LS's answer to a
// PlayerAuthRequest this GS sent.
func parsePlayerAuthResponse(body []byte) (account string, success bool, err error) {
	r := packet.NewReader(body)
	account, err = r.ReadString()
	if err != nil {
		return "", false, fmt.Errorf("reading account: %w", err)
	}
	result, err := r.ReadByte()
	if err != nil {
		return "", false, fmt.Errorf("reading result: %w", err)
	}
	return account, result != 0, nil
}

// parseKickPlayer decodes opcode 0x04: the LS asking this GS to drop a
// stale session for account before accepting its new login.
func parseKickPlayer(body []byte) (account string, err error) {
	r := packet.NewReader(body)
	return r.ReadString()
}

// parseRequestChars decodes opcode 0x05: the LS asking for an account's
// character count.
func parseRequestChars(body []byte) (account string, err error) {
	r := packet.NewReader(body)
	return r.ReadString()
}
