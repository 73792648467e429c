// Package gsclient is the GameServer's own connection to the LoginServer: it
// dials the LS's GS listener, performs the BlowFishKey/GameServerAuth
// handshake, and then serves as the other half of the PlayerAuthRequest /
// RequestChars / PlayerInGame bus for as long as the process runs.
package gsclient

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/udisondev/la2go/internal/config"
	"github.com/udisondev/la2go/internal/constants"
	"github.com/udisondev/la2go/internal/crypto"
	"github.com/udisondev/la2go/internal/db"
	"github.com/udisondev/la2go/internal/gslistener"
	"github.com/udisondev/la2go/internal/login"
)

const (
	rsaBlockSize         = constants.RSA512ModulusSize // 64
	blowfishKeyPlainSize = 40
	reconnectBackoffMin  = 2 * time.Second
	reconnectBackoffMax  = 30 * time.Second
	authReplyTimeout     = 10 * time.Second
)

// Client is the GS-side half of the GS↔LS link. One Client per GameServer
// process; Run blocks, reconnecting with backoff until ctx is cancelled.
type Client struct {
	cfg      config.GameServer
	charRepo *db.CharacterRepository

	writeMu sync.Mutex
	conn    net.Conn
	cipher  *crypto.BlowfishCipher
	sendBuf []byte

	authMu  sync.Mutex
	pending map[string]chan bool

	kickMu sync.Mutex
	onKick func(account string)

	readyMu sync.RWMutex
	ready   bool
}

// New creates a GS↔LS connector for the given GameServer config.
// charRepo answers the LS's RequestChars calls with a live character count.
func New(cfg config.GameServer, charRepo *db.CharacterRepository) *Client {
	return &Client{
		cfg:      cfg,
		charRepo: charRepo,
		sendBuf:  make([]byte, constants.GSListenerSendBufSize),
		pending:  make(map[string]chan bool),
	}
}

// OnKick registers the callback invoked when the LS asks this GS to drop a
// stale session for an account before accepting its new login elsewhere.
func (c *Client) OnKick(fn func(account string)) {
	c.kickMu.Lock()
	defer c.kickMu.Unlock()
	c.onKick = fn
}

// Ready reports whether the GS is currently authenticated with the LS.
func (c *Client) Ready() bool {
	c.readyMu.RLock()
	defer c.readyMu.RUnlock()
	return c.ready
}

func (c *Client) setReady(v bool) {
	c.readyMu.Lock()
	c.ready = v
	c.readyMu.Unlock()
}

// Run dials the LS, authenticates, and serves the GS↔LS link until ctx is
// cancelled, reconnecting with backoff on any failure.
func (c *Client) Run(ctx context.Context) error {
	backoff := reconnectBackoffMin
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := c.connectOnce(ctx)
		c.setReady(false)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			slog.Error("GS↔LS link failed, reconnecting", "error", err, "backoff", backoff)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectBackoffMax {
			backoff = reconnectBackoffMax
		}
	}
}

func (c *Client) connectOnce(ctx context.Context) error {
	addr := c.cfg.Listeners.LoginServer.Connection.Addr()
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dialing login server %s: %w", addr, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	cipher, err := crypto.NewBlowfishCipher(c.cfg.GSBlowfishKey())
	if err != nil {
		return fmt.Errorf("creating pre-swap blowfish cipher: %w", err)
	}

	c.writeMu.Lock()
	c.conn = conn
	c.cipher = cipher
	c.writeMu.Unlock()

	readBuf := make([]byte, constants.GSListenerReadBufSize)

	payload, err := gslistener.ReadPacket(conn, cipher, readBuf)
	if err != nil {
		return fmt.Errorf("reading InitLS: %w", err)
	}
	if len(payload) == 0 || payload[0] != opcodeInitLS {
		return fmt.Errorf("expected InitLS, got opcode %v", payload)
	}
	_, modulus, err := parseInitLS(payload[1:])
	if err != nil {
		return fmt.Errorf("parsing InitLS: %w", err)
	}

	if err := c.sendBlowFishKey(modulus); err != nil {
		return err
	}

	if err := c.sendGameServerAuth(); err != nil {
		return err
	}

	serverID, err := c.awaitAuthResponse(conn, readBuf)
	if err != nil {
		return err
	}

	slog.Info("GS registered with login server", "server_id", serverID, "address", addr)
	c.setReady(true)

	// First ServerStatus completes the handshake on the LS side (AUTHED →
	// RUNNING) and publishes this server's listing attributes.
	maxPlayers := c.cfg.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = 100
	}
	if err := c.ReportStatus([]Attribute{
		{ID: AttrServerListStatus, Value: constants.DefaultServerStatus},
		{ID: AttrServerType, Value: constants.DefaultServerType},
		{ID: AttrMaxPlayers, Value: int32(maxPlayers)},
	}); err != nil {
		return fmt.Errorf("sending initial ServerStatus: %w", err)
	}

	return c.serve(ctx, conn, readBuf)
}

// sendBlowFishKey picks a fresh 40-byte session key, RSA-encrypts it against
// the LS's public modulus (last 40 bytes of a 64-byte plaintext block, as
// the LS's handleBlowFishKey expects), and switches this connection's
// cipher to it once sent.
func (c *Client) sendBlowFishKey(modulus []byte) error {
	plain := make([]byte, rsaBlockSize)
	if _, err := rand.Read(plain); err != nil {
		return fmt.Errorf("generating RSA filler bytes: %w", err)
	}
	key := make([]byte, blowfishKeyPlainSize)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("generating session blowfish key: %w", err)
	}
	for i, b := range key {
		if b == 0 {
			key[i] = 1
		}
	}
	copy(plain[rsaBlockSize-blowfishKeyPlainSize:], key)

	pub := &rsa.PublicKey{N: new(big.Int).SetBytes(modulus), E: constants.RSAPublicExponent}
	encrypted, err := crypto.RSAEncryptNoPadding(pub, plain)
	if err != nil {
		return fmt.Errorf("RSA encrypting blowfish key: %w", err)
	}

	n := buildBlowFishKey(c.sendBuf[constants.PacketHeaderSize:], encrypted)
	if err := c.writeRaw(n); err != nil {
		return fmt.Errorf("sending BlowFishKey: %w", err)
	}

	newCipher, err := crypto.NewBlowfishCipher(key)
	if err != nil {
		return fmt.Errorf("creating session blowfish cipher: %w", err)
	}
	c.writeMu.Lock()
	c.cipher = newCipher
	c.writeMu.Unlock()

	return nil
}

func (c *Client) sendGameServerAuth() error {
	hexID, err := hex.DecodeString(c.cfg.HexID)
	if err != nil {
		return fmt.Errorf("decoding hex_id %q: %w", c.cfg.HexID, err)
	}
	const hexIDSize = 32
	if len(hexID) < hexIDSize {
		padded := make([]byte, hexIDSize)
		copy(padded, hexID)
		hexID = padded
	} else if len(hexID) > hexIDSize {
		hexID = hexID[:hexIDSize]
	}

	maxPlayers := c.cfg.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = 100
	}

	n := buildGameServerAuth(c.sendBuf[constants.PacketHeaderSize:],
		byte(c.cfg.ServerID), true, int32(maxPlayers),
		int16(c.cfg.Listeners.Clients.Connection.Port), nil, hexID)
	return c.writeRaw(n)
}

func (c *Client) awaitAuthResponse(conn net.Conn, readBuf []byte) (int, error) {
	payload, err := gslistener.ReadPacket(conn, c.currentCipher(), readBuf)
	if err != nil {
		return 0, fmt.Errorf("reading auth reply: %w", err)
	}
	if len(payload) == 0 {
		return 0, errors.New("empty auth reply")
	}

	switch payload[0] {
	case opcodeAuthResponse:
		serverID, serverName, err := parseAuthResponse(payload[1:])
		if err != nil {
			return 0, fmt.Errorf("parsing AuthResponse: %w", err)
		}
		slog.Info("login server assigned name", "name", serverName)
		return int(serverID), nil
	case opcodeLoginServerFail:
		reason, err := parseLoginServerFail(payload[1:])
		if err != nil {
			return 0, fmt.Errorf("parsing LoginServerFail: %w", err)
		}
		return 0, fmt.Errorf("login server rejected registration: reason %d", reason)
	default:
		return 0, fmt.Errorf("unexpected opcode 0x%02x waiting for auth reply", payload[0])
	}
}

func (c *Client) currentCipher() *crypto.BlowfishCipher {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.cipher
}

func (c *Client) writeRaw(n int) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return gslistener.WritePacket(c.conn, c.cipher, c.sendBuf, n)
}

// serve runs the post-auth read loop, answering RequestChars/KickPlayer and
// resolving any PlayerAuthRequest awaiting a PlayerAuthResponse.
func (c *Client) serve(ctx context.Context, conn net.Conn, readBuf []byte) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		payload, err := gslistener.ReadPacket(conn, c.currentCipher(), readBuf)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if len(payload) == 0 {
			continue
		}

		opcode := payload[0]
		body := payload[1:]

		switch opcode {
		case opcodeRequestChars:
			account, err := parseRequestChars(body)
			if err != nil {
				slog.Warn("parsing RequestChars failed", "error", err)
				continue
			}
			c.replyCharacterCount(ctx, account)

		case opcodeKickPlayer:
			account, err := parseKickPlayer(body)
			if err != nil {
				slog.Warn("parsing KickPlayer failed", "error", err)
				continue
			}
			c.kickMu.Lock()
			onKick := c.onKick
			c.kickMu.Unlock()
			if onKick != nil {
				onKick(account)
			}

		case opcodePlayerAuthResponse:
			account, success, err := parsePlayerAuthResponse(body)
			if err != nil {
				slog.Warn("parsing PlayerAuthResponse failed", "error", err)
				continue
			}
			c.resolveAuth(account, success)

		default:
			slog.Warn("unexpected opcode from login server", "opcode", opcode)
		}
	}
}

func (c *Client) replyCharacterCount(ctx context.Context, account string) {
	count, err := c.charRepo.CountByAccount(ctx, account)
	if err != nil {
		slog.Error("counting characters for RequestChars", "account", account, "error", err)
		count = 0
	}
	toDelete, err := c.charRepo.PendingDeletionByAccount(ctx, account)
	if err != nil {
		slog.Error("listing deletion-pending characters for RequestChars", "account", account, "error", err)
		toDelete = nil
	}
	c.writeMu.Lock()
	n := buildReplyCharacters(c.sendBuf[constants.PacketHeaderSize:], account, int(count), toDelete)
	err = gslistener.WritePacket(c.conn, c.cipher, c.sendBuf, n)
	c.writeMu.Unlock()
	if err != nil {
		slog.Error("sending ReplyCharacters", "account", account, "error", err)
	}
}

// RequestPlayerAuth asks the LS to validate a client's session key, blocking
// until the LS replies, ctx is cancelled, or authReplyTimeout elapses.
func (c *Client) RequestPlayerAuth(ctx context.Context, account string, sk login.SessionKey) (bool, error) {
	ch := make(chan bool, 1)
	c.authMu.Lock()
	c.pending[account] = ch
	c.authMu.Unlock()
	defer func() {
		c.authMu.Lock()
		delete(c.pending, account)
		c.authMu.Unlock()
	}()

	c.writeMu.Lock()
	n := buildPlayerAuthRequest(c.sendBuf[constants.PacketHeaderSize:], account, sk)
	err := gslistener.WritePacket(c.conn, c.cipher, c.sendBuf, n)
	c.writeMu.Unlock()
	if err != nil {
		return false, fmt.Errorf("sending PlayerAuthRequest: %w", err)
	}

	timer := time.NewTimer(authReplyTimeout)
	defer timer.Stop()
	select {
	case ok := <-ch:
		return ok, nil
	case <-timer.C:
		return false, fmt.Errorf("timed out waiting for PlayerAuthResponse for %q", account)
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (c *Client) resolveAuth(account string, success bool) {
	c.authMu.Lock()
	ch, ok := c.pending[account]
	c.authMu.Unlock()
	if ok {
		ch <- success
	}
}

// ReportPlayerInGame tells the LS an account just entered the world.
func (c *Client) ReportPlayerInGame(account string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	n := buildPlayerInGame(c.sendBuf[constants.PacketHeaderSize:], []string{account})
	return gslistener.WritePacket(c.conn, c.cipher, c.sendBuf, n)
}

// ReportPlayerLogout tells the LS an account left the world.
func (c *Client) ReportPlayerLogout(account string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	n := buildPlayerLogout(c.sendBuf[constants.PacketHeaderSize:], account)
	return gslistener.WritePacket(c.conn, c.cipher, c.sendBuf, n)
}

// ReportStatus pushes a one-shot ServerStatus update (Attr* attribute IDs).
func (c *Client) ReportStatus(attrs []Attribute) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	n := buildServerStatus(c.sendBuf[constants.PacketHeaderSize:], attrs)
	return gslistener.WritePacket(c.conn, c.cipher, c.sendBuf, n)
}
