package gameserver

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/la2go/internal/crypto"
	"github.com/udisondev/la2go/internal/login"
)

// Default write queue / timeout constants.
// Overridden by config values when available.
const (
	defaultSendQueueSize = 256
	defaultWriteTimeout  = 5 * time.Second
	defaultReadTimeout   = 120 * time.Second
)

// GameClient represents a single game client connection to the game server.
type GameClient struct {
	conn      net.Conn
	ip        string
	sessionID int32
	gameCrypt *crypto.GameCrypt

	// state использует atomic.Int32 для lock-free reads в hot path
	state atomic.Int32

	// mu защищает только accountName, sessionKey, selectedCharacter (редкие операции)
	mu                sync.Mutex
	accountName       string
	sessionKey        *login.SessionKey
	selectedCharacter int32 // Character slot index (0-7), -1 = not selected

	// Per-client write queue (Phase 7.0: Async Write Architecture)
	// Pattern: Leaf, Zinx, Gorilla Chat, L2J MMOCore
	sendCh    chan []byte  // buffered channel with encrypted packets (pool-backed)
	closeCh   chan struct{}
	closeOnce sync.Once

	writePool    *BytePool     // shared pool for returning buffers after write
	writeTimeout time.Duration // per-write deadline
}

// NewGameClient creates a new game client state for the given connection.
// gameCryptKey seeds the XOR rolling cipher used for every packet after the
// initial KeyPacket; GameCrypt's own first Encrypt call is a no-op, so
// sending the KeyPacket through the normal send path both transmits it in
// the clear and arms the cipher for every packet after it.
func NewGameClient(conn net.Conn, gameCryptKey []byte, writePool *BytePool, sendQueueSize int, writeTimeout time.Duration) (*GameClient, error) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return nil, fmt.Errorf("splitting host port: %w", err)
	}

	gameCrypt := crypto.NewGameCrypt()
	gameCrypt.SetKey(gameCryptKey)

	if sendQueueSize <= 0 {
		sendQueueSize = defaultSendQueueSize
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	client := &GameClient{
		conn:              conn,
		ip:                host,
		sessionID:         rand.Int32(),
		gameCrypt:         gameCrypt,
		selectedCharacter: -1, // Not selected yet
		sendCh:            make(chan []byte, sendQueueSize),
		closeCh:           make(chan struct{}),
		writePool:         writePool,
		writeTimeout:      writeTimeout,
	}
	client.state.Store(int32(ClientStateConnected))
	return client, nil
}

// Conn returns the underlying network connection.
func (c *GameClient) Conn() net.Conn {
	return c.conn
}

// IP returns the client's remote IP address.
func (c *GameClient) IP() string {
	return c.ip
}

// SessionID returns the session ID assigned to this client.
func (c *GameClient) SessionID() int32 {
	return c.sessionID
}

// GameCrypt returns the XOR rolling cipher for this client (GameServer protocol).
// NewGameClient already sets its key; every packet after the KeyPacket is
// encrypted/decrypted via this cipher.
func (c *GameClient) GameCrypt() *crypto.GameCrypt {
	return c.gameCrypt
}

// State returns the current connection state.
// Использует atomic для lock-free reads (hot path).
func (c *GameClient) State() ClientConnectionState {
	return ClientConnectionState(c.state.Load())
}

// SetState sets the connection state.
// Использует atomic для lock-free writes.
func (c *GameClient) SetState(s ClientConnectionState) {
	c.state.Store(int32(s))
}

// AccountName returns the logged-in account name.
func (c *GameClient) AccountName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accountName
}

// SetAccountName sets the account name.
func (c *GameClient) SetAccountName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accountName = name
}

// SessionKey returns the session key.
func (c *GameClient) SessionKey() *login.SessionKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionKey
}

// SetSessionKey sets the session key.
func (c *GameClient) SetSessionKey(sk *login.SessionKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionKey = sk
}

// SelectedCharacter returns the selected character slot index (-1 if not selected).
func (c *GameClient) SelectedCharacter() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedCharacter
}

// SetSelectedCharacter sets the selected character slot index.
func (c *GameClient) SetSelectedCharacter(slot int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectedCharacter = slot
}

// writePump is a dedicated writer goroutine for this client.
// Reads encrypted packets from sendCh and writes them to conn.
// Uses net.Buffers (writev syscall) for batching and pool.Put for buffer return.
//
// Pattern: Gorilla WebSocket Chat + net.Buffers + drain batching.
func (c *GameClient) writePump() {
	// Pre-allocate scratch slices (one-time, reused across iterations)
	bufs := make(net.Buffers, 0, 64)
	poolBufs := make([][]byte, 0, 64)

	defer func() {
		// Drain remaining packets and return to pool
		for {
			select {
			case pkt := <-c.sendCh:
				if c.writePool != nil {
					c.writePool.Put(pkt)
				}
			default:
				return
			}
		}
	}()

	for {
		select {
		case pkt, ok := <-c.sendCh:
			if !ok {
				return // channel closed = graceful shutdown
			}

			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				slog.Warn("set write deadline failed", "client", c.ip, "error", err)
				if c.writePool != nil {
					c.writePool.Put(pkt)
				}
				return
			}

			// Batching: drain all queued packets (Gorilla Chat pattern)
			queued := len(c.sendCh)
			if queued == 0 {
				// Single packet — direct write (hot path, zero-alloc)
				_, err := c.conn.Write(pkt)
				if c.writePool != nil {
					c.writePool.Put(pkt)
				}
				if err != nil {
					slog.Warn("write failed", "client", c.ip, "error", err)
					return
				}
				continue
			}

			// Multiple packets — net.Buffers (writev syscall, zero-copy)
			bufs = bufs[:0]
			poolBufs = poolBufs[:0]

			bufs = append(bufs, pkt)
			poolBufs = append(poolBufs, pkt)
			for range queued {
				p := <-c.sendCh
				bufs = append(bufs, p)
				poolBufs = append(poolBufs, p)
			}

			_, err := bufs.WriteTo(c.conn)

			// ALWAYS return buffers to pool (even on error)
			if c.writePool != nil {
				for _, b := range poolBufs {
					c.writePool.Put(b)
				}
			}

			if err != nil {
				slog.Warn("batch write failed", "client", c.ip, "error", err)
				return
			}

		case <-c.closeCh:
			return
		}
	}
}

// Send queues an encrypted packet for async delivery.
// Non-blocking: returns error if queue is full (slow client → disconnect).
// OWNERSHIP: takes ownership of encryptedPkt (pool buffer). writePump will return it to pool.
func (c *GameClient) Send(encryptedPkt []byte) error {
	select {
	case c.sendCh <- encryptedPkt:
		return nil
	default:
		if c.writePool != nil {
			c.writePool.Put(encryptedPkt)
		}
		slog.Warn("send queue full, disconnecting slow client", "client", c.ip)
		c.CloseAsync()
		return fmt.Errorf("send queue full")
	}
}

// SendSync queues an encrypted packet and blocks until accepted or timeout.
// Used for handler responses that MUST be delivered.
// OWNERSHIP: takes ownership of encryptedPkt.
func (c *GameClient) SendSync(encryptedPkt []byte, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.sendCh <- encryptedPkt:
		return nil
	case <-timer.C:
		if c.writePool != nil {
			c.writePool.Put(encryptedPkt)
		}
		return fmt.Errorf("send timeout after %v", timeout)
	case <-c.closeCh:
		if c.writePool != nil {
			c.writePool.Put(encryptedPkt)
		}
		return fmt.Errorf("client closed")
	}
}

// CloseAsync signals the writePump to stop without blocking.
// Safe to call multiple times.
func (c *GameClient) CloseAsync() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(ClientStateDisconnected))
		close(c.closeCh)
	})
}

// Close closes the connection and stops the writePump.
func (c *GameClient) Close() error {
	c.CloseAsync()
	return c.conn.Close()
}

