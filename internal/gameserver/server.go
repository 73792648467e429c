package gameserver

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/udisondev/la2go/internal/config"
	"github.com/udisondev/la2go/internal/constants"
	"github.com/udisondev/la2go/internal/db"
	"github.com/udisondev/la2go/internal/login"
)

// LoginLink is the GS's own connection to the LoginServer, as this listener
// needs it: session-key validation plus player lifecycle reporting. The
// concrete implementation is gsclient.Client; the interface lives here
// because gslistener already imports this package, and gsclient sits on top
// of gslistener (same shape as login.GSRegistry on the other side).
type LoginLink interface {
	RequestPlayerAuth(ctx context.Context, account string, sk login.SessionKey) (bool, error)
	ReportPlayerInGame(account string) error
	ReportPlayerLogout(account string) error
	OnKick(fn func(account string))
}

// Server is the Client↔GameServer TCP listener. It authenticates clients by
// round-tripping their presented SessionKey through the GS's own connection
// to the LoginServer (ls) and otherwise holds the connection open — no
// gameplay dispatch happens here.
type Server struct {
	cfg      config.GameServer
	charRepo *db.CharacterRepository
	ls       LoginLink

	sendPool *BytePool
	readPool *BytePool

	listener net.Listener
	mu       sync.Mutex

	clientsMu sync.Mutex
	clients   map[string]*GameClient // account name -> connected client
}

// NewServer creates a Client↔GameServer listener. ls is the GS's outbound
// connection to the LoginServer, used to validate presented session keys and
// to report players entering/leaving the world.
func NewServer(cfg config.GameServer, charRepo *db.CharacterRepository, ls LoginLink) *Server {
	s := &Server{
		cfg:      cfg,
		charRepo: charRepo,
		ls:       ls,
		sendPool: NewBytePool(constants.GameServerSendBufSize),
		readPool: NewBytePool(constants.GameServerReadBufSize),
		clients:  make(map[string]*GameClient),
	}
	ls.OnKick(s.kick)
	return s
}

// Addr returns the address the listener is bound to, or nil if not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close closes the listener, stopping the accept loop.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Run listens on cfg.Listeners.Clients.Connection and serves
// Client↔GameServer connections until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Listeners.Clients.Connection.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	return s.Serve(ctx, ln)
}

// Serve accepts connections off an already-bound listener. Used by tests to
// supply an arbitrary listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	slog.Info("game client listener started", "address", ln.Addr())
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		default:
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					wg.Wait()
					return nil
				}
				slog.Error("failed to accept game client connection", "error", err)
				continue
			}
			wg.Go(func() {
				s.handleConnection(ctx, conn)
			})
		}
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		slog.Error("failed to split host port", "connection", conn.RemoteAddr(), "error", err)
		return
	}

	gameCryptKey := make([]byte, constants.BlowfishKeySize)
	if _, err := rand.Read(gameCryptKey); err != nil {
		slog.Error("failed to generate game crypt key", "remote", host, "error", err)
		return
	}

	client, err := NewGameClient(conn, gameCryptKey, s.sendPool, s.cfg.SendQueueSize, s.cfg.WriteTimeout)
	if err != nil {
		slog.Error("failed to create game client", "remote", host, "error", err)
		return
	}
	go client.writePump()
	defer client.CloseAsync()

	sendBuf := s.sendPool.Get(constants.GameServerSendBufSize)
	n := buildKeyPacket(sendBuf[packetHeaderSize:], gameCryptKey)
	if err := s.send(client, sendBuf, n); err != nil {
		slog.Error("failed to send KeyPacket", "remote", host, "error", err)
		return
	}

	// GameCrypt's first Encrypt call is always a no-op that only flips
	// isEnabled — the send above already consumed it on the KeyPacket
	// itself, so the wire bytes went out unencrypted and every packet from
	// here on is enciphered for real, same as the client side.

	slog.Info("game client connected", "remote", host)

	readBuf := s.readPool.Get(constants.GameServerReadBufSize)
	defer s.readPool.Put(readBuf)

	for {
		select {
		case <-ctx.Done():
			s.cleanup(client)
			return
		default:
			if !s.handlePacket(ctx, client, conn, readBuf) {
				s.cleanup(client)
				return
			}
		}
	}
}

// send encodes payload (buf[packetHeaderSize:packetHeaderSize+n]) and hands
// the framed packet to the client's writePump, which owns buf from here on.
func (s *Server) send(client *GameClient, buf []byte, payloadLen int) error {
	total, err := EncodeClientPacket(client.GameCrypt(), buf, payloadLen)
	if err != nil {
		s.sendPool.Put(buf)
		return err
	}
	return client.SendSync(buf[:total], s.cfg.WriteTimeout)
}

func (s *Server) handlePacket(ctx context.Context, client *GameClient, conn net.Conn, readBuf []byte) bool {
	readTimeout := s.cfg.Client.Timeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return false
	}

	payload, err := ReadClientPacket(conn, client.GameCrypt(), readBuf)
	if err != nil {
		return false
	}
	if len(payload) == 0 {
		return true
	}

	opcode := payload[0]
	body := payload[1:]

	switch opcode {
	case opcodeAuthLogin:
		return s.handleAuthLogin(ctx, client, body)
	default:
		// Gameplay packets are out of scope; keep the connection open.
		slog.Debug("unhandled client opcode", "opcode", opcode, "state", client.State())
		return true
	}
}

func (s *Server) handleAuthLogin(ctx context.Context, client *GameClient, body []byte) bool {
	req, err := parseAuthLogin(body)
	if err != nil {
		slog.Warn("parsing AuthLogin failed", "error", err)
		return s.sendAuthFail(client, AuthFailSystemError)
	}

	ok, err := s.ls.RequestPlayerAuth(ctx, req.Account, req.SessionKey)
	if err != nil {
		slog.Error("PlayerAuthRequest round-trip failed", "account", req.Account, "error", err)
		return s.sendAuthFail(client, AuthFailSystemError)
	}
	if !ok {
		return s.sendAuthFail(client, AuthFailSessionToken)
	}

	client.SetAccountName(req.Account)
	client.SetSessionKey(&req.SessionKey)
	client.SetState(ClientStateAuthenticated)
	s.register(client)

	count, err := s.charRepo.CountByAccount(ctx, req.Account)
	if err != nil {
		slog.Error("counting characters", "account", req.Account, "error", err)
		count = 0
	}

	sendBuf := s.sendPool.Get(constants.GameServerSendBufSize)
	n := buildAuthOk(sendBuf[packetHeaderSize:], byte(count))
	if err := s.send(client, sendBuf, n); err != nil {
		slog.Error("sending AuthOk", "account", req.Account, "error", err)
		return false
	}

	if err := s.ls.ReportPlayerInGame(req.Account); err != nil {
		slog.Warn("reporting PlayerInGame", "account", req.Account, "error", err)
	}
	return true
}

func (s *Server) sendAuthFail(client *GameClient, reason byte) bool {
	sendBuf := s.sendPool.Get(constants.GameServerSendBufSize)
	n := buildAuthFail(sendBuf[packetHeaderSize:], reason)
	if err := s.send(client, sendBuf, n); err != nil {
		slog.Error("sending AuthFail", "error", err)
	}
	return false
}

func (s *Server) register(client *GameClient) {
	s.clientsMu.Lock()
	s.clients[client.AccountName()] = client
	s.clientsMu.Unlock()
}

func (s *Server) cleanup(client *GameClient) {
	client.CloseAsync()
	account := client.AccountName()
	if account == "" {
		return
	}
	s.clientsMu.Lock()
	if s.clients[account] == client {
		delete(s.clients, account)
	}
	s.clientsMu.Unlock()

	if client.State() >= ClientStateAuthenticated {
		if err := s.ls.ReportPlayerLogout(account); err != nil {
			slog.Warn("reporting PlayerLogout", "account", account, "error", err)
		}
	}
}

// kick forcibly disconnects the local client for account, if any is
// currently connected. Called when the LS asks this GS to drop a stale
// session before accepting that account's new login elsewhere.
func (s *Server) kick(account string) {
	s.clientsMu.Lock()
	client, ok := s.clients[account]
	s.clientsMu.Unlock()
	if !ok {
		return
	}
	slog.Info("kicking game client on login server request", "account", account)
	client.Close()
}
