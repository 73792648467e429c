package gslistener

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/udisondev/la2go/internal/config"
	"github.com/udisondev/la2go/internal/crypto"
	"github.com/udisondev/la2go/internal/db"
	"github.com/udisondev/la2go/internal/gameserver"
	"github.com/udisondev/la2go/internal/gslistener/clientpackets"
	"github.com/udisondev/la2go/internal/gslistener/serverpackets"
	"github.com/udisondev/la2go/internal/login"
)

// Handler обрабатывает входящие пакеты от GameServer
type Handler struct {
	db             *db.DB
	gsTable        *gameserver.GameServerTable
	sessionManager *login.SessionManager
	cfg            config.LoginServer
	bus            *RequestBus

	connsMu sync.RWMutex
	conns   map[int]*GSConnection // authed GS connections, keyed by server id
}

// NewHandler создаёт новый handler для GS↔LS пакетов
func NewHandler(database *db.DB, gsTable *gameserver.GameServerTable, sessionManager *login.SessionManager, cfg config.LoginServer) *Handler {
	return &Handler{
		db:             database,
		gsTable:        gsTable,
		sessionManager: sessionManager,
		cfg:            cfg,
		bus:            NewRequestBus(),
		conns:          make(map[int]*GSConnection),
	}
}

// ConnByID returns the live connection for an authed GS, if any.
func (h *Handler) ConnByID(id int) (*GSConnection, bool) {
	h.connsMu.RLock()
	defer h.connsMu.RUnlock()
	c, ok := h.conns[id]
	return c, ok
}

// RequestCharCount asks the given GS how many characters an account has,
// over the cross-link request bus. ok=false covers every failure mode the
// bus reports as "unknown": GS not connected, no reply within timeout, or
// another request for the same (serverID, account) already outstanding.
func (h *Handler) RequestCharCount(ctx context.Context, serverID int, account string) (int, bool) {
	conn, ok := h.ConnByID(serverID)
	if !ok {
		return 0, false
	}
	timeout := h.cfg.Listeners.GameServers.Messages.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	reply, ok := h.bus.RequestChars(ctx, conn, serverID, account, timeout)
	if !ok {
		return 0, false
	}
	return reply.Chars, true
}

// KickPlayer asks whichever authed GS currently has account registered as
// online to drop it, so a fresh login elsewhere doesn't leave two sessions
// for the same account alive at once. Returns false if no GS reports the
// account online (the caller falls back to closing the LS-side link only).
func (h *Handler) KickPlayer(account string) bool {
	h.connsMu.RLock()
	var target *GSConnection
	for _, conn := range h.conns {
		if conn.HasAccount(account) {
			target = conn
			break
		}
	}
	h.connsMu.RUnlock()

	if target == nil {
		return false
	}

	if err := target.SendPayload(func(buf []byte) int {
		return serverpackets.KickPlayer(buf, account)
	}); err != nil {
		slog.Warn("failed to send KickPlayer", "account", account, "error", err)
		return false
	}
	return true
}

// Cleanup marks a disconnected GS down, drops it from the live connection
// registry, and resolves any bus requests still pending against it.
func (h *Handler) Cleanup(conn *GSConnection) {
	info := conn.GameServerInfo()
	if info == nil {
		return
	}
	info.SetDown()

	h.connsMu.Lock()
	delete(h.conns, info.ID())
	h.connsMu.Unlock()

	h.bus.CancelServer(info.ID())
}

func (h *Handler) registerConn(id int, conn *GSConnection) {
	h.connsMu.Lock()
	defer h.connsMu.Unlock()
	h.conns[id] = conn
}

// HandlePacket диспетчеризирует пакет по (state, opcode) → handler function.
// Writes response into buf. Returns: n — bytes written to buf (0 = nothing to send),
// ok — true if connection stays open (false = close after sending).
func (h *Handler) HandlePacket(
	ctx context.Context,
	conn *GSConnection,
	data, buf []byte,
) (int, bool, error) {
	if len(data) == 0 {
		return 0, false, fmt.Errorf("empty packet")
	}

	opcode := data[0]
	body := data[1:]
	state := conn.State()

	switch state {
	case gameserver.GSStateConnected:
		switch opcode {
		case OpcodeGSBlowFishKey:
			return handleBlowFishKey(ctx, h, conn, body, buf)
		default:
			return 0, true, fmt.Errorf("invalid opcode 0x%02x for state CONNECTED", opcode)
		}

	case gameserver.GSStateBFConnected:
		switch opcode {
		case OpcodeGSGameServerAuth:
			return handleGameServerAuth(ctx, h, conn, body, buf)
		default:
			return 0, true, fmt.Errorf("invalid opcode 0x%02x for state BF_CONNECTED", opcode)
		}

	case gameserver.GSStateAuthed, gameserver.GSStateRunning:
		switch opcode {
		case OpcodeGSPlayerInGame:
			return handlePlayerInGame(ctx, h, conn, body, buf)
		case OpcodeGSPlayerLogout:
			return handlePlayerLogout(ctx, h, conn, body, buf)
		case OpcodeGSPlayerAuthRequest:
			return handlePlayerAuthRequest(ctx, h, conn, body, buf)
		case OpcodeGSServerStatus:
			return handleServerStatus(ctx, h, conn, body, buf)
		case OpcodeGSReplyCharacters:
			return handleReplyCharacters(ctx, h, conn, body, buf)
		default:
			return 0, false, fmt.Errorf("unknown opcode 0x%02x", opcode)
		}

	default:
		return 0, true, fmt.Errorf("invalid connection state: %v", state)
	}
}

func handleBlowFishKey(_ context.Context, _ *Handler, conn *GSConnection, body []byte, _ []byte) (int, bool, error) {
	var pkt clientpackets.BlowFishKey
	if err := pkt.Parse(body); err != nil {
		return 0, false, fmt.Errorf("parsing BlowFishKey packet: %w", err)
	}

	rsaKeyPair := conn.RSAKeyPair()
	decryptedBlock, err := crypto.RSADecryptNoPadding(rsaKeyPair.PrivateKey, pkt.EncryptedKey)
	if err != nil {
		return 0, false, fmt.Errorf("RSA decrypt failed: %w", err)
	}

	// RSA-512 расшифровывает в 64 байта, берём последние 40 байт (как в Java)
	const blowfishKeySize = 40
	if len(decryptedBlock) < blowfishKeySize {
		return 0, false, fmt.Errorf("decrypted block too short: got %d, want at least %d", len(decryptedBlock), blowfishKeySize)
	}

	decryptedKey := decryptedBlock[len(decryptedBlock)-blowfishKeySize:]

	newCipher, err := crypto.NewBlowfishCipher(decryptedKey)
	if err != nil {
		return 0, false, fmt.Errorf("creating new Blowfish cipher: %w", err)
	}

	conn.SetBlowfishCipher(newCipher)
	conn.SetState(gameserver.GSStateBFConnected)

	slog.Info("BlowFishKey processed successfully", "ip", conn.IP(), "state", "BF_CONNECTED")

	return 0, true, nil
}

// allowedServerID looks up a GS's permitted id by hex, per the allowed_gs
// allowlist. ok is false when the allowlist is empty (nothing configured —
// any hex is acceptable) or when the hex has no entry.
func (h *Handler) allowedServerID(hexID []byte) (id int, configured, ok bool) {
	if len(h.cfg.AllowedGS) == 0 {
		return 0, false, false
	}
	entry, found := h.cfg.AllowedGS[hex.EncodeToString(hexID)]
	if !found {
		return 0, true, false
	}
	return entry.ServerID, true, true
}

func handleGameServerAuth(_ context.Context, h *Handler, conn *GSConnection, body []byte, buf []byte) (int, bool, error) {
	var pkt clientpackets.GameServerAuth
	if err := pkt.Parse(body); err != nil {
		return 0, false, fmt.Errorf("parsing GameServerAuth packet: %w", err)
	}

	requestedID := int(pkt.ID)

	if allowedID, configured, ok := h.allowedServerID(pkt.HexID); configured {
		if !ok || allowedID != requestedID {
			slog.Warn("hex not present in allowed_gs", "id", requestedID, "ip", conn.IP())
			n := serverpackets.LoginServerFail(buf, gameserver.ReasonWrongHexID)
			return n, false, nil
		}
	}

	existingInfo, exists := h.gsTable.GetByID(requestedID)

	if exists {
		if bytes.Equal(existingInfo.HexID(), pkt.HexID) {
			if existingInfo.IsAuthed() {
				slog.Warn("GameServer already authenticated", "id", requestedID, "ip", conn.IP())
				n := serverpackets.LoginServerFail(buf, gameserver.ReasonAlreadyLoggedIn)
				return n, false, nil
			}

			return finalizeRegistration(h, conn, existingInfo, pkt, buf)
		}

		if pkt.AcceptAlternate {
			newInfo := gameserver.NewGameServerInfo(0, pkt.HexID)
			assignedID, ok := h.gsTable.RegisterWithFirstAvailableID(newInfo, 127)
			if !ok {
				slog.Warn("no free server ID available", "requested_id", requestedID, "ip", conn.IP())
				n := serverpackets.LoginServerFail(buf, gameserver.ReasonNoFreeID)
				return n, false, nil
			}

			slog.Info("registered GameServer with alternative ID", "requested_id", requestedID, "assigned_id", assignedID, "ip", conn.IP())
			return finalizeRegistration(h, conn, newInfo, pkt, buf)
		}

		slog.Warn("wrong hexID", "id", requestedID, "ip", conn.IP())
		n := serverpackets.LoginServerFail(buf, gameserver.ReasonWrongHexID)
		return n, false, nil
	}

	newInfo := gameserver.NewGameServerInfo(requestedID, pkt.HexID)
	if !h.gsTable.Register(requestedID, newInfo) {
		slog.Warn("server ID reserved (race condition)", "id", requestedID, "ip", conn.IP())
		n := serverpackets.LoginServerFail(buf, gameserver.ReasonIDReserved)
		return n, false, nil
	}

	slog.Info("registered new GameServer", "id", requestedID, "ip", conn.IP())
	return finalizeRegistration(h, conn, newInfo, pkt, buf)
}

// finalizeRegistration завершает регистрацию GameServer: обновляет info, отправляет AuthResponse.
func finalizeRegistration(h *Handler, conn *GSConnection, info *gameserver.GameServerInfo, pkt clientpackets.GameServerAuth, buf []byte) (int, bool, error) {
	info.SetPort(int(pkt.Port))
	info.SetMaxPlayers(int(pkt.MaxPlayers))

	hosts := make([]gameserver.HostEntry, len(pkt.Hosts))
	for i, host := range pkt.Hosts {
		hosts[i] = gameserver.HostEntry{Subnet: host.Subnet, Host: host.Host}
	}
	info.SetHosts(hosts)

	info.SetAuthed(true)

	conn.AttachGameServerInfo(info)
	conn.SetState(gameserver.GSStateAuthed)
	h.registerConn(info.ID(), conn)

	serverID := byte(info.ID())
	serverName := fmt.Sprintf("Server %d", info.ID())
	n := serverpackets.AuthResponse(buf, serverID, serverName)

	slog.Info("GameServer authenticated successfully",
		"id", info.ID(),
		"port", info.Port(),
		"maxPlayers", info.MaxPlayers(),
		"ip", conn.IP())

	return n, true, nil
}

func handlePlayerInGame(_ context.Context, _ *Handler, conn *GSConnection, body []byte, _ []byte) (int, bool, error) {
	var pkt clientpackets.PlayerInGame
	if err := pkt.Parse(body); err != nil {
		return 0, false, fmt.Errorf("parsing PlayerInGame packet: %w", err)
	}

	for _, account := range pkt.Accounts {
		conn.AddAccount(account)
	}

	gsInfo := conn.GameServerInfo()
	if gsInfo != nil {
		slog.Info("players registered as online",
			"count", len(pkt.Accounts),
			"server_id", gsInfo.ID(),
			"ip", conn.IP())
	}

	return 0, true, nil
}

func handlePlayerLogout(_ context.Context, _ *Handler, conn *GSConnection, body []byte, _ []byte) (int, bool, error) {
	var pkt clientpackets.PlayerLogout
	if err := pkt.Parse(body); err != nil {
		return 0, false, fmt.Errorf("parsing PlayerLogout packet: %w", err)
	}

	conn.RemoveAccount(pkt.Account)

	gsInfo := conn.GameServerInfo()
	if gsInfo != nil {
		slog.Info("player logged out", "account", pkt.Account, "server_id", gsInfo.ID(), "ip", conn.IP())
	}

	return 0, true, nil
}

func handlePlayerAuthRequest(_ context.Context, h *Handler, _ *GSConnection, body []byte, buf []byte) (int, bool, error) {
	var pkt clientpackets.PlayerAuthRequest
	if err := pkt.Parse(body); err != nil {
		return 0, false, fmt.Errorf("parsing PlayerAuthRequest packet: %w", err)
	}

	valid := h.sessionManager.Validate(pkt.Account, pkt.SessionKey, h.cfg.Client.ShowLicence)

	if valid {
		h.sessionManager.Remove(pkt.Account)
		slog.Info("player session validated successfully", "account", pkt.Account)
	} else {
		slog.Warn("player session validation failed", "account", pkt.Account)
	}

	n := serverpackets.PlayerAuthResponse(buf, pkt.Account, valid)
	return n, true, nil
}

func handleServerStatus(_ context.Context, _ *Handler, conn *GSConnection, body []byte, _ []byte) (int, bool, error) {
	var pkt clientpackets.ServerStatus
	if err := pkt.Parse(body); err != nil {
		return 0, false, fmt.Errorf("parsing ServerStatus packet: %w", err)
	}

	gsInfo := conn.GameServerInfo()
	if gsInfo == nil {
		return 0, false, fmt.Errorf("ServerStatus received but GameServer not authenticated")
	}

	for _, attr := range pkt.Attributes {
		switch attr.ID {
		case gameserver.ServerListStatus:
			gsInfo.SetStatus(int(attr.Value))
		case gameserver.ServerType_:
			gsInfo.SetServerType(int(attr.Value))
		case gameserver.ServerListSquareBracket:
			gsInfo.SetShowingBrackets(attr.Value != 0)
		case gameserver.MaxPlayers:
			gsInfo.SetMaxPlayers(int(attr.Value))
		case gameserver.TestServer:
			// vestigial, preserved for wire compatibility
		case gameserver.ServerAge:
			gsInfo.SetAgeLimit(int(attr.Value))
		default:
			slog.Warn("unknown ServerStatus attribute", "id", attr.ID, "value", attr.Value)
		}
	}

	// First status report completes the handshake; the GS is serving now.
	conn.SetState(gameserver.GSStateRunning)

	slog.Info("server status updated",
		"server_id", gsInfo.ID(),
		"status", gsInfo.Status(),
		"maxPlayers", gsInfo.MaxPlayers(),
		"ip", conn.IP())

	return 0, true, nil
}

// handleReplyCharacters processes opcode 0x08: the GS's answer to a
// RequestChars bus call, resolved against whatever request is outstanding
// for (serverID, account).
func handleReplyCharacters(_ context.Context, h *Handler, conn *GSConnection, body []byte, _ []byte) (int, bool, error) {
	var pkt clientpackets.ReplyCharacters
	if err := pkt.Parse(body); err != nil {
		return 0, false, fmt.Errorf("parsing ReplyCharacters packet: %w", err)
	}

	gsInfo := conn.GameServerInfo()
	if gsInfo == nil {
		return 0, false, fmt.Errorf("ReplyCharacters received but GameServer not authenticated")
	}

	h.bus.Resolve(gsInfo.ID(), pkt.Account, CharsReply{
		Chars:         pkt.Chars,
		CharsToDelete: pkt.CharsToDelete,
	})

	return 0, true, nil
}
