package login

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/udisondev/la2go/internal/config"
	"github.com/udisondev/la2go/internal/constants"
	"github.com/udisondev/la2go/internal/crypto"
	"github.com/udisondev/la2go/internal/db"
	"github.com/udisondev/la2go/internal/login/serverpackets"
)

// Client packet opcodes
const (
	OpcodeRequestAuthLogin   = 0x00
	OpcodeRequestServerLogin = 0x02
	OpcodeRequestServerList  = 0x05
	OpcodeAuthGameGuard      = 0x07
)

// Handler processes login packets. Singleton — один на сервер.
type Handler struct {
	accounts       AccountRepository
	cfg            config.LoginServer
	sessionManager *SessionManager
	registry       GSRegistry
}

// NewHandler creates a packet handler.
func NewHandler(accounts AccountRepository, cfg config.LoginServer, sessionManager *SessionManager, registry GSRegistry) *Handler {
	return &Handler{
		accounts:       accounts,
		cfg:            cfg,
		sessionManager: sessionManager,
		registry:       registry,
	}
}

// HandlePacket dispatches a decrypted packet to the appropriate handler.
// Writes response into buf. Returns: n — bytes written to buf (0 = nothing to send),
// ok — true if connection stays open (false = close after sending).
func (h *Handler) HandlePacket(
	ctx context.Context,
	client *Client,
	data, buf []byte,
) (int, bool, error) {
	if len(data) == 0 {
		return 0, false, fmt.Errorf("empty packet data")
	}

	opcode := data[0]
	body := data[1:]

	switch opcode {
	case OpcodeAuthGameGuard:
		return handleAuthGameGuard(client, body, buf)
	case OpcodeRequestAuthLogin:
		return h.handleRequestAuthLogin(ctx, client, body, buf)
	case OpcodeRequestServerList:
		return h.handleRequestServerList(ctx, client, body, buf)
	case OpcodeRequestServerLogin:
		return h.handleRequestServerLogin(client, body, buf)
	default:
		slog.Warn("unknown login packet opcode", "opcode", fmt.Sprintf("0x%02X", opcode), "client", client.IP())
		return 0, true, nil
	}
}

func closeFail(buf []byte, reason byte) (int, bool) {
	return serverpackets.LoginFail(buf, reason), false
}

// trimField strips the NUL/space padding the client pads fixed-width
// credential fields with. Embedded NULs are trimmed, never rejected.
func trimField(b []byte) string {
	return strings.TrimSpace(strings.Trim(string(b), "\x00 "))
}

// handleAuthGameGuard processes opcode 0x07 in state CONNECTED.
func handleAuthGameGuard(client *Client, data, buf []byte) (int, bool, error) {
	if client.State() != StateConnected {
		slog.Warn("AuthGameGuard in wrong state", "state", client.State(), "client", client.IP())
		return 0, true, nil
	}

	if len(data) < 4 {
		return 0, false, fmt.Errorf("AuthGameGuard packet too short: %d", len(data))
	}

	sessionID := int32(binary.LittleEndian.Uint32(data[:4]))

	if sessionID != client.SessionID() {
		slog.Warn("session ID mismatch in AuthGameGuard",
			"expected", client.SessionID(),
			"got", sessionID,
			"client", client.IP())
		n, ok := closeFail(buf, serverpackets.ReasonAccessFailed)
		return n, ok, nil
	}

	client.SetState(StateAuthedGG)
	slog.Debug("GameGuard auth OK", "client", client.IP())
	return serverpackets.GGAuth(buf, client.SessionID()), true, nil
}

// handleRequestAuthLogin processes opcode 0x00 in state AUTHED_GG.
func (h *Handler) handleRequestAuthLogin(
	ctx context.Context,
	client *Client,
	data, buf []byte,
) (int, bool, error) {
	if client.State() != StateAuthedGG {
		slog.Warn("RequestAuthLogin in wrong state", "state", client.State(), "client", client.IP())
		return 0, true, nil
	}

	remaining := len(data)
	if remaining < constants.RSA1024ModulusSize {
		slog.Warn("RequestAuthLogin packet too short", "size", remaining, "client", client.IP())
		n, ok := closeFail(buf, serverpackets.ReasonAccessFailed)
		return n, ok, nil
	}

	// "New auth" clients send two RSA blocks with a non-zero trailing flag
	// byte; the username spans both blocks. Legacy clients send one block.
	newAuth := remaining >= 2*constants.RSA1024ModulusSize && data[remaining-1] != 0

	privateKey := client.RSAKeyPair().PrivateKey
	decrypted, err := crypto.RSADecryptNoPadding(privateKey, data[:constants.RSA1024ModulusSize])
	if err != nil {
		slog.Warn("RSA decryption failed", "err", err, "client", client.IP())
		n, ok := closeFail(buf, serverpackets.ReasonAccessFailed)
		return n, ok, nil
	}

	var login, password string
	if newAuth {
		block2, err := crypto.RSADecryptNoPadding(privateKey, data[constants.RSA1024ModulusSize:2*constants.RSA1024ModulusSize])
		if err != nil {
			slog.Warn("RSA decryption failed (second block)", "err", err, "client", client.IP())
			n, ok := closeFail(buf, serverpackets.ReasonAccessFailed)
			return n, ok, nil
		}
		decrypted = append(decrypted, block2...)

		login = trimField(decrypted[constants.AuthLoginNewUser1Offset:constants.AuthLoginNewUser1Offset+constants.AuthLoginNewUser1MaxLength]) +
			trimField(decrypted[constants.AuthLoginNewUser2Offset:constants.AuthLoginNewUser2Offset+constants.AuthLoginNewUser2MaxLength])
		password = trimField(decrypted[constants.AuthLoginNewPasswordOffset : constants.AuthLoginNewPasswordOffset+constants.AuthLoginNewPasswordMaxLength])
	} else {
		login = trimField(decrypted[constants.AuthLoginUsernameOffset : constants.AuthLoginUsernameOffset+constants.AuthLoginUsernameMaxLength])
		password = trimField(decrypted[constants.AuthLoginPasswordOffset : constants.AuthLoginPasswordOffset+constants.AuthLoginPasswordMaxLength])
	}

	login = strings.ToLower(login)

	if login == "" || password == "" {
		slog.Warn("empty login or password", "client", client.IP())
		n, ok := closeFail(buf, serverpackets.ReasonUserOrPassWrong)
		return n, ok, nil
	}

	slog.Info("auth attempt", "login", login, "client", client.IP())

	acc, err := h.accounts.GetAccount(ctx, login)
	if err != nil {
		slog.Error("database error during auth", "err", err, "client", client.IP())
		n, ok := closeFail(buf, serverpackets.ReasonSystemError)
		return n, ok, nil
	}

	newAccount := acc == nil
	if newAccount {
		if h.cfg.AutoRegistration {
			// Атомарная операция: получить существующий или создать новый
			// Thread-safe: использует INSERT ... ON CONFLICT для защиты от race conditions
			passHash := db.HashPassword(password)
			acc, err = h.accounts.GetOrCreateAccount(ctx, login, passHash, client.IP())
			if err != nil {
				slog.Error("failed to get or create account", "err", err, "client", client.IP())
				n, ok := closeFail(buf, serverpackets.ReasonSystemError)
				return n, ok, nil
			}
			// Another goroutine may have won the race and created the account
			// with its own password; re-verify below rather than trust newAccount.
			newAccount = false
		} else {
			n, ok := closeFail(buf, serverpackets.ReasonUserOrPassWrong)
			return n, ok, nil
		}
	}

	if !newAccount && !db.VerifyPassword(acc.PasswordHash, password) {
		slog.Warn("wrong password", "login", login, "client", client.IP())
		n, ok := closeFail(buf, serverpackets.ReasonUserOrPassWrong)
		return n, ok, nil
	}

	if acc.AccessLevel < 0 {
		slog.Warn("account banned", "login", login, "client", client.IP())
		n := serverpackets.AccountKicked(buf, serverpackets.ReasonPermanentlyBanned)
		return n, false, nil
	}

	if prior, ok := h.sessionManager.Get(login); ok {
		slog.Info("evicting stale session for re-login", "login", login, "client", client.IP())
		if !h.registry.KickPlayer(login) && prior.Client != nil && prior.Client != client {
			prior.Client.Close()
		}
		h.sessionManager.Remove(login)
	}

	client.SetAccount(login)
	client.SetState(StateAuthedLogin)
	sk := NewSessionKey()
	client.SetSessionKey(sk)

	// Сохраняем сессию для последующей валидации через GameServer
	h.sessionManager.Store(login, sk, client)

	if err := h.accounts.UpdateLastLogin(ctx, login, client.IP()); err != nil {
		slog.Error("failed to update last login", "err", err)
	}

	slog.Info("auth success", "login", login, "client", client.IP())

	if h.cfg.Client.ShowLicence {
		return serverpackets.LoginOk(
			buf,
			sk.LoginOkID1,
			sk.LoginOkID2,
		), true, nil
	}
	// Licence screen disabled: skip straight to the server list.
	n := h.buildServerList(ctx, buf, client)
	client.SetState(StateServerListShown)
	return n, true, nil
}

// handleRequestServerList processes opcode 0x05 in state AUTHED_LOGIN or
// SERVER_LIST_SHOWN (a client may ask for the list again).
func (h *Handler) handleRequestServerList(
	ctx context.Context,
	client *Client,
	data, buf []byte,
) (int, bool, error) {
	if s := client.State(); s != StateAuthedLogin && s != StateServerListShown {
		slog.Warn("RequestServerList in wrong state", "state", s, "client", client.IP())
		return 0, true, nil
	}

	if len(data) < 8 {
		return 0, false, fmt.Errorf("RequestServerList packet too short: %d", len(data))
	}

	skey1 := int32(binary.LittleEndian.Uint32(data[:4]))
	skey2 := int32(binary.LittleEndian.Uint32(data[4:8]))

	sk := client.SessionKey()
	if !sk.CheckLoginPair(skey1, skey2) {
		slog.Warn("login pair mismatch in RequestServerList", "client", client.IP())
		n, ok := closeFail(buf, serverpackets.ReasonAccessFailed)
		return n, ok, nil
	}

	n := h.buildServerList(ctx, buf, client)
	client.SetState(StateServerListShown)
	return n, true, nil
}

// handleRequestServerLogin processes opcode 0x02 once the login pair has
// been accepted (server list shown or not — older clients skip the list).
func (h *Handler) handleRequestServerLogin(
	client *Client,
	data, buf []byte,
) (int, bool, error) {
	if s := client.State(); s != StateAuthedLogin && s != StateServerListShown {
		slog.Warn("RequestServerLogin in wrong state", "state", s, "client", client.IP())
		return 0, true, nil
	}

	if len(data) < 9 {
		return 0, false, fmt.Errorf("RequestServerLogin packet too short: %d", len(data))
	}

	skey1 := int32(binary.LittleEndian.Uint32(data[:4]))
	skey2 := int32(binary.LittleEndian.Uint32(data[4:8]))
	serverIDByte := data[8]

	sk := client.SessionKey()
	if !sk.CheckLoginPair(skey1, skey2) {
		slog.Warn("login pair mismatch in RequestServerLogin", "client", client.IP())
		n, ok := closeFail(buf, serverpackets.ReasonAccessFailed)
		return n, ok, nil
	}

	if _, found := h.registry.Get(int(serverIDByte), client.IP()); !found {
		slog.Warn("unknown server requested", "serverId", serverIDByte, "client", client.IP())
		return serverpackets.PlayFail(buf, serverpackets.ReasonServerOverloaded), true, nil
	}

	slog.Info("server login OK", "login", client.Account(), "serverId", serverIDByte, "client", client.IP())
	client.SetState(StateEnteringWorld)
	return serverpackets.PlayOk(buf, sk.PlayOkID1, sk.PlayOkID2), true, nil
}

// buildServerList writes the server list packet into buf from the live GS
// registry, resolving each server's host for client's IP (NAT-aware) and
// filling in each server's character count for client's account when known.
func (h *Handler) buildServerList(ctx context.Context, buf []byte, client *Client) int {
	listings := h.registry.List(client.IP())
	account := client.Account()

	servers := make([]serverpackets.ServerInfo, 0, len(listings))
	for _, gs := range listings {
		var charCount byte
		if account != "" {
			if count, ok := h.registry.RequestCharCount(ctx, gs.ID, account); ok {
				charCount = byte(count)
			}
		}
		// The client's status byte is 0 = down, 1 = up; every GS status
		// other than Down (gameserver.StatusDown = 0x04) is shown as up.
		status := byte(1)
		if gs.Status == 0x04 {
			status = 0
		}
		servers = append(servers, serverpackets.ServerInfo{
			ID:             byte(gs.ID),
			IP:             net.ParseIP(gs.Host),
			Port:           int32(gs.Port),
			AgeLimit:       byte(gs.AgeLimit),
			PvP:            false,
			CurrentPlayers: int16(gs.CurrentPlayers),
			MaxPlayers:     int16(gs.MaxPlayers),
			Status:         status,
			ServerType:     int32(gs.ServerType),
			Brackets:       gs.Brackets,
			CharCount:      charCount,
		})
	}
	var lastServer byte
	if len(servers) > 0 {
		lastServer = servers[0].ID
	}
	return serverpackets.ServerList(buf, servers, lastServer)
}
