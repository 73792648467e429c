package login

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/udisondev/la2go/internal/config"
	"github.com/udisondev/la2go/internal/login/serverpackets"
)

// listingRegistry is a GSRegistry stub with a fixed server list.
type listingRegistry struct {
	listings []GSListing
}

func (r listingRegistry) List(string) []GSListing { return r.listings }

func (r listingRegistry) Get(serverID int, _ string) (GSListing, bool) {
	for _, l := range r.listings {
		if l.ID == serverID {
			return l, true
		}
	}
	return GSListing{}, false
}

func (listingRegistry) RequestCharCount(context.Context, int, string) (int, bool) {
	return 0, false
}

func (listingRegistry) KickPlayer(string) bool { return false }

func buildServerListRequest(sk SessionKey) []byte {
	packet := make([]byte, 9)
	packet[0] = OpcodeRequestServerList
	binary.LittleEndian.PutUint32(packet[1:], uint32(sk.LoginOkID1))
	binary.LittleEndian.PutUint32(packet[5:], uint32(sk.LoginOkID2))
	return packet
}

func buildServerLoginRequest(sk SessionKey, serverID byte) []byte {
	packet := make([]byte, 10)
	packet[0] = OpcodeRequestServerLogin
	binary.LittleEndian.PutUint32(packet[1:], uint32(sk.LoginOkID1))
	binary.LittleEndian.PutUint32(packet[5:], uint32(sk.LoginOkID2))
	packet[9] = serverID
	return packet
}

func newAuthedClient(sk SessionKey) *Client {
	c := &Client{
		sessionID: 777,
		state:     StateAuthedLogin,
		ip:        "127.0.0.1",
		account:   "alice",
	}
	c.sessionKey = sk
	return c
}

func TestHandler_RequestServerList_TransitionsToServerListShown(t *testing.T) {
	mockRepo := &MockAccountRepository{}
	cfg := config.DefaultLoginServer()
	handler := NewHandler(mockRepo, cfg, NewSessionManager(), emptyRegistry{})

	sk := NewSessionKey()
	client := newAuthedClient(sk)
	buf := make([]byte, 1024)

	n, ok, err := handler.HandlePacket(context.Background(), client, buildServerListRequest(sk), buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected connection to stay open")
	}
	if buf[0] != serverpackets.ServerListOpcode {
		t.Errorf("expected ServerList opcode 0x04, got 0x%02X", buf[0])
	}
	if buf[1] != 0 {
		t.Errorf("expected empty server list, got %d entries", buf[1])
	}
	if n == 0 {
		t.Error("expected a response packet")
	}
	if client.State() != StateServerListShown {
		t.Errorf("expected state SERVER_LIST_SHOWN, got %v", client.State())
	}

	// A second request is legal: clients refresh the list.
	_, ok, err = handler.HandlePacket(context.Background(), client, buildServerListRequest(sk), buf)
	if err != nil {
		t.Fatalf("unexpected error on refresh: %v", err)
	}
	if !ok {
		t.Error("expected connection to stay open on refresh")
	}
}

func TestHandler_RequestServerList_WrongLoginPairCloses(t *testing.T) {
	mockRepo := &MockAccountRepository{}
	cfg := config.DefaultLoginServer()
	handler := NewHandler(mockRepo, cfg, NewSessionManager(), emptyRegistry{})

	client := newAuthedClient(NewSessionKey())
	buf := make([]byte, 1024)

	wrong := SessionKey{LoginOkID1: 1, LoginOkID2: 2}
	_, ok, err := handler.HandlePacket(context.Background(), client, buildServerListRequest(wrong), buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected connection to close on login pair mismatch")
	}
	if buf[0] != serverpackets.LoginFailOpcode {
		t.Errorf("expected LoginFail opcode, got 0x%02X", buf[0])
	}
}

func TestHandler_RequestServerLogin_TransitionsToEnteringWorld(t *testing.T) {
	mockRepo := &MockAccountRepository{}
	cfg := config.DefaultLoginServer()
	registry := listingRegistry{listings: []GSListing{{
		ID:         2,
		Host:       "10.0.0.2",
		Port:       7777,
		MaxPlayers: 100,
		Status:     1,
	}}}
	handler := NewHandler(mockRepo, cfg, NewSessionManager(), registry)

	sk := NewSessionKey()
	client := newAuthedClient(sk)
	client.SetState(StateServerListShown)
	buf := make([]byte, 1024)

	n, ok, err := handler.HandlePacket(context.Background(), client, buildServerLoginRequest(sk, 2), buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected connection to stay open")
	}
	if buf[0] != serverpackets.PlayOkOpcode {
		t.Errorf("expected PlayOk opcode 0x07, got 0x%02X", buf[0])
	}
	if got := int32(binary.LittleEndian.Uint32(buf[1:])); got != sk.PlayOkID1 {
		t.Errorf("PlayOk carries wrong playOkID1: got %d, want %d", got, sk.PlayOkID1)
	}
	if n != 9 {
		t.Errorf("expected 9-byte PlayOk payload, got %d", n)
	}
	if client.State() != StateEnteringWorld {
		t.Errorf("expected state ENTERING_WORLD, got %v", client.State())
	}
}

func TestHandler_RequestServerLogin_UnknownServer(t *testing.T) {
	mockRepo := &MockAccountRepository{}
	cfg := config.DefaultLoginServer()
	handler := NewHandler(mockRepo, cfg, NewSessionManager(), emptyRegistry{})

	sk := NewSessionKey()
	client := newAuthedClient(sk)
	buf := make([]byte, 1024)

	_, ok, err := handler.HandlePacket(context.Background(), client, buildServerLoginRequest(sk, 9), buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected connection to stay open after PlayFail")
	}
	if buf[0] != serverpackets.PlayFailOpcode {
		t.Errorf("expected PlayFail opcode 0x06, got 0x%02X", buf[0])
	}
	if client.State() == StateEnteringWorld {
		t.Error("state must not advance on unknown server")
	}
}

func TestHandler_RequestServerList_IgnoredBeforeAuth(t *testing.T) {
	mockRepo := &MockAccountRepository{}
	cfg := config.DefaultLoginServer()
	handler := NewHandler(mockRepo, cfg, NewSessionManager(), emptyRegistry{})

	sk := NewSessionKey()
	client := newAuthedClient(sk)
	client.SetState(StateConnected)
	buf := make([]byte, 1024)

	n, ok, err := handler.HandlePacket(context.Background(), client, buildServerListRequest(sk), buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("out-of-state request should not close by itself")
	}
	if n != 0 {
		t.Error("out-of-state request must produce no response")
	}
	if client.State() != StateConnected {
		t.Errorf("state must not change, got %v", client.State())
	}
}
