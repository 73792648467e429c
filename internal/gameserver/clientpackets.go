package gameserver

import (
	"fmt"

	"github.com/udisondev/la2go/internal/gameserver/packet"
	"github.com/udisondev/la2go/internal/login"
)

// Client→GameServer opcodes.
const (
	opcodeAuthLogin = 0x08
)

// authLoginRequest is the client's session-key handoff: the account and
// four-part key it received from the LoginServer's server list, presented
// here so this GS can validate it against the LS over the GS↔LS link.
type authLoginRequest struct {
	Account    string
	SessionKey login.SessionKey
}

func parseAuthLogin(body []byte) (authLoginRequest, error) {
	r := packet.NewReader(body)

	account, err := r.ReadString()
	if err != nil {
		return authLoginRequest{}, fmt.Errorf("reading account: %w", err)
	}
	playOk1, err := r.ReadInt()
	if err != nil {
		return authLoginRequest{}, fmt.Errorf("reading playOk1: %w", err)
	}
	playOk2, err := r.ReadInt()
	if err != nil {
		return authLoginRequest{}, fmt.Errorf("reading playOk2: %w", err)
	}
	loginOk1, err := r.ReadInt()
	if err != nil {
		return authLoginRequest{}, fmt.Errorf("reading loginOk1: %w", err)
	}
	loginOk2, err := r.ReadInt()
	if err != nil {
		return authLoginRequest{}, fmt.Errorf("reading loginOk2: %w", err)
	}

	return authLoginRequest{
		Account: account,
		SessionKey: login.SessionKey{
			PlayOkID1:  playOk1,
			PlayOkID2:  playOk2,
			LoginOkID1: loginOk1,
			LoginOkID2: loginOk2,
		},
	}, nil
}
