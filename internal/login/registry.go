package login

import "context"

// GSListing is a snapshot of one registered GameServer, as seen by a client
// connecting from clientIP (host already NAT-resolved for that IP).
type GSListing struct {
	ID             int
	Host           string
	Port           int
	MaxPlayers     int
	CurrentPlayers int
	Status         int
	ServerType     int
	AgeLimit       int
	Brackets       bool
}

// GSRegistry is the login package's view onto the live GameServer registry.
// It exists so login.Handler never imports gslistener/gameserver directly
// (which would create an import cycle, since gslistener already imports
// login for SessionManager) — the concrete implementation lives in
// gslistener and is handed in at construction time.
type GSRegistry interface {
	// List returns every currently-registered GameServer, with Host resolved
	// for a client connecting from clientIP.
	List(clientIP string) []GSListing

	// Get returns one GameServer by id, with Host resolved for clientIP.
	Get(serverID int, clientIP string) (GSListing, bool)

	// RequestCharCount asks the given GS (over the cross-link bus) how many
	// characters account has there. ok=false means "unknown" — GS offline,
	// no reply within the configured timeout, or a duplicate in-flight
	// request — callers should treat it the same as zero known characters.
	RequestCharCount(ctx context.Context, serverID int, account string) (int, bool)

	// KickPlayer asks whichever GS currently has account online to drop the
	// connection. Returns false if no GS reports the account online.
	KickPlayer(account string) bool
}
