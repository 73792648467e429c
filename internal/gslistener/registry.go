package gslistener

import (
	"context"

	"github.com/udisondev/la2go/internal/gameserver"
	"github.com/udisondev/la2go/internal/login"
)

// Registry adapts a GameServerTable + Handler pair into login.GSRegistry, so
// login.Handler can list servers and request char counts without importing
// gslistener or gameserver.
type Registry struct {
	gsTable *gameserver.GameServerTable
	handler *Handler
}

// NewRegistry builds a login.GSRegistry backed by gsTable and handler.
func NewRegistry(gsTable *gameserver.GameServerTable, handler *Handler) *Registry {
	return &Registry{gsTable: gsTable, handler: handler}
}

func (r *Registry) toListing(info *gameserver.GameServerInfo, clientIP string) login.GSListing {
	external := clientIP
	var online int
	if conn, ok := r.handler.ConnByID(info.ID()); ok {
		external = conn.IP()
		online = conn.AccountCount()
	}
	return login.GSListing{
		ID:             info.ID(),
		Host:           info.ResolveHost(clientIP, external),
		Port:           info.Port(),
		MaxPlayers:     info.MaxPlayers(),
		CurrentPlayers: online,
		Status:         info.Status(),
		ServerType:     info.ServerType(),
		AgeLimit:       info.AgeLimit(),
		Brackets:       info.ShowingBrackets(),
	}
}

// List implements login.GSRegistry.
func (r *Registry) List(clientIP string) []login.GSListing {
	infos := r.gsTable.List()
	listings := make([]login.GSListing, 0, len(infos))
	for _, info := range infos {
		if !info.IsAuthed() {
			continue
		}
		listings = append(listings, r.toListing(info, clientIP))
	}
	return listings
}

// Get implements login.GSRegistry.
func (r *Registry) Get(serverID int, clientIP string) (login.GSListing, bool) {
	info, ok := r.gsTable.GetByID(serverID)
	if !ok || !info.IsAuthed() {
		return login.GSListing{}, false
	}
	return r.toListing(info, clientIP), true
}

// RequestCharCount implements login.GSRegistry.
func (r *Registry) RequestCharCount(ctx context.Context, serverID int, account string) (int, bool) {
	return r.handler.RequestCharCount(ctx, serverID, account)
}

// KickPlayer implements login.GSRegistry.
func (r *Registry) KickPlayer(account string) bool {
	return r.handler.KickPlayer(account)
}
