package login

// ConnectionState represents the state machine for a login connection.
type ConnectionState int

const (
	StateConnected       ConnectionState = iota // TCP connected, Init sent
	StateAuthedGG                               // GameGuard verified
	StateAuthedLogin                            // Login/password accepted
	StateServerListShown                        // ServerList delivered at least once
	StateEnteringWorld                          // PlayOk sent; client is leaving for the GS
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateAuthedGG:
		return "AUTHED_GG"
	case StateAuthedLogin:
		return "AUTHED_LOGIN"
	case StateServerListShown:
		return "SERVER_LIST_SHOWN"
	case StateEnteringWorld:
		return "ENTERING_WORLD"
	default:
		return "UNKNOWN"
	}
}
