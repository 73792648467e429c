package gsclient

// GameServer→LoginServer opcodes (mirrors internal/gslistener's Opcode* from
// the other side of the wire).
const (
	opcodeBlowFishKey       = 0x00
	opcodeGameServerAuth    = 0x01
	opcodePlayerInGame      = 0x02
	opcodePlayerLogout      = 0x03
	opcodePlayerAuthRequest = 0x05
	opcodeServerStatus      = 0x06
	opcodeReplyCharacters   = 0x08
)

// LoginServer→GameServer opcodes.
const (
	opcodeInitLS             = 0x00
	opcodeLoginServerFail    = 0x01
	opcodeAuthResponse       = 0x02
	opcodePlayerAuthResponse = 0x03
	opcodeKickPlayer         = 0x04
	opcodeRequestChars       = 0x05
)
