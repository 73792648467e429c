package serverpackets

import "unicode/utf16"

const (
	opcodeRequestChars = 0x05
)

// RequestChars [0x05] — LS → GS запрос числа персонажей аккаунта.
// Correlates with the GS's ReplyCharacters by account name.
//
// Format:
//
//	[opcodeRequestChars]
//	[account UTF-16LE null-terminated]
//
// Returns: number of bytes written to buf.
func RequestChars(buf []byte, account string) int {
	pos := 0
	buf[pos] = opcodeRequestChars
	pos++

	for _, r := range utf16.Encode([]rune(account)) {
		buf[pos] = byte(r)
		buf[pos+1] = byte(r >> 8)
		pos += 2
	}
	buf[pos] = 0
	buf[pos+1] = 0
	pos += 2

	return pos
}
