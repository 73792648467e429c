package clientpackets

import (
	"fmt"

	"github.com/udisondev/la2go/internal/gslistener/packet"
)

// ReplyCharacters [0x08] — GS → LS ответ на RequestChars с общим числом
// персонажей аккаунта и списком имён персонажей, ожидающих удаления.
//
// Format:
//
//	[opcode 0x08]
//	[account UTF-16LE null-terminated]
//	[chars byte]
//	[charsToDelete byte]
//	[charsToDelete * name UTF-16LE null-terminated]
type ReplyCharacters struct {
	Account       string
	Chars         int
	CharsToDelete []string
}

// Parse парсит пакет ReplyCharacters из body (без opcode).
func (p *ReplyCharacters) Parse(body []byte) error {
	r := packet.NewReader(body)

	account, err := r.ReadString()
	if err != nil {
		return fmt.Errorf("reading account: %w", err)
	}
	p.Account = account

	chars, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("reading chars: %w", err)
	}
	p.Chars = int(chars)

	toDelete, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("reading charsToDelete count: %w", err)
	}

	p.CharsToDelete = make([]string, 0, toDelete)
	for i := 0; i < int(toDelete); i++ {
		name, err := r.ReadString()
		if err != nil {
			return fmt.Errorf("reading charToDelete[%d]: %w", i, err)
		}
		p.CharsToDelete = append(p.CharsToDelete, name)
	}

	return nil
}
