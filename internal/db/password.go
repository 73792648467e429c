package db

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. Tuned for an interactive login path, not for bulk hashing.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // KiB
	argon2Threads = 4
	argon2KeyLen  = 32
	argon2SaltLen = 16
)

// HashPassword derives an Argon2id hash and encodes it as a PHC string, e.g.
// "$argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>". VerifyPassword reads the
// salt and the hash length back from that string; the m/t/p fields are not
// read back — verification always uses the current argon2* constants.
func HashPassword(password string) string {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		panic(fmt.Sprintf("reading random salt: %v", err))
	}
	sum := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return encodePHC(salt, sum)
}

// VerifyPassword reports whether password produces the PHC-encoded hash.
// Accepts the legacy bare-hash format (no "$argon2id$" prefix) as a mismatch,
// never a match — there is no secret material to recover a salt from it.
func VerifyPassword(hash, password string) bool {
	salt, sum, ok := decodePHC(hash)
	if !ok {
		return false
	}
	candidate := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, uint32(len(sum)))
	return subtle.ConstantTimeCompare(candidate, sum) == 1
}

func encodePHC(salt, sum []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argon2Memory, argon2Time, argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum))
}

func decodePHC(hash string) (salt, sum []byte, ok bool) {
	parts := strings.Split(hash, "$")
	// ["", "argon2id", "v=19", "m=...,t=...,p=...", "<salt>", "<hash>"]
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, false
	}
	sum, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, false
	}
	return salt, sum, true
}
