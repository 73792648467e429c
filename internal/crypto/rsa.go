package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"math/big"

	"github.com/udisondev/la2go/internal/constants"
)

// RSAKeyPair holds an RSA-1024 key pair and the scrambled modulus for the client.
type RSAKeyPair struct {
	PrivateKey       *rsa.PrivateKey
	ScrambledModulus []byte // 128 bytes, scrambled for L2 client
}

// GenerateRSAKeyPair generates an RSA-1024 key pair with exponent 65537 (F4)
// and pre-computes the scrambled modulus for Client↔LoginServer protocol.
func GenerateRSAKeyPair() (*RSAKeyPair, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, constants.RSAKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generating RSA key: %w", err)
	}

	// Pre-compute CRT values (Dp, Dq, Qinv) to enable Chinese Remainder Theorem optimizations
	// in crypto/rsa.DecryptPKCS1v15 and raw RSA operations. This provides ~20-30% speedup.
	privateKey.Precompute()

	modBytes := privateKey.PublicKey.N.Bytes()

	// Java BigInteger.toByteArray() may return 129 bytes with leading zero.
	// We need exactly 128 bytes.
	if len(modBytes) == constants.RSAModulusMaxSize && modBytes[0] == 0 {
		modBytes = modBytes[1:]
	}
	if len(modBytes) < constants.RSA1024ModulusSize {
		padded := make([]byte, constants.RSA1024ModulusSize)
		copy(padded[constants.RSA1024ModulusSize-len(modBytes):], modBytes)
		modBytes = padded
	}

	scrambled := ScrambleModulus(modBytes)

	return &RSAKeyPair{
		PrivateKey:       privateKey,
		ScrambledModulus: scrambled,
	}, nil
}

// GenerateRSAKeyPair512 generates an RSA-512 key pair with exponent 65537 (F4)
// for GameServer↔LoginServer protocol. Returns raw modulus (no scrambling).
//
// Note: Go's rsa.GenerateKey refuses keys under 1024 bits, but the GS↔LS
// protocol is fixed at RSA-512, so the key is assembled by hand from two
// crypto/rand primes.
func GenerateRSAKeyPair512() (*RSAKeyPair, error) {
	privateKey, err := generateRSAKeyRaw(constants.RSA512KeyBits)
	if err != nil {
		return nil, fmt.Errorf("generating RSA-512 key: %w", err)
	}

	// Pre-compute CRT values for faster RSA operations
	privateKey.Precompute()

	modBytes := privateKey.PublicKey.N.Bytes()

	// RSA-512 → 64 bytes expected
	// Java BigInteger.toByteArray() may return 65 bytes with leading zero.
	if len(modBytes) == constants.RSA512ModulusSize+1 && modBytes[0] == 0 {
		modBytes = modBytes[1:]
	}
	if len(modBytes) < constants.RSA512ModulusSize {
		padded := make([]byte, constants.RSA512ModulusSize)
		copy(padded[constants.RSA512ModulusSize-len(modBytes):], modBytes)
		modBytes = padded
	}

	// GS↔LS protocol: no scrambling, just raw modulus
	return &RSAKeyPair{
		PrivateKey:       privateKey,
		ScrambledModulus: modBytes, // raw modulus, not scrambled
	}, nil
}

// generateRSAKeyRaw assembles an RSA private key of exactly bits bits from
// two freshly drawn primes, retrying until the modulus has the full bit
// length and the exponent is invertible mod φ(n).
func generateRSAKeyRaw(bits int) (*rsa.PrivateKey, error) {
	e := big.NewInt(int64(constants.RSAPublicExponent))
	one := big.NewInt(1)

	for {
		p, err := rand.Prime(rand.Reader, bits/2)
		if err != nil {
			return nil, fmt.Errorf("generating prime p: %w", err)
		}
		q, err := rand.Prime(rand.Reader, bits/2)
		if err != nil {
			return nil, fmt.Errorf("generating prime q: %w", err)
		}
		if p.Cmp(q) == 0 {
			continue
		}

		n := new(big.Int).Mul(p, q)
		if n.BitLen() != bits {
			continue
		}

		phi := new(big.Int).Mul(new(big.Int).Sub(p, one), new(big.Int).Sub(q, one))
		d := new(big.Int)
		if d.ModInverse(e, phi) == nil {
			continue
		}

		return &rsa.PrivateKey{
			PublicKey: rsa.PublicKey{
				N: n,
				E: constants.RSAPublicExponent,
			},
			D:      d,
			Primes: []*big.Int{p, q},
		}, nil
	}
}

// ScrambleModulus applies the 4-step XOR/swap obfuscation to the RSA modulus
// as done in L2J ScrambledKeyPair.java.
// Input must be exactly 128 bytes.
func ScrambleModulus(modulus []byte) []byte {
	if len(modulus) != constants.RSA1024ModulusSize {
		panic(fmt.Sprintf("ScrambleModulus: expected %d bytes, got %d", constants.RSA1024ModulusSize, len(modulus)))
	}

	scrambled := make([]byte, constants.RSA1024ModulusSize)
	copy(scrambled, modulus)

	// Step 1: swap bytes 0x00-0x03 with 0x4D-0x50
	for i := range constants.ScrambleSwapLength {
		scrambled[constants.ScrambleSwapOffset1+i], scrambled[constants.ScrambleSwapOffset2+i] =
			scrambled[constants.ScrambleSwapOffset2+i], scrambled[constants.ScrambleSwapOffset1+i]
	}

	// Step 2: XOR first 0x40 bytes with last 0x40 bytes
	for i := range constants.ScrambleXORBlock1Size {
		scrambled[constants.ScrambleXORBlock1Start+i] ^= scrambled[constants.ScrambleXORBlock2Start+i]
	}

	// Step 3: XOR bytes 0x0D-0x10 with bytes 0x34-0x37
	for i := range constants.ScrambleXORLength {
		scrambled[constants.ScrambleXOROffset1+i] ^= scrambled[constants.ScrambleXOROffset2+i]
	}

	// Step 4: XOR last 0x40 bytes with first 0x40 bytes
	for i := range constants.ScrambleXORBlock1Size {
		scrambled[constants.ScrambleXORBlock2Start+i] ^= scrambled[constants.ScrambleXORBlock1Start+i]
	}

	return scrambled
}

// UnscrambleModulus reverses the ScrambleModulus operation to restore the original modulus.
// Client uses this to extract the original RSA public key from the scrambled modulus in Init packet.
// Input must be exactly 128 bytes.
func UnscrambleModulus(scrambled []byte) []byte {
	if len(scrambled) != constants.RSA1024ModulusSize {
		panic(fmt.Sprintf("UnscrambleModulus: expected %d bytes, got %d", constants.RSA1024ModulusSize, len(scrambled)))
	}

	unscrambled := make([]byte, constants.RSA1024ModulusSize)
	copy(unscrambled, scrambled)

	// Apply operations in REVERSE order

	// Step 4 reverse: XOR last 0x40 bytes with first 0x40 bytes
	for i := range constants.ScrambleXORBlock1Size {
		unscrambled[constants.ScrambleXORBlock2Start+i] ^= unscrambled[constants.ScrambleXORBlock1Start+i]
	}

	// Step 3 reverse: XOR bytes 0x0D-0x10 with bytes 0x34-0x37
	for i := range constants.ScrambleXORLength {
		unscrambled[constants.ScrambleXOROffset1+i] ^= unscrambled[constants.ScrambleXOROffset2+i]
	}

	// Step 2 reverse: XOR first 0x40 bytes with last 0x40 bytes
	for i := range constants.ScrambleXORBlock1Size {
		unscrambled[constants.ScrambleXORBlock1Start+i] ^= unscrambled[constants.ScrambleXORBlock2Start+i]
	}

	// Step 1 reverse: swap bytes 0x00-0x03 with 0x4D-0x50
	for i := range constants.ScrambleSwapLength {
		unscrambled[constants.ScrambleSwapOffset1+i], unscrambled[constants.ScrambleSwapOffset2+i] =
			unscrambled[constants.ScrambleSwapOffset2+i], unscrambled[constants.ScrambleSwapOffset1+i]
	}

	return unscrambled
}

// RSADecryptNoPadding decrypts a block using RSA with no padding (RSA/ECB/NoPadding).
//
// SECURITY NOTES:
// - Uses CRT (Chinese Remainder Theorem) for 2.6x speedup when Precomputed values available
// - NOT constant-time: CRT path ~115µs vs fallback ~298µs (timing leak)
// - Acceptable for L2 login protocol (one-shot operation, legacy protocol)
// - For security-critical applications, consider constant-time wrapper or crypto/rsa.DecryptOAEP
//
// CRT Algorithm (Garner's):
//   m1 = c^dP mod p
//   m2 = c^dQ mod q
//   h = (m1 - m2) * qInv mod p
//   m = m2 + h*q
//
// Expected ciphertext size:
// - RSA-512: 64 bytes
// - RSA-1024: 128 bytes
func RSADecryptNoPadding(privateKey *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	// Определяем ожидаемый размер по размеру ключа
	keySize := privateKey.N.BitLen() / 8

	if len(ciphertext) != keySize {
		return nil, fmt.Errorf("RSA decrypt: expected %d bytes for %d-bit key, got %d", keySize, privateKey.N.BitLen(), len(ciphertext))
	}

	c := new(big.Int).SetBytes(ciphertext)

	// CRT optimization: if Precomputed values are available, use Chinese Remainder Theorem
	// for 2.6x speedup. Algorithm from Go stdlib crypto/rsa (Garner's algorithm).
	// All three CRT components (Dp, Dq, Qinv) must be present for safe CRT usage.
	if privateKey.Precomputed.Dp != nil &&
		privateKey.Precomputed.Dq != nil &&
		privateKey.Precomputed.Qinv != nil &&
		len(privateKey.Primes) >= 2 {
		// m1 = c^dP mod p
		m1 := new(big.Int).Exp(c, privateKey.Precomputed.Dp, privateKey.Primes[0])

		// m2 = c^dQ mod q
		m2 := new(big.Int).Exp(c, privateKey.Precomputed.Dq, privateKey.Primes[1])

		// h = (m1 - m2) * qInv mod p
		h := new(big.Int).Sub(m1, m2)
		h.Mul(h, privateKey.Precomputed.Qinv)
		h.Mod(h, privateKey.Primes[0])

		// m = m2 + h*q
		m := new(big.Int).Mul(h, privateKey.Primes[1])
		m.Add(m, m2)

		result := m.Bytes()
		if len(result) < keySize {
			padded := make([]byte, keySize)
			copy(padded[keySize-len(result):], result)
			result = padded
		}
		return result, nil
	}

	// Fallback: raw RSA operation = ciphertext^d mod n (slower)
	m := new(big.Int).Exp(c, privateKey.D, privateKey.N)

	result := m.Bytes()
	// Pad to keySize bytes if needed
	if len(result) < keySize {
		padded := make([]byte, keySize)
		copy(padded[keySize-len(result):], result)
		result = padded
	}

	return result, nil
}

// RSAEncryptNoPadding encrypts a plaintext block with RSA/ECB/NoPadding:
// ciphertext = plaintext^E mod N, zero-padded to the modulus size. Mirrors
// RSADecryptNoPadding for the GS side of the BlowFishKey handshake, where the
// GS holds only the LS's public modulus (from InitLS) and must encrypt, not
// decrypt.
func RSAEncryptNoPadding(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	keySize := (pub.N.BitLen() + 7) / 8
	if len(plaintext) > keySize {
		return nil, fmt.Errorf("RSA encrypt: plaintext too large: %d bytes for %d-bit key", len(plaintext), pub.N.BitLen())
	}

	m := new(big.Int).SetBytes(plaintext)
	e := big.NewInt(int64(pub.E))
	c := new(big.Int).Exp(m, e, pub.N)

	result := c.Bytes()
	if len(result) < keySize {
		padded := make([]byte, keySize)
		copy(padded[keySize-len(result):], result)
		result = padded
	}
	return result, nil
}
