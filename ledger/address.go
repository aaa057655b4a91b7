package ledger

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
)

// Size constants
const (
	AddressLength   = 32
	HashLength      = 32
	SignatureLength = 64
)

// Address identifies an account. Its text form is base58.
type Address [AddressLength]byte

// Well-known program addresses
var (
	// SystemProgramID owns plain wallet accounts. It is the all-zero address.
	SystemProgramID = Address{}
	// TokenProgramID owns SPL token accounts.
	TokenProgramID = MustParseAddress("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
)

// ParseAddress decodes a base58 address
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := decodeFixed(s, AddressLength)
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, err)
	}
	copy(a[:], b)
	return a, nil
}

// MustParseAddress is ParseAddress for constants; it panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromPublicKey returns the address of an ed25519 public key
func AddressFromPublicKey(pub ed25519.PublicKey) Address {
	var a Address
	copy(a[:], pub)
	return a
}

func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero reports whether a is the all-zero address
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Hash is a blockhash
type Hash [HashLength]byte

// ParseHash decodes a base58 hash
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := decodeFixed(s, HashLength)
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	copy(h[:], b)
	return h, nil
}

func (h Hash) String() string {
	return base58.Encode(h[:])
}

// MarshalText implements encoding.TextMarshaler
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Signature is an ed25519 transaction signature
type Signature [SignatureLength]byte

// ParseSignature decodes a base58 signature
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	b, err := decodeFixed(s, SignatureLength)
	if err != nil {
		return sig, fmt.Errorf("invalid signature %q: %w", s, err)
	}
	copy(sig[:], b)
	return sig, nil
}

func (s Signature) String() string {
	return base58.Encode(s[:])
}

// MarshalText implements encoding.TextMarshaler
func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Signature) UnmarshalText(text []byte) error {
	parsed, err := ParseSignature(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func decodeFixed(s string, size int) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, fmt.Errorf("decoded to %d bytes, want %d", len(b), size)
	}
	return b, nil
}
