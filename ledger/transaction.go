package ledger

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// System program instruction tags
const (
	SystemInstructionTransfer uint32 = 2
)

// Instruction invokes one program with a list of accounts and opaque data
type Instruction struct {
	ProgramID Address   `json:"program_id"`
	Accounts  []Address `json:"accounts"`
	Data      []byte    `json:"data"`
}

// Message is the signed part of a transaction. Signers[0] pays the fee.
type Message struct {
	Signers         []Address     `json:"signers"`
	RecentBlockhash Hash          `json:"recent_blockhash"`
	Instructions    []Instruction `json:"instructions"`
}

// Bytes returns the payload that signers sign
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// Transaction is a message plus one signature per signer, in signer order
type Transaction struct {
	Signatures []Signature `json:"signatures"`
	Message    Message     `json:"message"`
}

// Signature returns the first signature, which identifies the transaction
func (t *Transaction) Signature() Signature {
	if len(t.Signatures) == 0 {
		return Signature{}
	}
	return t.Signatures[0]
}

// Encode serializes the transaction to its wire form
func (t *Transaction) Encode() ([]byte, error) {
	return json.Marshal(t)
}

// DecodeTransaction parses the wire form of a transaction
func DecodeTransaction(raw []byte) (*Transaction, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty transaction")
	}
	var tx Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if len(tx.Signatures) == 0 {
		return nil, errors.New("transaction has no signatures")
	}
	if len(tx.Message.Signers) == 0 {
		return nil, errors.New("transaction message has no signers")
	}
	return &tx, nil
}

// SignTransaction builds a transaction and signs it with keys given in signer order
func SignTransaction(msg Message, keys ...ed25519.PrivateKey) (*Transaction, error) {
	if len(keys) != len(msg.Signers) {
		return nil, fmt.Errorf("got %d keys for %d signers", len(keys), len(msg.Signers))
	}
	payload, err := msg.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	tx := &Transaction{Message: msg, Signatures: make([]Signature, len(keys))}
	for i, key := range keys {
		signer := AddressFromPublicKey(key.Public().(ed25519.PublicKey))
		if signer != msg.Signers[i] {
			return nil, fmt.Errorf("key %d does not match signer %s", i, msg.Signers[i])
		}
		copy(tx.Signatures[i][:], ed25519.Sign(key, payload))
	}
	return tx, nil
}

// TransferInstruction moves lamports between two system-owned accounts
func TransferInstruction(from, to Address, lamports uint64) Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[:4], SystemInstructionTransfer)
	binary.LittleEndian.PutUint64(data[4:], lamports)
	return Instruction{
		ProgramID: SystemProgramID,
		Accounts:  []Address{from, to},
		Data:      data,
	}
}

// ParsePrivateKey accepts a JSON byte array (32-byte seed or 64-byte keypair)
// or a base58 string of either length.
func ParsePrivateKey(s string) (ed25519.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty private key")
	}

	var raw []byte
	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("invalid key byte array: %w", err)
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("invalid key byte array: value %d out of range", v)
			}
			raw[i] = byte(v)
		}
	} else {
		decoded, err := base58.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid base58 key: %w", err)
		}
		raw = decoded
	}

	switch len(raw) {
	case ed25519.SeedSize, ed25519.PrivateKeySize:
		return ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize]), nil
	default:
		return nil, fmt.Errorf("key is %d bytes, want %d or %d", len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
	}
}
