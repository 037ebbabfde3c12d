package types

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// SignatureLength is the size of a recoverable secp256k1 signature.
const SignatureLength = crypto.SignatureLength

var (
	ErrNoInstructions   = errors.New("transaction has no instructions")
	ErrInvalidSignature = errors.New("invalid transaction signature")
)

// Transaction bundles instructions that execute atomically. Every identity
// that must prove control for the call adds one signature over Hash.
type Transaction struct {
	Nonce        uint64          `json:"nonce"`
	Instructions []Instruction   `json:"instructions"`
	Signatures   []hexutil.Bytes `json:"signatures"`
}

// signingPayload is the canonical RLP body covered by signatures.
type signingPayload struct {
	Nonce        uint64
	Instructions []Instruction
}

// Hash returns the keccak256 digest of the RLP encoded unsigned body.
func (tx *Transaction) Hash() (common.Hash, error) {
	encoded, err := rlp.EncodeToBytes(&signingPayload{Nonce: tx.Nonce, Instructions: tx.Instructions})
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// Sign appends a signature made with privKey.
func (tx *Transaction) Sign(privKey *ecdsa.PrivateKey) error {
	if privKey == nil {
		return errors.New("nil private key")
	}
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash.Bytes(), privKey)
	if err != nil {
		return err
	}
	tx.Signatures = append(tx.Signatures, sig)
	return nil
}

// Signers recovers the identity behind every signature. The returned set is
// the call's proof of identity control.
func (tx *Transaction) Signers() (map[Pubkey]bool, error) {
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	signers := make(map[Pubkey]bool, len(tx.Signatures))
	for i, sig := range tx.Signatures {
		if len(sig) != SignatureLength {
			return nil, fmt.Errorf("%w: signature %d has length %d", ErrInvalidSignature, i, len(sig))
		}
		pub, err := crypto.SigToPub(hash.Bytes(), sig)
		if err != nil {
			return nil, fmt.Errorf("%w: signature %d: %v", ErrInvalidSignature, i, err)
		}
		signers[IdentityFromPublicKey(pub)] = true
	}
	return signers, nil
}

// IdentityFromPublicKey maps a secp256k1 public key onto the 32-byte identity
// space: the keccak256 digest of the uncompressed point without its prefix.
func IdentityFromPublicKey(pub *ecdsa.PublicKey) Pubkey {
	raw := crypto.FromECDSAPub(pub)
	return Pubkey(crypto.Keccak256Hash(raw[1:]))
}
