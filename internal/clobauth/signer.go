// Package clobauth derives CLOB API credentials from an ECDSA private key.
// The key never leaves locked memory except momentarily during signing; the
// feed core only ever sees the resulting key/secret/passphrase triple and
// operates anonymously when no key is configured.
package clobauth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrNoKey = errors.New("clobauth: no private key configured")

// EIP-712 type hashes (pre-computed keccak256 of the type strings).
var (
	// keccak256("EIP712Domain(string name,string version,uint256 chainId)")
	eip712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId)",
	))

	// keccak256("ClobAuth(address address,string timestamp,uint256 nonce,string message)")
	clobAuthTypeHash = crypto.Keccak256Hash([]byte(
		"ClobAuth(address address,string timestamp,uint256 nonce,string message)",
	))
)

const (
	domainName    = "ClobAuthDomain"
	domainVersion = "1"

	// attestation is the fixed message the CLOB expects inside the signed
	// ClobAuth struct.
	attestation = "This message attests that I control the given wallet"
)

// Signer holds a wallet private key sealed in a memguard Enclave and
// produces the EIP-712 attestation signatures used for credential
// derivation. The key is encrypted at rest and only opened during Sign.
type Signer struct {
	mu      sync.Mutex
	enclave *memguard.Enclave
	address common.Address
	chainID *big.Int
}

// NewSigner seals the hex-encoded private key (with or without 0x prefix)
// and derives the wallet address.
func NewSigner(hexKey string, chainID int64) (*Signer, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	keyBytes, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("clobauth: decode private key: %w", err)
	}

	priv, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("clobauth: invalid private key: %w", err)
	}
	addr := crypto.PubkeyToAddress(priv.PublicKey)

	// NewEnclave wipes keyBytes after sealing.
	return &Signer{
		enclave: memguard.NewEnclave(keyBytes),
		address: addr,
		chainID: big.NewInt(chainID),
	}, nil
}

// Address returns the wallet address derived from the sealed key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignAttestation produces the hex-encoded EIP-712 signature over the
// ClobAuth struct for the given timestamp (unix seconds, decimal string)
// and nonce.
func (s *Signer) SignAttestation(timestamp string, nonce uint64) (string, error) {
	digest := s.attestationDigest(timestamp, nonce)

	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := s.enclave.Open()
	if err != nil {
		return "", fmt.Errorf("clobauth: open key enclave: %w", err)
	}
	defer buf.Destroy()

	priv, err := crypto.ToECDSA(buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("clobauth: unseal private key: %w", err)
	}

	sig, err := crypto.Sign(digest, priv)
	if err != nil {
		return "", fmt.Errorf("clobauth: sign attestation: %w", err)
	}
	// Ethereum convention: recovery ID 27/28 rather than 0/1.
	sig[64] += 27

	return "0x" + hex.EncodeToString(sig), nil
}

// attestationDigest assembles keccak256(0x1901 || domainSeparator ||
// structHash) per EIP-712.
func (s *Signer) attestationDigest(timestamp string, nonce uint64) []byte {
	domainSeparator := crypto.Keccak256(
		eip712DomainTypeHash.Bytes(),
		crypto.Keccak256([]byte(domainName)),
		crypto.Keccak256([]byte(domainVersion)),
		encodeUint256(s.chainID),
	)

	structHash := crypto.Keccak256(
		clobAuthTypeHash.Bytes(),
		common.LeftPadBytes(s.address.Bytes(), 32),
		crypto.Keccak256([]byte(timestamp)),
		encodeUint256(new(big.Int).SetUint64(nonce)),
		crypto.Keccak256([]byte(attestation)),
	)

	return crypto.Keccak256([]byte{0x19, 0x01}, domainSeparator, structHash)
}

func encodeUint256(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}
