package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable prefix for a terminal address.
type AddressPrefix string

const (
	// AgentPrefix marks addresses belonging to field collection agents.
	AgentPrefix AddressPrefix = "agt"
	// StallPrefix marks addresses belonging to stall occupant terminals.
	StallPrefix AddressPrefix = "stl"
)

// Address represents a 20-byte terminal address with a role prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != 20 {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: prefix, bytes: b}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return a.bytes
}

// Prefix returns the role prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

// GeneratePrivateKey produces a fresh secp256k1 key pair for the terminal
// session. Failure here is fatal to the session: a terminal without keys can
// neither issue nor verify credentials.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the terminal address for the key under the given role
// prefix.
func (k *PublicKey) Address(prefix AddressPrefix) Address {
	addrBytes := ethcrypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return NewAddress(prefix, addrBytes)
}

// Bytes returns the uncompressed SEC1 encoding of the public key, the form
// distributed to peer terminals for credential verification.
func (k *PublicKey) Bytes() []byte {
	return ethcrypto.FromECDSAPub(k.PublicKey)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	key, err := ethcrypto.UnmarshalPubkey(b)
	if err != nil {
		return nil, err
	}
	return &PublicKey{key}, nil
}

// --- Signing ---

// Sign produces a signature over the SHA-256 digest of payload and returns it
// base64 encoded for embedding in wire formats. The recovery byte is dropped:
// verification always has the public key in hand, and keeping the byte would
// leave a signature segment that tolerates mutation.
func Sign(payload []byte, key *PrivateKey) (string, error) {
	if key == nil || key.PrivateKey == nil {
		return "", fmt.Errorf("crypto: nil private key")
	}
	digest := sha256.Sum256(payload)
	sig, err := ethcrypto.Sign(digest[:], key.PrivateKey)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig[:64]), nil
}

// Verify reports whether signature authenticates payload under key. Any
// decoding failure, malformed signature, or key mismatch yields false; the
// caller cannot distinguish the cases, which keeps verification free of
// oracle leakage. Decoding is strict: exactly 64 raw bytes, canonical
// padding bits. Every single-character mutation of a valid signature
// string must fail.
func Verify(payload []byte, signature string, key *PublicKey) bool {
	if key == nil || key.PublicKey == nil {
		return false
	}
	raw, err := base64.StdEncoding.Strict().DecodeString(signature)
	if err != nil || len(raw) != 64 {
		return false
	}
	digest := sha256.Sum256(payload)
	return ethcrypto.VerifySignature(key.Bytes(), digest[:], raw)
}
