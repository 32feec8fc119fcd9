// Package registry persists terminal enrollment for the field trust flow: a
// verifier resolves the expected public key for a scanned credential here and
// refuses terminals that have been revoked.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fieldtrust/crypto"
	"fieldtrust/storage"
)

// Role partitions enrolled terminals by who operates them.
type Role string

const (
	RoleAgent Role = "agent"
	RoleStall Role = "stall"
)

// Valid reports whether the role is one the registry accepts.
func (r Role) Valid() bool {
	return r == RoleAgent || r == RoleStall
}

// AddressPrefix maps the role to its bech32 address prefix.
func (r Role) AddressPrefix() crypto.AddressPrefix {
	if r == RoleAgent {
		return crypto.AgentPrefix
	}
	return crypto.StallPrefix
}

// Terminal is one enrolled terminal record.
type Terminal struct {
	ID         string `json:"id"`
	Role       Role   `json:"role"`
	PublicKey  []byte `json:"public_key"`
	Address    string `json:"address"`
	Revoked    bool   `json:"revoked"`
	EnrolledAt int64  `json:"enrolled_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

var (
	ErrTerminalNotFound = errors.New("registry: terminal not found")
	ErrTerminalRevoked  = errors.New("registry: terminal revoked")

	errRegistryUninitialised = errors.New("registry: not initialised")
)

// Registry stores terminal records and signer nonces in the terminal's local
// key-value database.
type Registry struct {
	db    storage.Database
	nowFn func() time.Time
}

// New constructs a registry backed by the provided database.
func New(db storage.Database) *Registry {
	return &Registry{
		db:    db,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock used for enrollment timestamps. Passing nil
// restores the default UTC clock.
func (r *Registry) SetNowFunc(now func() time.Time) {
	if r == nil {
		return
	}
	if now == nil {
		r.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	r.nowFn = now
}

func normalizeTerminalID(id string) string {
	return strings.TrimSpace(id)
}

func terminalKey(id string) []byte {
	return []byte("registry/terminal/" + id)
}

func signerNonceKey(id string) []byte {
	return []byte("registry/nonce/" + id)
}

// Enroll validates and persists the terminal record, deriving its address
// from the public key. Re-enrolling an existing id overwrites the record and
// clears any revocation.
func (r *Registry) Enroll(id string, role Role, publicKey []byte) (*Terminal, error) {
	if r == nil || r.db == nil {
		return nil, errRegistryUninitialised
	}
	id = normalizeTerminalID(id)
	if id == "" {
		return nil, fmt.Errorf("registry: terminal id required")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("registry: unknown role %q", role)
	}
	pub, err := crypto.PublicKeyFromBytes(publicKey)
	if err != nil {
		return nil, fmt.Errorf("registry: invalid public key: %w", err)
	}
	now := r.nowFn().UTC().Unix()
	record := &Terminal{
		ID:         id,
		Role:       role,
		PublicKey:  append([]byte(nil), publicKey...),
		Address:    pub.Address(role.AddressPrefix()).String(),
		EnrolledAt: now,
		UpdatedAt:  now,
	}
	if existing, ok, err := r.Terminal(id); err != nil {
		return nil, err
	} else if ok {
		record.EnrolledAt = existing.EnrolledAt
	}
	if err := r.put(record); err != nil {
		return nil, err
	}
	return record, nil
}

// Terminal fetches the record for the provided id. ok=false indicates the
// terminal has not been enrolled.
func (r *Registry) Terminal(id string) (*Terminal, bool, error) {
	if r == nil || r.db == nil {
		return nil, false, errRegistryUninitialised
	}
	id = normalizeTerminalID(id)
	if id == "" {
		return nil, false, nil
	}
	encoded, ok, err := r.db.Get(terminalKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	record := &Terminal{}
	if err := json.Unmarshal(encoded, record); err != nil {
		return nil, false, fmt.Errorf("registry: decode terminal %s: %w", id, err)
	}
	return record, true, nil
}

// Revoke marks the terminal revoked. Revoking an unknown id fails; revoking
// an already-revoked terminal is a no-op.
func (r *Registry) Revoke(id string) error {
	record, ok, err := r.Terminal(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTerminalNotFound
	}
	if record.Revoked {
		return nil
	}
	record.Revoked = true
	record.UpdatedAt = r.nowFn().UTC().Unix()
	return r.put(record)
}

// PublicKey resolves the verification key for an enrolled, non-revoked
// terminal.
func (r *Registry) PublicKey(id string) (*crypto.PublicKey, error) {
	record, ok, err := r.Terminal(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTerminalNotFound
	}
	if record.Revoked {
		return nil, ErrTerminalRevoked
	}
	pub, err := crypto.PublicKeyFromBytes(record.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("registry: stored key for %s unusable: %w", id, err)
	}
	return pub, nil
}

func (r *Registry) put(record *Terminal) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("registry: encode terminal %s: %w", record.ID, err)
	}
	return r.db.Put(terminalKey(record.ID), encoded)
}

type storedNonce struct {
	Nonce uint64 `json:"nonce"`
}

// EnsureFreshNonce accepts a signer nonce only if it is strictly greater
// than the last one recorded for the terminal, then persists it. Stale or
// repeated nonces are rejected.
func (r *Registry) EnsureFreshNonce(id string, nonce uint64) error {
	if r == nil || r.db == nil {
		return errRegistryUninitialised
	}
	id = normalizeTerminalID(id)
	if id == "" {
		return fmt.Errorf("registry: terminal id required")
	}
	if nonce == 0 {
		return fmt.Errorf("registry: nonce must be positive")
	}
	key := signerNonceKey(id)
	encoded, ok, err := r.db.Get(key)
	if err != nil {
		return err
	}
	if ok {
		var stored storedNonce
		if err := json.Unmarshal(encoded, &stored); err != nil {
			return fmt.Errorf("registry: decode nonce for %s: %w", id, err)
		}
		if nonce <= stored.Nonce {
			return fmt.Errorf("registry: stale nonce %d (last %d)", nonce, stored.Nonce)
		}
	}
	updated, err := json.Marshal(storedNonce{Nonce: nonce})
	if err != nil {
		return err
	}
	return r.db.Put(key, updated)
}
