// Package ledger mints and queues locally signed proofs of cash-collection
// events. A proof is created at the moment a field collection completes,
// before any network sync, so a disconnected agent terminal still leaves a
// verifiable audit trail behind.
package ledger

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fieldtrust/crypto"
	"fieldtrust/device"
	"fieldtrust/identity"
)

// Proof is a locally-generated attestation of a cash-handling event. Records
// are append-only: once enqueued, only the Synced flag ever changes, and it
// transitions false to true exactly once.
type Proof struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	VendorID  string `json:"vendor_id"`
	Amount    int64  `json:"amount"`
	Timestamp int64  `json:"timestamp"`
	Nonce     int64  `json:"nonce"`
	Signature string `json:"signature"`
	Synced    bool   `json:"synced"`
}

// CanonicalString returns the stamped portion of the proof. The remote
// ledger rebuilds the same string during reconciliation to confirm
// non-repudiation.
func (p *Proof) CanonicalString(fingerprint string) string {
	return fmt.Sprintf("%s:%s:%d:%d:%s", p.AgentID, p.VendorID, p.Amount, p.Timestamp, fingerprint)
}

// Verify recomputes the stamp over the proof's own fields and reports
// whether it reproduces the stored signature.
func (p *Proof) Verify(fingerprint string) bool {
	if p == nil {
		return false
	}
	return crypto.VerifyStamp(p.CanonicalString(fingerprint), p.Signature)
}

var (
	errRecorderMissingAgent  = errors.New("ledger: agent id required")
	errRecorderMissingVendor = errors.New("ledger: vendor id required")
	errRecorderBadAmount     = errors.New("ledger: amount must be positive")

	// ErrIdentityRefused reports that the local identity gate declined the
	// collecting agent. The collection must be reported as failed; no proof
	// is minted.
	ErrIdentityRefused = errors.New("ledger: identity check refused collection")
)

// Recorder mints collection proofs for the local terminal. It performs no
// I/O beyond local key material and the local clock.
type Recorder struct {
	fingerprintFn func() string
	nowFn         func() time.Time
	nonceFn       func() (int64, error)
	gate          identity.Gate
	gateThreshold int64
}

// NewRecorder constructs a recorder using the live device fingerprint and
// UTC clock.
func NewRecorder() *Recorder {
	return &Recorder{
		fingerprintFn: func() string { return device.Fingerprint(device.Collect()) },
		nowFn:         func() time.Time { return time.Now().UTC() },
		nonceFn:       randomNonce,
	}
}

// SetNowFunc overrides the clock. Passing nil restores the default UTC
// clock.
func (r *Recorder) SetNowFunc(now func() time.Time) {
	if r == nil {
		return
	}
	if now == nil {
		r.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	r.nowFn = now
}

// SetFingerprintFunc overrides the device fingerprint source.
func (r *Recorder) SetFingerprintFunc(fn func() string) {
	if r == nil || fn == nil {
		return
	}
	r.fingerprintFn = fn
}

// SetGate installs a local identity check consulted before collections at or
// above threshold. Collections below threshold skip the check. A nil gate
// removes it.
func (r *Recorder) SetGate(gate identity.Gate, threshold int64) {
	if r == nil {
		return
	}
	r.gate = gate
	r.gateThreshold = threshold
}

// Fingerprint returns the fingerprint the recorder stamps into proofs.
func (r *Recorder) Fingerprint() string {
	return r.fingerprintFn()
}

// RecordCollection captures the current time, computes the device
// fingerprint, and returns a fully-populated unsynced proof of the
// collection. The timestamp is read once and reused for every derived value.
func (r *Recorder) RecordCollection(agentID, vendorID string, amount int64) (*Proof, error) {
	if r == nil {
		return nil, errors.New("ledger: recorder not initialised")
	}
	agentID = strings.TrimSpace(agentID)
	vendorID = strings.TrimSpace(vendorID)
	if agentID == "" {
		return nil, errRecorderMissingAgent
	}
	if vendorID == "" {
		return nil, errRecorderMissingVendor
	}
	if amount <= 0 {
		return nil, errRecorderBadAmount
	}
	if r.gate != nil && amount >= r.gateThreshold {
		result, err := r.gate.Verify(agentID)
		if err != nil {
			return nil, fmt.Errorf("ledger: identity check: %w", err)
		}
		if !result.Passed {
			return nil, ErrIdentityRefused
		}
	}
	nonce, err := r.nonceFn()
	if err != nil {
		return nil, fmt.Errorf("ledger: generate nonce: %w", err)
	}
	now := r.nowFn().UTC()
	proof := &Proof{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		VendorID:  vendorID,
		Amount:    amount,
		Timestamp: now.UnixMilli(),
		Nonce:     nonce,
	}
	proof.Signature = crypto.Stamp(proof.CanonicalString(r.fingerprintFn()))
	return proof, nil
}

// randomNonce draws a positive 63-bit value, collision-resistant enough for
// local dedup.
func randomNonce() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	value := int64(binary.BigEndian.Uint64(buf[:]) >> 1)
	if value == 0 {
		value = 1
	}
	return value, nil
}
