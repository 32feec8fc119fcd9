// Package credential implements the signed, time-bound payload exchanged via
// QR code between agent and stall terminals to mutually authenticate a field
// transaction. A credential validates entirely offline: verification needs
// only the issuer's public key and the local clock.
package credential

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fieldtrust/crypto"
	"fieldtrust/device"
)

const (
	// SchemeTag prefixes every credential wire string.
	SchemeTag = "FTC"
	// Version is the wire format version literal. Future formats must add a
	// new literal and dispatch on it before parsing.
	Version = "v1"

	// TypePaymentRequest marks payloads subject to the freshness window.
	TypePaymentRequest = "PAYMENT_REQUEST"

	// DefaultFreshnessWindow bounds how old a payment request may be at
	// verification time.
	DefaultFreshnessWindow = 10 * time.Minute
)

// Metadata keys stamped into every issued payload.
const (
	FieldType        = "type"
	FieldFingerprint = "fingerprint"
	FieldNonce       = "nonce"
	FieldIssuedAt    = "iat"
)

// Parse failures. All are recoverable: the operator rescans or the peer
// reissues. None should ever crash the caller.
var (
	ErrMalformedPrefix    = errors.New("credential: missing scheme or version prefix")
	ErrMalformedStructure = errors.New("credential: wire format does not split into 4 segments")
	ErrCorruptPayload     = errors.New("credential: payload segment is not decodable")
	ErrInvalidSignature   = errors.New("credential: signature does not verify")
	ErrExpired            = errors.New("credential: payment request outside freshness window")
	ErrNonceReplayed      = errors.New("credential: nonce already consumed")
)

// Issuer builds signed credentials for the local terminal.
type Issuer struct {
	key           *crypto.PrivateKey
	fingerprintFn func() string
	nowFn         func() time.Time
	nonceFn       func() string
}

// NewIssuer constructs an issuer bound to the terminal's signing key. The
// fingerprint is recomputed for every issued credential.
func NewIssuer(key *crypto.PrivateKey) *Issuer {
	return &Issuer{
		key:           key,
		fingerprintFn: func() string { return device.Fingerprint(device.Collect()) },
		nowFn:         func() time.Time { return time.Now().UTC() },
		nonceFn:       uuid.NewString,
	}
}

// SetNowFunc overrides the clock used for the issued-at stamp. Passing nil
// restores the default UTC clock.
func (i *Issuer) SetNowFunc(now func() time.Time) {
	if i == nil {
		return
	}
	if now == nil {
		i.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	i.nowFn = now
}

// SetFingerprintFunc overrides the device fingerprint source.
func (i *Issuer) SetFingerprintFunc(fn func() string) {
	if i == nil || fn == nil {
		return
	}
	i.fingerprintFn = fn
}

var errIssuerUninitialised = errors.New("credential: issuer has no signing key")

// Issue attaches the device fingerprint, a fresh single-use nonce, and the
// current timestamp to payload, signs the combined structure, and returns the
// wire string "FTC:v1:<base64(payload)>:<base64(signature)>".
func (i *Issuer) Issue(payload map[string]interface{}) (string, error) {
	if i == nil || i.key == nil {
		return "", errIssuerUninitialised
	}
	stamped := make(map[string]interface{}, len(payload)+3)
	for k, v := range payload {
		stamped[k] = v
	}
	stamped[FieldFingerprint] = i.fingerprintFn()
	stamped[FieldNonce] = i.nonceFn()
	stamped[FieldIssuedAt] = i.nowFn().UnixMilli()

	encoded, err := json.Marshal(stamped)
	if err != nil {
		return "", fmt.Errorf("credential: encode payload: %w", err)
	}
	sig, err := crypto.Sign(encoded, i.key)
	if err != nil {
		return "", fmt.Errorf("credential: sign payload: %w", err)
	}
	metrics().issued.Inc()
	return strings.Join([]string{SchemeTag, Version, base64.StdEncoding.EncodeToString(encoded), sig}, ":"), nil
}

// Verifier parses and validates credentials issued by a known peer key.
type Verifier struct {
	key    *crypto.PublicKey
	nowFn  func() time.Time
	window time.Duration
	nonces *NonceLedger
}

// NewVerifier constructs a verifier for credentials signed by the supplied
// public key, using the default payment-request freshness window.
func NewVerifier(key *crypto.PublicKey) *Verifier {
	return &Verifier{
		key:    key,
		nowFn:  func() time.Time { return time.Now().UTC() },
		window: DefaultFreshnessWindow,
	}
}

// SetNowFunc overrides the clock used for freshness checks. Passing nil
// restores the default UTC clock.
func (v *Verifier) SetNowFunc(now func() time.Time) {
	if v == nil {
		return
	}
	if now == nil {
		v.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	v.nowFn = now
}

// SetFreshnessWindow overrides the payment-request freshness window.
// Non-positive values restore the default.
func (v *Verifier) SetFreshnessWindow(window time.Duration) {
	if v == nil {
		return
	}
	if window <= 0 {
		v.window = DefaultFreshnessWindow
		return
	}
	v.window = window
}

// SetNonceLedger installs a replay ledger. With a ledger installed, a second
// presentation of the same nonce fails with ErrNonceReplayed. Without one,
// replay detection is deferred to the remote side.
func (v *Verifier) SetNonceLedger(ledger *NonceLedger) {
	if v == nil {
		return
	}
	v.nonces = ledger
}

var errVerifierUninitialised = errors.New("credential: verifier has no public key")

// Parse validates wire and returns the embedded payload, metadata included.
// Rejections are typed: ErrMalformedPrefix, ErrMalformedStructure,
// ErrCorruptPayload, ErrInvalidSignature, ErrExpired, ErrNonceReplayed.
func (v *Verifier) Parse(wire string) (map[string]interface{}, error) {
	if v == nil || v.key == nil {
		return nil, errVerifierUninitialised
	}
	payload, err := v.parse(wire)
	metrics().observeParse(err)
	return payload, err
}

func (v *Verifier) parse(wire string) (map[string]interface{}, error) {
	if !strings.HasPrefix(wire, SchemeTag+":"+Version+":") {
		return nil, ErrMalformedPrefix
	}
	segments := strings.Split(wire, ":")
	if len(segments) != 4 {
		return nil, ErrMalformedStructure
	}
	encoded, err := base64.StdEncoding.DecodeString(segments[2])
	if err != nil {
		return nil, ErrCorruptPayload
	}
	if !crypto.Verify(encoded, segments[3], v.key) {
		return nil, ErrInvalidSignature
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(encoded, &payload); err != nil {
		return nil, ErrCorruptPayload
	}
	now := v.nowFn().UTC()
	if payloadType, _ := payload[FieldType].(string); payloadType == TypePaymentRequest {
		issuedAt, ok := payloadIssuedAt(payload)
		// An unreadable timestamp on a payment request fails closed.
		if !ok {
			return nil, ErrExpired
		}
		if now.Sub(issuedAt) >= v.window {
			return nil, ErrExpired
		}
	}
	if v.nonces != nil {
		nonce, _ := payload[FieldNonce].(string)
		if !v.nonces.Remember(nonce, now) {
			return nil, ErrNonceReplayed
		}
	}
	return payload, nil
}

func payloadIssuedAt(payload map[string]interface{}) (time.Time, bool) {
	raw, ok := payload[FieldIssuedAt]
	if !ok {
		return time.Time{}, false
	}
	switch value := raw.(type) {
	case float64:
		return time.UnixMilli(int64(value)).UTC(), true
	case int64:
		return time.UnixMilli(value).UTC(), true
	case json.Number:
		millis, err := value.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(millis).UTC(), true
	default:
		return time.Time{}, false
	}
}
