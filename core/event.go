package core

import (
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Action identifies the kind of asset operation an Event records.
type Action string

const (
	ActionRegister Action = "register"
	ActionTransfer Action = "transfer"
)

func (a Action) valid() bool {
	return a == ActionRegister || a == ActionTransfer
}

// Event is an immutable record of one register or transfer action against
// an asset. Events are never mutated after construction; a replica's ledger
// is the append-only sequence of Events it has accepted.
type Event struct {
	EventID    string                 `json:"node_id"`
	AssetID    string                 `json:"asset_id"`
	Action     Action                 `json:"action"`
	UserID     string                 `json:"user_id"`
	Timestamp  float64                `json:"timestamp"`
	References []string               `json:"references"`
	Signature  string                 `json:"signature"`
	Hash       string                 `json:"hash"`
	Data       map[string]interface{} `json:"data"`
}

// nowSeconds is the wall-clock source used for default timestamps. It is a
// variable so tests can pin the clock.
var nowSeconds = func() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// EventOption overrides a field NewEvent would otherwise default.
type EventOption func(*Event)

// WithTimestamp pins the event's creation timestamp instead of using the
// current wall-clock time. Used when reconstructing events from storage or
// from a wire payload that already carries a timestamp.
func WithTimestamp(ts float64) EventOption {
	return func(e *Event) { e.Timestamp = ts }
}

// WithEventID pins the event id instead of generating a fresh UUID.
func WithEventID(id string) EventOption {
	return func(e *Event) { e.EventID = id }
}

// WithSignature pins the signature instead of deriving one from a random
// nonce. Used when reconstructing events from storage.
func WithSignature(sig string) EventOption {
	return func(e *Event) { e.Signature = sig }
}

// NewEvent constructs and hashes a new Event. assetID, action, and userID
// are required; references and data default to empty when nil. Timestamp,
// event id, and signature default to a fresh value unless overridden via
// options — mirroring the prototype's optional keyword arguments.
func NewEvent(assetID string, action Action, userID string, data map[string]interface{}, references []string, opts ...EventOption) (*Event, error) {
	if assetID == "" {
		return nil, newError(KindInvalidArg, "asset id cannot be empty")
	}
	if userID == "" {
		return nil, newError(KindInvalidArg, "user id cannot be empty")
	}
	if !action.valid() {
		return nil, newError(KindInvalidArg, "invalid action: %s, must be one of register, transfer", action)
	}
	if references == nil {
		references = []string{}
	}
	if data == nil {
		data = map[string]interface{}{}
	}

	e := &Event{
		AssetID:    assetID,
		Action:     action,
		UserID:     userID,
		Timestamp:  nowSeconds(),
		References: references,
		Data:       data,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.EventID == "" {
		e.EventID = uuid.New().String()
	}
	if e.Signature == "" {
		e.Signature = generateSignature(userID, e.Timestamp)
	}
	e.Hash = computeHash(e.AssetID, e.Action, e.UserID, e.Timestamp, e.References, e.Signature, e.Data)
	return e, nil
}

// generateSignature derives an opaque, non-cryptographic content tag from
// the actor, creation time, and a random nonce. It is never verified as
// authentication.
func generateSignature(userID string, timestamp float64) string {
	nonce := rand.Intn(1000000) + 1
	base := userID + ":" + formatTimestamp(timestamp) + ":" + strconv.Itoa(nonce)
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}

// recomputeHash returns the canonical hash this event should carry given
// its current field values, used by VerifyIntegrity to detect tampering.
func (e *Event) recomputeHash() string {
	return computeHash(e.AssetID, e.Action, e.UserID, e.Timestamp, e.References, e.Signature, e.Data)
}
