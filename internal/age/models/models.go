// Package models holds the entities and wire values of the age verification
// mediator: the Session pairing a mediator handle with an upstream proof
// session, the VerificationOutcome asserting a user passed the age predicate,
// and the transient disclosure request/result values exchanged with the
// upstream Yivi server.
package models

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// Session maps a mediator-issued handle to an upstream proof session.
// A Session is never mutated after creation; outcomes are recorded on a
// separate entity.
type Session struct {
	// Handle is the opaque, unguessable identifier returned to the caller.
	Handle string
	// UpstreamToken is the token issued by the proof server, at most 20
	// characters, unique across live sessions. It is a bearer value and must
	// never be logged.
	UpstreamToken string
	// UserID references the authenticated caller at Start. Empty only when
	// the user row was deleted after the session was created.
	UserID    string
	CreatedAt time.Time
}

// VerificationOutcome records that a user satisfied the age predicate.
// At most one outcome exists per user and it is never mutated.
type VerificationOutcome struct {
	UserID    string
	CreatedAt time.Time
}

// NewHandle allocates a fresh 128-bit random handle, URL-safe encoded.
func NewHandle() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate handle: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Status is the status of an upstream disclosure session.
type Status string

const (
	StatusInitialized Status = "INITIALIZED" // session started, waiting for the client app
	StatusPairing     Status = "PAIRING"     // client app is pairing with the proof server
	StatusConnected   Status = "CONNECTED"   // client retrieved the request, waiting for its response
	StatusDone        Status = "DONE"        // session completed
	StatusCancelled   Status = "CANCELLED"   // session cancelled, possibly due to an error
	StatusTimeout     Status = "TIMEOUT"     // session timed out upstream
)

// Terminal reports whether the status can no longer change upstream.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusCancelled || s == StatusTimeout
}

// ProofStatus is the cryptographic verdict of a DONE session.
type ProofStatus string

const (
	ProofStatusValid   ProofStatus = "VALID"
	ProofStatusInvalid ProofStatus = "INVALID"
	ProofStatusExpired ProofStatus = "EXPIRED"
)

// DisclosureRequest asks the proof server to open a disclosing session for
// the configured attributes. The shape follows the Yivi session protocol:
// disclose is a conjunction of disjunctions of attribute lists.
type DisclosureRequest struct {
	Context  string       `json:"@context"`
	Disclose [][][]string `json:"disclose"`
}

// DisclosureContext is the fixed request type for attribute disclosure.
const DisclosureContext = "https://irma.app/ld/request/disclosure/v2"

// NewDisclosureRequest builds a disclosure request for a single attribute.
func NewDisclosureRequest(attribute string) DisclosureRequest {
	return DisclosureRequest{
		Context:  DisclosureContext,
		Disclose: [][][]string{{{attribute}}},
	}
}

// SessionPointer is the opaque object the caller's Yivi app needs to reach
// the proof server. The mediator passes it through without interpretation.
type SessionPointer struct {
	U      string `json:"u"`
	IrmaQR string `json:"irmaqr"`
}

// DisclosedAttribute is one attribute revealed in a valid proof.
type DisclosedAttribute struct {
	ID       string `json:"id"`
	RawValue string `json:"rawvalue"`
}

// DisclosureResult is the proof server's answer on the result endpoint.
type DisclosureResult struct {
	Token       string                 `json:"token"`
	Status      Status                 `json:"status"`
	ProofStatus ProofStatus            `json:"proofStatus"`
	Disclosed   [][]DisclosedAttribute `json:"disclosed"`
}

// Attribute returns the non-empty raw value disclosed under the given
// attribute identifier, or false when it is absent or empty.
func (r *DisclosureResult) Attribute(id string) (string, bool) {
	for _, set := range r.Disclosed {
		for _, attr := range set {
			if attr.ID == id && attr.RawValue != "" {
				return attr.RawValue, true
			}
		}
	}
	return "", false
}
