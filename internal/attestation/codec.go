// Package attestation shapes and validates the structured record a verifier
// signs when attesting a document. The codec owns field-level domain rules;
// domain-separation parameters come from the signer at call time.
package attestation

import (
	"fmt"
	"regexp"
	"strings"

	dErrors "canopy/pkg/domain-errors"
)

const (
	// MinIdentifierLength and MaxIdentifierLength bound the external
	// project id and serial supplied by the verifier.
	MinIdentifierLength = 3
	MaxIdentifierLength = 50

	// MaxAmount is the largest credit amount a single attestation may carry.
	MaxAmount = 1_000_000
)

var (
	recipientPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	hexDigestPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
)

// Input carries caller-supplied attestation fields before validation.
// Amount and Nonce are signed so out-of-range values reach the validator
// instead of failing at the decode boundary.
type Input struct {
	ExternalProjectID string `json:"external_project_id"`
	ExternalSerial    string `json:"external_serial"`
	Amount            int64  `json:"amount"`
	Recipient         string `json:"recipient"`
	Nonce             int64  `json:"nonce"`
}

// Payload is the fixed, ordered record handed to the signer. Field order
// matters: signers hash the fields in declaration order.
type Payload struct {
	ExternalProjectID string `json:"externalProjectId"`
	ExternalSerial    string `json:"externalSerial"`
	ContentID         string `json:"contentId"`
	Amount            uint64 `json:"amount"`
	Recipient         string `json:"recipient"`
	Nonce             uint64 `json:"nonce"`
}

// Codec validates attestation inputs and shapes them into signable payloads.
type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

// Build validates the input against domain rules and returns the ordered
// payload for signing. The contentID is the document's content reference,
// resolved by the caller rather than supplied by the verifier.
func (c *Codec) Build(in Input, contentID string) (Payload, error) {
	if err := c.Validate(in, contentID); err != nil {
		return Payload{}, err
	}
	return Payload{
		ExternalProjectID: in.ExternalProjectID,
		ExternalSerial:    in.ExternalSerial,
		ContentID:         contentID,
		Amount:            uint64(in.Amount),
		Recipient:         in.Recipient,
		Nonce:             uint64(in.Nonce),
	}, nil
}

// Validate checks every field and reports the first violation with an error
// naming the offending field.
func (c *Codec) Validate(in Input, contentID string) error {
	if err := validateIdentifier("external_project_id", in.ExternalProjectID); err != nil {
		return err
	}
	if err := validateIdentifier("external_serial", in.ExternalSerial); err != nil {
		return err
	}
	if contentID == "" {
		return dErrors.New(dErrors.CodeValidation, "content_id is required")
	}
	if !IsContentReference(contentID) {
		return dErrors.New(dErrors.CodeValidation, "content_id is not a recognized content reference")
	}
	if in.Amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "amount must be greater than zero")
	}
	if in.Amount > MaxAmount {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("amount must not exceed %d", MaxAmount))
	}
	if in.Recipient == "" {
		return dErrors.New(dErrors.CodeValidation, "recipient is required")
	}
	if !recipientPattern.MatchString(in.Recipient) {
		return dErrors.New(dErrors.CodeValidation, "recipient must be a 0x-prefixed 40 character hex address")
	}
	if in.Nonce < 0 {
		return dErrors.New(dErrors.CodeValidation, "nonce must not be negative")
	}
	return nil
}

func validateIdentifier(field, value string) error {
	if value == "" {
		return dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	if len(value) < MinIdentifierLength || len(value) > MaxIdentifierLength {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("%s must be between %d and %d characters", field, MinIdentifierLength, MaxIdentifierLength))
	}
	return nil
}

// IsContentReference reports whether s looks like a content reference the
// system accepts: a CIDv1 ("bafy" prefix), a CIDv0 ("Qm" prefix, 46 chars),
// or a bare 64-character hex digest.
func IsContentReference(s string) bool {
	switch {
	case strings.HasPrefix(s, "bafy"):
		return true
	case strings.HasPrefix(s, "Qm") && len(s) == 46:
		return true
	case hexDigestPattern.MatchString(s):
		return true
	}
	return false
}
