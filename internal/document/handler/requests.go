package handler

import (
	"strings"

	"canopy/internal/attestation"
	"canopy/internal/document/service"
	dErrors "canopy/pkg/domain-errors"
)

// AttestRequest is the HTTP request body for POST /v1/documents/{id}/attest.
// Field bounds are enforced by the attestation codec; the handler only
// normalizes shape.
type AttestRequest struct {
	ExternalProjectID string `json:"externalProjectId"`
	ExternalSerial    string `json:"externalSerial"`
	Amount            int64  `json:"amount"`
	Recipient         string `json:"recipient"`
	Nonce             int64  `json:"nonce"`
}

// Validate normalizes the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *AttestRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.ExternalProjectID = strings.TrimSpace(r.ExternalProjectID)
	r.ExternalSerial = strings.TrimSpace(r.ExternalSerial)
	r.Recipient = strings.TrimSpace(r.Recipient)
	return nil
}

// Input converts the request to attestation input.
func (r *AttestRequest) Input() attestation.Input {
	return attestation.Input{
		ExternalProjectID: r.ExternalProjectID,
		ExternalSerial:    r.ExternalSerial,
		Amount:            r.Amount,
		Recipient:         r.Recipient,
		Nonce:             r.Nonce,
	}
}

// MintRequest is the HTTP request body for POST /v1/documents/{id}/mint.
type MintRequest struct {
	TxRef     string `json:"txRef"`
	Amount    uint64 `json:"amount"`
	Recipient string `json:"recipient"`
	TokenRef  string `json:"tokenRef"`
}

// Validate normalizes the request.
func (r *MintRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.TxRef = strings.TrimSpace(r.TxRef)
	r.Recipient = strings.TrimSpace(r.Recipient)
	r.TokenRef = strings.TrimSpace(r.TokenRef)
	return nil
}

// Input converts the request to the minting input the service consumes.
func (r *MintRequest) Input() service.MintInput {
	return service.MintInput{
		TxRef:     r.TxRef,
		Amount:    r.Amount,
		Recipient: r.Recipient,
		TokenRef:  r.TokenRef,
	}
}

// RejectRequest is the HTTP request body for POST /v1/documents/{id}/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// Validate normalizes the request.
func (r *RejectRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	return nil
}
