// Package service drives the document lifecycle: upload registration,
// verifier attestation, credit minting, and rejection. The ledger is treated
// as best-effort on the write path; a document always lands in the local
// store even when remote registration fails.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"canopy/internal/attestation"
	"canopy/internal/content"
	"canopy/internal/document/events"
	"canopy/internal/document/metrics"
	"canopy/internal/document/models"
	"canopy/internal/document/store"
	"canopy/internal/ledger"
	"canopy/internal/signing"
	"canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
	"canopy/pkg/platform/retry"
	"canopy/pkg/platform/sentinel"
	"canopy/pkg/requestcontext"
)

// MaxUploadSize bounds accepted file uploads.
const MaxUploadSize = 10 << 20

// allowedMIMETypes is the closed set of accepted upload content types.
var allowedMIMETypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain": true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
}

var (
	defaultRegisterPolicy = retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Retryable:   []retry.Class{retry.ClassNetwork, retry.ClassTimeout, retry.ClassStoreUnavailable},
	}
	defaultAttestPolicy = retry.Policy{
		MaxAttempts: 2,
		BaseDelay:   500 * time.Millisecond,
		Retryable:   []retry.Class{retry.ClassNetwork, retry.ClassCongestion},
	}
)

// errAlreadyMinted short-circuits the mint path out of the store's atomic
// section so the existing document can be returned unchanged.
var errAlreadyMinted = errors.New("document already minted")

// UploadInput carries one file upload with its descriptive metadata.
type UploadInput struct {
	FileName     string
	FileSize     int64
	FileMIME     string
	Bytes        []byte
	Metadata     models.Metadata
	Uploader     string
	UploaderName string
	UploaderRole domain.Role
}

// Validate enforces file and metadata bounds. It runs before any collaborator
// I/O so oversized or mistyped uploads are rejected without side effects.
func (in UploadInput) Validate() error {
	if strings.TrimSpace(in.FileName) == "" {
		return dErrors.New(dErrors.CodeValidation, "file name is required")
	}
	if !allowedMIMETypes[in.FileMIME] {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("file type %q is not allowed", in.FileMIME))
	}
	if in.FileSize <= 0 || len(in.Bytes) == 0 {
		return dErrors.New(dErrors.CodeValidation, "file is empty")
	}
	if in.FileSize > MaxUploadSize {
		return dErrors.New(dErrors.CodeValidation, "file exceeds the 10 MiB limit")
	}
	if strings.TrimSpace(in.Uploader) == "" {
		return dErrors.New(dErrors.CodeValidation, "uploader is required")
	}
	if !in.UploaderRole.Valid() {
		return dErrors.New(dErrors.CodeValidation, "uploader role is not recognized")
	}
	return in.Metadata.Validate()
}

// MintInput records the outcome of an external credit mint.
type MintInput struct {
	TxRef     string
	Amount    uint64
	Recipient string
	TokenRef  string
}

func (in MintInput) Validate() error {
	if strings.TrimSpace(in.TxRef) == "" {
		return dErrors.New(dErrors.CodeValidation, "transaction reference is required")
	}
	if in.Amount == 0 {
		return dErrors.New(dErrors.CodeValidation, "amount must be greater than zero")
	}
	if strings.TrimSpace(in.Recipient) == "" {
		return dErrors.New(dErrors.CodeValidation, "recipient is required")
	}
	return nil
}

// Eligibility is the answer to a pre-mint check.
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// Service orchestrates the document lifecycle.
type Service struct {
	records        store.RecordStore
	ledger         ledger.Client
	contents       content.Store
	signer         signing.Signer
	codec          *attestation.Codec
	retries        *retry.Executor
	registerPolicy retry.Policy
	attestPolicy   retry.Policy
	publisher      events.Publisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	clock          func(ctx context.Context) time.Time
	newID          func(now time.Time) string
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithEventPublisher(publisher events.Publisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithRetryPolicies overrides the ledger retry policies.
func WithRetryPolicies(register, attest retry.Policy) Option {
	return func(s *Service) {
		s.registerPolicy = register
		s.attestPolicy = attest
	}
}

func WithRetryExecutor(exec *retry.Executor) Option {
	return func(s *Service) {
		if exec != nil {
			s.retries = exec
		}
	}
}

// WithClock overrides the operation timestamp source.
// Defaults to requestcontext.Now.
func WithClock(clock func(ctx context.Context) time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides local fallback id generation.
func WithIDGenerator(gen func(now time.Time) string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

func New(records store.RecordStore, ledgerClient ledger.Client, contents content.Store, signer signing.Signer, codec *attestation.Codec, opts ...Option) (*Service, error) {
	if records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if ledgerClient == nil {
		return nil, fmt.Errorf("ledger client is required")
	}
	if contents == nil {
		return nil, fmt.Errorf("content store is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if codec == nil {
		return nil, fmt.Errorf("attestation codec is required")
	}

	s := &Service{
		records:        records,
		ledger:         ledgerClient,
		contents:       contents,
		signer:         signer,
		codec:          codec,
		registerPolicy: defaultRegisterPolicy,
		attestPolicy:   defaultAttestPolicy,
		logger:         slog.Default(),
		clock:          requestcontext.Now,
		newID:          models.NewLocalID,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retries == nil {
		s.retries = retry.NewExecutor(retry.WithLogger(s.logger))
	}
	return s, nil
}

// RegisterUpload validates and stores an uploaded file, then attempts to
// register it with the ledger. Registration failure degrades to a locally
// generated id; the upload itself still succeeds.
func (s *Service) RegisterUpload(ctx context.Context, in UploadInput) (*models.Document, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.clock(ctx)

	contentID, err := s.contents.Put(ctx, in.Bytes)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store file content")
	}

	var (
		docID      string
		txRef      string
		registered bool
	)
	if s.ledger.IsConfigured() {
		var rec *ledger.Record
		err := s.retries.Do(ctx, "ledger_register", s.registerPolicy, func(ctx context.Context) error {
			var callErr error
			rec, callErr = s.ledger.RegisterRecord(ctx, ledger.RegisterRequest{
				ContentID:   contentID,
				ProjectName: in.Metadata.ProjectName,
				Owner:       in.Uploader,
				Amount:      uint64(in.Metadata.Quantity),
			})
			return callErr
		})
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "ledger registration failed, continuing with local id",
				"content_id", contentID,
				"error", err,
			)
		case rec != nil && rec.ID != "":
			docID = rec.ID
			txRef = rec.TxRef
			registered = true
		}
	}
	if docID == "" {
		docID = s.newID(now)
	}

	doc, err := models.New(docID, contentID, in.Uploader, in.UploaderName, in.UploaderRole, in.Metadata, now)
	if err != nil {
		return nil, err
	}
	doc.Filename = in.FileName
	doc.FileSize = in.FileSize
	doc.MimeType = in.FileMIME
	doc.RegisteredRemotely = registered
	doc.RemoteTxRef = txRef

	if err := s.records.Upsert(ctx, doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save document")
	}
	if err := s.persist(ctx); err != nil {
		return nil, err
	}

	registration := "local"
	if registered {
		registration = "remote"
	}
	if s.metrics != nil {
		s.metrics.IncrementUpload(registration)
	}
	s.logger.InfoContext(ctx, "document uploaded",
		"document_id", doc.ID,
		"content_id", contentID,
		"registered_remotely", registered,
	)
	s.publishEvent(ctx, events.Event{
		Type:       events.TypeUploaded,
		DocumentID: doc.ID,
		ContentID:  contentID,
		Actor:      in.Uploader,
		Status:     models.StatusPending,
		Outcome:    registration,
		At:         now,
	})

	return doc, nil
}

// Attest signs and records a verifier's attestation. The signed payload is
// submitted to the ledger when the document was registered there; ledger
// failure downgrades to a locally recorded attestation rather than failing.
func (s *Service) Attest(ctx context.Context, documentID string, in attestation.Input) (*models.Document, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if actor.Role != string(domain.RoleVerifier) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only verifiers can attest documents")
	}

	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := doc.CanAttest(); err != nil {
		return nil, asConflict(err)
	}

	payload, err := s.codec.Build(in, doc.ContentID)
	if err != nil {
		return nil, err
	}
	sig, err := s.signer.Sign(ctx, payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign attestation")
	}

	now := s.clock(ctx)
	confirmed := false
	if doc.RegisteredRemotely && s.ledger.IsConfigured() {
		err := s.retries.Do(ctx, "ledger_attest", s.attestPolicy, func(ctx context.Context) error {
			_, callErr := s.ledger.AttestRecord(ctx, ledger.AttestRequest{
				RecordID:  doc.ID,
				Payload:   payload,
				Signature: sig.Hex,
				Verifier:  s.signer.Address(),
			})
			return callErr
		})
		if err != nil {
			s.logger.WarnContext(ctx, "ledger attestation failed, recording locally only",
				"document_id", doc.ID,
				"error", err,
			)
		} else {
			confirmed = true
		}
	}

	att := models.Attestation{
		Verifier:          actor.ID,
		VerifierName:      actor.Email,
		Timestamp:         now,
		Signature:         sig.Hex,
		ExternalProjectID: payload.ExternalProjectID,
		ExternalSerial:    payload.ExternalSerial,
		Amount:            payload.Amount,
		Nonce:             payload.Nonce,
		LedgerConfirmed:   confirmed,
	}

	updated, err := s.records.Execute(ctx, documentID,
		func(d *models.Document) error { return d.CanAttest() },
		func(d *models.Document) { d.ApplyAttestation(att, now) },
	)
	if err != nil {
		return nil, s.mapExecuteErr(err, "failed to record attestation")
	}
	if err := s.persist(ctx); err != nil {
		return nil, err
	}

	ledgerOutcome := "local"
	if confirmed {
		ledgerOutcome = "confirmed"
	}
	if s.metrics != nil {
		s.metrics.IncrementAttestation(ledgerOutcome)
		s.metrics.ObserveTransition(string(models.StatusPending), string(models.StatusAttested))
	}
	s.logger.InfoContext(ctx, "document attested",
		"document_id", updated.ID,
		"verifier", actor.ID,
		"ledger_confirmed", confirmed,
	)
	s.publishEvent(ctx, events.Event{
		Type:           events.TypeAttested,
		DocumentID:     updated.ID,
		ContentID:      updated.ContentID,
		Actor:          actor.ID,
		Status:         models.StatusAttested,
		PreviousStatus: models.StatusPending,
		Outcome:        ledgerOutcome,
		At:             now,
	})

	return updated, nil
}

// RecordMinting marks a document minted. The operation is idempotent: a
// document that is already minted is returned unchanged. Minting a document
// that was never attested is recorded with a warning rather than refused,
// because the mint already happened externally and dropping it would lose
// credits.
func (s *Service) RecordMinting(ctx context.Context, documentID string, in MintInput) (*models.Document, error) {
	if _, ok := requestcontext.ActorFrom(ctx); !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.clock(ctx)
	result := models.MintingResult{
		TransactionRef: in.TxRef,
		Timestamp:      now,
		Amount:         in.Amount,
		Recipient:      in.Recipient,
		TokenRef:       in.TokenRef,
	}

	var prior models.Status
	updated, err := s.records.Execute(ctx, documentID,
		func(d *models.Document) error {
			if d.Status == models.StatusMinted {
				return errAlreadyMinted
			}
			prior = d.Status
			if err := d.CanMint(); err != nil {
				s.logger.WarnContext(ctx, "minting recorded for document that was never attested",
					"document_id", d.ID,
					"status", string(d.Status),
				)
			}
			return nil
		},
		func(d *models.Document) { d.ApplyMinting(result, now) },
	)
	if errors.Is(err, errAlreadyMinted) {
		existing, getErr := s.getDocument(ctx, documentID)
		if getErr != nil {
			return nil, getErr
		}
		s.logger.DebugContext(ctx, "minting already recorded", "document_id", documentID)
		return existing, nil
	}
	if err != nil {
		return nil, s.mapExecuteErr(err, "failed to record minting")
	}
	if err := s.persist(ctx); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementMint()
		s.metrics.ObserveTransition(string(prior), string(models.StatusMinted))
	}
	s.logger.InfoContext(ctx, "minting recorded",
		"document_id", updated.ID,
		"tx_ref", in.TxRef,
		"amount", in.Amount,
	)
	s.publishEvent(ctx, events.Event{
		Type:           events.TypeMinted,
		DocumentID:     updated.ID,
		ContentID:      updated.ContentID,
		Status:         models.StatusMinted,
		PreviousStatus: prior,
		At:             now,
	})

	return updated, nil
}

// Reject moves a document to its terminal rejected state.
func (s *Service) Reject(ctx context.Context, documentID, reason string) (*models.Document, error) {
	actor, ok := requestcontext.ActorFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if actor.Role != string(domain.RoleVerifier) && actor.Role != string(domain.RoleAdmin) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only verifiers or admins can reject documents")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "a rejection reason is required")
	}

	now := s.clock(ctx)
	var prior models.Status
	updated, err := s.records.Execute(ctx, documentID,
		func(d *models.Document) error {
			prior = d.Status
			return d.CanReject()
		},
		func(d *models.Document) { d.ApplyRejection(reason, now) },
	)
	if err != nil {
		return nil, s.mapExecuteErr(err, "failed to reject document")
	}
	if err := s.persist(ctx); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementRejection()
		s.metrics.ObserveTransition(string(prior), string(models.StatusRejected))
	}
	s.logger.InfoContext(ctx, "document rejected",
		"document_id", updated.ID,
		"actor", actor.ID,
		"reason", reason,
	)
	s.publishEvent(ctx, events.Event{
		Type:           events.TypeRejected,
		DocumentID:     updated.ID,
		ContentID:      updated.ContentID,
		Actor:          actor.ID,
		Status:         models.StatusRejected,
		PreviousStatus: prior,
		At:             now,
	})

	return updated, nil
}

// CheckMintEligibility reports whether a document qualifies for minting.
func (s *Service) CheckMintEligibility(ctx context.Context, documentID string) (Eligibility, error) {
	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return Eligibility{}, err
	}
	eligible, reason := doc.MintEligibility()
	return Eligibility{Eligible: eligible, Reason: reason}, nil
}

// GetDocument fetches one document by id, content id, or remote tx ref.
func (s *Service) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	return s.getDocument(ctx, documentID)
}

func (s *Service) getDocument(ctx context.Context, documentID string) (*models.Document, error) {
	doc, err := s.records.Get(ctx, documentID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	return doc, nil
}

func (s *Service) mapExecuteErr(err error, action string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	case dErrors.HasCode(err, dErrors.CodeInvariantViolation):
		return asConflict(err)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, action)
	}
}

func (s *Service) persist(ctx context.Context) error {
	if err := s.records.Persist(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist documents")
	}
	return nil
}

func (s *Service) publishEvent(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if s.metrics != nil {
		s.metrics.IncrementEvent(string(event.Type))
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish document event",
			"type", string(event.Type),
			"document_id", event.DocumentID,
			"error", err,
		)
	}
}

// asConflict converts state machine violations into conflict errors for API
// responses; the transition was legal to ask for, the document just is not
// in the right state.
func asConflict(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeConflict, err.Error())
	}
	return err
}
