package models

// Status is a document's position in the verification pipeline.
//
// Transitions:
//
//	pending --(attest)--> attested --(mint)--> minted
//	pending --(reject)--> rejected
//	attested --(reject)--> rejected
//
// Minted and rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAttested Status = "attested"
	StatusMinted   Status = "minted"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAttested, StatusMinted, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusMinted || s == StatusRejected
}

// CanTransitionTo reports whether the state machine permits moving to next.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusAttested || next == StatusRejected
	case StatusAttested:
		return next == StatusMinted || next == StatusRejected
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Source records which store a reconciled document came from.
type Source string

const (
	// SourceLocal marks a record served from the local cache fast path.
	SourceLocal Source = "local"
	// SourceRemote marks a record merged from the ledger result set.
	SourceRemote Source = "remote"
	// SourceLocalOnly marks a local record with no ledger counterpart,
	// which is legitimate when registration failed or has not happened.
	SourceLocalOnly Source = "local_only"
)
