// Package docflow holds the document workflow shared by goods receipts and
// inventory transfers: the status state machine and quantity reconciliation
// against source documents.
package docflow

import (
	"strings"

	"github.com/stockbridge/stockbridge-backend/pkg/actor"
	"github.com/stockbridge/stockbridge-backend/pkg/errors"
)

// Status is a document workflow status.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusSubmitted  Status = "submitted"
	StatusQCApproved Status = "qc_approved"
	StatusPosted     Status = "posted"
	StatusRejected   Status = "rejected"
)

// LineStatus is the QC status of an individual document line.
type LineStatus string

const (
	LinePending  LineStatus = "pending"
	LineApproved LineStatus = "approved"
	LineRejected LineStatus = "rejected"
)

// Kind distinguishes the two document families. Transfers allow reopening
// from posted for partial continuation; receipts do not.
type Kind string

const (
	KindReceipt  Kind = "receipt"
	KindTransfer Kind = "transfer"
)

// DocumentState is the slice of a document the transition logic needs.
type DocumentState struct {
	Kind      Kind
	Status    Status
	OwnerID   string
	LineCount int
}

// TransitionResult describes the changes a transition applies. The caller
// persists the document status and, when LineStatus is non-nil, sets every
// line's QC status in the same transaction.
type TransitionResult struct {
	Status     Status
	LineStatus *LineStatus

	// ClearQC clears the QC approver, approval timestamp and notes.
	ClearQC bool
	// ClearRejection clears the stored rejection reason.
	ClearRejection bool
}

// Transition validates and computes the transition of doc to the target
// status. reason is required when rejecting. Authorization failures return
// Forbidden; disallowed edges return InvalidTransition. The function never
// mutates anything itself.
func Transition(doc DocumentState, to Status, a *actor.Actor, reason string) (*TransitionResult, error) {
	switch {
	case doc.Status == StatusDraft && to == StatusSubmitted:
		if !a.Owns(doc.OwnerID) && !a.CanManage() {
			return nil, errors.Forbidden("only the document owner may submit it")
		}
		if doc.LineCount == 0 {
			return nil, errors.BadRequest("cannot submit a document with no lines")
		}
		return &TransitionResult{Status: StatusSubmitted}, nil

	case doc.Status == StatusSubmitted && to == StatusQCApproved:
		if !a.CanApproveQC() {
			return nil, errors.Forbidden("qc approval requires qc, manager or admin role")
		}
		approved := LineApproved
		return &TransitionResult{Status: StatusQCApproved, LineStatus: &approved}, nil

	case doc.Status == StatusSubmitted && to == StatusRejected:
		if !a.CanApproveQC() {
			return nil, errors.Forbidden("qc rejection requires qc, manager or admin role")
		}
		if strings.TrimSpace(reason) == "" {
			return nil, errors.BadRequest("a rejection reason is required")
		}
		rejected := LineRejected
		return &TransitionResult{Status: StatusRejected, LineStatus: &rejected}, nil

	case doc.Status == StatusQCApproved && to == StatusPosted:
		if !a.CanApproveQC() {
			return nil, errors.Forbidden("posting requires qc, manager or admin role")
		}
		return &TransitionResult{Status: StatusPosted}, nil

	case doc.Status == StatusRejected && to == StatusDraft:
		if !a.CanReopen(doc.OwnerID) {
			return nil, errors.Forbidden("only the owner, a manager or an admin may reopen")
		}
		pending := LinePending
		return &TransitionResult{
			Status:         StatusDraft,
			LineStatus:     &pending,
			ClearQC:        true,
			ClearRejection: true,
		}, nil

	case doc.Status == StatusPosted && to == StatusDraft:
		if doc.Kind != KindTransfer {
			return nil, errors.InvalidTransition(string(doc.Status), string(to))
		}
		if !a.CanReopen(doc.OwnerID) {
			return nil, errors.Forbidden("only the owner, a manager or an admin may reopen")
		}
		pending := LinePending
		return &TransitionResult{
			Status:     StatusDraft,
			LineStatus: &pending,
			ClearQC:    true,
		}, nil
	}

	return nil, errors.InvalidTransition(string(doc.Status), string(to))
}

// Editable reports whether document contents (header fields, lines) may be
// modified in the given status.
func Editable(s Status) bool {
	return s == StatusDraft
}

// Valid reports whether s is a known workflow status.
func Valid(s Status) bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusQCApproved, StatusPosted, StatusRejected:
		return true
	}
	return false
}
