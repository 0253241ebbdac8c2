// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package infra

import (
	"errors"
	"fmt"
	"sync"
)

// Phase is the deployment readiness of a planning session. Holding a single
// phase value makes illegal combinations like "previewed but unvalidated"
// unrepresentable.
type Phase string

const (
	PhaseUnvalidated Phase = "unvalidated"
	PhaseValidated   Phase = "validated"
	PhasePreviewed   Phase = "previewed"
)

// ErrValidateRequired rejects a preview requested before a successful
// validation.
var ErrValidateRequired = errors.New("validate the infrastructure before requesting a preview")

// ErrPreviewRequired rejects a deploy requested before a successful preview.
var ErrPreviewRequired = errors.New("preview the infrastructure changes before deploying")

// ErrWarningsPending rejects a deploy while preview warnings remain
// un-dismissed.
var ErrWarningsPending = errors.New("dismiss the outstanding preview warnings before deploying")

// ConflictError rejects a deploy while a naming collision found during
// preview remains unresolved.
type ConflictError struct {
	ResourceName string
}

func (e *ConflictError) Error() string {
	if e.ResourceName != "" {
		return fmt.Sprintf(
			"resource name %q already exists under a different resource group: "+
				"delete the conflicting resource or deploy under a different name",
			e.ResourceName)
	}

	return "a resource name conflict was found during preview: " +
		"delete the conflicting resource or deploy under a different name"
}

// Warning is one outstanding triage finding attached to a session.
type Warning struct {
	Kind         FailureKind
	Message      string
	ResourceName string
	Dismissed    bool
}

// Session tracks the validate/preview/deploy readiness of one environment's
// planning flow. Any successful deploy or destroy resets the session, as does
// switching environment or toggling the template selection, forcing a fresh
// validate/preview cycle so mutations never operate on stale diff data.
type Session struct {
	mu sync.Mutex

	environment string
	phase       Phase
	changes     []ResourceChange

	warnings map[FailureKind]*Warning
	conflict *Warning

	autoRetryPreview bool
}

// NewSession creates a fresh, unvalidated session for the environment.
func NewSession(environment string) *Session {
	return &Session{
		environment: environment,
		phase:       PhaseUnvalidated,
		warnings:    map[FailureKind]*Warning{},
	}
}

func (s *Session) Environment() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.environment
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// PlannedChanges returns a copy of the change list from the last preview.
func (s *Session) PlannedChanges() []ResourceChange {
	s.mu.Lock()
	defer s.mu.Unlock()

	changes := make([]ResourceChange, len(s.changes))
	copy(changes, s.changes)
	return changes
}

// Warnings returns a copy of the session's outstanding warnings, including
// any blocking conflict.
func (s *Session) Warnings() []Warning {
	s.mu.Lock()
	defer s.mu.Unlock()

	var warnings []Warning
	if s.conflict != nil {
		warnings = append(warnings, *s.conflict)
	}
	for _, warning := range s.warnings {
		warnings = append(warnings, *warning)
	}

	return warnings
}

// WarningsPending reports whether any dismissible warning remains
// un-dismissed.
func (s *Session) WarningsPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warningsPendingLocked()
}

func (s *Session) warningsPendingLocked() bool {
	for _, warning := range s.warnings {
		if !warning.Dismissed {
			return true
		}
	}

	return false
}

// Conflict returns the blocking naming collision from the last preview, if
// one is outstanding.
func (s *Session) Conflict() (Warning, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conflict == nil {
		return Warning{}, false
	}

	return *s.conflict, true
}

// SetAutoRetryPreview controls whether a preview is automatically re-invoked
// once a conflict remediation reports success.
func (s *Session) SetAutoRetryPreview(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoRetryPreview = enabled
}

// CompleteValidate records a successful validation. Any prior preview state
// is discarded, the diff it produced predates the new validation.
func (s *Session) CompleteValidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = PhaseValidated
	s.changes = nil
	s.warnings = map[FailureKind]*Warning{}
	s.conflict = nil
}

// EnsureCanPreview gates the preview action on a completed validation.
func (s *Session) EnsureCanPreview() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseUnvalidated {
		return ErrValidateRequired
	}

	return nil
}

// CompletePreview records the outcome of a preview action. A clean preview
// moves the session to Previewed. A benign warning keeps the session at
// Validated and records a pending warning, dismissal confirms the preview. A
// naming collision blocks the preview entirely until remediated or dismissed.
func (s *Session) CompletePreview(changes []ResourceChange, failures ...Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.changes = changes
	s.conflict = nil

	blocked := false
	for _, failure := range failures {
		switch failure.Kind {
		case FailureNone:
			continue
		case FailureBenignDiffNoise:
			s.warnings[failure.Kind] = &Warning{
				Kind:    failure.Kind,
				Message: failure.Message,
			}
			blocked = true
		case FailureNamingCollision:
			s.conflict = &Warning{
				Kind:         failure.Kind,
				Message:      failure.Message,
				ResourceName: failure.ResourceName,
			}
			blocked = true
		default:
			// Preview finished but its outcome is not trustworthy.
			blocked = true
		}
	}

	if !blocked {
		s.phase = PhasePreviewed
	}
}

// DismissWarning acknowledges an outstanding warning. Dismissal is one way
// and re-confirms the preview once nothing else is pending.
func (s *Session) DismissWarning(kind FailureKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if kind == FailureNamingCollision {
		if s.conflict == nil {
			return fmt.Errorf("no outstanding %s warning to dismiss", kind)
		}
		s.conflict = nil
	} else {
		warning, ok := s.warnings[kind]
		if !ok {
			return fmt.Errorf("no outstanding %s warning to dismiss", kind)
		}
		warning.Dismissed = true
	}

	if s.conflict == nil && !s.warningsPendingLocked() && s.phase == PhaseValidated {
		s.phase = PhasePreviewed
	}

	return nil
}

// ConflictRemediated records that the conflicting resource was removed out of
// band. The previous preview stays inconclusive, a fresh one is required.
// Returns whether the caller should re-invoke preview automatically.
func (s *Session) ConflictRemediated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conflict = nil
	return s.autoRetryPreview
}

// EnsureCanDeploy gates a deploy or destroy on the full readiness chain. Each
// violated precondition yields its own distinguishable error: an unresolved
// conflict, a missing preview, pending warnings, or a failed dependency
// check.
func (s *Session) EnsureCanDeploy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conflict != nil {
		return &ConflictError{ResourceName: s.conflict.ResourceName}
	}

	if s.phase != PhasePreviewed {
		return ErrPreviewRequired
	}

	if s.warningsPendingLocked() {
		return ErrWarningsPending
	}

	return ValidateDependencies(SelectedModules(s.changes))
}

// CompleteDeploy records a successful deploy or destroy. The session resets
// to Unvalidated and the planned change list is cleared.
func (s *Session) CompleteDeploy() {
	s.Reset()
}

// Reset unconditionally returns the session to Unvalidated, discarding
// planned changes and warnings. Invoked after successful mutations and on
// environment or template selection changes, even mid flow.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = PhaseUnvalidated
	s.changes = nil
	s.warnings = map[FailureKind]*Warning{}
	s.conflict = nil
}
