package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SecurityBlockTag marks security-block entries in a batch issue list.
const SecurityBlockTag = "[SECURITY_BLOCK]"

// ErrNoActivePartners is returned when none of the requested partners exists and is active.
var ErrNoActivePartners = errors.New("no active partners in selection")

// ValidationError reports a missing or malformed session input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// SecurityBlockError is raised when the file about to be sent is byte-identical
// to the generated original, meaning nobody signed it.
type SecurityBlockError struct {
	PartnerID   string
	PartnerName string
	Hash        string
}

func (e *SecurityBlockError) Error() string {
	return fmt.Sprintf("%s %s: unsigned document detected, sending blocked (hash %s)", SecurityBlockTag, e.PartnerName, e.Hash)
}

// PartnerError is a failure confined to one partner of a batch.
type PartnerError struct {
	PartnerID   string
	PartnerName string
	Stage       string
	Err         error
}

func (e *PartnerError) Error() string {
	name := e.PartnerName
	if name == "" {
		name = e.PartnerID
	}
	return fmt.Sprintf("%s (%s): %v", name, e.Stage, e.Err)
}

func (e *PartnerError) Unwrap() error { return e.Err }

func (e *PartnerError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		PartnerID   string `json:"partnerId"`
		PartnerName string `json:"partnerName"`
		Stage       string `json:"stage"`
		Error       string `json:"error"`
	}{e.PartnerID, e.PartnerName, e.Stage, fmt.Sprint(e.Err)})
}

// GenerationError is returned when no document at all could be generated.
// It carries every per-partner failure.
type GenerationError struct {
	Failures []*PartnerError
}

func (e *GenerationError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("no documents generated: %s", strings.Join(msgs, "; "))
}

// TransientSendError is a failed send that may be retried later by
// external tooling. It is never retried within the call that produced it.
type TransientSendError struct {
	Attempt       int
	NextAttemptAt time.Time
	Err           error
}

func (e *TransientSendError) Error() string {
	return fmt.Sprintf("send attempt %d failed: %v", e.Attempt, e.Err)
}

func (e *TransientSendError) Unwrap() error { return e.Err }
