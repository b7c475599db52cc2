package syncer

import (
	"errors"
	"time"

	"bidline/api/internal/proposal"
)

var (
	ErrBlankID    = errors.New("proposal id is required")
	ErrNoProposal = errors.New("no proposal is loaded")
	ErrIDMismatch = errors.New("proposal id does not match the loaded proposal")
	ErrSuperseded = errors.New("load superseded by a newer load")
)

// Status is the persistence state of the loaded proposal.
type Status string

const (
	// StatusIdle: the remote store holds the latest state.
	StatusIdle Status = "idle"
	// StatusDirty: local changes are cached but not yet written remotely.
	StatusDirty Status = "dirty"
	// StatusSaving: a remote write is in flight.
	StatusSaving Status = "saving"
)

// Source names the tier a load was served from.
type Source string

const (
	SourceRemote      Source = "remote"
	SourceRemoteCache Source = "remote+cache"
	SourceCache       Source = "cache"
	SourceDefault     Source = "default"
	SourceCreated     Source = "created"
)

// State is what subscribers observe after every change.
type State struct {
	Proposal   proposal.Proposal `json:"proposal"`
	Status     Status            `json:"status"`
	Source     Source            `json:"source"`
	LastSaved  time.Time         `json:"lastSaved"`
	LastSynced time.Time         `json:"lastSynced"`
	LastError  string            `json:"lastError,omitempty"`
}
