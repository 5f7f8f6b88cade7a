// Package store persists draw state, win assignments and per-tier
// aggregates.
package store

import (
	"errors"

	"github.com/Slowpokess/euro-lottery/internal/draw"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned by write-once operations when a record
	// for the same key is already present.
	ErrAlreadyExists = errors.New("already exists")
)

// DrawStore is the persistence boundary of the engine. Implementations must
// make TransitionStatus atomic: of two concurrent callers moving the same
// draw from the same status, exactly one succeeds.
type DrawStore interface {
	GetState(key string) (*draw.State, error)
	PutState(key string, state *draw.State) error
	// TransitionStatus moves the draw from one status to another in a
	// single transactional write. A status mismatch yields
	// *draw.InvalidStateError.
	TransitionStatus(key string, from, to draw.Status) (*draw.State, error)

	GetAssignment(drawKey, ticketID string) (*draw.WinAssignment, error)
	// PutAssignment is write-once per (draw, ticket).
	PutAssignment(drawKey string, assignment *draw.WinAssignment) error
	ListAssignments(drawKey string) ([]*draw.WinAssignment, error)

	// PutTierResult is write-once per (draw, tier).
	PutTierResult(drawKey string, result *draw.TierResult) error
	ListTierResults(drawKey string) ([]*draw.TierResult, error)

	Close() error
}
