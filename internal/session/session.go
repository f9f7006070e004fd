// Package session keeps the artifacts of an analysis (the stack, its profile
// and the snow masks) so that previews and mask downloads can be served after
// the analysis call returns. The analysis packages never depend on it.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/snowsense/internal/raster"
	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Stage names an artifact kept for a session.
type Stage string

const (
	StageStack Stage = "stack"
	StageSnow  Stage = "snow"
	StageDry   Stage = "dry"
	StageWet   Stage = "wet"
)

// MaskStages lists the stages stored as masks.
var MaskStages = []Stage{StageSnow, StageDry, StageWet}

// ParseStage validates a stage name.
func ParseStage(s string) (Stage, error) {
	switch st := Stage(s); st {
	case StageStack, StageSnow, StageDry, StageWet:
		return st, nil
	}
	return "", fmt.Errorf("unknown session stage %q", s)
}

// Entry is everything stored for one session.
type Entry struct {
	ID        string
	Profile   raster.GeoProfile
	Stack     *raster.Stack
	Masks     map[Stage]*raster.Mask
	UpdatedAt time.Time
}

// Mask returns the mask for a stage, or ErrNotFound when it was not produced.
func (e Entry) Mask(stage Stage) (*raster.Mask, error) {
	m, ok := e.Masks[stage]
	if !ok || m == nil {
		return nil, fmt.Errorf("%w: session %s has no %s mask", ErrNotFound, e.ID, stage)
	}
	return m, nil
}

// Store persists session entries. Implementations are safe for concurrent use.
type Store interface {
	Put(ctx context.Context, e Entry) error
	Get(ctx context.Context, id string) (Entry, error)
	Delete(ctx context.Context, id string) error
	// Sweep drops expired entries and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id is a canonical 36-character session id. Stores
// use it before turning an id into a file name.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}
