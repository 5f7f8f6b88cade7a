// Package rng provides the pluggable randomness sources used to draw
// winning numbers. Three tiers are available: basic (test/dev only),
// crypto (HMAC-seeded, medium assurance) and external (certified service
// with automatic crypto fallback).
package rng

import (
	"context"
	"fmt"

	"github.com/Slowpokess/euro-lottery/internal/config"
)

// Source produces a sorted set of unique integers in [1, maxNumber],
// excluding any numbers in exclude.
type Source interface {
	Generate(ctx context.Context, count, maxNumber int, exclude []int) ([]int, error)
	Info() ProviderInfo
}

// ProviderInfo is the provider metadata stamped into the draw record.
type ProviderInfo struct {
	Name           string        `json:"name"`
	Type           string        `json:"type"`
	Description    string        `json:"description"`
	SecurityRating string        `json:"security_rating"`
	HasFallback    bool          `json:"has_fallback,omitempty"`
	Fallback       *ProviderInfo `json:"fallback_provider,omitempty"`
}

// Map renders the info as a generic payload for verification records.
func (p ProviderInfo) Map() map[string]any {
	m := map[string]any{
		"name":            p.Name,
		"type":            p.Type,
		"description":     p.Description,
		"security_rating": p.SecurityRating,
	}
	if p.HasFallback && p.Fallback != nil {
		m["has_fallback"] = true
		m["fallback_provider"] = p.Fallback.Map()
	}
	return m
}

// InsufficientRangeError reports a request for more numbers than the pool
// holds. This is a configuration error; no partial result is produced.
type InsufficientRangeError struct {
	Requested int
	Available int
}

func (e *InsufficientRangeError) Error() string {
	return fmt.Sprintf("not enough numbers available (requested %d, available %d)", e.Requested, e.Available)
}

// ProviderUnavailableError reports that the external source failed and the
// fallback failed as well.
type ProviderUnavailableError struct {
	Provider string
	Err      error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("rng provider %s unavailable: %v", e.Provider, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

// New selects a source from configuration. Selection happens once, here;
// call sites never branch on the tier.
func New(cfg config.RNGConfig) (Source, error) {
	switch cfg.Provider {
	case "basic":
		return NewBasicSource(), nil
	case "crypto", "":
		return NewCryptoSource(cfg.SecretKey), nil
	case "external":
		return NewExternalSource(cfg)
	default:
		return nil, fmt.Errorf("unknown rng provider %q", cfg.Provider)
	}
}

// availablePool returns [1, maxNumber] minus exclude, or an
// InsufficientRangeError if fewer than count numbers remain.
func availablePool(count, maxNumber int, exclude []int) ([]int, error) {
	excluded := make(map[int]struct{}, len(exclude))
	for _, n := range exclude {
		excluded[n] = struct{}{}
	}

	pool := make([]int, 0, maxNumber)
	for n := 1; n <= maxNumber; n++ {
		if _, ok := excluded[n]; !ok {
			pool = append(pool, n)
		}
	}

	if count > len(pool) {
		return nil, &InsufficientRangeError{Requested: count, Available: len(pool)}
	}
	return pool, nil
}
