// Package verify seals draw data into tamper-evident records and lets any
// third party re-verify published results.
package verify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Slowpokess/euro-lottery/internal/draw"
)

// ProofValidity is the lifetime of a public verification token.
const ProofValidity = 90 * 24 * time.Hour

// testHash is the fixed sentinel returned when test mode is on.
const testHash = "test_verification_hash"

// Config configures a verification Service. TestMode short-circuits sealing
// and verification to a fixed sentinel hash; it must be enabled explicitly
// per instance and is never on by default.
type Config struct {
	Secret   string
	BaseURL  string
	TestMode bool
}

// Service computes and checks keyed hashes over canonicalized draw data.
type Service struct {
	secret   []byte
	baseURL  string
	testMode bool
	now      func() time.Time
}

func New(cfg Config) *Service {
	return &Service{
		secret:   []byte(cfg.Secret),
		baseURL:  cfg.BaseURL,
		testMode: cfg.TestMode,
		now:      time.Now,
	}
}

// GenerateHash returns the HMAC-SHA256 hex digest of the canonical form of
// data, keyed with the service secret.
func (s *Service) GenerateHash(data any) (string, error) {
	if s.testMode {
		return testHash, nil
	}

	payload, err := canonicalJSON(data)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Seal assigns a fresh verification id and timestamp, embeds drawData
// verbatim and attaches the keyed hash. The returned record must be stored
// as-is; any later edit invalidates the hash.
func (s *Service) Seal(drawData map[string]any, providerInfo map[string]any) (*draw.VerificationRecord, error) {
	record := &draw.VerificationRecord{
		VerificationID: uuid.NewString(),
		Timestamp:      s.now().UTC().Format(time.RFC3339Nano),
		DrawData:       drawData,
		ProviderInfo:   providerInfo,
	}

	hash, err := s.GenerateHash(recordPayload(record))
	if err != nil {
		return nil, err
	}
	record.Hash = hash
	return record, nil
}

// Verify recomputes the keyed hash over the record without its hash field
// and compares it against claimedHash in constant time. A mismatch of any
// kind yields false; the only error condition is an uncanonicalizable
// payload.
func (s *Service) Verify(record *draw.VerificationRecord, claimedHash string) (bool, error) {
	if s.testMode {
		return claimedHash == testHash, nil
	}

	computed, err := s.GenerateHash(recordPayload(record))
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(computed), []byte(claimedHash)), nil
}

// recordPayload is the canonical hashing input: the record minus its hash.
func recordPayload(record *draw.VerificationRecord) map[string]any {
	return map[string]any{
		"verification_id": record.VerificationID,
		"timestamp":       record.Timestamp,
		"draw_data":       record.DrawData,
		"provider_info":   record.ProviderInfo,
	}
}

// PublicProof is the redacted, shareable proof for external auditors.
type PublicProof struct {
	DrawID             string    `json:"draw_id"`
	WinningNumbers     []int     `json:"winning_numbers"`
	DrawTime           time.Time `json:"draw_time"`
	VerificationMethod string    `json:"verification_method"`
	VerificationToken  string    `json:"verification_token"`
	VerificationURL    string    `json:"verification_url"`
}

// GeneratePublicProof produces a proof bound to the draw id with a bounded
// validity window. The token is a separate signing operation over the draw
// id plus issue and expiry timestamps, not over the full draw data.
func (s *Service) GeneratePublicProof(drawID string, winningNumbers []int, drawTime time.Time) (*PublicProof, error) {
	issued := s.now().UTC()
	token, err := s.GenerateHash(map[string]any{
		"draw_id":   drawID,
		"timestamp": issued.Format(time.RFC3339Nano),
		"expires":   issued.Add(ProofValidity).Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}

	return &PublicProof{
		DrawID:             drawID,
		WinningNumbers:     winningNumbers,
		DrawTime:           drawTime,
		VerificationMethod: "HMAC-SHA256",
		VerificationToken:  token,
		VerificationURL:    fmt.Sprintf("%s/api/verify/%s", s.baseURL, drawID),
	}, nil
}

// Result is the outcome of a composite verification, shaped for audit
// consumers: a boolean plus reason, never an exception.
type Result struct {
	IsValid          bool      `json:"is_valid"`
	VerificationTime time.Time `json:"verification_time"`
	DrawID           string    `json:"draw_id"`
	Reason           string    `json:"reason,omitempty"`
}

// VerifyDrawResults checks a stored record against its claimed hash and
// reports the outcome with a reason code.
func (s *Service) VerifyDrawResults(record *draw.VerificationRecord, claimedHash string) (Result, error) {
	drawID := "unknown"
	if id, ok := record.DrawData["draw_id"].(string); ok && id != "" {
		drawID = id
	}

	ok, err := s.Verify(record, claimedHash)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		IsValid:          ok,
		VerificationTime: s.now().UTC(),
		DrawID:           drawID,
	}
	if !ok {
		result.Reason = "hash verification failed"
	}
	return result, nil
}
