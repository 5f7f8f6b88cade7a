package rng

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/cenkalti/backoff/v4"

	"github.com/Slowpokess/euro-lottery/internal/config"
)

// ExternalSource delegates number generation to a certified external
// randomness service. Any failure (non-200 response, timeout, malformed
// payload) falls back to the crypto tier transparently; the fallback is
// logged and recorded in the provider metadata.
type ExternalSource struct {
	apiURL     string
	apiKey     string
	client     *http.Client
	maxRetries uint64
	fallback   *CryptoSource
	log        *slog.Logger

	cfg config.RNGConfig
}

type generateRequest struct {
	Count   int   `json:"count"`
	Min     int   `json:"min"`
	Max     int   `json:"max"`
	Exclude []int `json:"exclude"`
}

type generateResponse struct {
	Numbers      []int          `json:"numbers"`
	Verification map[string]any `json:"verification"`
}

func NewExternalSource(cfg config.RNGConfig) (*ExternalSource, error) {
	if cfg.APIURL == "" {
		return nil, errors.New("external rng api url not configured")
	}
	return &ExternalSource{
		apiURL:     cfg.APIURL,
		apiKey:     cfg.APIKey,
		client:     &http.Client{Timeout: cfg.RequestTimeout},
		maxRetries: uint64(cfg.MaxRetries),
		fallback:   NewCryptoSource(cfg.SecretKey),
		log:        slog.Default(),
		cfg:        cfg,
	}, nil
}

func (s *ExternalSource) Generate(ctx context.Context, count, maxNumber int, exclude []int) ([]int, error) {
	// Validate the range up front so configuration errors surface before
	// any network call or fallback.
	if _, err := availablePool(count, maxNumber, exclude); err != nil {
		return nil, err
	}

	var numbers []int
	operation := func() error {
		result, err := s.request(ctx, count, maxNumber, exclude)
		if err != nil {
			return err
		}
		numbers = result
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.RetryDelay), s.maxRetries),
		ctx,
	)
	if err := backoff.Retry(operation, bo); err != nil {
		s.log.Warn("external rng failed, falling back to crypto rng", "err", err)
		result, fbErr := s.fallback.Generate(ctx, count, maxNumber, exclude)
		if fbErr != nil {
			var rangeErr *InsufficientRangeError
			if errors.As(fbErr, &rangeErr) {
				return nil, fbErr
			}
			return nil, &ProviderUnavailableError{Provider: "external", Err: errors.Join(err, fbErr)}
		}
		return result, nil
	}

	return numbers, nil
}

func (s *ExternalSource) request(ctx context.Context, count, maxNumber int, exclude []int) ([]int, error) {
	body, err := json.Marshal(generateRequest{
		Count:   count,
		Min:     1,
		Max:     maxNumber,
		Exclude: exclude,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("external rng api returned %d: %s", resp.StatusCode, msg)
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("invalid api response: %w", err)
	}

	if err := validateNumbers(result.Numbers, count, maxNumber, exclude); err != nil {
		return nil, fmt.Errorf("invalid api response: %w", err)
	}

	numbers := append([]int(nil), result.Numbers...)
	sort.Ints(numbers)

	s.log.Info("external rng draw",
		"count", count,
		"max_number", maxNumber,
		"result", numbers,
		"verification", result.Verification,
	)

	return numbers, nil
}

func validateNumbers(numbers []int, count, maxNumber int, exclude []int) error {
	if len(numbers) != count {
		return fmt.Errorf("expected %d numbers, got %d", count, len(numbers))
	}
	excluded := make(map[int]struct{}, len(exclude))
	for _, n := range exclude {
		excluded[n] = struct{}{}
	}
	seen := make(map[int]struct{}, len(numbers))
	for _, n := range numbers {
		if n < 1 || n > maxNumber {
			return fmt.Errorf("number %d out of range [1, %d]", n, maxNumber)
		}
		if _, ok := excluded[n]; ok {
			return fmt.Errorf("number %d is excluded", n)
		}
		if _, ok := seen[n]; ok {
			return fmt.Errorf("duplicate number %d", n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

func (s *ExternalSource) Info() ProviderInfo {
	fallback := s.fallback.Info()
	return ProviderInfo{
		Name:           "External RNG Service",
		Type:           "external_api",
		Description:    "High security RNG using an external certified random number generation service",
		SecurityRating: "high",
		HasFallback:    true,
		Fallback:       &fallback,
	}
}
