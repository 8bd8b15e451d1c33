// Package botcheck verifies anti-bot tokens submitted with public bookings
// against a siteverify-style HTTP endpoint.
package botcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrRejected = errors.New("bot check rejected")

type Verifier interface {
	// Verify returns nil when the token is accepted. Transport failures and
	// low scores are both errors.
	Verify(ctx context.Context, token, remoteIP string) error
}

// Disabled accepts every request. Used when no secret is configured.
type Disabled struct{}

func (Disabled) Verify(context.Context, string, string) error { return nil }

type HTTPVerifier struct {
	endpoint  string
	secret    string
	threshold float64
	client    *http.Client
}

func NewHTTPVerifier(endpoint, secret string, threshold float64, client *http.Client) *HTTPVerifier {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPVerifier{endpoint: endpoint, secret: secret, threshold: threshold, client: client}
}

type verifyResponse struct {
	Success bool     `json:"success"`
	Score   *float64 `json:"score"`
	Errors  []string `json:"error-codes"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: missing token", ErrRejected)
	}
	form := url.Values{"secret": {v.secret}, "response": {token}}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("bot check request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bot check returned %d", resp.StatusCode)
	}

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode bot check response: %w", err)
	}
	if !body.Success {
		return fmt.Errorf("%w: %s", ErrRejected, strings.Join(body.Errors, ","))
	}
	// Providers without scoring omit the field.
	if body.Score != nil && *body.Score < v.threshold {
		return fmt.Errorf("%w: score %.2f below %.2f", ErrRejected, *body.Score, v.threshold)
	}
	return nil
}
