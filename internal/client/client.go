// Package client is the device-side view of the attendance API: a thin HTTP
// client plus the session poller students run between classes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"rollcall/internal/fingerprint"
)

// GenerateRequest starts a session; the teacher identity comes from the token.
type GenerateRequest struct {
	Department      string                    `json:"department"`
	Subject         string                    `json:"subject"`
	ClassName       string                    `json:"class_name"`
	AcademicYear    string                    `json:"academic_year"`
	WifiFingerprint []fingerprint.Observation `json:"wifi_fingerprint"`
	BluetoothUUID   string                    `json:"bluetooth_uuid"`
}

// GeneratedCode is the server's projection of a freshly issued code.
// Timestamps are epoch millis.
type GeneratedCode struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	Department   string `json:"department"`
	Subject      string `json:"subject"`
	ClassName    string `json:"class_name"`
	AcademicYear string `json:"academic_year"`
	GeneratedAt  int64  `json:"generated_at"`
	ExpiresAt    int64  `json:"expires_at"`
}

// LatestCode reports whether a session is running for the cohort filter.
// BluetoothUUID is the token the issuing device is broadcasting; scanning for
// it and reporting a sighting is one of the accepted proximity proofs.
type LatestCode struct {
	Active        bool   `json:"active"`
	Code          string `json:"code"`
	Subject       string `json:"subject"`
	ClassName     string `json:"class_name"`
	ExpiresAt     int64  `json:"expires_at"`
	BluetoothUUID string `json:"bluetooth_uuid"`
}

// SubmitRequest carries the student's code entry and proximity evidence.
type SubmitRequest struct {
	Department      string                    `json:"department"`
	Code            string                    `json:"code"`
	WifiFingerprint []fingerprint.Observation `json:"wifi_fingerprint,omitempty"`
	BluetoothUUID   string                    `json:"bluetooth_uuid,omitempty"`
}

// SubmitResult is the decision returned by the server.
type SubmitResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// Client calls the rollcall API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a client with a short request timeout; every call the devices
// make is a quick request/response exchange.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Register obtains a bearer token for the subject/role pair.
func (c *Client) Register(ctx context.Context, subject, role string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.post(ctx, "/v1/register", map[string]string{"subject": subject, "role": role}, &out); err != nil {
		return "", err
	}
	c.Token = out.Token
	return out.Token, nil
}

// Generate starts an attendance session.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (GeneratedCode, error) {
	var out GeneratedCode
	err := c.post(ctx, "/v1/codes", req, &out)
	return out, err
}

// Latest asks whether an active code exists for the department.
func (c *Client) Latest(ctx context.Context, department, academicYear string) (LatestCode, error) {
	var out LatestCode
	err := c.post(ctx, "/v1/codes/latest", map[string]string{
		"department":    department,
		"academic_year": academicYear,
	}, &out)
	return out, err
}

// Submit sends the student's code entry. Transport failures are returned to
// the caller: a submit that may or may not have landed must be surfaced, not
// silently retried.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	var out SubmitResult
	err := c.post(ctx, "/v1/codes/submit", req, &out)
	return out, err
}

// Close ends the teacher's session for the tuple.
func (c *Client) Close(ctx context.Context, department, subject, className string) error {
	var out struct {
		Success bool `json:"success"`
	}
	return c.post(ctx, "/v1/codes/close", map[string]string{
		"department": department,
		"subject":    subject,
		"class_name": className,
	}, &out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("rollcall api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("rollcall api error %s: %s", resp.Status, string(bodyBytes))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
