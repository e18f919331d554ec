// Package controller is the HTTP client for the automation controller API:
// authentication, job template launches, job status, and job output.
package controller

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// ErrUnauthorized is returned when the controller rejects the credentials.
var ErrUnauthorized = errors.New("controller rejected credentials")

// Client talks to one controller instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a controller client. insecure disables TLS verification
// for controllers running with self-signed certificates.
func NewClient(baseURL string, timeout time.Duration, insecure bool) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := http.DefaultTransport
	if insecure {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Login verifies username/password and returns credentials for subsequent
// calls. It first tries to create a personal access token; controllers
// without token support fall back to basic auth, verified against /me/.
func (c *Client) Login(ctx context.Context, username, password string) (Credentials, error) {
	body := bytes.NewReader([]byte(`{"description": "ansibot session", "scope": "write"}`))
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/tokens/", body)
	if err != nil {
		return Credentials{}, fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(username, password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusCreated:
		var tokenResp struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(respBody, &tokenResp); err != nil {
			return Credentials{}, fmt.Errorf("parse token response: %w", err)
		}
		if tokenResp.Token == "" {
			return Credentials{}, errors.New("token response missing token")
		}
		creds := TokenCredentials(tokenResp.Token)
		creds.Username = username
		return creds, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Credentials{}, ErrUnauthorized
	}

	// Token endpoint unavailable; verify basic auth against /me/.
	creds := BasicCredentials(username, password)
	if err := c.verify(ctx, creds); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

func (c *Client) verify(ctx context.Context, creds Credentials) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/me/", nil)
	if err != nil {
		return fmt.Errorf("create verify request: %w", err)
	}
	req.Header.Set("Authorization", creds.AuthorizationHeader())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("verify request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("verify credentials: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Launch starts the job template with the given extra vars and returns the
// job handle. A non-201 answer is a SubmissionError.
func (c *Client) Launch(ctx context.Context, templateID int, extraVars map[string]any, creds Credentials) (JobHandle, error) {
	payload := map[string]any{"extra_vars": extraVars}
	if extraVars == nil {
		payload["extra_vars"] = map[string]any{}
	}
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return JobHandle{}, fmt.Errorf("marshal launch payload: %w", err)
	}

	url := fmt.Sprintf("%s/job_templates/%d/launch/", c.baseURL, templateID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return JobHandle{}, fmt.Errorf("create launch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", creds.AuthorizationHeader())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return JobHandle{}, fmt.Errorf("launch request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return JobHandle{}, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusCreated {
		return JobHandle{}, &SubmissionError{
			TemplateID: templateID,
			Status:     resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	var launched struct {
		ID  int `json:"id"`
		Job int `json:"job"`
	}
	if err := json.Unmarshal(respBody, &launched); err != nil {
		return JobHandle{}, fmt.Errorf("parse launch response: %w", err)
	}
	id := launched.ID
	if id == 0 {
		id = launched.Job
	}
	return JobHandle{ID: id}, nil
}

// Status returns the current state of a job.
func (c *Client) Status(ctx context.Context, handle JobHandle, creds Credentials) (JobState, error) {
	url := fmt.Sprintf("%s/jobs/%d/", c.baseURL, handle.ID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("create status request: %w", err)
	}
	req.Header.Set("Authorization", creds.AuthorizationHeader())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("status request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("job %d status: unexpected status %d", handle.ID, resp.StatusCode)
	}

	var job struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &job); err != nil {
		return "", fmt.Errorf("parse job status: %w", err)
	}
	return JobState(job.Status), nil
}

// Output returns the job's stdout as cleaned plain text.
func (c *Client) Output(ctx context.Context, handle JobHandle, creds Credentials) (string, error) {
	url := fmt.Sprintf("%s/jobs/%d/stdout/?format=txt", c.baseURL, handle.ID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("create stdout request: %w", err)
	}
	req.Header.Set("Authorization", creds.AuthorizationHeader())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("stdout request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("job %d stdout: unexpected status %d", handle.ID, resp.StatusCode)
	}
	return CleanOutput(string(respBody)), nil
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// CleanOutput strips ANSI escapes and trims playbook banner noise so the
// result reads well inside a chat message.
func CleanOutput(raw string) string {
	cleaned := ansiEscape.ReplaceAllString(raw, "")
	var lines []string
	for _, line := range strings.Split(cleaned, "\n") {
		trimmed := strings.TrimRight(line, " \r")
		if strings.HasPrefix(trimmed, "PLAY [") || strings.HasPrefix(trimmed, "PLAY RECAP") {
			continue
		}
		if trimmed == "" && len(lines) > 0 && lines[len(lines)-1] == "" {
			continue
		}
		lines = append(lines, trimmed)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
