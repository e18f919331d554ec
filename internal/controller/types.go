package controller

import (
	"encoding/base64"
	"fmt"
)

// AuthType values for Credentials.
const (
	AuthToken = "token"
	AuthBasic = "basic"
)

// Credentials authenticate requests to the controller. The executor and
// client treat them as opaque; only the transport layer reads them.
type Credentials struct {
	Token    string
	AuthType string
	Username string
	password string
}

// BasicCredentials builds basic-auth credentials for controllers that do not
// support personal access tokens.
func BasicCredentials(username, password string) Credentials {
	return Credentials{
		AuthType: AuthBasic,
		Username: username,
		password: password,
	}
}

// TokenCredentials builds token credentials.
func TokenCredentials(token string) Credentials {
	return Credentials{AuthType: AuthToken, Token: token}
}

// AuthorizationHeader renders the Authorization header value.
func (c Credentials) AuthorizationHeader() string {
	if c.AuthType == AuthBasic {
		raw := c.Username + ":" + c.password
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
	}
	return "Bearer " + c.Token
}

// String renders the credentials safely for logs.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{auth_type=%s, user=%s, token=[REDACTED]}", c.AuthType, c.Username)
}

// JobHandle identifies a launched controller job.
type JobHandle struct {
	ID int `json:"id"`
}

// JobState is a controller job status string.
type JobState string

const (
	StateNew        JobState = "new"
	StatePending    JobState = "pending"
	StateWaiting    JobState = "waiting"
	StateRunning    JobState = "running"
	StateSuccessful JobState = "successful"
	StateFailed     JobState = "failed"
	StateError      JobState = "error"
	StateCanceled   JobState = "canceled"
)

// Terminal reports whether the job will make no further progress.
func (s JobState) Terminal() bool {
	switch s {
	case StateSuccessful, StateFailed, StateError, StateCanceled:
		return true
	}
	return false
}

// SubmissionError reports a launch that the controller rejected outright.
// The job never started; this is distinct from a job that ran and failed.
type SubmissionError struct {
	TemplateID int
	Status     int
	Body       string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("launch of template %d rejected (status %d): %s", e.TemplateID, e.Status, e.Body)
}
