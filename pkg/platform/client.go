// Package platform implements the REST client for the hosted control
// plane: workspaces, connections, sources, destinations, and sync jobs.
package platform

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parallaxworks/parallax/pkg/clients"
	"github.com/parallaxworks/parallax/pkg/errors"
	jsonpool "github.com/parallaxworks/parallax/pkg/json"
	"github.com/parallaxworks/parallax/pkg/logger"
)

// DefaultBaseURL is the hosted control plane API root.
const DefaultBaseURL = "https://cloud.parallaxworks.io/api/public/v1"

// jobWaitInterval is the poll period while a sync job runs.
const jobWaitInterval = 2 * time.Second

// Resource type names used in missing-resource errors.
const (
	ResourceWorkspace   = "workspace"
	ResourceConnection  = "connection"
	ResourceSource      = "source"
	ResourceDestination = "destination"
	ResourceJob         = "job"
)

// Job statuses reported by the control plane.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// MissingResourceError reports a resource the control plane could not
// return. The API answers unknown IDs and permission failures alike, so
// the error keeps the raw response detail.
type MissingResourceError struct {
	ResourceType string
	ResourceID   string
	Detail       string
}

func (e *MissingResourceError) Error() string {
	msg := fmt.Sprintf("could not find %s %s", e.ResourceType, e.ResourceID)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// IsMissingResource reports whether err is a missing-resource failure.
func IsMissingResource(err error) bool {
	var missing *MissingResourceError
	return stderrors.As(err, &missing)
}

// Workspace is a control plane workspace.
type Workspace struct {
	WorkspaceID string `json:"workspaceId"`
	Name        string `json:"name"`
}

// Connection links a source to a destination.
type Connection struct {
	ConnectionID  string `json:"connectionId"`
	Name          string `json:"name"`
	WorkspaceID   string `json:"workspaceId"`
	SourceID      string `json:"sourceId"`
	DestinationID string `json:"destinationId"`
	Status        string `json:"status"`
}

// Source is a deployed source connector.
type Source struct {
	SourceID    string `json:"sourceId"`
	Name        string `json:"name"`
	SourceType  string `json:"sourceType"`
	WorkspaceID string `json:"workspaceId"`
}

// Destination is a deployed destination connector.
type Destination struct {
	DestinationID   string `json:"destinationId"`
	Name            string `json:"name"`
	DestinationType string `json:"destinationType"`
	WorkspaceID     string `json:"workspaceId"`
}

// Job is one sync job run.
type Job struct {
	JobID        int64  `json:"jobId"`
	ConnectionID string `json:"connectionId"`
	JobType      string `json:"jobType"`
	Status       string `json:"status"`
	StartTime    string `json:"startTime,omitempty"`
	Duration     string `json:"duration,omitempty"`
}

// Config configures the platform client.
type Config struct {
	// BaseURL of the control plane API; DefaultBaseURL when empty.
	BaseURL string
	// Token for bearer authentication.
	Token string
	// HTTP tunes the underlying client; defaults are used when nil.
	HTTP *clients.HTTPConfig
	// PollInterval overrides the job poll period. Zero keeps the default.
	PollInterval time.Duration
}

// Client talks to the control plane REST API. Safe for concurrent use.
type Client struct {
	baseURL      string
	token        string
	http         *clients.HTTPClient
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewClient creates a platform API client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Token == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "platform API token is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpConfig := cfg.HTTP
	if httpConfig == nil {
		httpConfig = clients.DefaultHTTPConfig()
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = jobWaitInterval
	}

	log := logger.Get().With(zap.String("component", "platform_client"))

	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		token:        cfg.Token,
		http:         clients.NewHTTPClient(httpConfig, log),
		pollInterval: pollInterval,
		logger:       log,
	}, nil
}

// GetWorkspace fetches one workspace by ID.
func (c *Client) GetWorkspace(ctx context.Context, workspaceID string) (*Workspace, error) {
	workspace := &Workspace{}
	if err := c.getResource(ctx, "/workspaces/"+workspaceID, ResourceWorkspace, workspaceID, workspace); err != nil {
		return nil, err
	}
	return workspace, nil
}

// GetConnection fetches one connection by ID.
func (c *Client) GetConnection(ctx context.Context, connectionID string) (*Connection, error) {
	connection := &Connection{}
	if err := c.getResource(ctx, "/connections/"+connectionID, ResourceConnection, connectionID, connection); err != nil {
		return nil, err
	}
	return connection, nil
}

// GetSource fetches one source by ID.
func (c *Client) GetSource(ctx context.Context, sourceID string) (*Source, error) {
	source := &Source{}
	if err := c.getResource(ctx, "/sources/"+sourceID, ResourceSource, sourceID, source); err != nil {
		return nil, err
	}
	return source, nil
}

// GetDestination fetches one destination by ID.
func (c *Client) GetDestination(ctx context.Context, destinationID string) (*Destination, error) {
	destination := &Destination{}
	if err := c.getResource(ctx, "/destinations/"+destinationID, ResourceDestination, destinationID, destination); err != nil {
		return nil, err
	}
	return destination, nil
}

// connectionPage is one page of the connection listing.
type connectionPage struct {
	Data []Connection `json:"data"`
	Next string       `json:"next"`
}

// ListConnections returns every connection in a workspace, following
// pagination until the API stops returning a next link.
func (c *Client) ListConnections(ctx context.Context, workspaceID string) ([]Connection, error) {
	url := c.baseURL + "/connections?workspaceIds=" + workspaceID
	var connections []Connection

	for url != "" {
		status, body, err := c.doRequest(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		if !statusOK(status) {
			return nil, errors.Newf(errors.ErrorTypeConnection,
				"failed to list connections for workspace %s: status %d: %s",
				workspaceID, status, string(body))
		}

		page := &connectionPage{}
		if err := jsonpool.Unmarshal(body, page); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode connection list")
		}

		connections = append(connections, page.Data...)
		url = page.Next
	}

	return connections, nil
}

// GetConnectionByName resolves a connection by its display name. Zero
// matches is a missing-resource error; more than one is ambiguous.
func (c *Client) GetConnectionByName(ctx context.Context, workspaceID, name string) (*Connection, error) {
	connections, err := c.ListConnections(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	var matches []Connection
	for _, connection := range connections {
		if connection.Name == name {
			matches = append(matches, connection)
		}
	}

	switch len(matches) {
	case 0:
		return nil, &MissingResourceError{
			ResourceType: ResourceConnection,
			ResourceID:   name,
			Detail:       fmt.Sprintf("no connection with that name in workspace %s", workspaceID),
		}
	case 1:
		return &matches[0], nil
	default:
		return nil, errors.Newf(errors.ErrorTypeData,
			"multiple connections named %q in workspace %s", name, workspaceID)
	}
}

// jobCreateRequest is the POST body that triggers a sync.
type jobCreateRequest struct {
	ConnectionID string `json:"connectionId"`
	JobType      string `json:"jobType"`
}

// RunConnectionJob triggers a sync job for a connection.
func (c *Client) RunConnectionJob(ctx context.Context, connectionID string) (*Job, error) {
	status, body, err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/jobs", &jobCreateRequest{
		ConnectionID: connectionID,
		JobType:      "sync",
	})
	if err != nil {
		return nil, err
	}
	if !statusOK(status) {
		return nil, errors.Newf(errors.ErrorTypeConnection,
			"failed to start sync job for connection %s: status %d: %s",
			connectionID, status, string(body))
	}

	job := &Job{}
	if err := jsonpool.Unmarshal(body, job); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode job response")
	}

	c.logger.Info("sync job started",
		zap.String("connection_id", connectionID),
		zap.Int64("job_id", job.JobID),
		zap.String("status", job.Status))

	return job, nil
}

// GetJob fetches one job by ID.
func (c *Client) GetJob(ctx context.Context, jobID int64) (*Job, error) {
	id := strconv.FormatInt(jobID, 10)
	job := &Job{}
	if err := c.getResource(ctx, "/jobs/"+id, ResourceJob, id, job); err != nil {
		return nil, err
	}
	return job, nil
}

// WaitForJob polls a job until it reaches a terminal status. Succeeded
// returns the final job; failed and cancelled return an error carrying
// the status. The poll period waits before the first fetch.
func (c *Client) WaitForJob(ctx context.Context, jobID int64) (*Job, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		job, err := c.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		switch job.Status {
		case JobStatusSucceeded:
			c.logger.Info("sync job succeeded",
				zap.Int64("job_id", jobID),
				zap.String("duration", job.Duration))
			return job, nil
		case JobStatusFailed, JobStatusCancelled:
			return job, errors.Newf(errors.ErrorTypeConnection,
				"sync job %d %s", jobID, job.Status)
		}

		c.logger.Debug("sync job still running",
			zap.Int64("job_id", jobID),
			zap.String("status", job.Status))
	}
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.http.Close()
}

// getResource fetches one resource by ID. Any non-2xx answer becomes a
// missing-resource error carrying the response detail.
func (c *Client) getResource(ctx context.Context, path, resourceType, id string, out interface{}) error {
	status, body, err := c.doRequest(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	if !statusOK(status) {
		return &MissingResourceError{
			ResourceType: resourceType,
			ResourceID:   id,
			Detail:       fmt.Sprintf("status %d: %s", status, strings.TrimSpace(string(body))),
		}
	}

	if err := jsonpool.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData,
			fmt.Sprintf("failed to decode %s response", resourceType))
	}

	return nil
}

// doRequest sends one API request with bearer auth and returns the
// status code and response body. Non-2xx statuses are returned to the
// caller for dispatch, not turned into errors here.
func (c *Client) doRequest(ctx context.Context, method, url string, body interface{}) (int, []byte, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + c.token,
		"Accept":        "application/json",
	}

	var resp *http.Response
	var err error
	switch method {
	case http.MethodPost:
		buf := &bytes.Buffer{}
		if body != nil {
			if err := jsonpool.MarshalToWriter(buf, body); err != nil {
				return 0, nil, errors.Wrap(err, errors.ErrorTypeData, "failed to marshal request body")
			}
		}
		headers["Content-Type"] = "application/json"
		resp, err = c.http.Post(ctx, url, buf, headers)
	default:
		resp, err = c.http.Get(ctx, url, headers)
	}
	if err != nil {
		return 0, nil, errors.Wrap(err, errors.ErrorTypeConnection, "platform API request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read response body")
	}

	return resp.StatusCode, payload, nil
}

// statusOK reports whether an HTTP status is in the 2xx range.
func statusOK(status int) bool {
	return status >= 200 && status < 300
}
