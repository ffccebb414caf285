package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the DealGrid API HTTP client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	verbose    bool
}

// NewClient creates a new API client.
func NewClient(baseURL, token string, verbose bool) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(token),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		verbose: verbose,
	}
}

// Do performs an HTTP request and returns the response body.
func (c *Client) Do(method, path string, body any) ([]byte, int, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(context.Background(), method, url, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.verbose {
		fmt.Printf(">>> %s %s\n", method, url)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if c.verbose {
		fmt.Printf("<<< %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, parseAPIError(resp.StatusCode, respBody)
	}

	return respBody, resp.StatusCode, nil
}

// Get performs a GET request.
func (c *Client) Get(path string) ([]byte, error) {
	data, _, err := c.Do(http.MethodGet, path, nil)
	return data, err
}

// Post performs a POST request.
func (c *Client) Post(path string, body any) ([]byte, error) {
	data, _, err := c.Do(http.MethodPost, path, body)
	return data, err
}

// Patch performs a PATCH request.
func (c *Client) Patch(path string, body any) ([]byte, error) {
	data, _, err := c.Do(http.MethodPatch, path, body)
	return data, err
}

// Delete performs a DELETE request.
func (c *Client) Delete(path string) error {
	_, _, err := c.Do(http.MethodDelete, path, nil)
	return err
}

// APIError represents an error from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Missing    []string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		if len(e.Missing) > 0 {
			return fmt.Sprintf("%s (missing: %s)", e.Message, strings.Join(e.Missing, ", "))
		}
		return e.Message
	}
	return fmt.Sprintf("API error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func parseAPIError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode}

	var parsed struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details struct {
				Missing []string `json:"missing"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Code = parsed.Error.Code
		apiErr.Message = parsed.Error.Message
		apiErr.Missing = parsed.Error.Details.Missing
	}

	if apiErr.Message == "" {
		switch statusCode {
		case 401:
			apiErr.Message = "unauthorized: invalid or missing token"
		case 403:
			apiErr.Message = "forbidden: insufficient permissions"
		case 404:
			apiErr.Message = "resource not found"
		case 409:
			apiErr.Message = "conflict: resource already exists"
		case 422:
			apiErr.Message = "request violates a consistency rule"
		default:
			apiErr.Message = fmt.Sprintf("API error: %d %s", statusCode, http.StatusText(statusCode))
		}
	}

	return apiErr
}

// Response types matching server handler structs.

type ListResponse[T any] struct {
	Data  []T   `json:"data"`
	Total int64 `json:"total"`
}

type TenantResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type RelationshipResponse struct {
	ID           string `json:"id"`
	FromTenantID string `json:"from_tenant_id"`
	ToTenantID   string `json:"to_tenant_id"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
}

type GrantResponse struct {
	TenantID   string `json:"tenant_id"`
	Permission string `json:"permission"`
	GrantedBy  string `json:"granted_by"`
	GrantedAt  string `json:"granted_at"`
}

type RoleResponse struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenant_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
	Status      string   `json:"status"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

type BundleResponse struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	ScopeTenantID *string  `json:"scope_tenant_id,omitempty"`
	Global        bool     `json:"global"`
	Permissions   []string `json:"permissions"`
	Status        string   `json:"status"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

type AssignmentResponse struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	TenantID       string  `json:"tenant_id"`
	RoleID         string  `json:"role_id"`
	RelationshipID *string `json:"relationship_id,omitempty"`
	Status         string  `json:"status"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

type PermissionInfo struct {
	Key      string   `json:"key"`
	Category string   `json:"category"`
	Enabled  bool     `json:"enabled"`
	Requires []string `json:"requires,omitempty"`
}

type ExpandResponse struct {
	Permissions []string `json:"permissions"`
	Expanded    []string `json:"expanded"`
}

type ResolveResponse struct {
	UserID         string   `json:"user_id"`
	TenantID       string   `json:"tenant_id"`
	RelationshipID *string  `json:"relationship_id,omitempty"`
	Permissions    []string `json:"permissions"`
}

type CheckResponse struct {
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
}

type AuditEntryResponse struct {
	ID           string         `json:"id"`
	TenantID     *string        `json:"tenant_id,omitempty"`
	ActorID      *string        `json:"actor_id,omitempty"`
	ActorIP      string         `json:"actor_ip,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Result       string         `json:"result"`
	Message      string         `json:"message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	Timestamp    string         `json:"timestamp"`
}
