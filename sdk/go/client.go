package teamtasksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal team task HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client for an API mounted at baseURL (including the base path, e.g. http://host:8080/api).
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	AssignedTo  string `json:"assigned_to"`
	CreatedBy   string `json:"created_by"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at,omitempty"`
	Source    string `json:"source,omitempty"`
}

// TaskUpdate is a partial update; nil fields are left unchanged.
type TaskUpdate struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	Status      *string `json:"status,omitempty"`
}

type ListTasksOptions struct {
	Status   string
	Assignee string
	Limit    int
	Cursor   string
}

// TaskPage is one page of a task listing. NextCursor is empty on the last page.
type TaskPage struct {
	Items      []Task `json:"items"`
	Count      int    `json:"count"`
	NextCursor string `json:"next_cursor"`
}

type TaskStats struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// APIError wraps non-2xx responses. Code, Message and Details come from the
// error envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a bearer token and stores it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	var resp struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "auth/login", body, &resp); err != nil {
		return User{}, err
	}
	c.BearerToken = resp.Token
	return resp.User, nil
}

// Me returns the authenticated user with its current role.
func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var resp struct {
		Items []User `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "users", nil, &resp)
	return resp.Items, err
}

// CreateTask creates a task assigned to assignedTo. Requires Manager or Admin.
func (c *Client) CreateTask(ctx context.Context, title, description, assignedTo string) (Task, error) {
	body := map[string]string{
		"title":       title,
		"description": description,
		"assigned_to": assignedTo,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

func (c *Client) ListTasks(ctx context.Context, opts ListTasksOptions) (TaskPage, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Assignee != "" {
		q.Set("assignee", opts.Assignee)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	endpoint := "tasks"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp TaskPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) TaskStats(ctx context.Context) (TaskStats, error) {
	var resp TaskStats
	err := c.do(ctx, http.MethodGet, "tasks/stats", nil, &resp)
	return resp, err
}

func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) UpdateTask(ctx context.Context, id string, update TaskUpdate) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "tasks/"+url.PathEscape(id), update, &resp)
	return resp, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "tasks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
