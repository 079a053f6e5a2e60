package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apiv1 "github.com/ainblockchain/papers-with-claudecode-sub002/pkg/api/v1"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
)

// Client talks to the gateway session API
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// APIError is a structured error returned by the gateway
type APIError struct {
	Status  int
	Type    string
	Message string
	Session *types.Session
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Type, e.Status, e.Message)
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		// Sandbox creation waits for the pod to run
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *Client) CreateSession(ctx context.Context, req types.CreateSessionRequest) (*types.Session, error) {
	var s types.Session
	if err := c.do(ctx, http.MethodPost, "/sessions", req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) ListSessions(ctx context.Context, ownerId string) ([]types.Session, error) {
	path := "/sessions"
	if ownerId != "" {
		path += "?owner_id=" + url.QueryEscape(ownerId)
	}
	var resp apiv1.ListSessionsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*types.Session, error) {
	var s types.Session
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) StopSession(ctx context.Context, id string) (*types.Session, error) {
	var s types.Session
	if err := c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) Exec(ctx context.Context, id string, req apiv1.ExecRequest) (*types.ExecResult, error) {
	var result types.ExecResult
	if err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/exec", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Stages(ctx context.Context, id, path string) ([]types.Stage, error) {
	endpoint := "/sessions/" + url.PathEscape(id) + "/stages"
	if path != "" {
		endpoint += "?path=" + url.QueryEscape(path)
	}
	var resp apiv1.StagesResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Stages, nil
}

func (c *Client) SaveProgress(ctx context.Context, req apiv1.SaveProgressRequest) (*apiv1.ProgressResponse, error) {
	var resp apiv1.ProgressResponse
	if err := c.do(ctx, http.MethodPost, "/progress", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Progress(ctx context.Context, userId, paperId string) (*apiv1.ProgressResponse, error) {
	var resp apiv1.ProgressResponse
	path := "/progress/" + url.PathEscape(userId) + "/" + url.PathEscape(paperId)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiv1.HttpServerBaseRoute+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request gateway: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var errBody apiv1.ErrorBody
		if json.Unmarshal(data, &errBody) == nil && errBody.Error.Type != "" {
			return &APIError{
				Status:  resp.StatusCode,
				Type:    errBody.Error.Type,
				Message: errBody.Error.Message,
				Session: errBody.Session,
			}
		}
		return &APIError{Status: resp.StatusCode, Type: "http_error", Message: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
