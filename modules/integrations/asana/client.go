package asana

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-resty/resty/v2"

	"github.com/worklane/worklane/pkg/configuration"
)

const taskOptFields = "name,notes,completed,due_on,assignee.gid,memberships.section.gid,num_subtasks,parent.gid"

// APIError is a non-2xx answer from Asana. 429 and 5xx are retried inside
// the client; any other status reaches the caller after a single attempt.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("asana: %s %s returned %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("asana: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
}

func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client wraps the Asana REST API behind a bearer token. All requests pass
// through a global minimum-interval pacer; 429 responses honor Retry-After
// when present and fall back to exponential backoff otherwise.
type Client struct {
	http        *resty.Client
	minInterval time.Duration
	maxRetries  int
	retryBase   time.Duration
	pageSize    int

	mu     sync.Mutex
	nextAt time.Time
}

func NewClient(conf configuration.AsanaOptions) (*Client, error) {
	if conf.AccessToken == "" {
		return nil, errors.New("asana: access token is required")
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "asana")
	}
	baseURL := conf.BaseURL
	if baseURL == "" {
		baseURL = "https://app.asana.com/api/1.0"
	}
	pageSize := conf.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(conf.AccessToken).
		SetHeader("Accept", "application/json").
		SetTimeout(30 * time.Second)

	return &Client{
		http:        httpClient,
		minInterval: conf.MinRequestInterval,
		maxRetries:  conf.MaxRetries,
		retryBase:   1000 * time.Millisecond,
		pageSize:    pageSize,
	}, nil
}

func (c *Client) WorkspaceUsers(ctx context.Context, workspaceGID string) ([]User, error) {
	return getList[User](ctx, c, "/workspaces/"+workspaceGID+"/users", map[string]string{
		"opt_fields": "name,email",
	})
}

func (c *Client) Project(ctx context.Context, projectGID string) (*Project, error) {
	var env struct {
		Data Project `json:"data"`
	}
	err := c.do(ctx, http.MethodGet, "/projects/"+projectGID, map[string]string{
		"opt_fields": "name,notes,archived,team.name",
	}, &env)
	if err != nil {
		return nil, err
	}
	return &env.Data, nil
}

func (c *Client) ProjectSections(ctx context.Context, projectGID string) ([]Section, error) {
	return getList[Section](ctx, c, "/projects/"+projectGID+"/sections", map[string]string{
		"opt_fields": "name",
	})
}

func (c *Client) ProjectTasks(ctx context.Context, projectGID string) ([]Task, error) {
	return getList[Task](ctx, c, "/projects/"+projectGID+"/tasks", map[string]string{
		"opt_fields": taskOptFields,
	})
}

func (c *Client) Subtasks(ctx context.Context, taskGID string) ([]Task, error) {
	return getList[Task](ctx, c, "/tasks/"+taskGID+"/subtasks", map[string]string{
		"opt_fields": taskOptFields,
	})
}

type listEnvelope struct {
	Data     json.RawMessage `json:"data"`
	NextPage *struct {
		Offset string `json:"offset"`
	} `json:"next_page"`
}

// getList walks offset-cursor pagination until the response carries no
// next_page.offset.
func getList[T any](ctx context.Context, c *Client, path string, query map[string]string) ([]T, error) {
	var out []T
	offset := ""
	for {
		q := make(map[string]string, len(query)+2)
		for k, v := range query {
			q[k] = v
		}
		q["limit"] = strconv.Itoa(c.pageSize)
		if offset != "" {
			q["offset"] = offset
		}

		var env listEnvelope
		if err := c.do(ctx, http.MethodGet, path, q, &env); err != nil {
			return nil, err
		}
		var page []T
		if err := json.Unmarshal(env.Data, &page); err != nil {
			return nil, errors.Wrap(err, "asana: decode "+path)
		}
		out = append(out, page...)

		if env.NextPage == nil || env.NextPage.Offset == "" {
			return out, nil
		}
		offset = env.NextPage.Offset
	}
}

func (c *Client) do(ctx context.Context, method, path string, query map[string]string, out any) error {
	for attempt := 0; ; attempt++ {
		if err := c.throttle(ctx); err != nil {
			return err
		}

		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(query).
			Execute(method, path)
		if err != nil {
			if attempt >= c.maxRetries {
				return errors.Wrap(err, "asana: "+method+" "+path)
			}
			if err := c.sleep(ctx, c.backoffWait(attempt)); err != nil {
				return err
			}
			continue
		}

		status := resp.StatusCode()
		switch {
		case status >= 200 && status < 300:
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return errors.Wrap(err, "asana: decode "+path)
			}
			return nil

		case status == http.StatusTooManyRequests || status >= 500:
			apiErr := newAPIError(method, path, resp)
			if attempt >= c.maxRetries {
				return apiErr
			}
			wait := c.backoffWait(attempt)
			if status == http.StatusTooManyRequests {
				if ra := retryAfter(resp); ra > 0 {
					wait = ra
				}
			}
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}

		default:
			return newAPIError(method, path, resp)
		}
	}
}

// throttle serializes all requests through one pacer: at least minInterval
// elapses between the starts of consecutive requests, across goroutines.
func (c *Client) throttle(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if wait := time.Until(c.nextAt); wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	c.nextAt = time.Now().Add(c.minInterval)
	return nil
}

func (c *Client) backoffWait(attempt int) time.Duration {
	return c.retryBase * (1 << attempt)
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func retryAfter(resp *resty.Response) time.Duration {
	raw := resp.Header().Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func newAPIError(method, path string, resp *resty.Response) *APIError {
	var env struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	detail := ""
	if err := json.Unmarshal(resp.Body(), &env); err == nil && len(env.Errors) > 0 {
		detail = env.Errors[0].Message
	}
	return &APIError{StatusCode: resp.StatusCode(), Method: method, Path: path, Detail: detail}
}
