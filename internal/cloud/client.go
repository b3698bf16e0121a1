package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Config struct {
	BaseURL      string
	ListenerID   string
	ClusterID    string
	ServiceID    string
	DBInstanceID string
	Timeout      time.Duration
}

// Client talks to the platform resource control plane over its JSON API.
// It is safe for concurrent use; every concurrent wake run drives the same
// resources through it.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	listenerID   string
	clusterID    string
	serviceID    string
	dbInstanceID string
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:      cfg.BaseURL,
		listenerID:   cfg.ListenerID,
		clusterID:    cfg.ClusterID,
		serviceID:    cfg.ServiceID,
		dbInstanceID: cfg.DBInstanceID,
	}
}

func (c *Client) ListRules(ctx context.Context) ([]RoutingRule, error) {
	var out struct {
		Rules []RoutingRule `json:"rules"`
	}
	err := c.call(ctx, http.MethodGet, fmt.Sprintf("/v1/listeners/%s/rules", c.listenerID), nil, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules of listener %s: %w", c.listenerID, err)
	}
	return out.Rules, nil
}

func (c *Client) SetRulePriorities(ctx context.Context, assignments []PriorityAssignment) error {
	in := struct {
		Assignments []PriorityAssignment `json:"assignments"`
	}{Assignments: assignments}
	err := c.call(ctx, http.MethodPut, fmt.Sprintf("/v1/listeners/%s/rule-priorities", c.listenerID), in, nil)
	if err != nil {
		return fmt.Errorf("failed to set rule priorities on listener %s: %w", c.listenerID, err)
	}
	return nil
}

func (c *Client) DescribeService(ctx context.Context) (ServiceStatus, error) {
	var out ServiceStatus
	err := c.call(ctx, http.MethodGet, c.servicePath(""), nil, &out)
	if err != nil {
		return ServiceStatus{}, fmt.Errorf("failed to describe service %s: %w", c.serviceID, err)
	}
	return out, nil
}

func (c *Client) SetDesiredCount(ctx context.Context, desired int) error {
	in := struct {
		DesiredCount int `json:"desired_count"`
	}{DesiredCount: desired}
	err := c.call(ctx, http.MethodPut, c.servicePath("/desired-count"), in, nil)
	if err != nil {
		return fmt.Errorf("failed to set desired count of service %s: %w", c.serviceID, err)
	}
	return nil
}

func (c *Client) DescribeDBInstance(ctx context.Context) (DBInstanceStatus, error) {
	var out struct {
		Status DBInstanceStatus `json:"status"`
	}
	err := c.call(ctx, http.MethodGet, fmt.Sprintf("/v1/db-instances/%s", c.dbInstanceID), nil, &out)
	if err != nil {
		return "", fmt.Errorf("failed to describe db instance %s: %w", c.dbInstanceID, err)
	}
	return out.Status, nil
}

func (c *Client) StopDBInstance(ctx context.Context) error {
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/v1/db-instances/%s/stop", c.dbInstanceID), nil, nil)
	if err != nil {
		return fmt.Errorf("failed to stop db instance %s: %w", c.dbInstanceID, err)
	}
	return nil
}

func (c *Client) StartDBInstance(ctx context.Context) error {
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/v1/db-instances/%s/start", c.dbInstanceID), nil, nil)
	if err != nil {
		return fmt.Errorf("failed to start db instance %s: %w", c.dbInstanceID, err)
	}
	return nil
}

func (c *Client) servicePath(suffix string) string {
	return fmt.Sprintf("/v1/clusters/%s/services/%s%s", c.clusterID, c.serviceID, suffix)
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to form control-plane request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("control-plane request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("control plane answered %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode control-plane response: %w", err)
	}
	return nil
}
