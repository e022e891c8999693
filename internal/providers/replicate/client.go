package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	trainerOwner   = "ostris"
	trainerName    = "flux-dev-lora-trainer"
	trainerVersion = "26dce37af90b9d997eeb970d92e47de3064d46c300504ae376c75bef6a9022d2"

	// TriggerWord is injected into every LoRA training and must be present in
	// prompts that target the resulting model.
	TriggerWord = "okhw"

	DefaultTrainingSteps = 1000
	trainingResolution   = "1024"
)

// API is the provider surface the handlers depend on; *Client is the
// production implementation.
type API interface {
	CreateModel(ctx context.Context, name string) error
	CreateTraining(ctx context.Context, req TrainingRequest) (*Training, error)
	Run(ctx context.Context, ref string, input map[string]any) ([]string, error)
	DeleteModel(ctx context.Context, name string) error
	DeleteModelVersion(ctx context.Context, name, version string) error
	WebhookSecret(ctx context.Context) (string, error)
	Owner() string
}

type Options struct {
	BaseURL    string
	APIToken   string
	Owner      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks to the Replicate HTTP API. All mutating calls require the
// account-scoped API token; the zero value is unusable.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	owner      string

	mu     sync.Mutex
	secret string
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.replicate.com/v1"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: client,
		baseURL:    base,
		token:      strings.TrimSpace(opts.APIToken),
		owner:      strings.TrimSpace(opts.Owner),
	}
}

// Owner returns the account namespace destination models are created under.
func (c *Client) Owner() string { return c.owner }

type TrainingRequest struct {
	Destination    string
	InputImagesURL string
	WebhookURL     string
	Steps          int
}

type Training struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Version string `json:"version"`
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// CreateModel registers a private destination model for a LoRA training run.
func (c *Client) CreateModel(ctx context.Context, name string) error {
	payload := map[string]any{
		"owner":      c.owner,
		"name":       name,
		"visibility": "private",
		"hardware":   "gpu-a100-large",
	}
	return c.do(ctx, http.MethodPost, "/models", payload, nil)
}

// CreateTraining starts a LoRA training against the flux trainer and registers
// the webhook that will deliver the terminal status.
func (c *Client) CreateTraining(ctx context.Context, req TrainingRequest) (*Training, error) {
	if req.Destination == "" || req.InputImagesURL == "" {
		return nil, errors.New("replicate: destination and input images are required")
	}
	steps := req.Steps
	if steps <= 0 {
		steps = DefaultTrainingSteps
	}
	payload := map[string]any{
		"destination": req.Destination,
		"input": map[string]any{
			"steps":        steps,
			"resolution":   trainingResolution,
			"input_images": req.InputImagesURL,
			"trigger_word": TriggerWord,
		},
		"webhook":               req.WebhookURL,
		"webhook_events_filter": []string{"completed"},
	}
	path := fmt.Sprintf("/models/%s/%s/versions/%s/trainings", trainerOwner, trainerName, trainerVersion)
	var out Training
	if err := c.do(ctx, http.MethodPost, path, payload, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, errors.New("replicate: training response missing id")
	}
	return &out, nil
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
}

// Run executes a model synchronously (Prefer: wait) and returns the output
// URLs. ref is either "owner/name" or "owner/name:version".
func (c *Client) Run(ctx context.Context, ref string, input map[string]any) ([]string, error) {
	var path string
	payload := map[string]any{"input": input}
	if i := strings.IndexByte(ref, ':'); i >= 0 {
		payload["version"] = ref[i+1:]
		path = "/predictions"
	} else {
		path = fmt.Sprintf("/models/%s/predictions", ref)
	}
	var out prediction
	if err := c.do(ctx, http.MethodPost, path, payload, &out); err != nil {
		return nil, err
	}
	if out.Status != "succeeded" && out.Status != "processing" && out.Status != "" {
		if out.Error != nil {
			return nil, fmt.Errorf("replicate: prediction %s: %v", out.Status, out.Error)
		}
		return nil, fmt.Errorf("replicate: prediction %s", out.Status)
	}
	return decodeOutput(out.Output)
}

// DeleteModel removes a destination model from the provider.
func (c *Client) DeleteModel(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/models/%s/%s", c.owner, name), nil, nil)
}

// DeleteModelVersion removes a trained version; the provider requires versions
// to be deleted before the model itself.
func (c *Client) DeleteModelVersion(ctx context.Context, name, version string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/models/%s/%s/versions/%s", c.owner, name, version), nil, nil)
}

// WebhookSecret fetches the account's default webhook signing secret. The
// secret is stable for the account, so it is cached after the first fetch.
func (c *Client) WebhookSecret(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.secret
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}
	var out struct {
		Key string `json:"key"`
	}
	if err := c.do(ctx, http.MethodGet, "/webhooks/default/secret", nil, &out); err != nil {
		return "", err
	}
	if out.Key == "" {
		return "", errors.New("replicate: webhook secret response missing key")
	}
	c.mu.Lock()
	c.secret = out.Key
	c.mu.Unlock()
	return out.Key, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if c == nil {
		return errors.New("replicate client not configured")
	}
	if c.token == "" {
		return errors.New("replicate: API token is missing")
	}
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if method == http.MethodPost && strings.Contains(path, "/predictions") {
		req.Header.Set("Prefer", "wait")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Detail != "" {
			return fmt.Errorf("replicate: %s (http %d)", apiErr.Detail, resp.StatusCode)
		}
		return fmt.Errorf("replicate: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeOutput(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, errors.New("replicate: empty output")
	}
	var urls []string
	if err := json.Unmarshal(raw, &urls); err == nil {
		return urls, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}, nil
	}
	return nil, errors.New("replicate: unrecognized output shape")
}

var _ API = (*Client)(nil)

var modelNameInvalid = regexp.MustCompile(`[^a-z0-9-_]`)
var modelNameDashes = regexp.MustCompile(`-+`)

// SanitizeModelName lowercases and strips a user-supplied model name down to
// the character set the provider accepts.
func SanitizeModelName(name string) string {
	s := strings.ToLower(name)
	s = modelNameInvalid.ReplaceAllString(s, "-")
	s = modelNameDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
