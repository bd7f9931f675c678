package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Judge0 language ids for the languages the editor offers.
var languageIds = map[string]int{
	"javascript": 63,
	"python":     71,
	"java":       62,
	"cpp":        54,
	"c":          50,
	"html":       60,
	"css":        60,
	"json":       63,
}

var (
	ErrUnsupportedLanguage = errors.New("unsupported-language")
	ErrExecutionFailed     = errors.New("execution-failed")
)

// Result is the terminal outcome of one run. Time and Memory are reported as
// the backend formats them.
type Result struct {
	Output string `json:"output"`
	Status string `json:"status"`
	Time   string `json:"time"`
	Memory string `json:"memory"`
}

// Client talks to a Judge0-compatible execution backend: submit once, poll
// until a terminal status. The caller bounds the whole call with its context;
// there is no retry, a failed run is re-invoked by the user.
type Client struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	pollInterval time.Duration
	maxPolls     int
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		http:         &http.Client{Timeout: 10 * time.Second},
		pollInterval: time.Second,
		maxPolls:     10,
	}
}

type submissionStatus struct {
	Id          int    `json:"id"`
	Description string `json:"description"`
}

type submissionResult struct {
	Stdout        *string          `json:"stdout"`
	Stderr        *string          `json:"stderr"`
	CompileOutput *string          `json:"compile_output"`
	Status        submissionStatus `json:"status"`
	Time          *string          `json:"time"`
	Memory        *json.Number     `json:"memory"`
}

func (c *Client) Execute(ctx context.Context, code, language, input string) (Result, error) {
	languageId, ok := languageIds[language]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	token, err := c.submit(ctx, code, languageId, input)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrExecutionFailed, err)
	}

	for attempt := 0; attempt < c.maxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("%w: %w", ErrExecutionFailed, ctx.Err())
		case <-time.After(c.pollInterval):
		}

		result, err := c.poll(ctx, token)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrExecutionFailed, err)
		}
		// Status ids 1 and 2 are "in queue" and "processing".
		if result.Status.Id <= 2 {
			continue
		}
		return normalize(result), nil
	}

	return Result{
		Output: "Execution timed out",
		Status: "Time Limit Exceeded",
		Time:   "N/A",
		Memory: "N/A",
	}, nil
}

func (c *Client) submit(ctx context.Context, code string, languageId int, input string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"source_code": code,
		"language_id": languageId,
		"stdin":       input,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submissions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("submission rejected with status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", errors.New("submission response carried no token")
	}
	return out.Token, nil
}

func (c *Client) poll(ctx context.Context, token string) (submissionResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/submissions/"+token, nil)
	if err != nil {
		return submissionResult{}, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return submissionResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return submissionResult{}, fmt.Errorf("poll rejected with status %d", resp.StatusCode)
	}

	var result submissionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return submissionResult{}, err
	}
	return result, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.apiKey)
	}
}

func normalize(result submissionResult) Result {
	output := "No output produced"
	switch {
	case result.Stdout != nil && strings.TrimSpace(*result.Stdout) != "":
		output = strings.TrimSpace(*result.Stdout)
	case result.Stderr != nil && strings.TrimSpace(*result.Stderr) != "":
		output = strings.TrimSpace(*result.Stderr)
	case result.CompileOutput != nil && strings.TrimSpace(*result.CompileOutput) != "":
		output = strings.TrimSpace(*result.CompileOutput)
	}

	status := result.Status.Description
	if status == "" {
		status = "Completed"
	}
	elapsed := "0.001"
	if result.Time != nil && *result.Time != "" {
		elapsed = *result.Time
	}
	memory := "0"
	if result.Memory != nil {
		memory = result.Memory.String()
	}

	return Result{Output: output, Status: status, Time: elapsed, Memory: memory}
}
