// Package turso provides the HTTP transport for a Turso-compatible
// SQL-over-HTTP endpoint.
//
// The remote is a generic statement executor: one POST carries
// {"statements":[{"q":"...","params":[...]}]} and the response is an array
// with one entry per statement, each either a results object or an error
// object. Atomicity is only whatever the remote provides within a single
// batch call; there are no transactions across calls.
//
// Execute and Batch never return a Go error for remote failures. Transport
// faults, non-2xx responses and statement-level errors embedded in a 200
// response are all normalized into a result with Success=false, so callers
// branch on one shape (see internal/sync for how failures feed the retry
// ledger).
package turso

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// DefaultTimeout bounds every request to the remote executor. A sync
// operation holds the engine's flight lock for the duration of its network
// calls, so requests must not hang indefinitely.
const DefaultTimeout = 30 * time.Second

// Statement is a single parameterized SQL statement.
type Statement struct {
	Query  string `json:"q"`
	Params []any  `json:"params"`
}

// StatementResult is the tagged per-statement outcome from the remote
// executor: exactly one of Results or Error is set.
type StatementResult struct {
	Results *StatementRows  `json:"results,omitempty"`
	Error   *StatementError `json:"error,omitempty"`
}

// StatementRows is the success variant of a statement outcome.
type StatementRows struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	RowsAffected int64    `json:"rows_affected"`
}

// StatementError is the failure variant of a statement outcome.
type StatementError struct {
	Message string `json:"message"`
}

// Result is the normalized outcome of a single-statement Execute call.
type Result struct {
	Success      bool
	Rows         [][]any
	Columns      []string
	RowsAffected int64

	// Err holds the failure description when Success is false.
	Err string
}

// BatchResult is the normalized outcome of a multi-statement Batch call.
// Success is true only if every statement in the batch succeeded.
type BatchResult struct {
	Success bool
	Err     string

	// Outcomes holds the raw per-statement results, one per input statement.
	Outcomes []StatementResult
}

// Client talks to one Turso-compatible HTTP endpoint with a bearer
// credential. The credential is attached to every call and never refreshed.
type Client struct {
	httpURL   string
	authToken string
	httpc     *http.Client
	logger    *log.Logger
}

// NewClient creates a transport for the given database URL and auth token.
//
// libsql:// URLs are rewritten to https://. If logger is nil, a default
// logger writing to stderr is used.
func NewClient(dbURL, authToken string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[turso] ", log.LstdFlags)
	}
	httpURL := dbURL
	if strings.HasPrefix(httpURL, "libsql://") {
		httpURL = "https://" + strings.TrimPrefix(httpURL, "libsql://")
	}
	return &Client{
		httpURL:   httpURL,
		authToken: authToken,
		httpc:     &http.Client{Timeout: DefaultTimeout},
		logger:    logger,
	}
}

// URL returns the HTTP endpoint the client posts to.
func (c *Client) URL() string {
	return c.httpURL
}

// Execute runs a single parameterized statement in one network call.
//
// All failures are folded into the returned Result; it never panics and the
// caller never sees a Go error. Rows and Columns are empty on failure.
func (c *Client) Execute(ctx context.Context, sql string, params ...any) *Result {
	if params == nil {
		params = []any{}
	}
	outcomes, err := c.post(ctx, []Statement{{Query: sql, Params: params}})
	if err != nil {
		c.logger.Printf("execute failed: %v", err)
		return &Result{Err: err.Error()}
	}
	if len(outcomes) == 0 {
		return &Result{Err: "empty response from remote executor"}
	}
	out := outcomes[0]
	if out.Error != nil {
		c.logger.Printf("statement error: %s", out.Error.Message)
		return &Result{Err: out.Error.Message}
	}
	res := &Result{Success: true}
	if out.Results != nil {
		res.Rows = out.Results.Rows
		res.Columns = out.Results.Columns
		res.RowsAffected = out.Results.RowsAffected
	}
	return res
}

// Batch runs multiple statements in exactly one network call.
//
// The remote executes the batch atomically on its side, but callers must not
// assume partial application is impossible: the contract here is only that
// per-statement errors are reported in the combined result. Success is the
// aggregate of every statement outcome; Err joins all statement errors.
func (c *Client) Batch(ctx context.Context, stmts []Statement) *BatchResult {
	for i := range stmts {
		if stmts[i].Params == nil {
			stmts[i].Params = []any{}
		}
	}
	outcomes, err := c.post(ctx, stmts)
	if err != nil {
		c.logger.Printf("batch failed: %v", err)
		return &BatchResult{Err: err.Error()}
	}

	var errs []string
	for _, out := range outcomes {
		if out.Error != nil {
			errs = append(errs, out.Error.Message)
		}
	}
	if len(errs) > 0 {
		c.logger.Printf("batch partially failed: %s", strings.Join(errs, "; "))
		return &BatchResult{Err: strings.Join(errs, "; "), Outcomes: outcomes}
	}
	return &BatchResult{Success: true, Outcomes: outcomes}
}

// post sends one request carrying the given statements and decodes the
// per-statement outcomes.
func (c *Client) post(ctx context.Context, stmts []Statement) ([]StatementResult, error) {
	body, err := json.Marshal(map[string]any{"statements": stmts})
	if err != nil {
		return nil, fmt.Errorf("failed to encode statements: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.httpURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var outcomes []StatementResult
	if err := json.Unmarshal(data, &outcomes); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return outcomes, nil
}
