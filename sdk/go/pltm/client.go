package pltm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the engine (e.g. "http://localhost:8085").
	// The client appends "/mcp" itself.
	BaseURL string

	// Token is a bearer JWT, minted by the engine's auth package out of
	// band, presented on every call.
	Token string

	// HTTPClient is an optional custom HTTP client. If nil, a default
	// client with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual tool calls. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client calls the engine's MCP tools over the streamable HTTP transport.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	nextID  atomic.Int64
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("pltm: BaseURL is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("pltm: Token is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  httpClient,
	}, nil
}

// Store records a single fact, reconciled against the existing graph.
func (c *Client) Store(ctx context.Context, req StoreAtomRequest) (*StoreResult, error) {
	args := map[string]any{
		"subject":     req.Subject,
		"predicate":   req.Predicate,
		"object":      req.Object,
		"atom_type":   req.AtomType,
		"source_user": req.SourceUser,
	}
	if req.Provenance != "" {
		args["provenance"] = req.Provenance
	}
	if req.Confidence != 0 {
		args["confidence"] = req.Confidence
	}
	if len(req.Contexts) > 0 {
		args["contexts"] = strings.Join(req.Contexts, ",")
	}
	var out StoreResult
	if err := c.call(ctx, "pltm_store", args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StoreAtomRequest is the payload for Store.
type StoreAtomRequest struct {
	Subject    string
	Predicate  string
	Object     string
	AtomType   string
	SourceUser string
	Provenance string
	Confidence float64
	Contexts   []string
}

// Extract runs the rule-then-LLM extraction pipeline over free text and
// stores each resulting fact.
func (c *Client) Extract(ctx context.Context, sourceUser, text string) (*ExtractResult, error) {
	var out ExtractResult
	err := c.call(ctx, "pltm_extract", map[string]any{
		"text":        text,
		"source_user": sourceUser,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches a single atom by ID, bumping its access bookkeeping.
func (c *Client) Get(ctx context.Context, atomID string) (*Atom, error) {
	var out Atom
	if err := c.call(ctx, "pltm_get", map[string]any{"atom_id": atomID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindOptions narrows a Find call.
type FindOptions struct {
	Subject   string
	Predicate string
	Object    string
	Graph     string
	Limit     int
}

// Find filters atoms by partial triple and graph membership.
func (c *Client) Find(ctx context.Context, sourceUser string, opts FindOptions) ([]Atom, error) {
	args := map[string]any{"source_user": sourceUser}
	if opts.Subject != "" {
		args["subject"] = opts.Subject
	}
	if opts.Predicate != "" {
		args["predicate"] = opts.Predicate
	}
	if opts.Object != "" {
		args["object"] = opts.Object
	}
	if opts.Graph != "" {
		args["graph"] = opts.Graph
	}
	if opts.Limit > 0 {
		args["limit"] = opts.Limit
	}
	var out struct {
		Atoms []Atom `json:"atoms"`
	}
	if err := c.call(ctx, "pltm_find", args, &out); err != nil {
		return nil, err
	}
	return out.Atoms, nil
}

// Delete removes an atom outright.
func (c *Client) Delete(ctx context.Context, atomID string) error {
	return c.call(ctx, "pltm_delete", map[string]any{"atom_id": atomID}, nil)
}

// Attention runs the default weighted-attention retrieval pass.
func (c *Client) Attention(ctx context.Context, sourceUser, query string, limit int) ([]ScoredAtom, error) {
	return c.retrieve(ctx, "pltm_attention", sourceUser, query, limit, nil)
}

// MultiHead runs attention retrieval under several weight vectors, merged
// by max score per atom.
func (c *Client) MultiHead(ctx context.Context, sourceUser, query string, limit int) ([]ScoredAtom, error) {
	return c.retrieve(ctx, "pltm_multihead", sourceUser, query, limit, nil)
}

// MMR runs diversified retrieval via maximal marginal relevance.
func (c *Client) MMR(ctx context.Context, sourceUser, query string, limit int, lambda, minDissimilarity float64) ([]ScoredAtom, error) {
	extra := map[string]any{}
	if lambda != 0 {
		extra["lambda"] = lambda
	}
	if minDissimilarity != 0 {
		extra["min_dissimilarity"] = minDissimilarity
	}
	return c.retrieve(ctx, "pltm_mmr", sourceUser, query, limit, extra)
}

func (c *Client) retrieve(ctx context.Context, tool, sourceUser, query string, limit int, extra map[string]any) ([]ScoredAtom, error) {
	args := map[string]any{"source_user": sourceUser, "query": query}
	if limit > 0 {
		args["limit"] = limit
	}
	for k, v := range extra {
		args[k] = v
	}
	var out struct {
		Results []ScoredAtom `json:"results"`
	}
	if err := c.call(ctx, tool, args, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// EntropyRandom surfaces a random sample of atoms, countering attention
// retrieval's tendency to keep surfacing the same well-worn facts.
func (c *Client) EntropyRandom(ctx context.Context, sourceUser string, limit int) ([]Atom, error) {
	args := map[string]any{"source_user": sourceUser}
	if limit > 0 {
		args["limit"] = limit
	}
	var out struct {
		Atoms []Atom `json:"atoms"`
	}
	if err := c.call(ctx, "pltm_entropy_random", args, &out); err != nil {
		return nil, err
	}
	return out.Atoms, nil
}

// EntropyAntipodal surfaces the atoms least similar to an anchor atom.
func (c *Client) EntropyAntipodal(ctx context.Context, sourceUser, anchorAtomID string, limit int) ([]Atom, error) {
	args := map[string]any{"source_user": sourceUser, "anchor_atom_id": anchorAtomID}
	if limit > 0 {
		args["limit"] = limit
	}
	var out struct {
		Atoms []Atom `json:"atoms"`
	}
	if err := c.call(ctx, "pltm_entropy_antipodal", args, &out); err != nil {
		return nil, err
	}
	return out.Atoms, nil
}

// EntropyTemporal surfaces a mix of the oldest and newest atoms.
func (c *Client) EntropyTemporal(ctx context.Context, sourceUser string, limit int) ([]Atom, error) {
	args := map[string]any{"source_user": sourceUser}
	if limit > 0 {
		args["limit"] = limit
	}
	var out struct {
		Atoms []Atom `json:"atoms"`
	}
	if err := c.call(ctx, "pltm_entropy_temporal", args, &out); err != nil {
		return nil, err
	}
	return out.Atoms, nil
}

// DecayStability reports an atom's current stability and predicted
// dissolution schedule.
func (c *Client) DecayStability(ctx context.Context, atomID string) (*DecayStability, error) {
	var out DecayStability
	if err := c.call(ctx, "pltm_decay_stability", map[string]any{"atom_id": atomID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecayRun triggers an out-of-band decay sweep. An empty sourceUser sweeps
// every user.
func (c *Client) DecayRun(ctx context.Context, sourceUser string) (*DecayRunResult, error) {
	args := map[string]any{}
	if sourceUser != "" {
		args["source_user"] = sourceUser
	}
	var out DecayRunResult
	if err := c.call(ctx, "pltm_decay_run", args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckOptions narrows a Check call.
type CheckOptions struct {
	// HasVerified marks the statement as already checked against a live
	// source (web search, tool call, etc.), bypassing the verification gate.
	HasVerified bool
	// EpistemicStatus overrides the status the gate would otherwise infer
	// from the adjusted confidence (one of TRAINING_DATA, INFERENCE,
	// SPECULATION, UNCERTAIN, VERIFIED).
	EpistemicStatus string
}

// Check runs the pre-claim epistemic gate, returning an adjusted confidence
// and an action: PROCEED or VERIFY_FIRST.
func (c *Client) Check(ctx context.Context, sourceUser, domain, statement string, confidence float64, opts CheckOptions) (*CheckResult, error) {
	args := map[string]any{
		"source_user": sourceUser,
		"domain":      domain,
		"statement":   statement,
		"confidence":  confidence,
	}
	if opts.HasVerified {
		args["has_verified"] = opts.HasVerified
	}
	if opts.EpistemicStatus != "" {
		args["epistemic_status"] = opts.EpistemicStatus
	}
	var out CheckResult
	if err := c.call(ctx, "pltm_check", args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Assert logs a claim in the prediction book after asserting it. The server
// runs the epistemic gate on the claim to record its adjusted confidence.
func (c *Client) Assert(ctx context.Context, sourceUser, domain, statement string, feltConfidence float64, opts CheckOptions) (*AssertResult, error) {
	args := map[string]any{
		"source_user":     sourceUser,
		"domain":          domain,
		"statement":       statement,
		"felt_confidence": feltConfidence,
	}
	if opts.HasVerified {
		args["has_verified"] = opts.HasVerified
	}
	if opts.EpistemicStatus != "" {
		args["epistemic_status"] = opts.EpistemicStatus
	}
	var out AssertResult
	if err := c.call(ctx, "pltm_assert", args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Resolve closes the loop on a logged claim with its actual outcome:
// correct, incorrect, partial, or unknown. Exactly one of claimID or
// claimText must be non-empty; claimText matches the most recently logged
// unresolved claim whose statement contains it. source and detail record
// where the correction came from and may be left empty.
func (c *Client) Resolve(ctx context.Context, claimID, claimText, verdict, source, detail string) error {
	args := map[string]any{"verdict": verdict}
	if claimID != "" {
		args["claim_id"] = claimID
	}
	if claimText != "" {
		args["claim_text"] = claimText
	}
	if source != "" {
		args["source"] = source
	}
	if detail != "" {
		args["detail"] = detail
	}
	return c.call(ctx, "pltm_resolve", args, nil)
}

// Calibration reads the calibration report derived from the prediction
// book. An empty domain returns every domain with resolved claims.
func (c *Client) Calibration(ctx context.Context, domain string) (*CalibrationReport, error) {
	args := map[string]any{}
	if domain != "" {
		args["domain"] = domain
	}
	var out CalibrationReport
	if err := c.call(ctx, "pltm_calibration", args, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ---------------------------------------------------------------------------
// JSON-RPC transport
// ---------------------------------------------------------------------------

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int64     `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type rpcResponse struct {
	Result *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call invokes a tool by name and decodes its JSON text content into dest.
// dest may be nil for calls whose result is not needed.
func (c *Client) call(ctx context.Context, tool string, args map[string]any, dest any) error {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  "tools/call",
		Params:  rpcParams{Name: tool, Arguments: args},
	}
	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("pltm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mcp", bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("pltm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pltm: call %s: %w", tool, err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("pltm: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &Error{StatusCode: resp.StatusCode, Message: string(bodyBytes)}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(bodyBytes, &rpcResp); err != nil {
		return fmt.Errorf("pltm: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return &Error{Message: rpcResp.Error.Message}
	}
	if rpcResp.Result == nil || len(rpcResp.Result.Content) == 0 {
		return &Error{Message: fmt.Sprintf("%s: empty result", tool)}
	}
	text := rpcResp.Result.Content[0].Text
	if rpcResp.Result.IsError {
		return &Error{Message: text}
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(text), dest); err != nil {
		return fmt.Errorf("pltm: decode %s result: %w", tool, err)
	}
	return nil
}
