package pltm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEngine creates an httptest server that mimics the engine's /mcp
// streamable HTTP endpoint for a single tool call.
func mockEngine(t *testing.T, handler func(tool string, args map[string]any) (any, bool)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("missing bearer token"))
			return
		}
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, isError := handler(req.Params.Name, req.Params.Arguments)
		resultText, err := json.Marshal(result)
		require.NoError(t, err)

		resp := map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]any{
				"isError": isError,
				"content": []map[string]any{
					{"type": "text", "text": string(resultText)},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})
	return httptest.NewServer(mux)
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: serverURL, Token: "test-token"})
	require.NoError(t, err)
	return c
}

func TestClient_Store(t *testing.T) {
	srv := mockEngine(t, func(tool string, args map[string]any) (any, bool) {
		assert.Equal(t, "pltm_store", tool)
		assert.Equal(t, "user", args["subject"])
		return map[string]any{
			"atom":           map[string]any{"id": "atom-1", "subject": "user", "predicate": "prefers", "object": "dark roast"},
			"outcome":        "inserted",
			"superseded_ids": []string{},
		}, false
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	result, err := c.Store(t.Context(), StoreAtomRequest{
		Subject: "user", Predicate: "prefers", Object: "dark roast",
		AtomType: "PREFERENCE", SourceUser: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "inserted", result.Outcome)
	assert.Equal(t, "atom-1", result.Atom.ID)
}

func TestClient_Attention(t *testing.T) {
	srv := mockEngine(t, func(tool string, args map[string]any) (any, bool) {
		assert.Equal(t, "pltm_attention", tool)
		return map[string]any{
			"results": []map[string]any{
				{"atom": map[string]any{"id": "atom-1"}, "score": 0.9},
			},
		}, false
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	results, err := c.Attention(t.Context(), "alice", "coffee preference", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "atom-1", results[0].Atom.ID)
	assert.InDelta(t, 0.9, results[0].Score, 0.0001)
}

func TestClient_ToolError(t *testing.T) {
	srv := mockEngine(t, func(tool string, args map[string]any) (any, bool) {
		return "atom_id is required", true
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Get(t.Context(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "atom_id is required")
}

func TestClient_Unauthorized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("missing bearer token"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Token: "bad-token"})
	require.NoError(t, err)

	_, err = c.Get(t.Context(), "atom-1")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
}

func TestClient_Check(t *testing.T) {
	srv := mockEngine(t, func(tool string, args map[string]any) (any, bool) {
		assert.Equal(t, "pltm_check", tool)
		assert.Equal(t, "dates", args["domain"])
		assert.Nil(t, args["has_verified"])
		return map[string]any{
			"proceed":                 false,
			"action":                  "VERIFY_FIRST",
			"adjusted_confidence":     0.18,
			"recommended_status":      "SPECULATION",
			"reasons":                 []string{"high_risk_domain", "low_adjusted_confidence"},
			"suggested_hedges":        []string{"to verify this, I should check"},
			"calibration_data_points": 10,
		}, false
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	result, err := c.Check(t.Context(), "alice", "dates", "The treaty was signed in 1923", 0.9, CheckOptions{})
	require.NoError(t, err)
	assert.Equal(t, "VERIFY_FIRST", result.Action)
	assert.InDelta(t, 0.18, result.AdjustedConfidence, 0.0001)
	assert.Equal(t, "SPECULATION", result.RecommendedStatus)
	assert.Len(t, result.Reasons, 2)
}

func TestClient_CheckWithVerifiedOverride(t *testing.T) {
	srv := mockEngine(t, func(tool string, args map[string]any) (any, bool) {
		assert.Equal(t, true, args["has_verified"])
		assert.Equal(t, "VERIFIED", args["epistemic_status"])
		return map[string]any{"proceed": true, "action": "PROCEED", "recommended_status": "VERIFIED"}, false
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	result, err := c.Check(t.Context(), "alice", "dates", "The treaty was signed in 1923", 0.9, CheckOptions{
		HasVerified:     true,
		EpistemicStatus: "VERIFIED",
	})
	require.NoError(t, err)
	assert.True(t, result.Proceed)
}

func TestClient_ResolveByClaimText(t *testing.T) {
	srv := mockEngine(t, func(tool string, args map[string]any) (any, bool) {
		assert.Equal(t, "pltm_resolve", tool)
		assert.Nil(t, args["claim_id"])
		assert.Equal(t, "treaty was signed", args["claim_text"])
		assert.Equal(t, "incorrect", args["verdict"])
		assert.Equal(t, "wikipedia", args["source"])
		return map[string]any{}, false
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.Resolve(t.Context(), "", "treaty was signed", "incorrect", "wikipedia", "off by two years")
	require.NoError(t, err)
}

func TestClient_Calibration(t *testing.T) {
	srv := mockEngine(t, func(tool string, args map[string]any) (any, bool) {
		assert.Equal(t, "pltm_calibration", tool)
		assert.Equal(t, "dates", args["domain"])
		return map[string]any{
			"overall": map[string]any{
				"total_resolved":  10,
				"accuracy":        0.2,
				"avg_confidence":  0.9,
				"calibration_gap": 0.7,
				"verdict":         "OVERCONFIDENT",
			},
			"by_domain": map[string]any{
				"dates": map[string]any{
					"domain":               "dates",
					"total_claims":         10,
					"accuracy_ratio":       0.2,
					"overconfidence_ratio": 0.8,
					"verdict":              "SEVERELY_OVERCONFIDENT",
				},
			},
			"worst_domains": []map[string]any{
				{"domain": "dates", "overconfidence_ratio": 0.8},
			},
		}, false
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	report, err := c.Calibration(t.Context(), "dates")
	require.NoError(t, err)
	require.Contains(t, report.ByDomain, "dates")
	assert.Equal(t, "SEVERELY_OVERCONFIDENT", report.ByDomain["dates"].Verdict)
	assert.InDelta(t, 0.8, report.WorstDomains[0].OverconfidenceRatio, 0.0001)
}

func TestNewClient_RequiresFields(t *testing.T) {
	_, err := NewClient(Config{Token: "x"})
	assert.Error(t, err)

	_, err = NewClient(Config{BaseURL: "http://localhost:8085"})
	assert.Error(t, err)
}
