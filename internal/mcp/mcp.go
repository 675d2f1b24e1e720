// Package mcp implements the Model Context Protocol server for the memory
// engine. It exposes every operation the service layer provides as an MCP
// tool, so MCP-compatible agents can store, retrieve, and reason about the
// same long-term memory graph over a single RPC surface.
package mcp

import (
	"log/slog"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/pltm/engine/internal/service/pltm"
)

// serverInstructions is sent to every MCP client during the initialize
// handshake, so every connected agent knows the check-before/assert-after
// workflow without requiring per-project configuration.
const serverInstructions = `You have access to a procedural long-term memory graph for this user.

WORKFLOW — follow this for every claim you're about to make to the user,
especially in a high-risk domain (time_sensitive, current_events, dates,
statistics, technical_specs, legal, medical, financial):

1. BEFORE asserting: call pltm_check with the domain and the statement you're
   about to make, plus your felt confidence. This returns an adjusted
   confidence and an action (PROCEED or VERIFY_FIRST), plus a
   recommended_status label to phrase the claim with.

2. AFTER asserting (for claims worth tracking): call pltm_assert to log the
   claim in the prediction book. Later, when the real outcome is known, call
   pltm_resolve so the calibration curve stays accurate.

3. Use pltm_store whenever the user states, corrects, or implies a durable
   fact about themselves — a preference, a relationship, an affiliation. The
   engine reconciles it against what's already known: duplicates reinforce,
   contradictions supersede the weaker claim.

4. Use pltm_find, pltm_attention, pltm_multihead, or pltm_mmr to retrieve what
   the graph already knows before you answer a question that depends on
   remembered context. Prefer pltm_mmr when you want a diverse set rather
   than the single most relevant cluster of atoms.

5. The pltm_entropy_* tools surface atoms attention retrieval would never
   rank highly — useful when you want to double-check you're not missing
   something that's simply gone quiet, not gone false.

TOOLS:
- pltm_store: record a new fact, reconciled against the existing graph
- pltm_extract: extract and store facts from a block of free text
- pltm_get: fetch a single atom by ID
- pltm_find: filter atoms by subject/predicate/object and graph membership
- pltm_delete: remove an atom outright
- pltm_attention: weighted-attention retrieval for a query
- pltm_multihead: attention retrieval under several weight vectors at once
- pltm_mmr: diversified retrieval via maximal marginal relevance
- pltm_entropy_random / pltm_entropy_antipodal / pltm_entropy_temporal: surface atoms attention would miss
- pltm_decay_stability: report an atom's current stability and predicted dissolution
- pltm_decay_run: trigger an out-of-band decay sweep
- pltm_check: pre-claim epistemic gate
- pltm_assert: log a claim in the prediction book
- pltm_resolve: resolve a logged claim against its actual outcome
- pltm_calibration: read the calibration report for a domain, or every domain

Be honest about confidence. A low adjusted_confidence is not a failure —
it's the graph telling you to hedge or verify before you speak.`

// Server wraps the MCP server with the engine's service layer.
type Server struct {
	mcpServer    *mcpserver.MCPServer
	svc          *pltm.Service
	logger       *slog.Logger
	checkTracker *checkTracker // tracks the check-before-assert workflow
	rootsCache   *rootsCache   // caches MCP roots per session
}

// New creates and configures a new MCP server with all resources, tools, and
// prompts wired to svc.
func New(svc *pltm.Service, logger *slog.Logger, version string) *Server {
	s := &Server{
		svc:          svc,
		logger:       logger,
		checkTracker: newCheckTracker(time.Hour),
		rootsCache:   newRootsCache(),
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"pltm",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithRoots(),
		mcpserver.WithInstructions(serverInstructions),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
