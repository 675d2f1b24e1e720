package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/pltm/engine/internal/model"
)

func (s *Server) registerTools() {
	// pltm_store — record a new fact, reconciled against the existing graph.
	s.mcpServer.AddTool(
		mcplib.NewTool("pltm_store",
			mcplib.WithDescription(`Store a single fact about a user in the memory graph.

WHEN TO USE: whenever the user states, corrects, or implies a durable fact
about themselves — a preference, a relationship, an affiliation, a habit.

The fact is reconciled against what's already known: an exact duplicate
reinforces the existing atom, a conflicting fact (an opposite predicate, or
a new value for a single-valued relation) supersedes the weaker side, and
any other fact is inserted fresh.

EXAMPLE: subject="user", predicate="prefers", object="dark roast coffee",
atom_type="PREFERENCE"`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("subject", mcplib.Description("The subject of the fact, usually \"user\" or a named entity"), mcplib.Required()),
			mcplib.WithString("predicate", mcplib.Description("The relation, e.g. \"prefers\", \"works_at\", \"allergic_to\""), mcplib.Required()),
			mcplib.WithString("object", mcplib.Description("The value of the fact"), mcplib.Required()),
			mcplib.WithString("atom_type", mcplib.Description("A category label, e.g. PREFERENCE, AFFILIATION, HEALTH"), mcplib.Required()),
			mcplib.WithString("source_user", mcplib.Description("Whose memory graph this belongs to"), mcplib.Required()),
			mcplib.WithString("provenance", mcplib.Description("How this was learned: USER_STATED, INFERRED, EXTRACTED, or EXTERNAL. Defaults to USER_STATED.")),
			mcplib.WithNumber("confidence", mcplib.Description("Confidence in this fact (0.0-1.0). Defaults to 0.7."), mcplib.Min(0), mcplib.Max(1)),
			mcplib.WithString("contexts", mcplib.Description("Optional comma-separated free-form context tags")),
		),
		s.handleStore,
	)

	// pltm_extract — extract and store facts from a block of free text.
	s.mcpServer.AddTool(
		mcplib.NewTool("pltm_extract",
			mcplib.WithDescription(`Extract facts from a block of free text and store each one.

WHEN TO USE: when the user's message contains one or more facts worth
remembering, but it's more natural to hand over the raw utterance than to
pick out subject/predicate/object yourself.

Runs a deterministic rule pass first, falling back to an LLM extraction
pass for facts the rules miss. Each resulting candidate is reconciled the
same way pltm_store reconciles one.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("text", mcplib.Description("The utterance to extract facts from"), mcplib.Required()),
			mcplib.WithString("source_user", mcplib.Description("Whose memory graph this belongs to"), mcplib.Required()),
		),
		s.handleExtract,
	)

	// pltm_get — fetch a single atom by ID.
	s.mcpServer.AddTool(
		mcplib.NewTool("pltm_get",
			mcplib.WithDescription("Fetch a single atom by its ID. Bumps the atom's access bookkeeping."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("atom_id", mcplib.Description("The atom's UUID"), mcplib.Required()),
		),
		s.handleGet,
	)

	// pltm_find — filter atoms by partial triple and graph membership.
	s.mcpServer.AddTool(
		mcplib.NewTool("pltm_find",
			mcplib.WithDescription(`Filter atoms by subject/predicate/object and graph membership.

WHEN TO USE: for exact-match lookups — "what do we know about the user's
job", "find every PREFERENCE atom". For fuzzy/semantic retrieval, use
pltm_attention or pltm_mmr instead.

A subject is required unless filtering purely by graph.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("source_user", mcplib.Description("Whose memory graph to search"), mcplib.Required()),
			mcplib.WithString("subject", mcplib.Description("Filter by subject")),
			mcplib.WithString("predicate", mcplib.Description("Filter by predicate (requires subject and object too)")),
			mcplib.WithString("object", mcplib.Description("Filter by object (requires subject and predicate too)")),
			mcplib.WithString("graph", mcplib.Description("Comma-separated graph state(s) to filter by: UNSUBSTANTIATED, SUBSTANTIATED, HISTORICAL")),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return"), mcplib.Min(1), mcplib.Max(200), mcplib.DefaultNumber(20)),
		),
		s.handleFind,
	)

	// pltm_delete — remove an atom outright.
	s.mcpServer.AddTool(
		mcplib.NewTool("pltm_delete",
			mcplib.WithDescription("Remove an atom outright. Use sparingly — prefer letting the decay worker dissolve atoms naturally unless the user explicitly asks to forget something."),
			mcplib.WithDestructiveHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("atom_id", mcplib.Description("The atom's UUID"), mcplib.Required()),
		),
		s.handleDelete,
	)

	// pltm_attention — weighted-attention retrieval for a query.
	s.mcpServer.AddTool(
		mcplib.NewTool("pltm_attention",
			mcplib.WithDescription(`Retrieve atoms ranked by the weighted attention score: relevance,
confidence, recency, and stability combined.

WHEN TO USE: the default retrieval tool — call this before answering a
question that depends on remembered context about the user.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("query", mcplib.Description("Natural language query"), mcplib.Required()),
			mcplib.WithString("source_user", mcplib.Description("Whose memory graph to search"), mcplib.Required()),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return"), mcplib.Min(1), mcplib.Max(100), mcplib.DefaultNumber(20)),
		),
		s.handleAttention,
	)

	// pltm_multihead — attention retrieval under several weight vectors.
	s.mcpServer.AddTool(
		mcplib.NewTool("pltm_multihead",
			mcplib.WithDescription(`Run attention retrieval under several weight vectors at once, merging by
max score per atom.

WHEN TO USE: when a single weight vector might over- or under-weight
recency vs relevance for this particular question, and you want the union
of what several perspectives would surface.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("query", mcplib.Description("Natural language query"), mcplib.Required()),
			mcplib.WithString("source_user", mcplib.Description("Whose memory graph to search"), mcplib.Required()),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return"), mcplib.Min(1), mcplib.Max(100), mcplib.DefaultNumber(20)),
		),
		s.handleMultiHead,
	)

	// pltm_mmr — diversified retrieval via maximal marginal relevance.
	s.mcpServer.AddTool(
		mcplib.NewTool("pltm_mmr",
			mcplib.WithDescription(`Retrieve a diversified top-k set of atoms via maximal marginal relevance.

WHEN TO USE: when you want a spread of distinct facts rather than several
near-duplicates of the single most relevant atom — e.g. summarizing
everything known about a user rather than answering one narrow question.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("query", mcplib.Description("Natural language query"), mcplib.Required()),
			mcplib.WithString("source_user", mcplib.Description("Whose memory graph to search"), mcplib.Required()),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return"), mcplib.Min(1), mcplib.Max(100), mcplib.DefaultNumber(20)),
			mcplib.WithNumber("lambda", mcplib.Description("Relevance (1.0) vs diversity (0.0) trade-off. Defaults to 0.6."), mcplib.Min(0), mcplib.Max(1)),
			mcplib.WithNumber("min_dissimilarity", mcplib.Description("Minimum pairwise dissimilarity enforced between selected atoms. Defaults to 0.25."), mcplib.Min(0), mcplib.Max(1)),
		),
		s.handleMMR,
	)

	// pltm_entropy_random / antipodal / temporal — surface atoms attention would miss.
	s.mcpServer.AddTool(
		mcplib.NewTool("pltm_entropy_random",
			mcplib.WithDescription("Surface a random sample of substantiated and unsubstantiated atoms, countering attention retrieval's tendency to keep surfacing the same well-worn facts."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("source_user", mcplib.Description("Whose memory graph to sample"), mcplib.Required()),
			mcplib.WithNumber("limit", mcplib.Description("Maximum atoms to return"), mcplib.Min(1), mcplib.Max(100), mcplib.DefaultNumber(20)),
		),
		s.handleEntropyRandom,
	)
	s.mcpServer.AddTool(
		mcplib.NewTool("pltm_entropy_antipodal",
			mcplib.WithDescription("Surface the atoms least similar to a given anchor atom — useful for finding what contradicts or diverges from a known fact."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("source_user", mcplib.Description("Whose memory graph to sample"), mcplib.Required()),
			mcplib.WithString("anchor_atom_id", mcplib.Description("The atom to find the least similar counterpart to"), mcplib.Required()),
			mcplib.WithNumber("limit", mcplib.Description("Maximum atoms to return"), mcplib.Min(1), mcplib.Max(100), mcplib.DefaultNumber(20)),
		),
		s.handleEntropyAntipodal,
	)
	s.mcpServer.AddTool(
		mcplib.NewTool("pltm_entropy_temporal",
			mcplib.WithDescription("Surface a mix of the oldest and newest atoms — useful for checking what's gone quiet versus what just arrived."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("source_user", mcplib.Description("Whose memory graph to sample"), mcplib.Required()),
			mcplib.WithNumber("limit", mcplib.Description("Maximum atoms to return"), mcplib.Min(1), mcplib.Max(100), mcplib.DefaultNumber(20)),
		),
		s.handleEntropyTemporal,
	)

	// pltm_decay_stability — report an atom's current stability.
	s.mcpServer.AddTool(
		mcplib.NewTool("pltm_decay_stability",
			mcplib.WithDescription("Report an atom's current stability and predicted dissolution schedule."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("atom_id", mcplib.Description("The atom's UUID"), mcplib.Required()),
		),
		s.handleDecayStability,
	)

	// pltm_decay_run — trigger an out-of-band decay sweep.
	s.mcpServer.AddTool(
		mcplib.NewTool("pltm_decay_run",
			mcplib.WithDescription("Trigger an out-of-band decay sweep for a user, normally handled automatically by the background worker. Use only when you need forgetting applied immediately."),
			mcplib.WithDestructiveHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("source_user", mcplib.Description("Whose memory graph to sweep. Omit to sweep every user.")),
		),
		s.handleDecayRun,
	)

	// pltm_check — pre-claim epistemic gate.
	s.mcpServer.AddTool(
		mcplib.NewTool("pltm_check",
			mcplib.WithDescription(`Check confidence before asserting a claim to the user.

WHEN TO USE: before making any non-trivial claim, especially in a
high-risk domain (time_sensitive, current_events, dates, statistics,
technical_specs, legal, medical, financial). Discounts your felt confidence
by the domain's historical accuracy and returns action=PROCEED or
VERIFY_FIRST, plus a recommended_status label.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("source_user", mcplib.Description("Whose claim this is about"), mcplib.Required()),
			mcplib.WithString("domain", mcplib.Description("The domain of the claim, e.g. medical, legal, financial, general"), mcplib.Required()),
			mcplib.WithString("statement", mcplib.Description("The claim you're about to make"), mcplib.Required()),
			mcplib.WithNumber("confidence", mcplib.Description("Your felt confidence (0.0-1.0)"), mcplib.Required(), mcplib.Min(0), mcplib.Max(1)),
			mcplib.WithBoolean("has_verified", mcplib.Description("Whether you already verified this with a tool or external source")),
			mcplib.WithString("epistemic_status", mcplib.Description("VERIFIED, TRAINING_DATA, INFERENCE, SPECULATION, or UNCERTAIN")),
		),
		s.handleCheck,
	)

	// pltm_assert — log a claim in the prediction book.
	s.mcpServer.AddTool(
		mcplib.NewTool("pltm_assert",
			mcplib.WithDescription(`Log a claim in the prediction book after asserting it.

IMPORTANT: call pltm_check first. Asserting without checking risks
overstating confidence in a high-risk domain.

Logging a claim lets pltm_resolve close the loop later, feeding the
calibration curve pltm_calibration reports on.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("source_user", mcplib.Description("Whose claim this is about"), mcplib.Required()),
			mcplib.WithString("domain", mcplib.Description("The domain of the claim"), mcplib.Required()),
			mcplib.WithString("statement", mcplib.Description("What you asserted"), mcplib.Required()),
			mcplib.WithNumber("felt_confidence", mcplib.Description("How certain you were when you said it (0.0-1.0)"), mcplib.Required(), mcplib.Min(0), mcplib.Max(1)),
			mcplib.WithString("epistemic_status", mcplib.Description("VERIFIED, TRAINING_DATA, INFERENCE, SPECULATION, or UNCERTAIN")),
			mcplib.WithBoolean("has_verified", mcplib.Description("Whether you already verified this with a tool or external source")),
		),
		s.handleAssert,
	)

	// pltm_resolve — resolve a logged claim against its actual outcome.
	s.mcpServer.AddTool(
		mcplib.NewTool("pltm_resolve",
			mcplib.WithDescription("Resolve a previously logged claim against its actual outcome (correct, incorrect, partial). This is what keeps the calibration curve accurate."),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("claim_id", mcplib.Description("The claim's UUID, returned by pltm_assert. Omit if using claim_text.")),
			mcplib.WithString("claim_text", mcplib.Description("A substring of the claim's statement, used to find it if claim_id is unknown")),
			mcplib.WithString("verdict", mcplib.Description("correct, incorrect, partial, or unknown"), mcplib.Required()),
			mcplib.WithString("source", mcplib.Description("Where the correction came from, e.g. user, tool_check, external_verification")),
			mcplib.WithString("detail", mcplib.Description("Free-text detail about the correction")),
		),
		s.handleResolve,
	)

	// pltm_calibration — read the calibration report.
	s.mcpServer.AddTool(
		mcplib.NewTool("pltm_calibration",
			mcplib.WithDescription("Read the calibration report derived from the prediction book: overall cross-domain accuracy, a per-domain breakdown, and the worst-calibrated domains."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("domain", mcplib.Description("Restrict the report to a single domain. Omit for every domain with resolved claims.")),
		),
		s.handleCalibration,
	)
}

func writeJSON(v any) *mcplib.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func parseUUIDArg(request mcplib.CallToolRequest, key string) (uuid.UUID, error) {
	raw := request.GetString(key, "")
	if raw == "" {
		return uuid.UUID{}, fmt.Errorf("%s is required", key)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%s is not a valid UUID: %w", key, err)
	}
	return id, nil
}

// stringSliceArg splits a comma-separated string argument into its parts,
// trimming whitespace and dropping empties.
func stringSliceArg(request mcplib.CallToolRequest, key string) []string {
	raw := request.GetString(key, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Server) handleStore(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	subject := request.GetString("subject", "")
	predicate := request.GetString("predicate", "")
	object := request.GetString("object", "")
	atomType := request.GetString("atom_type", "")
	sourceUser := request.GetString("source_user", "")
	if subject == "" || predicate == "" || object == "" || atomType == "" || sourceUser == "" {
		return errorResult("subject, predicate, object, atom_type, and source_user are required"), nil
	}

	req := model.StoreAtomRequest{
		Subject:    subject,
		Predicate:  predicate,
		Object:     object,
		AtomType:   atomType,
		SourceUser: sourceUser,
		Provenance: model.Provenance(request.GetString("provenance", "")),
		Confidence: request.GetFloat("confidence", 0),
		Contexts:   stringSliceArg(request, "contexts"),
	}

	result, err := s.svc.StoreAtom(ctx, req)
	if err != nil {
		return errorResult(fmt.Sprintf("store failed: %v", err)), nil
	}
	return writeJSON(map[string]any{
		"atom":           compactAtom(result.Atom),
		"outcome":        result.Outcome,
		"superseded_ids": result.SupersededIDs,
	}), nil
}

func (s *Server) handleExtract(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	text := request.GetString("text", "")
	sourceUser := request.GetString("source_user", "")
	if text == "" || sourceUser == "" {
		return errorResult("text and source_user are required"), nil
	}

	results, err := s.svc.ExtractAndStore(ctx, sourceUser, text)
	if err != nil {
		return errorResult(fmt.Sprintf("extract failed: %v", err)), nil
	}

	stored := make([]map[string]any, len(results))
	for i, r := range results {
		stored[i] = map[string]any{"atom": compactAtom(r.Atom), "outcome": r.Outcome}
	}
	return writeJSON(map[string]any{"stored": stored, "count": len(stored)}), nil
}

func (s *Server) handleGet(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := parseUUIDArg(request, "atom_id")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	atom, err := s.svc.GetAtom(ctx, id)
	if err != nil {
		return errorResult(fmt.Sprintf("get failed: %v", err)), nil
	}
	return writeJSON(compactAtom(atom)), nil
}

func (s *Server) handleFind(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sourceUser := request.GetString("source_user", "")
	if sourceUser == "" {
		return errorResult("source_user is required"), nil
	}

	req := model.FindTriplesRequest{
		SourceUser: sourceUser,
		Limit:      request.GetInt("limit", 20),
	}
	if subject := request.GetString("subject", ""); subject != "" {
		req.Subject = &subject
	}
	if predicate := request.GetString("predicate", ""); predicate != "" {
		req.Predicate = &predicate
	}
	if object := request.GetString("object", ""); object != "" {
		req.Object = &object
	}
	for _, g := range stringSliceArg(request, "graph") {
		req.Graph = append(req.Graph, model.GraphState(g))
	}

	atoms, err := s.svc.FindTriples(ctx, req)
	if err != nil {
		return errorResult(fmt.Sprintf("find failed: %v", err)), nil
	}
	compact := make([]map[string]any, len(atoms))
	for i, a := range atoms {
		compact[i] = compactAtom(a)
	}
	return writeJSON(map[string]any{"atoms": compact, "total": len(compact)}), nil
}

func (s *Server) handleDelete(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := parseUUIDArg(request, "atom_id")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if err := s.svc.DeleteAtom(ctx, id); err != nil {
		return errorResult(fmt.Sprintf("delete failed: %v", err)), nil
	}
	return writeJSON(map[string]any{"atom_id": id, "status": "deleted"}), nil
}

func (s *Server) handleAttention(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	sourceUser := request.GetString("source_user", "")
	if query == "" || sourceUser == "" {
		return errorResult("query and source_user are required"), nil
	}
	results, err := s.svc.AttentionRetrieve(ctx, model.AttentionRetrieveRequest{
		Query:      query,
		SourceUser: sourceUser,
		Limit:      request.GetInt("limit", 20),
	})
	if err != nil {
		return errorResult(fmt.Sprintf("attention retrieve failed: %v", err)), nil
	}
	return writeJSON(scoredAtomsPayload(results)), nil
}

func (s *Server) handleMultiHead(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	sourceUser := request.GetString("source_user", "")
	if query == "" || sourceUser == "" {
		return errorResult("query and source_user are required"), nil
	}
	results, err := s.svc.AttentionMultiHead(ctx, model.MultiHeadRequest{
		Query:      query,
		SourceUser: sourceUser,
		Limit:      request.GetInt("limit", 20),
	})
	if err != nil {
		return errorResult(fmt.Sprintf("multihead retrieve failed: %v", err)), nil
	}
	return writeJSON(scoredAtomsPayload(results)), nil
}

func (s *Server) handleMMR(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	sourceUser := request.GetString("source_user", "")
	if query == "" || sourceUser == "" {
		return errorResult("query and source_user are required"), nil
	}
	results, err := s.svc.MMRRetrieve(ctx, model.MMRRequest{
		Query:            query,
		SourceUser:       sourceUser,
		Limit:            request.GetInt("limit", 20),
		Lambda:           request.GetFloat("lambda", 0),
		MinDissimilarity: request.GetFloat("min_dissimilarity", 0),
	})
	if err != nil {
		return errorResult(fmt.Sprintf("mmr retrieve failed: %v", err)), nil
	}
	return writeJSON(scoredAtomsPayload(results)), nil
}

func scoredAtomsPayload(results []model.ScoredAtom) map[string]any {
	compact := make([]map[string]any, len(results))
	for i, r := range results {
		compact[i] = compactScoredAtom(r)
	}
	return map[string]any{"results": compact, "total": len(compact)}
}

func (s *Server) handleEntropyRandom(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sourceUser := request.GetString("source_user", "")
	if sourceUser == "" {
		return errorResult("source_user is required"), nil
	}
	atoms, err := s.svc.InjectEntropyRandom(ctx, model.EntropyInjectionRequest{
		SourceUser: sourceUser,
		Limit:      request.GetInt("limit", 20),
	})
	if err != nil {
		return errorResult(fmt.Sprintf("entropy injection failed: %v", err)), nil
	}
	return writeJSON(atomsPayload(atoms)), nil
}

func (s *Server) handleEntropyAntipodal(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sourceUser := request.GetString("source_user", "")
	if sourceUser == "" {
		return errorResult("source_user is required"), nil
	}
	anchorID, err := parseUUIDArg(request, "anchor_atom_id")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	atoms, err := s.svc.InjectEntropyAntipodal(ctx, model.EntropyInjectionRequest{
		SourceUser:   sourceUser,
		AnchorAtomID: &anchorID,
		Limit:        request.GetInt("limit", 20),
	})
	if err != nil {
		return errorResult(fmt.Sprintf("entropy injection failed: %v", err)), nil
	}
	return writeJSON(atomsPayload(atoms)), nil
}

func (s *Server) handleEntropyTemporal(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sourceUser := request.GetString("source_user", "")
	if sourceUser == "" {
		return errorResult("source_user is required"), nil
	}
	atoms, err := s.svc.InjectEntropyTemporal(ctx, model.EntropyInjectionRequest{
		SourceUser: sourceUser,
		Limit:      request.GetInt("limit", 20),
	})
	if err != nil {
		return errorResult(fmt.Sprintf("entropy injection failed: %v", err)), nil
	}
	return writeJSON(atomsPayload(atoms)), nil
}

func atomsPayload(atoms []model.Atom) map[string]any {
	compact := make([]map[string]any, len(atoms))
	for i, a := range atoms {
		compact[i] = compactAtom(a)
	}
	return map[string]any{"atoms": compact, "total": len(compact)}
}

func (s *Server) handleDecayStability(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := parseUUIDArg(request, "atom_id")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	result, err := s.svc.DecayStability(ctx, model.DecayStabilityRequest{AtomID: id})
	if err != nil {
		return errorResult(fmt.Sprintf("decay stability failed: %v", err)), nil
	}
	return writeJSON(result), nil
}

func (s *Server) handleDecayRun(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	result, err := s.svc.DecayRun(ctx, model.DecayRunRequest{
		SourceUser: request.GetString("source_user", ""),
	})
	if err != nil {
		return errorResult(fmt.Sprintf("decay run failed: %v", err)), nil
	}
	return writeJSON(result), nil
}

func (s *Server) handleCheck(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sourceUser := request.GetString("source_user", "")
	domain := request.GetString("domain", "")
	statement := request.GetString("statement", "")
	if sourceUser == "" || domain == "" || statement == "" {
		return errorResult("source_user, domain, and statement are required"), nil
	}

	s.checkTracker.Record(sourceUser, domain)

	result, err := s.svc.CheckBeforeClaiming(ctx, model.CheckBeforeClaimingRequest{
		SourceUser:      sourceUser,
		Domain:          domain,
		Statement:       statement,
		Confidence:      request.GetFloat("confidence", 0),
		HasVerified:     request.GetBool("has_verified", false),
		EpistemicStatus: model.EpistemicStatus(request.GetString("epistemic_status", "")),
	})
	if err != nil {
		return errorResult(fmt.Sprintf("check failed: %v", err)), nil
	}
	return writeJSON(result), nil
}

func (s *Server) handleAssert(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sourceUser := request.GetString("source_user", "")
	domain := request.GetString("domain", "")
	statement := request.GetString("statement", "")
	if sourceUser == "" || domain == "" || statement == "" {
		return errorResult("source_user, domain, and statement are required"), nil
	}

	claim, err := s.svc.LogClaim(ctx, model.LogClaimRequest{
		SourceUser:      sourceUser,
		Domain:          domain,
		Statement:       statement,
		FeltConfidence:  request.GetFloat("felt_confidence", 0),
		EpistemicStatus: model.EpistemicStatus(request.GetString("epistemic_status", "")),
		HasVerified:     request.GetBool("has_verified", false),
	})
	if err != nil {
		return errorResult(fmt.Sprintf("assert failed: %v", err)), nil
	}

	contents := []mcplib.Content{
		mcplib.TextContent{Type: "text", Text: mustJSON(compactClaim(claim))},
	}

	// Nudge: if the caller didn't call pltm_check for this domain recently,
	// include a reminder. The assert still succeeds — this is advisory.
	if !s.checkTracker.WasChecked(sourceUser, domain) {
		contents = append(contents, mcplib.TextContent{
			Type: "text",
			Text: "NOTE: No pltm_check was called for domain=\"" + domain + "\" before this assert. " +
				"Checking first catches overconfidence in high-risk domains. " +
				"Next time, call pltm_check before pltm_assert.",
		})
	}

	return &mcplib.CallToolResult{Content: contents}, nil
}

func mustJSON(v any) string {
	data, _ := json.MarshalIndent(v, "", "  ")
	return string(data)
}

func (s *Server) handleResolve(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claimIDRaw := request.GetString("claim_id", "")
	claimText := request.GetString("claim_text", "")
	if claimIDRaw == "" && claimText == "" {
		return errorResult("provide claim_id or claim_text"), nil
	}
	verdict := model.Verdict(request.GetString("verdict", ""))
	if verdict == "" {
		return errorResult("verdict is required"), nil
	}

	req := model.ResolveClaimRequest{
		ClaimText:        claimText,
		Verdict:          verdict,
		CorrectionSource: request.GetString("source", ""),
		CorrectionDetail: request.GetString("detail", ""),
	}
	if claimIDRaw != "" {
		claimID, err := parseUUIDArg(request, "claim_id")
		if err != nil {
			return errorResult(err.Error()), nil
		}
		req.ClaimID = claimID
	}

	claim, err := s.svc.ResolveClaim(ctx, req)
	if err != nil {
		return errorResult(fmt.Sprintf("resolve failed: %v", err)), nil
	}
	return writeJSON(compactClaim(claim)), nil
}

func (s *Server) handleCalibration(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	domain := request.GetString("domain", "")
	report, err := s.svc.GetCalibration(ctx, model.GetCalibrationRequest{Domain: domain})
	if err != nil {
		return errorResult(fmt.Sprintf("calibration failed: %v", err)), nil
	}
	return writeJSON(report), nil
}
