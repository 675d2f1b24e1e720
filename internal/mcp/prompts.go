package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// before-claim — guides the agent through the pre-claim epistemic check.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("before-claim",
			mcplib.WithPromptDescription("Guide for checking confidence before asserting a claim"),
			mcplib.WithArgument("domain",
				mcplib.ArgumentDescription("The domain of the claim you're about to make (e.g., medical, legal, financial, general)"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleBeforeClaimPrompt,
	)

	// after-claim — reminds the agent to log what was asserted.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("after-claim",
			mcplib.WithPromptDescription("Reminder to log a claim after asserting it, for later calibration"),
			mcplib.WithArgument("domain",
				mcplib.ArgumentDescription("The domain of the claim that was made"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("statement",
				mcplib.ArgumentDescription("What was asserted"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleAfterClaimPrompt,
	)

	// agent-setup — full system prompt snippet explaining the memory workflow.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("agent-setup",
			mcplib.WithPromptDescription("System prompt snippet explaining the check-before/assert-after workflow"),
		),
		s.handleAgentSetupPrompt,
	)
}

func (s *Server) handleBeforeClaimPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	domain := request.Params.Arguments["domain"]
	if domain == "" {
		return nil, fmt.Errorf("domain argument is required")
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Check confidence before making a %s claim", domain),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Before asserting this %s claim, follow these steps:

1. CALL pltm_check with domain="%s", the statement you're about to make, and
   your felt confidence (0.0-1.0).

2. REVIEW the response:
   - If action is "PROCEED", go ahead and state the claim as planned.
   - If action is "VERIFY_FIRST", look for corroborating evidence
     (retrieve related atoms, ask a clarifying question, or set
     has_verified once you've checked) before asserting. The reasons
     field says why verification was requested.
   - Use recommended_status (TRAINING_DATA, INFERENCE, SPECULATION,
     UNCERTAIN, or VERIFIED) to hedge your phrasing: anything short of
     VERIFIED should read as a belief, not a fact.

3. MAKE your claim, using adjusted_confidence rather than your original
   felt confidence to calibrate how you phrase it.

4. LOG the claim by calling pltm_assert with domain="%s", the statement, and
   your felt confidence, so it can be resolved later and feed the
   calibration curve.`, domain, domain, domain),
				},
			},
		},
	}, nil
}

func (s *Server) handleAfterClaimPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	domain := request.Params.Arguments["domain"]
	statement := request.Params.Arguments["statement"]
	if domain == "" || statement == "" {
		return nil, fmt.Errorf("domain and statement arguments are required")
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Log your %s claim", domain),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`You just asserted a claim. Log it now so it can be resolved later.

CALL pltm_assert with:
- domain: "%s"
- statement: "%s"
- felt_confidence: how certain you were when you said it (0.0-1.0). Be honest.

Later, once the real outcome is known, call pltm_resolve with the claim ID
and a verdict (correct, incorrect, partial). This is what keeps
pltm_calibration accurate — without resolution, the calibration curve never
learns whether your stated confidence matched reality.`, domain, statement),
				},
			},
		},
	}, nil
}

func (s *Server) handleAgentSetupPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	return &mcplib.GetPromptResult{
		Description: "Procedural long-term memory workflow for AI agents",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: `You have access to a procedural long-term memory graph that stores
fine-grained facts about a user, automatically forgets what stops being
reinforced, and tracks how well-calibrated your claims turn out to be.

## The Pattern: Store What You Learn, Check Before You Claim

### When you learn something durable about the user:
Call pltm_store (or pltm_extract over a block of free text) so it survives
across sessions. Contradictions are reconciled automatically — the weaker
claim is superseded, not silently duplicated.

### Before asserting something non-trivial, especially in a high-risk domain:
Call pltm_check with the domain and statement. Use the adjusted confidence
and action (PROCEED or VERIFY_FIRST) to decide how to phrase or verify the
claim before you make it.

### After asserting a claim worth tracking:
Call pltm_assert to log it, then pltm_resolve once the real outcome is
known. This is what makes pltm_calibration meaningful over time.

## Available Tools

- pltm_store / pltm_extract: record facts in the memory graph
- pltm_get / pltm_find / pltm_delete: fetch, filter, and remove atoms
- pltm_attention / pltm_multihead / pltm_mmr: ranked and diversified retrieval
- pltm_entropy_random / pltm_entropy_antipodal / pltm_entropy_temporal: surface atoms attention would miss
- pltm_decay_stability / pltm_decay_run: inspect and trigger forgetting
- pltm_check / pltm_assert / pltm_resolve / pltm_calibration: the epistemic loop

## Confidence Levels

Be honest about your felt_confidence when logging claims:
- 0.9-1.0: near-certain, strong evidence, well-established pattern
- 0.7-0.8: confident, good reasoning, some uncertainty remains
- 0.5-0.6: moderate, reasonable claim but alternatives are viable
- 0.3-0.4: low confidence, making a judgment call with limited info
- 0.1-0.2: best guess, would welcome revision with more data`,
				},
			},
		},
	}, nil
}
