package mcp

import (
	"context"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func promptRequest(name string, args map[string]string) mcplib.GetPromptRequest {
	return mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{Name: name, Arguments: args},
	}
}

func promptText(t *testing.T, result *mcplib.GetPromptResult) string {
	t.Helper()
	require.NotEmpty(t, result.Messages)
	tc, ok := result.Messages[0].Content.(mcplib.TextContent)
	require.True(t, ok, "message content should be TextContent")
	return tc.Text
}

func TestBeforeClaimPrompt(t *testing.T) {
	s := validationServer()
	ctx := context.Background()

	result, err := s.handleBeforeClaimPrompt(ctx, promptRequest("before-claim", map[string]string{
		"domain": "medical",
	}))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Contains(t, result.Description, "medical")

	msg := result.Messages[0]
	assert.Equal(t, mcplib.RoleUser, msg.Role)

	text := promptText(t, result)
	assert.Contains(t, text, "pltm_check")
	assert.Contains(t, text, "pltm_assert")
	assert.Contains(t, text, "medical")
}

func TestBeforeClaimPromptMissingDomain(t *testing.T) {
	s := validationServer()
	ctx := context.Background()

	_, err := s.handleBeforeClaimPrompt(ctx, promptRequest("before-claim", map[string]string{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain")
}

func TestBeforeClaimPromptEmptyDomain(t *testing.T) {
	s := validationServer()
	ctx := context.Background()

	_, err := s.handleBeforeClaimPrompt(ctx, promptRequest("before-claim", map[string]string{"domain": ""}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain")
}

func TestAfterClaimPrompt(t *testing.T) {
	s := validationServer()
	ctx := context.Background()

	result, err := s.handleAfterClaimPrompt(ctx, promptRequest("after-claim", map[string]string{
		"domain":    "legal",
		"statement": "the filing deadline is next Friday",
	}))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Contains(t, result.Description, "legal")

	text := promptText(t, result)
	assert.Contains(t, text, "pltm_assert")
	assert.Contains(t, text, "pltm_resolve")
	assert.Contains(t, text, "pltm_calibration")
	assert.Contains(t, text, "legal")
	assert.Contains(t, text, "the filing deadline is next Friday")
}

func TestAfterClaimPromptMissingFields(t *testing.T) {
	s := validationServer()
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]string
	}{
		{name: "missing both", args: map[string]string{}},
		{name: "missing statement", args: map[string]string{"domain": "legal"}},
		{name: "missing domain", args: map[string]string{"statement": "test"}},
		{name: "empty domain", args: map[string]string{"domain": "", "statement": "test"}},
		{name: "empty statement", args: map[string]string{"domain": "legal", "statement": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleAfterClaimPrompt(ctx, promptRequest("after-claim", tt.args))
			require.Error(t, err, "should error when required fields are missing")
			assert.Contains(t, err.Error(), "required")
		})
	}
}

func TestAgentSetupPrompt(t *testing.T) {
	s := validationServer()
	ctx := context.Background()

	result, err := s.handleAgentSetupPrompt(ctx, promptRequest("agent-setup", nil))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.NotEmpty(t, result.Description)

	text := promptText(t, result)
	assert.Contains(t, text, "pltm_store")
	assert.Contains(t, text, "pltm_check")
	assert.Contains(t, text, "pltm_assert")
	assert.Contains(t, text, "pltm_calibration")
	assert.Contains(t, text, "Confidence Levels")
}

func TestAgentSetupPromptNoArgs(t *testing.T) {
	s := validationServer()
	ctx := context.Background()

	result, err := s.handleAgentSetupPrompt(ctx, promptRequest("agent-setup", map[string]string{}))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Messages)
}

func TestBeforeClaimPromptVariousDomains(t *testing.T) {
	s := validationServer()
	ctx := context.Background()

	domains := []string{"medical", "legal", "financial", "general", "technical"}
	for _, d := range domains {
		t.Run(d, func(t *testing.T) {
			result, err := s.handleBeforeClaimPrompt(ctx, promptRequest("before-claim", map[string]string{"domain": d}))
			require.NoError(t, err)
			require.NotNil(t, result)
			assert.Contains(t, result.Description, d)
			assert.Contains(t, promptText(t, result), d)
		})
	}
}
