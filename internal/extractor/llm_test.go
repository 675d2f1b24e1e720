package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBracketedFields(t *testing.T) {
	fields, ok := parseBracketedFields("[user] [likes] [Python] [PREFERENCE]")
	require.True(t, ok)
	assert.Equal(t, []string{"user", "likes", "Python", "PREFERENCE"}, fields)
}

func TestParseBracketedFieldsRejectsUnbracketedPrefix(t *testing.T) {
	_, ok := parseBracketedFields("user likes Python")
	assert.False(t, ok)
}

func TestParseBracketedFieldsRejectsUnclosedBracket(t *testing.T) {
	_, ok := parseBracketedFields("[user] [likes")
	assert.False(t, ok)
}

func TestParseExtractionResponseSingleLine(t *testing.T) {
	got := parseExtractionResponse("[user] [works_at] [Acme] [AFFILIATION]")
	require.Len(t, got, 1)
	assert.Equal(t, Candidate{Subject: "user", Predicate: "works_at", Object: "Acme", AtomType: "AFFILIATION"}, got[0])
}

func TestParseExtractionResponseMultiLine(t *testing.T) {
	resp := "[user] [likes] [Python] [PREFERENCE]\n[user] [works_at] [Acme] [AFFILIATION]"
	got := parseExtractionResponse(resp)
	require.Len(t, got, 2)
	assert.Equal(t, "likes", got[0].Predicate)
	assert.Equal(t, "works_at", got[1].Predicate)
}

func TestParseExtractionResponseNoneYieldsEmpty(t *testing.T) {
	assert.Empty(t, parseExtractionResponse("NONE"))
	assert.Empty(t, parseExtractionResponse("[NONE]"))
}

func TestParseExtractionResponseSkipsMalformedLines(t *testing.T) {
	resp := "some preamble the model added\n[user] [likes] [Python] [PREFERENCE]"
	got := parseExtractionResponse(resp)
	require.Len(t, got, 1)
	assert.Equal(t, "Python", got[0].Object)
}

func TestParseExtractionResponseLowercasesIsUppercasedForAtomType(t *testing.T) {
	got := parseExtractionResponse("[user] [likes] [Python] [preference]")
	require.Len(t, got, 1)
	assert.Equal(t, "PREFERENCE", got[0].AtomType)
}

func TestNoopExtractorReturnsNothing(t *testing.T) {
	candidates, err := NoopExtractor{}.Extract(context.Background(), "anything")
	require.NoError(t, err)
	assert.Nil(t, candidates)
}
