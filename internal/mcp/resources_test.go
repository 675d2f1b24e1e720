package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserResourceURI(t *testing.T) {
	tests := []struct {
		name       string
		uri        string
		suffix     string
		wantUser   string
		wantError  bool
		errSubstr  string
	}{
		{
			name:     "valid simple user id, graph suffix",
			uri:      "pltm://user/alice/graph",
			suffix:   "/graph",
			wantUser: "alice",
		},
		{
			name:     "valid user id with @ and hyphen, calibration suffix",
			uri:      "pltm://user/alice-corp@acme/calibration",
			suffix:   "/calibration",
			wantUser: "alice-corp@acme",
		},
		{
			name:      "empty user id between slashes",
			uri:       "pltm://user//graph",
			suffix:    "/graph",
			wantError: true,
			errSubstr: "empty id",
		},
		{
			name:      "wrong prefix",
			uri:       "other://user/alice/graph",
			suffix:    "/graph",
			wantError: true,
			errSubstr: "invalid resource URI",
		},
		{
			name:      "wrong suffix",
			uri:       "pltm://user/alice/graph",
			suffix:    "/calibration",
			wantError: true,
			errSubstr: "invalid resource URI",
		},
		{
			name:      "completely invalid URI",
			uri:       "garbage",
			suffix:    "/graph",
			wantError: true,
			errSubstr: "invalid resource URI",
		},
		{
			name:     "user id containing suffix-like substring",
			uri:      "pltm://user/graph-lover/graph",
			suffix:   "/graph",
			wantUser: "graph-lover",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sourceUser, err := parseUserResourceURI(tt.uri, tt.suffix)

			if tt.wantError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)
				assert.Empty(t, sourceUser)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, sourceUser)
		})
	}
}

func TestParsePrefixedResourceURIDomain(t *testing.T) {
	domain, err := parsePrefixedResourceURI("pltm://domain/dates/calibration", "pltm://domain/", "/calibration")
	require.NoError(t, err)
	assert.Equal(t, "dates", domain)

	_, err = parsePrefixedResourceURI("pltm://domain//calibration", "pltm://domain/", "/calibration")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty id")
}
