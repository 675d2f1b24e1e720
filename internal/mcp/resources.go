package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/pltm/engine/internal/model"
)

func (s *Server) registerResources() {
	// pltm://user/{id}/graph — a user's substantiated facts.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"pltm://user/{id}/graph",
			"User Graph",
			mcplib.WithTemplateDescription("The substantiated subset of a user's memory graph"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleUserGraph,
	)

	// pltm://domain/{id}/calibration — a domain's calibration report.
	// Calibration is tracked per domain, not per source_user (the prediction
	// book has no per-user partition); {id} here names a domain.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"pltm://domain/{id}/calibration",
			"Domain Calibration",
			mcplib.WithTemplateDescription("The calibration report derived from a domain's prediction book"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleDomainCalibration,
	)
}

func (s *Server) handleUserGraph(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	sourceUser, err := parseUserResourceURI(uri, "/graph")
	if err != nil {
		return nil, err
	}

	atoms, err := s.svc.FindTriples(ctx, model.FindTriplesRequest{
		SourceUser: sourceUser,
		Graph:      []model.GraphState{model.GraphSubstantiated},
		Limit:      50,
	})
	if err != nil {
		return nil, fmt.Errorf("mcp: user graph: %w", err)
	}

	compact := make([]map[string]any, len(atoms))
	for i, a := range atoms {
		compact[i] = compactAtom(a)
	}

	data, err := json.MarshalIndent(map[string]any{
		"source_user": sourceUser,
		"atoms":       compact,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal user graph: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleDomainCalibration(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	domain, err := parsePrefixedResourceURI(uri, "pltm://domain/", "/calibration")
	if err != nil {
		return nil, err
	}

	report, err := s.svc.GetCalibration(ctx, model.GetCalibrationRequest{Domain: domain})
	if err != nil {
		return nil, fmt.Errorf("mcp: domain calibration: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal calibration: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// parseUserResourceURI extracts source_user from "pltm://user/{id}<suffix>".
// Uses string splitting instead of fmt.Sscanf to correctly handle user IDs
// that contain characters Sscanf would misparse.
func parseUserResourceURI(uri, suffix string) (string, error) {
	return parsePrefixedResourceURI(uri, "pltm://user/", suffix)
}

// parsePrefixedResourceURI extracts the {id} segment from
// "<prefix>{id}<suffix>".
func parsePrefixedResourceURI(uri, prefix, suffix string) (string, error) {
	if !strings.HasPrefix(uri, prefix) || !strings.HasSuffix(uri, suffix) {
		return "", fmt.Errorf("mcp: invalid resource URI: %s", uri)
	}

	id := uri[len(prefix) : len(uri)-len(suffix)]
	if id == "" {
		return "", fmt.Errorf("mcp: empty id in URI: %s", uri)
	}

	return id, nil
}
