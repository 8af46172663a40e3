package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/reslot/internal/reschedule/application/queries"
)

// RegisterResources registers MCP resources that expose reslot data.
func RegisterResources(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}
	app := deps.App

	srv.Resource("reslot://attempts/recent").
		Name("Recent Reschedule Attempts").
		Description("The current user's latest calendar writes, failures included").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			if app == nil || app.ListAttemptsHandler == nil {
				return nil, fmt.Errorf("attempt history requires database connection")
			}
			attempts, err := app.ListAttemptsHandler.Handle(ctx, queries.ListAttemptsQuery{
				UserID: app.CurrentUserID,
				Limit:  20,
			})
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, attempts)
		})

	srv.Resource("reslot://user/profile").
		Name("User Profile").
		Description("Current user and the calendar providers with OAuth configured").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			if app == nil {
				return nil, fmt.Errorf("profile requires initialization")
			}
			providers := []string{}
			if deps.OAuth != nil {
				for _, p := range deps.OAuth.Providers() {
					providers = append(providers, string(p))
				}
			}
			return jsonResource(uri, map[string]any{
				"user_id":         app.CurrentUserID.String(),
				"oauth_providers": providers,
			})
		})

	return nil
}

func jsonResource(uri string, v any) (*mcp.ResourceContent, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ResourceContent{
		URI:      uri,
		MimeType: "application/json",
		Text:     string(data),
	}, nil
}
