// Package mcp exposes the CLI's reschedule, availability and auth commands
// as MCP tools, resources and prompts.
package mcp

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/reslot/adapter/cli"
	identityOAuth "github.com/felixgeelhaar/reslot/internal/identity/application/oauth"
)

// ToolDependencies is what the tools call into. OAuth may be nil; the auth
// tools then report that no provider is configured.
type ToolDependencies struct {
	App   *cli.App
	OAuth *identityOAuth.Registry
}

var toolGroups = []struct {
	name     string
	register func(*mcp.Server, ToolDependencies) error
}{
	{"core", registerCoreTools},
	{"reschedule", registerRescheduleTools},
	{"availability", registerAvailabilityTools},
	{"auth", registerAuthTools},
}

// RegisterCLITools registers every tool group on srv.
func RegisterCLITools(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return errors.New("server is required")
	}
	if deps.App == nil {
		return errors.New("app is required")
	}
	for _, g := range toolGroups {
		if err := g.register(srv, deps); err != nil {
			return fmt.Errorf("%s tools: %w", g.name, err)
		}
	}
	return nil
}
