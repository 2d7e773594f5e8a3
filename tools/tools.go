package tools

import (
	"context"
	"regexp"
	"strings"

	"pkt.systems/pslog"
)

// Tool defines the interface for any action the agent can take.
type Tool interface {
	Name() string
	Description() string
	Parameters() []Parameter
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Parameter describes one argument of a tool.
type Parameter struct {
	Name        string
	Type        string // JSON schema type, e.g. "string"
	Description string
	Required    bool
}

// Schema returns the JSON schema properties and required names of a tool's
// parameters, in the form every provider API accepts.
func Schema(t Tool) (map[string]interface{}, []string) {
	properties := make(map[string]interface{})
	required := []string{}
	for _, p := range t.Parameters() {
		properties[p.Name] = map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return properties, required
}

// isCommandAllowed checks if a command is in the allowlist (with regex support).
func isCommandAllowed(ctx context.Context, command string, allowed []string) bool {
	if len(strings.Fields(command)) == 0 {
		return false
	}

	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			pslog.Ctx(ctx).Warn("invalid regex in allowed_commands", "pattern", pattern, "err", err)
			// Fallback to simple string comparison if regex is invalid
			if command == pattern {
				return true
			}
			continue
		}
		if re.MatchString(command) {
			return true
		}
	}
	return false
}
