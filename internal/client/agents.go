// ABOUTME: Agent catalog endpoint of the chat backend
// ABOUTME: Lists every agent the backend can route a conversation to

package client

import (
	"context"
	"net/http"

	"github.com/2389/coven-chat/internal/transcript"
)

// Agent is a full agent record from the catalog.
type Agent struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Avatar       string `json:"avatar"`
	Role         string `json:"role"`
	Description  string `json:"description"`
	MCPServerURL string `json:"mcp_server_url"`
}

// Ref returns the transcript reference for this agent.
func (a Agent) Ref() *transcript.AgentRef {
	return &transcript.AgentRef{
		ID:     a.ID,
		Name:   a.Name,
		Avatar: a.Avatar,
		Role:   a.Role,
	}
}

// ListAgents returns the agent catalog. The endpoint is public, so no token
// is required.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var agents []Agent
	if err := c.doJSON(ctx, http.MethodGet, c.apiURL("/api/v1/admin/agents/"), nil, &agents, false); err != nil {
		return nil, err
	}
	return agents, nil
}
