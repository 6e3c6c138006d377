package debate_client

import (
	"strings"

	"github.com/mcdev12/debatelive/go/clients"
)

type DebateClient struct {
	*clients.BaseClient
	prefix string
}

// NewDebateClient creates a client for the debate backend. An empty prefix
// selects DefaultPrefix.
func NewDebateClient(baseURL, prefix string) *DebateClient {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &DebateClient{
		BaseClient: clients.NewBaseClient(baseURL),
		prefix:     "/" + strings.Trim(prefix, "/"),
	}
}

// HubURL returns the absolute hub endpoint for the given path
func (c *DebateClient) HubURL(hubPath string) string {
	if hubPath == "" {
		hubPath = DefaultHubPath
	}
	return c.BaseURL() + "/" + strings.TrimLeft(hubPath, "/")
}

func (c *DebateClient) path(endpoint string) string {
	return c.prefix + endpoint
}
