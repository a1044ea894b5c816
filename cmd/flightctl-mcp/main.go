// Command flightctl-mcp serves Flight Control device management as MCP tools.
//
// The version is stamped at build time:
//
//	go build -ldflags "-X github.com/tansive/flightctl-mcp/internal/mcpserver.Version=v0.1.0" ./cmd/flightctl-mcp
package main

import "github.com/tansive/flightctl-mcp/internal/cli"

func main() {
	cli.Execute()
}
