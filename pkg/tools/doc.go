// Package tools exposes device operations as named tools.
//
// It is organized into sub-packages:
//   - [github.com/scottmckenzie/dlink-smart-plug/pkg/tools/toolbox]: Tool type and ToolBox registry for registering, listing, and calling tools
//   - [github.com/scottmckenzie/dlink-smart-plug/pkg/tools/mcpserver]: MCP server using the official MCP Go SDK for exposing a ToolBox over the MCP protocol
//
// The device tools themselves are built by [github.com/scottmckenzie/dlink-smart-plug/pkg/dlink.Tools].
package tools
