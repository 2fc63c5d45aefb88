package server

import (
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}

func TestToolFailed(t *testing.T) {
	assert.True(t, toolFailed(&mcp.CallToolResult{IsError: true}))
	assert.False(t, toolFailed(&mcp.CallToolResult{}))
	assert.False(t, toolFailed(&mcp.ListToolsResult{}))
	assert.False(t, toolFailed(nil))
}
