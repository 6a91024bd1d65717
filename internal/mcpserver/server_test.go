package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
	"docqa/internal/service"
)

type fakeBackend struct {
	lastDoc  string
	lastTopK int
}

func (f *fakeBackend) Ask(_ context.Context, question, docID string, _ []domain.Turn) (domain.Answer, error) {
	f.lastDoc = docID
	return domain.Answer{Answer: "echo: " + question, Confidence: 0.85}, nil
}

func (f *fakeBackend) Search(_ context.Context, _, docID string, topK int) ([]service.SearchHit, error) {
	if docID == "missing" {
		return nil, domain.ErrNotFound
	}
	f.lastTopK = topK
	return []service.SearchHit{
		{RetrievalHit: domain.RetrievalHit{ChunkIndex: 0, Text: "one", Score: 0.9, Rank: 1}, RelevanceCategory: "high"},
		{RetrievalHit: domain.RetrievalHit{ChunkIndex: 1, Text: "two", Score: 0.4, Rank: 2}, RelevanceCategory: "low"},
	}, nil
}

func (f *fakeBackend) ListDocuments(context.Context) ([]service.DocumentInfo, error) {
	return []service.DocumentInfo{{ID: "d1", Filename: "a.txt", Chunks: 2}}, nil
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestAskTool(t *testing.T) {
	b := &fakeBackend{}
	tl := newTools(b, nil)
	res, err := tl.ask(context.Background(), call(map[string]any{"question": "hi?", "document_id": "d1"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	var ans domain.Answer
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &ans))
	assert.Equal(t, "echo: hi?", ans.Answer)
	assert.Equal(t, "d1", b.lastDoc)

	res, err = tl.ask(context.Background(), call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestSearchTool(t *testing.T) {
	b := &fakeBackend{}
	tl := newTools(b, nil)
	res, err := tl.search(context.Background(), call(map[string]any{"query": "q", "document_id": "d1", "top_k": 2}))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(text(t, res)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"relevance_category":"high"`)
	assert.Equal(t, 2, b.lastTopK)

	res, err = tl.search(context.Background(), call(map[string]any{"query": "q", "document_id": "missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestListTool(t *testing.T) {
	tl := newTools(&fakeBackend{}, nil)
	res, err := tl.list(context.Background(), call(nil))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), `"id":"d1"`)
}

func TestNewServer(t *testing.T) {
	assert.NotNil(t, NewServer(&fakeBackend{}, nil))
}
