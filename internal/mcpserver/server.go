// Package mcpserver exposes document Q&A as Model Context Protocol tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"docqa/internal/domain"
	"docqa/internal/service"
)

const version = "0.1.0"

// Backend is the subset of the service the tools call.
type Backend interface {
	Ask(ctx context.Context, question, docID string, history []domain.Turn) (domain.Answer, error)
	Search(ctx context.Context, query, docID string, topK int) ([]service.SearchHit, error)
	ListDocuments(ctx context.Context) ([]service.DocumentInfo, error)
}

type tools struct {
	backend Backend
	log     *slog.Logger
}

func newTools(backend Backend, log *slog.Logger) *tools {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &tools{backend: backend, log: log}
}

func NewServer(backend Backend, log *slog.Logger) *server.MCPServer {
	t := newTools(backend, log)

	srv := server.NewMCPServer("docqa", version, server.WithToolCapabilities(false))
	srv.AddTool(mcp.NewTool("ask_document",
		mcp.WithDescription("Answer a question from an uploaded document, with justification, source snippets and confidence"),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question to answer")),
		mcp.WithString("document_id", mcp.Description("Document to answer from; omit for general chat")),
	), t.ask)
	srv.AddTool(mcp.NewTool("search_document",
		mcp.WithDescription("Return the passages of a document most relevant to a query"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Document to search")),
		mcp.WithNumber("top_k", mcp.Description("Number of passages to return")),
	), t.search)
	srv.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List uploaded documents and their ids"),
	), t.list)
	return srv
}

func (t *tools) ask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ans, err := t.backend.Ask(ctx, q, request.GetString("document_id", ""), nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(ans)
}

func (t *tools) search(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	docID, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := t.backend.Search(ctx, q, docID, request.GetInt("top_k", service.DefaultSearchTopK))
	if err != nil {
		t.log.Debug("search tool failed", "doc_id", docID, "err", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	// one JSON object per line
	var response strings.Builder
	for _, h := range hits {
		raw, err := json.Marshal(h)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		response.Write(raw)
		response.WriteByte('\n')
	}
	return mcp.NewToolResultText(response.String()), nil
}

func (t *tools) list(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := t.backend.ListDocuments(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(docs)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}

// ServeSSE serves the tools over server-sent events until ctx is done.
func ServeSSE(ctx context.Context, srv *server.MCPServer, addr string) error {
	sse := server.NewSSEServer(srv, server.WithBaseURL(fmt.Sprintf("http://%s", addr)))
	errc := make(chan error, 1)
	go func() { errc <- sse.Start(addr) }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return sse.Shutdown(context.Background())
	}
}

// ServeStdio serves the tools over stdin and stdout.
func ServeStdio(srv *server.MCPServer) error {
	return server.ServeStdio(srv)
}
