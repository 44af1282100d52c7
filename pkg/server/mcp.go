package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mikeboe/research-loop/pkg/chat"
)

const mcpVersion = "1.0.0"

type StartResearchArgs struct {
	Query                 string `json:"query" jsonschema:"the research question"`
	Iterations            int    `json:"iterations,omitempty" jsonschema:"number of research iterations"`
	QuestionsPerIteration int    `json:"questions_per_iteration,omitempty" jsonschema:"number of search questions per iteration"`
	KnowledgeAccumulation string `json:"knowledge_accumulation,omitempty" jsonschema:"NONE, QUESTION or ITERATION"`
	Report                bool   `json:"report,omitempty" jsonschema:"also write a structured report"`
}

type GetResearchArgs struct {
	ID string `json:"id" jsonschema:"the research job id returned by start_research"`
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// NewMCPServer exposes research jobs and, when tools is set, the indexed
// findings over the Model Context Protocol.
func NewMCPServer(svc *Service, tools *chat.RagToolset) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "research-loop-mcp", Version: mcpVersion}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_research",
		Description: "Start an iterative web research job in the background and return its id.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args StartResearchArgs) (*mcp.CallToolResult, any, error) {
		job, err := svc.CreateJob(ctx, CreateJobRequest(args))
		if err != nil {
			return nil, nil, err
		}
		return textResult(fmt.Sprintf("Started research job %s (status: %s)", job.ID, job.Status)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_research",
		Description: "Get the status, formatted findings and report of a research job.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args GetResearchArgs) (*mcp.CallToolResult, any, error) {
		id, err := uuid.Parse(args.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid job id %q: %w", args.ID, err)
		}
		job, err := svc.GetJob(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		data, err := json.MarshalIndent(job, "", "  ")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal job: %w", err)
		}
		return textResult(string(data)), nil, nil
	})

	if tools != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "search_findings",
			Description: "Semantic search over the findings of past research runs.",
		}, func(ctx context.Context, _ *mcp.CallToolRequest, args chat.SearchFindingsArgs) (*mcp.CallToolResult, any, error) {
			resp, err := tools.SearchFindings(ctx, args)
			if err != nil {
				return nil, nil, err
			}
			return textResult(resp.Results), nil, nil
		})
	}

	return server
}

// NewMCPHandler serves server over streamable HTTP.
func NewMCPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}
