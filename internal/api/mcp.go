package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/qareview/internal/review"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Sessions *review.Registry
	Version  string
}

// NewMCPServer creates an MCP server exposing the review queue as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"qareview",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("qareview: walk a reviewer through the QA annotation queue and record judgements."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("current_item",
			mcp.WithDescription("Log the reviewer in if needed and return the item currently awaiting review."),
			mcp.WithString("reviewer", mcp.Description("Reviewer id"), mcp.Required()),
		),
		mcpCurrentItem(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_judgement",
			mcp.WithDescription("Submit the reviewer's judgement for the current item. Rejected judgements leave the item current."),
			mcp.WithString("reviewer", mcp.Description("Reviewer id"), mcp.Required()),
			mcp.WithBoolean("suitable", mcp.Description("False marks the question unsuitable and skips all other checks"), mcp.Required()),
			mcp.WithBoolean("question_natural", mcp.Description("The question reads naturally")),
			mcp.WithBoolean("answer_natural", mcp.Description("The answer reads naturally")),
			mcp.WithBoolean("answer_adequate", mcp.Description("The answer addresses the question")),
			mcp.WithBoolean("answer_precise", mcp.Description("The answer is exact; implies adequate")),
			mcp.WithString("user_question", mcp.Description("Question as the reviewer would phrase it")),
			mcp.WithString("user_answer", mcp.Description("Answer span copied from the context")),
			mcp.WithString("question_note", mcp.Description("Optional free-text note about the question")),
			mcp.WithString("answer_note", mcp.Description("Optional free-text note about the answer")),
		),
		mcpSubmitJudgement(deps),
	)

	s.AddTool(
		mcp.NewTool("reviewer_progress",
			mcp.WithDescription("Report a reviewer's position in the queue and counts of judged and unsuitable items."),
			mcp.WithString("reviewer", mcp.Description("Reviewer id"), mcp.Required()),
		),
		mcpReviewerProgress(deps),
	)

	return s
}

func mcpCurrentItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reviewer, err := req.RequireString("reviewer")
		if err != nil || strings.TrimSpace(reviewer) == "" {
			return mcpError("reviewer is required"), nil
		}

		st, err := deps.Sessions.Login(ctx, reviewer)
		if err != nil {
			return mcpError(fmt.Sprintf("login failed: %v", err)), nil
		}
		if st.Current == nil {
			return mcpText(fmt.Sprintf("Reviewer %s has no items left (%d of %d).", st.Reviewer, st.Position, st.Total)), nil
		}
		return mcpJSON(st.Current)
	}
}

func mcpSubmitJudgement(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reviewer, err := req.RequireString("reviewer")
		if err != nil {
			return mcpError("reviewer is required"), nil
		}
		suitable, err := req.RequireBool("suitable")
		if err != nil {
			return mcpError("suitable is required"), nil
		}

		sub := review.Submission{
			Suitable:        suitable,
			QuestionNatural: req.GetBool("question_natural", false),
			AnswerNatural:   req.GetBool("answer_natural", false),
			AnswerAdequate:  req.GetBool("answer_adequate", false),
			AnswerPrecise:   req.GetBool("answer_precise", false),
			UserQuestion:    req.GetString("user_question", ""),
			UserAnswer:      req.GetString("user_answer", ""),
			QuestionNote:    req.GetString("question_note", ""),
			AnswerNote:      req.GetString("answer_note", ""),
		}

		var res review.Result
		err = deps.Sessions.With(ctx, strings.TrimSpace(reviewer), func(s *review.Session) error {
			var err error
			res, err = s.Submit(ctx, sub)
			return err
		})
		if errors.Is(err, review.ErrQueueComplete) {
			return mcpError("the review queue is finished, nothing to judge"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("submit failed: %v", err)), nil
		}
		if !res.Accepted {
			lines := make([]string, 0, len(res.Violations)+1)
			lines = append(lines, "Judgement rejected:")
			for _, v := range res.Violations {
				lines = append(lines, fmt.Sprintf("- [%s] %s", v.Field, v.Message))
			}
			return mcpError(strings.Join(lines, "\n")), nil
		}
		return mcpJSON(res.Status)
	}
}

func mcpReviewerProgress(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reviewer, err := req.RequireString("reviewer")
		if err != nil {
			return mcpError("reviewer is required"), nil
		}

		var st review.Status
		err = deps.Sessions.With(ctx, strings.TrimSpace(reviewer), func(s *review.Session) error {
			st = s.Status()
			return nil
		})
		if err != nil {
			return mcpError(fmt.Sprintf("progress unavailable: %v", err)), nil
		}
		st.Current = nil
		return mcpJSON(st)
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
