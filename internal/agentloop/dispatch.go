package agentloop

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/corelane/agentrun/internal/conversation"
	"github.com/corelane/agentrun/internal/extensions"
)

// dispatchOutcome is one tool request's resolved response plus any
// notifications it produced along the way.
type dispatchOutcome struct {
	response      conversation.ToolResponse
	notifications []extensions.DispatchResult
}

// dispatchApproved runs every approved request concurrently via errgroup
// (replacing a hand-rolled WaitGroup+channel), then returns responses in the
// same order as requests so appended ToolResponse messages preserve the
// order their ToolRequests were emitted in (§5/§8 ordering invariant).
func dispatchApproved(ctx context.Context, mgr *extensions.Manager, sessionID string, requests []conversation.ToolRequest, tools map[string]extensions.NamedTool, cancel <-chan struct{}) []conversation.ToolResponse {
	out := make([]conversation.ToolResponse, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			out[i] = dispatchOne(gctx, mgr, sessionID, req, tools, cancel)
			return nil
		})
	}
	_ = g.Wait() // dispatchOne never returns an error; failures are encoded in the response

	return out
}

func dispatchOne(ctx context.Context, mgr *extensions.Manager, sessionID string, req conversation.ToolRequest, tools map[string]extensions.NamedTool, cancel <-chan struct{}) conversation.ToolResponse {
	if req.ToolCall.Call == nil {
		return errorResponse(req.ID, "malformed tool call")
	}
	name := req.ToolCall.Call.Name

	args := req.ToolCall.Call.Arguments
	if tool, ok := tools[name]; ok {
		args = coerceArguments(args, tool)
	}

	result, err := mgr.DispatchToolCall(sessionID, name, args, cancel)
	if err != nil {
		return errorResponse(req.ID, err.Error())
	}

	return conversation.ToolResponse{
		ID: req.ID,
		ToolResult: conversation.ToolResultOutcome{
			Result: &conversation.ToolResult{
				ForLLM:  result.Result.ForLLM,
				IsError: result.Result.IsError,
				Async:   result.Result.Async,
			},
		},
	}
}

func errorResponse(requestID, msg string) conversation.ToolResponse {
	return conversation.ToolResponse{
		ID: requestID,
		ToolResult: conversation.ToolResultOutcome{
			Result: &conversation.ToolResult{ForLLM: msg, IsError: true},
		},
	}
}

// deniedResponse synthesizes the response for a request an inspector denied
// outright — dispatch never runs for it (§4.8 step 5).
func deniedResponse(requestID, reason string) conversation.ToolResponse {
	if reason == "" {
		reason = "denied by policy"
	}
	return errorResponse(requestID, reason)
}

// cancelledResponse synthesizes the response for a request left unresolved
// when the turn is cancelled mid-flight (§4.8 step 9).
func cancelledResponse(requestID string) conversation.ToolResponse {
	return errorResponse(requestID, "cancelled")
}
