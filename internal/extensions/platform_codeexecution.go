package extensions

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/corelane/agentrun/internal/mcpclient"
)

// CodeExecutionExtension is the sandboxed JS runner platform extension
// (§4.5). Each call gets a fresh goja VM with a wall-clock interrupt so a
// runaway script cannot hang the agent loop.
type CodeExecutionExtension struct {
	timeout time.Duration
}

// NewCodeExecutionExtension builds the code_execution platform client.
func NewCodeExecutionExtension() (*mcpclient.PlatformClient, *CodeExecutionExtension) {
	ext := &CodeExecutionExtension{timeout: 5 * time.Second}

	tools := []mcpclient.Tool{
		{
			Name:        "execute_js",
			Description: "Execute a short JavaScript snippet in a sandboxed interpreter and return the console output plus the final expression's value.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"code": map[string]any{"type": "string"}},
				"required":   []string{"code"},
			},
			Annotations: mcpclient.ToolAnnotations{},
		},
	}

	handlers := map[string]mcpclient.PlatformHandler{
		"execute_js": ext.handleExecute,
	}

	client, err := mcpclient.NewPlatformClient("code_execution", tools, handlers)
	if err != nil {
		panic(err)
	}
	return client, ext
}

func (e *CodeExecutionExtension) handleExecute(ctx context.Context, args map[string]any, meta mcpclient.Meta) (mcpclient.CallResult, error) {
	code, _ := args["code"].(string)
	if code == "" {
		return mcpclient.CallResult{ForLLM: "no code provided", IsError: true}, nil
	}

	vm := goja.New()
	var logs []string
	console := vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		for _, a := range call.Arguments {
			logs = append(logs, a.String())
		}
		return goja.Undefined()
	}
	console.Set("log", logFn)
	console.Set("error", logFn)
	vm.Set("console", console)

	done := make(chan struct{})
	timer := time.AfterFunc(e.timeout, func() {
		vm.Interrupt("execution timed out")
	})
	defer timer.Stop()

	var (
		result goja.Value
		runErr error
	)
	go func() {
		defer close(done)
		result, runErr = vm.RunString(code)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		vm.Interrupt("cancelled")
		<-done
	}

	if runErr != nil {
		return mcpclient.CallResult{ForLLM: fmt.Sprintf("error: %v\noutput:\n%s", runErr, joinLines(logs)), IsError: true}, nil
	}

	out := joinLines(logs)
	if result != nil && !goja.IsUndefined(result) && !goja.IsNull(result) {
		if out != "" {
			out += "\n"
		}
		out += "=> " + result.String()
	}
	return mcpclient.CallResult{ForLLM: out}, nil
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
