package mcpclient

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mcpclientsdk "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

const (
	healthCheckInterval  = 30 * time.Second
	initialBackoff       = 2 * time.Second
	maxBackoff           = 60 * time.Second
	maxReconnectAttempts = 10
)

// TransportConfig describes how to reach one MCP server (§4.4 transport
// variants); exactly the fields relevant to the selected Kind are read.
type TransportConfig struct {
	Kind    string // "stdio" | "sse" | "streamable-http"
	Command string
	Args    []string
	Env     Envs
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// wireClient wraps a mark3labs/mcp-go client.Client, implementing Client and
// adding a health-check loop carried over from the teacher's MCP manager: a
// ping every 30s; after a failed ping it waits a backoff (2s doubling, capped
// at 60s) and pings again, at most 10 times until a ping succeeds. The
// transport is never re-dialed; the loop only updates Connected().
type wireClient struct {
	name      string
	transport string
	sdk       *mcpclientsdk.Client
	timeout   time.Duration
	connected atomic.Bool
	info      *InitializeResult

	reconnAttempts int
	cancel         context.CancelFunc
}

// Dial opens and initializes a client for cfg, performing the MCP handshake
// and starting the background health loop. The returned Client is ready for
// ListTools/CallTool.
func Dial(ctx context.Context, name string, cfg TransportConfig) (Client, error) {
	if err := cfg.Env.Validate(); err != nil {
		return nil, fmt.Errorf("mcpclient: %s: %w", name, err)
	}

	sdk, err := createSDKClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: %s: create client: %w", name, err)
	}

	if cfg.Kind != "stdio" {
		if err := sdk.Start(ctx); err != nil {
			sdk.Close()
			return nil, fmt.Errorf("mcpclient: %s: start transport: %w", name, err)
		}
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "agentrun", Version: "1.0.0"}

	initResult, err := sdk.Initialize(ctx, initReq)
	if err != nil {
		sdk.Close()
		return nil, fmt.Errorf("mcpclient: %s: initialize: %w", name, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}

	wc := &wireClient{name: name, transport: cfg.Kind, sdk: sdk, timeout: timeout}
	wc.connected.Store(true)
	wc.info = &InitializeResult{
		ServerName:    initResult.ServerInfo.Name,
		ServerVersion: initResult.ServerInfo.Version,
		Instructions:  initResult.Instructions,
	}

	hctx, cancel := context.WithCancel(context.Background())
	wc.cancel = cancel
	go wc.healthLoop(hctx)

	return wc, nil
}

func createSDKClient(cfg TransportConfig) (*mcpclientsdk.Client, error) {
	switch cfg.Kind {
	case "stdio":
		return mcpclientsdk.NewStdioMCPClient(cfg.Command, cfg.Env.ToSlice(), cfg.Args...)
	case "sse":
		var opts []transport.ClientOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, mcpclientsdk.WithHeaders(cfg.Headers))
		}
		return mcpclientsdk.NewSSEMCPClient(cfg.URL, opts...)
	case "streamable-http":
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		return mcpclientsdk.NewStreamableHttpClient(cfg.URL, opts...)
	default:
		return nil, fmt.Errorf("unsupported transport: %q", cfg.Kind)
	}
}

func (w *wireClient) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.checkHealth(ctx)
		}
	}
}

func (w *wireClient) checkHealth(ctx context.Context) {
	err := w.sdk.Ping(ctx)
	if err == nil {
		w.connected.Store(true)
		w.reconnAttempts = 0
		return
	}
	if strings.Contains(strings.ToLower(err.Error()), "method not found") {
		// Not every server implements ping; treat as healthy.
		w.connected.Store(true)
		w.reconnAttempts = 0
		return
	}
	w.connected.Store(false)
	slog.Warn("mcpclient.health_failed", "server", w.name, "error", err)
	w.tryReconnect(ctx)
}

func (w *wireClient) tryReconnect(ctx context.Context) {
	if w.reconnAttempts >= maxReconnectAttempts {
		slog.Error("mcpclient.reconnect_exhausted", "server", w.name)
		return
	}
	w.reconnAttempts++
	attempt := w.reconnAttempts

	backoff := initialBackoff * time.Duration(1<<(attempt-1))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	slog.Info("mcpclient.reconnecting", "server", w.name, "attempt", attempt, "backoff", backoff)

	select {
	case <-ctx.Done():
		return
	case <-time.After(backoff):
	}

	if err := w.sdk.Ping(ctx); err == nil {
		w.connected.Store(true)
		w.reconnAttempts = 0
		slog.Info("mcpclient.reconnected", "server", w.name)
	}
}

func (w *wireClient) Connected() bool { return w.connected.Load() }

func (w *wireClient) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	return w.sdk.Close()
}

func (w *wireClient) GetInfo() *InitializeResult { return w.info }
