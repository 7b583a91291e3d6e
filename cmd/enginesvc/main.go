// Command enginesvc runs the BPMN execution engine's HTTP API (spec §6):
// workflow submission, status, cancellation, the server-sent-events
// observer stream, and the email-approval webhooks.
//
// # Configuration
//
// Environment variables (see internal/bpmn/config for the full table):
//
//	HTTP_ADDR                 - HTTP listen address (default: ":8080")
//	PUBLIC_BASE_URL           - base URL used for inlined approval links
//	DEADLOCK_TIMEOUT_MS       - parallel/inclusive join deadlock timeout
//	CORRELATION_BUFFER_TTL_S  - correlation message buffering grace window
//	OBSERVER_QUEUE_SIZE       - per-observer outbound event channel size
//	MAX_RETRIES_DEFAULT       - default agentic task retry budget
//	CONFIDENCE_DEFAULT        - default agentic task acceptance threshold
//	MONGO_URI                 - optional; selects Mongo for run/event persistence
//	                            (an in-memory store is used when unset)
//	MONGO_DATABASE            - database name when MONGO_URI is set (default: "bpmnkit")
//	PULSE_REDIS_ADDR          - optional; enables durable event mirroring
//	ANTHROPIC_API_KEY         - optional; registers the Anthropic AI client
//	ANTHROPIC_MODEL           - default model for the Anthropic client
//	OPENAI_API_KEY            - optional; registers the OpenAI AI client
//	OPENAI_MODEL              - default model for the OpenAI client
//	MCP_BASE_URL              - optional; enables agentic tool calls over HTTP/SSE
//	MCP_TRANSPORT             - "http" (default) or "sse", when MCP_BASE_URL is set
//	MCP_STDIO_COMMAND         - optional; launches a child process as the MCP transport
//	                            instead of MCP_BASE_URL (e.g. "mcp-server --flag")
//	MCP_RETRY_MAX             - MCP tool-call retry budget (default: 2, 0 disables)
//	AI_RATE_LIMIT_TPM         - optional; wraps every registered AI client in
//	                            an adaptive tokens-per-minute limiter
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	stdlog "log"

	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	clue "goa.design/clue/log"

	"github.com/bpmnkit/engine/internal/bpmn/aiclient"
	"github.com/bpmnkit/engine/internal/bpmn/config"
	"github.com/bpmnkit/engine/internal/bpmn/correlation"
	"github.com/bpmnkit/engine/internal/bpmn/engine"
	"github.com/bpmnkit/engine/internal/bpmn/httpapi"
	"github.com/bpmnkit/engine/internal/bpmn/mcp"
	"github.com/bpmnkit/engine/internal/bpmn/persist"
	"github.com/bpmnkit/engine/internal/bpmn/stream"
	"github.com/bpmnkit/engine/internal/bpmn/telemetry"
)

func main() {
	if err := run(); err != nil {
		stdlog.Fatal(err)
	}
}

func run() error {
	format := clue.FormatJSON
	if clue.IsTerminal() {
		format = clue.FormatTerminal
	}
	ctx := clue.Context(context.Background(), clue.WithFormat(format))

	cfg := config.Load()
	logger := telemetry.NewClueLogger()

	store, closeStore, err := buildStore(ctx)
	if err != nil {
		return fmt.Errorf("configure persistence: %w", err)
	}
	defer closeStore()

	sink, closeSink, err := buildStream(ctx, cfg)
	if err != nil {
		return fmt.Errorf("configure event mirror: %w", err)
	}
	defer closeSink()

	ai := buildAIRegistry()
	caller := buildMCPCaller()
	bus := correlation.New(cfg.CorrelationBufferTTL)

	eng := engine.New(engine.Options{
		Config:      cfg,
		Correlation: bus,
		AI:          ai,
		MCP:         caller,
		Logger:      logger,
		Metrics:     telemetry.NewClueMetrics(),
		Store:       store,
		Stream:      sink,
	})

	srv := httpapi.New(eng, logger)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	clue.Printf(ctx, "starting enginesvc on %s", cfg.HTTPAddr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// buildStore wires the optional persistence layer (internal/bpmn/persist):
// Mongo-backed when MONGO_URI is set, otherwise an in-memory store so runs
// started against a deployment with no external database still get a
// queryable run/event index.
func buildStore(ctx context.Context) (persist.Store, func(), error) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		return persist.NewMemoryStore(), func() {}, nil
	}

	client, err := mongodriver.Connect(mongooptions.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}

	store, err := persist.NewMongoStore(ctx, persist.MongoOptions{
		Client:   client,
		Database: envOr("MONGO_DATABASE", "bpmnkit"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create mongo store: %w", err)
	}

	closeFn := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(closeCtx); err != nil {
			stdlog.Printf("disconnect mongo: %v", err)
		}
	}
	return store, closeFn, nil
}

// buildStream wires the optional Pulse/Redis event mirror
// (internal/bpmn/stream), active only when PULSE_REDIS_ADDR is set.
func buildStream(ctx context.Context, cfg *config.Config) (*stream.Sink, func(), error) {
	if cfg.PulseRedisAddr == "" {
		return nil, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.PulseRedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}

	client, err := stream.NewClient(stream.ClientOptions{
		Redis:            rdb,
		StreamMaxLen:     envIntOr("PULSE_STREAM_MAXLEN", 10000),
		OperationTimeout: envDurationOr("PULSE_OP_TIMEOUT", 5*time.Second),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create pulse client: %w", err)
	}

	sink, err := stream.NewSink(stream.SinkOptions{Client: client})
	if err != nil {
		return nil, nil, fmt.Errorf("create event sink: %w", err)
	}

	closeFn := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			stdlog.Printf("close pulse client: %v", err)
		}
		if err := rdb.Close(); err != nil {
			stdlog.Printf("close redis: %v", err)
		}
	}
	return sink, closeFn, nil
}

// buildAIRegistry registers the Anthropic and OpenAI clients named in spec
// §4.5.1 when their respective API keys are configured. A deployment that
// sets neither simply never exercises agenticTask elements. When
// AI_RATE_LIMIT_TPM is set, every registered client is wrapped in an
// adaptive tokens-per-minute limiter (internal/bpmn/aiclient.RateLimitedClient).
func buildAIRegistry() *aiclient.Registry {
	reg := aiclient.NewRegistry()
	registered := false

	limitTPM := 0.0
	if v := os.Getenv("AI_RATE_LIMIT_TPM"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			limitTPM = f
		}
	}
	wrap := func(c aiclient.Client) aiclient.Client {
		if limitTPM <= 0 {
			return c
		}
		return aiclient.NewRateLimitedClient(c, limitTPM, limitTPM)
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		client, err := aiclient.NewAnthropicClient(key, envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5"), 4096)
		if err != nil {
			stdlog.Printf("configure anthropic client: %v", err)
		} else {
			reg.Register("anthropic", wrap(client))
			registered = true
		}
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		client := aiclient.NewOpenAIClient(key, envOr("OPENAI_MODEL", "gpt-4o"))
		reg.Register("openai", wrap(client))
		registered = true
	}

	if !registered {
		return nil
	}
	return reg
}

// buildMCPCaller wires the MCP tool caller (spec §4.5.1) when either
// MCP_BASE_URL or MCP_STDIO_COMMAND is configured. MCP_TRANSPORT selects
// between the HTTP JSON-RPC and HTTP+SSE transports (default "http");
// setting MCP_STDIO_COMMAND instead launches a child process and talks
// JSON-RPC over its stdin/stdout. Every transport is wrapped in a retry
// caller unless MCP_RETRY_MAX is set to 0.
func buildMCPCaller() mcp.Caller {
	var caller mcp.Caller

	if cmd := os.Getenv("MCP_STDIO_COMMAND"); cmd != "" {
		args := strings.Fields(cmd)
		stdio, err := mcp.StartStdioCaller(context.Background(), args[0], args[1:]...)
		if err != nil {
			stdlog.Printf("configure mcp stdio caller: %v", err)
			return nil
		}
		caller = stdio
	} else if baseURL := os.Getenv("MCP_BASE_URL"); baseURL != "" {
		if os.Getenv("MCP_TRANSPORT") == "sse" {
			caller = mcp.NewSSECaller(baseURL)
		} else {
			caller = mcp.NewHTTPCaller(baseURL)
		}
	} else {
		return nil
	}

	maxRetries := envIntOr("MCP_RETRY_MAX", 2)
	if maxRetries <= 0 {
		return caller
	}
	return mcp.NewRetryCaller(caller, maxRetries, envDurationOr("MCP_RETRY_BASE", 200*time.Millisecond), envDurationOr("MCP_RETRY_MAX_DELAY", 5*time.Second))
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOr(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envDurationOr(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
