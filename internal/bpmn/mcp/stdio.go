package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
)

// StdioCaller invokes MCP tools over the stdio transport: newline-delimited
// JSON-RPC requests written to a child process's stdin, with matching
// responses read back from its stdout. No teacher file in the retrieval
// pack covers this transport (runtime/mcp only ships caller.go and
// ssecaller.go); this is authored from the MCP stdio-transport convention
// those two files already follow for request/response shape.
type StdioCaller struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu     sync.Mutex // serializes request/response round trips
	nextID int64
}

// StartStdioCaller launches command as a child process and wires its
// stdin/stdout as the MCP transport. The caller owns the process and must
// be Closed to release it.
func StartStdioCaller(ctx context.Context, command string, args ...string) (*StdioCaller, error) {
	cmd := exec.CommandContext(ctx, command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdio: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdio: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp: stdio: starting %s: %w", command, err)
	}

	return &StdioCaller{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout)}, nil
}

// Close terminates the child process and releases its pipes.
func (c *StdioCaller) Close() error {
	c.stdin.Close()
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	return c.cmd.Wait()
}

func (c *StdioCaller) CallTool(ctx context.Context, req CallRequest) (CallResponse, error) {
	id := int(atomic.AddInt64(&c.nextID, 1))
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "tools/call",
		Params:  toolCallParams{Name: req.Suite + "." + req.Tool, Arguments: req.Payload},
	})
	if err != nil {
		return CallResponse{}, fmt.Errorf("mcp: stdio: encoding request: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	done := make(chan struct{})
	var rpc rpcResponse
	var readErr error
	go func() {
		defer close(done)
		for {
			line, err := c.stdout.ReadBytes('\n')
			if len(line) == 0 && err != nil {
				readErr = fmt.Errorf("mcp: stdio: reading response: %w", err)
				return
			}
			var framed struct {
				ID int `json:"id"`
			}
			if jsonErr := json.Unmarshal(line, &framed); jsonErr != nil {
				continue
			}
			if framed.ID != id {
				continue
			}
			if jsonErr := json.Unmarshal(line, &rpc); jsonErr != nil {
				readErr = fmt.Errorf("mcp: stdio: decoding response: %w", jsonErr)
			}
			return
		}
	}()

	if _, err := c.stdin.Write(append(body, '\n')); err != nil {
		return CallResponse{}, fmt.Errorf("mcp: stdio: writing request: %w", err)
	}

	select {
	case <-ctx.Done():
		return CallResponse{}, ctx.Err()
	case <-done:
	}
	if readErr != nil {
		return CallResponse{}, readErr
	}
	if rpc.Error != nil {
		return CallResponse{}, rpc.Error
	}
	if rpc.Result == nil || len(rpc.Result.Content) == 0 {
		return CallResponse{}, nil
	}
	return CallResponse{Result: json.RawMessage(rpc.Result.Content[0].Text), ServerData: rpc.Result.ServerData}, nil
}
