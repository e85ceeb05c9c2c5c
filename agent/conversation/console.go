package conversation

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// Console 行式 REPL：读一行输入，跑一轮对话，打印回复。
type Console struct {
	orch       *Orchestrator
	in         io.Reader
	out        io.Writer
	capability Capability
	logger     *zap.Logger
}

// NewConsole 创建控制台，capability 为首轮使用的能力状态
func NewConsole(orch *Orchestrator, in io.Reader, out io.Writer, capability Capability, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{
		orch:       orch,
		in:         in,
		out:        out,
		capability: capability,
		logger:     logger.With(zap.String("component", "console")),
	}
}

// Capability 返回当前能力状态
func (c *Console) Capability() Capability { return c.capability }

// IsExitCommand 去除首尾空白后不区分大小写地等于 exit
func IsExitCommand(line string) bool {
	return strings.EqualFold(strings.TrimSpace(line), "exit")
}

// Run 运行 REPL，直到输入 exit、EOF 或 ctx 取消。单轮失败只打印一行诊断。
func (c *Console) Run(ctx context.Context) error {
	defer c.orch.Close()

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprintln(c.out, "AI chat. Type 'exit' to quit.")
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(c.out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("read input: %w", err)
			}
			c.logger.Debug("input closed, ending session")
			return nil
		}

		line := scanner.Text()
		if IsExitCommand(line) {
			return nil
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		c.turn(ctx, line)
	}
}

func (c *Console) turn(ctx context.Context, line string) {
	streamed := false
	sink := func(delta string) {
		if !streamed {
			fmt.Fprint(c.out, "AI: ")
			streamed = true
		}
		fmt.Fprint(c.out, delta)
	}

	result, next := c.orch.RunTurn(ctx, c.capability, line, sink)
	if c.capability.FunctionCalling && !next.FunctionCalling {
		c.logger.Info("function calling disabled for this session")
	}
	c.capability = next

	if streamed {
		fmt.Fprintln(c.out)
	}
	switch {
	case result.Err != nil:
		fmt.Fprintf(c.out, "error: %v\n", result.Err)
	case result.NoResponse:
		fmt.Fprintln(c.out, "AI did not return a response.")
	case !streamed:
		fmt.Fprintf(c.out, "AI: %s\n", result.Content)
	}
}
