package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"datanerd/internal/logging"
	"datanerd/internal/types"
)

// Caller wraps an LLMClient with a per-call deadline and a single retry on
// transient failure. Every failure it returns is a *types.GenerationError.
type Caller struct {
	client  types.LLMClient
	timeout time.Duration
	backoff time.Duration
}

// WithRetry wraps client. A nil client yields a disabled Caller.
func WithRetry(client types.LLMClient, timeout time.Duration) *Caller {
	return &Caller{client: client, timeout: timeout, backoff: time.Second}
}

// WithBackoff sets the pause before the retry.
func (c *Caller) WithBackoff(d time.Duration) *Caller {
	c.backoff = d
	return c
}

// Enabled reports whether an LLM is configured.
func (c *Caller) Enabled() bool {
	return c != nil && c.client != nil
}

// Call asks the LLM on behalf of node.
func (c *Caller) Call(ctx context.Context, node, systemPrompt, userPrompt string) (string, error) {
	if !c.Enabled() {
		return "", &types.GenerationError{Node: node, Err: errors.New("no LLM configured")}
	}

	var lastErr error
	attempts := 0
	for attempts < 2 {
		attempts++
		out, err := c.once(ctx, systemPrompt, userPrompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil || !isTransient(err) {
			break
		}
		if attempts < 2 {
			logging.Get(logging.CategoryAPI).Warn("%s: transient LLM failure, retrying once: %v", node, err)
			select {
			case <-ctx.Done():
				return "", &types.GenerationError{Node: node, Attempts: attempts, Err: ctx.Err()}
			case <-time.After(c.backoff):
			}
		}
	}
	logging.Get(logging.CategoryAPI).Warn("%s: LLM failed after %d attempt(s): %v", node, attempts, lastErr)
	return "", &types.GenerationError{Node: node, Attempts: attempts, Err: lastErr}
}

func (c *Caller) once(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	out, err := c.client.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &TransientError{Provider: "llm", Err: fmt.Errorf("call timed out: %w", err)}
		}
		return "", err
	}
	if out == "" {
		return "", errors.New("empty completion")
	}
	return out, nil
}

func isTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
