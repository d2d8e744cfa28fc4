package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

// ErrToolContract marks a failure of the tooling contract itself, as opposed
// to a tool returning an error result. Contract failures abort the stream.
var ErrToolContract = errors.New("tool contract violation")

// Dispatcher executes model tool calls against a registry. Every outcome
// short of a contract violation is reported to the model as a string, so the
// conversation can continue after a bad call.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	timeout  time.Duration
}

// defaultToolTimeout bounds one tool invocation; a hung tool must not stall
// the model stream indefinitely.
const defaultToolTimeout = 30 * time.Second

func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, logger: logger, timeout: defaultToolTimeout}
}

// WithTimeout overrides the per-invocation timeout.
func (d *Dispatcher) WithTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.timeout = timeout
	}
	return d
}

// Execute runs the named tool and returns the JSON result document to hand
// back to the model. The error is non-nil only for contract violations.
func (d *Dispatcher) Execute(ctx context.Context, name string, input string) (string, error) {
	raw := json.RawMessage(input)
	if !json.Valid(raw) {
		d.logger.Warn("tool input is not valid JSON", "tool", name)
		return "Input must be valid JSON: " + input, nil
	}

	tool, ok := d.registry.Lookup(name)
	if !ok {
		d.logger.Warn("tool not found", "tool", name)
		return "Cannot find tool " + name, nil
	}

	if err := tool.Validate(raw); err != nil {
		d.logger.Warn("tool input rejected", "tool", name, "error", err)
		return fmt.Sprintf("Input validation error: %v", err), nil
	}

	invokeCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	out, err := tool.Invoke(invokeCtx, raw)
	if err != nil {
		if errors.Is(err, ErrToolContract) {
			return "", err
		}
		d.logger.Warn("tool execution failed", "tool", name, "error", err)
		return fmt.Sprintf("Error executing tool %s: %v", name, err), nil
	}
	return resultDocument(out)
}

// resultDocument serializes a successful tool result: strings are wrapped as
// {"result": ...}, JSON objects pass through unchanged.
func resultDocument(out any) (string, error) {
	switch v := out.(type) {
	case nil:
		return `{"result":""}`, nil
	case string:
		doc, err := json.Marshal(map[string]string{"result": v})
		if err != nil {
			return "", errors.Wrap(ErrToolContract, err.Error())
		}
		return string(doc), nil
	case json.RawMessage:
		if !json.Valid(v) {
			return "", errors.Wrap(ErrToolContract, "tool returned invalid JSON")
		}
		return string(v), nil
	default:
		doc, err := json.Marshal(v)
		if err != nil {
			return "", errors.Wrap(ErrToolContract, err.Error())
		}
		return string(doc), nil
	}
}
