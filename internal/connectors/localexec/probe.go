package localexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fentz26/wfsandbox/internal/apperr"
	"github.com/fentz26/wfsandbox/internal/connectors"
	"github.com/fentz26/wfsandbox/internal/models"
	"github.com/fentz26/wfsandbox/internal/sandbox"
	"github.com/fentz26/wfsandbox/internal/script"
)

// ContextScriptName is the probe file name under .control.
const ContextScriptName = "context.sh"

// LocalProbe prints a JSON object describing the local host.
const LocalProbe = `printf '{"hostname":"%s","user":"%s","pwd":"%s","kernel":"%s","shell":"%s"}\n' ` +
	`"$(hostname 2>/dev/null)" "$(id -un 2>/dev/null)" "$(pwd)" "$(uname -s 2>/dev/null)" "$BASH_VERSION"`

// Prober runs a probe body through an executor and parses its JSON output.
type Prober struct {
	// ScriptName is the probe file name under .control.
	ScriptName string

	// Timeout bounds one probe run. Zero means none.
	Timeout time.Duration

	exec    connectors.Executor
	builder *script.Builder
	body    string
}

var _ connectors.Prober = (*Prober)(nil)

// DefaultProbeTimeout bounds a probe when no walltime is configured.
const DefaultProbeTimeout = 30 * time.Second

// NewProber creates a prober that runs body as the "how am I running" script.
func NewProber(exec connectors.Executor, builder *script.Builder, body string) *Prober {
	if body == "" {
		body = LocalProbe
	}
	return &Prober{ScriptName: ContextScriptName, Timeout: DefaultProbeTimeout, exec: exec, builder: builder, body: body}
}

// Probe writes and runs .control/context.sh and returns the reported facts.
func (p *Prober) Probe(ctx context.Context, task *models.Task) (map[string]string, error) {
	text := p.builder.Context(sandbox.ControlDir(task), p.body).Render()

	var out bytes.Buffer
	res, err := p.exec.Execute(ctx, task, text, connectors.ExecOptions{
		ScriptName: p.ScriptName,
		Capture:    &out,
		Timeout:    p.Timeout,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ContextProbeFailure, task.Name, "run context script", err)
	}
	if res.ExitCode != 0 {
		return nil, &apperr.Error{
			Kind:     apperr.ContextProbeFailure,
			Task:     task.Name,
			Msg:      fmt.Sprintf("context script exited %d: %s", res.ExitCode, bytes.TrimSpace(out.Bytes())),
			ExitCode: res.ExitCode,
		}
	}
	return parseInfo(task.Name, out.Bytes())
}

func parseInfo(task string, data []byte) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &raw); err != nil {
		return nil, apperr.Wrap(apperr.ContextProbeFailure, task, "parse context output", err)
	}
	info := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			info[k] = val
		case nil:
			info[k] = ""
		default:
			b, _ := json.Marshal(val)
			info[k] = string(b)
		}
	}
	return info, nil
}

// NoopProber reports no facts and runs nothing.
type NoopProber struct{}

func (NoopProber) Probe(ctx context.Context, task *models.Task) (map[string]string, error) {
	return map[string]string{}, nil
}
