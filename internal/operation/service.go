package operation

import (
	"context"
	"io"

	"github.com/driftless/driftless/internal/exec"
)

// ServiceOp applies one systemd unit action: reload, restart, start, stop,
// enable, or disable.
type ServiceOp struct {
	Name   string
	Action string
}

func ServiceAction(name, action string) Operation {
	return Operation{Kind: KindService, Service: &ServiceOp{Name: name, Action: action}}
}

func applyService(ctx context.Context, ex exec.Executor, op *ServiceOp, stdout, stderr io.Writer) (Result, error) {
	return runAndStream(ctx, ex, exec.RunParams{
		Command: "systemctl",
		Args:    []string{op.Action, op.Name},
	}, stdout, stderr)
}
