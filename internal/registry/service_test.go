package registry

import (
	"context"
	"testing"

	"github.com/driftless/driftless/internal/exec"
	"github.com/driftless/driftless/internal/paramschema"
)

func TestService_ExpandSplitsRunningAndEnabled(t *testing.T) {
	node, err := Service{}.Expand(structValue(map[string]paramschema.Value{
		"name":    strValue("nginx"),
		"running": boolValue(true),
		"enabled": boolValue(true),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(node.Children) != 2 {
		t.Fatalf("expected running+enabled sibling leaves, got %d", len(node.Children))
	}
	if node.Children[0].Leaf.Service.Running == nil || node.Children[1].Leaf.Service.Enabled == nil {
		t.Errorf("expected first leaf to carry Running and second Enabled, got %+v / %+v",
			node.Children[0].Leaf.Service, node.Children[1].Leaf.Service)
	}
}

func TestService_ProbeReadsSystemctl(t *testing.T) {
	ex := newScriptedExecutor()
	ex.on("systemctl", []string{"is-active", "nginx"}, exec.RunResult{Stdout: "active\n"})
	ex.on("systemctl", []string{"is-enabled", "nginx"}, exec.RunResult{Stdout: "disabled\n"})

	state, err := Service{}.Probe(context.Background(), ex, Resource{Kind: KindService, Service: &ServiceResource{Name: "nginx"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !state.Service.Running || state.Service.Enabled {
		t.Errorf("expected running=true enabled=false, got %+v", state.Service)
	}
}

func TestService_DiffStartsStoppedService(t *testing.T) {
	running := true
	resource := Resource{Kind: KindService, Service: &ServiceResource{Name: "nginx", Running: &running}}
	change := Service{}.Diff(resource, State{Kind: KindService, Service: &ServiceState{Running: false}})
	if !change.HasChange || change.Service.ChangeKind != ServiceChangeStart {
		t.Errorf("expected a start change, got %+v", change)
	}

	node := Service{}.Lower(change)
	if node.Leaf.Service == nil || node.Leaf.Service.Action != "start" {
		t.Errorf("expected a systemctl start operation, got %+v", node.Leaf)
	}
}
