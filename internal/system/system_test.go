package system

import "testing"

func TestSystem_AsMapShape(t *testing.T) {
	s := System{Arch: "amd64", OS: "linux", User: User{Name: "alice", Home: "/home/alice"}, Hostname: "box"}
	m := s.AsMap()

	if m["arch"] != "amd64" || m["os"] != "linux" || m["hostname"] != "box" {
		t.Errorf("unexpected top-level fields: %+v", m)
	}
	userMap, ok := m["user"].(map[string]any)
	if !ok {
		t.Fatalf("expected user to be a map, got %T", m["user"])
	}
	if userMap["name"] != "alice" || userMap["home"] != "/home/alice" {
		t.Errorf("unexpected user fields: %+v", userMap)
	}
}
