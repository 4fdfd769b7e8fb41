package extpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCapabilityEnforcer_GatesNetOutbound(t *testing.T) {
	enforcer := newCapabilityEnforcer(&Manifest{}, t.TempDir())

	if _, err := enforcer.httpRequest(context.Background(), "GET", "http://example.invalid", nil); err == nil {
		t.Fatal("expected error when net:outbound is not granted")
	}
}

func TestCapabilityEnforcer_GatesFSTemp(t *testing.T) {
	enforcer := newCapabilityEnforcer(&Manifest{}, t.TempDir())

	if err := enforcer.writeTempFile("out.txt", []byte("data")); err == nil {
		t.Fatal("expected error when fs:temp is not granted")
	}
	if _, err := enforcer.readTempFile("out.txt"); err == nil {
		t.Fatal("expected error when fs:temp is not granted")
	}
}

func TestCapabilityEnforcer_FSTempRoundTrip(t *testing.T) {
	dir := t.TempDir()
	enforcer := newCapabilityEnforcer(&Manifest{Capabilities: []string{CapabilityFSTemp}}, dir)

	if err := enforcer.writeTempFile("out.txt", []byte("hello")); err != nil {
		t.Fatalf("writeTempFile: %v", err)
	}

	got, err := enforcer.readTempFile("out.txt")
	if err != nil {
		t.Fatalf("readTempFile: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("readTempFile = %q, want %q", got, "hello")
	}
}

func TestCapabilityEnforcer_FSTempRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	enforcer := newCapabilityEnforcer(&Manifest{Capabilities: []string{CapabilityFSTemp}}, dir)

	if err := enforcer.writeTempFile("../../etc/passwd", []byte("malicious")); err != nil {
		t.Fatalf("writeTempFile: %v", err)
	}

	if _, err := os.Stat(filepath.Join(outside, "passwd")); err == nil {
		t.Error("write escaped the temp directory")
	}
	if _, err := os.Stat(filepath.Join(dir, "passwd")); err != nil {
		t.Error("expected write to land inside the temp directory via filepath.Base")
	}
}
