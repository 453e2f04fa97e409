package ipc

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteDescriptorRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "daemon.json")
	want := Descriptor{
		PID:       4242,
		Network:   NetworkTCP,
		Address:   "127.0.0.1:50123",
		Token:     "t-1",
		StartedAt: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC),
		Version:   "dev",
	}

	if err := WriteDescriptor(path, want); err != nil {
		t.Fatalf("WriteDescriptor() error = %v", err)
	}
	got, err := ReadDescriptor(path)
	if err != nil {
		t.Fatalf("ReadDescriptor() error = %v", err)
	}
	if got != want {
		t.Fatalf("ReadDescriptor() = %+v, want %+v", got, want)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat descriptor: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("descriptor mode = %o, want 600", perm)
	}
}

func TestReadDescriptorMissingIsErrNoDescriptor(t *testing.T) {
	_, err := ReadDescriptor(filepath.Join(t.TempDir(), "daemon.json"))
	if !errors.Is(err, ErrNoDescriptor) {
		t.Fatalf("ReadDescriptor() error = %v, want ErrNoDescriptor", err)
	}
}

func TestReadDescriptorRejectsMissingChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.json")
	if err := os.WriteFile(path, []byte(`{"pid":1}`), 0600); err != nil {
		t.Fatalf("writing descriptor: %v", err)
	}
	if _, err := ReadDescriptor(path); err == nil {
		t.Fatal("ReadDescriptor() error = nil, want missing channel error")
	}
}

func TestRemoveDescriptorOnlyRemovesOwnDescriptor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.json")
	own := Descriptor{PID: 100, Network: NetworkUnix, Address: "/tmp/x.sock", Token: "first"}
	if err := WriteDescriptor(path, own); err != nil {
		t.Fatalf("WriteDescriptor() error = %v", err)
	}

	others := []Descriptor{
		{PID: 200, Token: "first"},
		{PID: 100, Token: "second"},
	}
	for _, other := range others {
		if err := RemoveDescriptor(path, other); err != nil {
			t.Fatalf("RemoveDescriptor(%+v) error = %v", other, err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("RemoveDescriptor(%+v) removed another daemon's descriptor: %v", other, err)
		}
	}

	if err := RemoveDescriptor(path, own); err != nil {
		t.Fatalf("RemoveDescriptor(own) error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("descriptor still present, stat err = %v", err)
	}

	if err := RemoveDescriptor(path, own); err != nil {
		t.Fatalf("RemoveDescriptor(absent) error = %v, want nil", err)
	}
}
