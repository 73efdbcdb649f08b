package sasl

import "testing"

func TestExternalSendsAuthzID(t *testing.T) {
	t.Parallel()
	e := NewExternal("ops@example.net")
	if e.Name() != "EXTERNAL" {
		t.Errorf("Name() = %q", e.Name())
	}
	msg, err := e.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if string(msg) != "ops@example.net" {
		t.Errorf("Start() = %q, want the authorization identity", msg)
	}
	if !e.Completed() {
		t.Error("Completed() after Start should be true")
	}
}

func TestExternalEmptyAuthzID(t *testing.T) {
	t.Parallel()
	e := NewExternal("")
	msg, err := e.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Empty means "derive it from the TLS certificate".
	if len(msg) != 0 {
		t.Errorf("Start() = %q, want an empty response", msg)
	}
}
