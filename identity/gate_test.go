package identity

import (
	"errors"
	"testing"
)

func TestScriptedGate(t *testing.T) {
	gate := NewScripted(map[string]Result{
		"AGT-01": {Passed: true, Score: 0.97},
		"AGT-02": {Passed: false, Score: 0.12},
	})

	result, err := gate.Verify("AGT-01")
	if err != nil || !result.Passed {
		t.Fatalf("expected pass for AGT-01, got %+v err=%v", result, err)
	}
	result, err = gate.Verify("AGT-02")
	if err != nil || result.Passed {
		t.Fatalf("expected fail for AGT-02, got %+v err=%v", result, err)
	}
	if _, err := gate.Verify("AGT-99"); !errors.Is(err, ErrUnknownSubject) {
		t.Fatalf("expected ErrUnknownSubject, got %v", err)
	}
}

func TestAllowAll(t *testing.T) {
	result, err := AllowAll{}.Verify("anyone")
	if err != nil || !result.Passed {
		t.Fatalf("AllowAll refused: %+v err=%v", result, err)
	}
}
