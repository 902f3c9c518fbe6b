package errors

import (
	"strings"
	"testing"
)

func triggerPanic() (err error) {
	defer func() { err = RecoverPanic() }()
	panic("boom")
}

func TestRecoverPanic_CapturesValueAndStack(t *testing.T) {
	err := triggerPanic()
	if err == nil {
		t.Fatal("expected a non-nil error after a panic")
	}
	panicErr, ok := err.(*PanicError)
	if !ok {
		t.Fatalf("expected a *PanicError, got %T", err)
	}
	if panicErr.Value != "boom" {
		t.Errorf("expected panic value \"boom\", got %v", panicErr.Value)
	}
	if panicErr.Stacktrace == "" {
		t.Error("expected a non-empty stack trace")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected Error() to include the panic value, got %q", err.Error())
	}
}

func TestRecoverPanic_NoPanicReturnsNil(t *testing.T) {
	func() {
		defer func() {
			if err := RecoverPanic(); err != nil {
				t.Errorf("expected nil when no panic occurred, got %v", err)
			}
		}()
	}()
}

func TestFormatPanicForLog(t *testing.T) {
	panicErr := &PanicError{Value: "bad state", Stacktrace: "goroutine 1 [running]:"}
	formatted := FormatPanicForLog(panicErr)
	if !strings.Contains(formatted, "bad state") {
		t.Errorf("expected formatted output to include the panic value, got %q", formatted)
	}
	if !strings.Contains(formatted, "goroutine 1 [running]:") {
		t.Errorf("expected formatted output to include the stack trace, got %q", formatted)
	}
}
