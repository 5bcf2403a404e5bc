package failfast

import (
	"errors"
	"strings"
	"testing"
)

// recovered runs fn and returns the error it panicked with, or nil.
func recovered(t *testing.T, fn func()) (err error) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		e, ok := r.(error)
		if !ok {
			t.Fatalf("panic value is %T, want error", r)
		}
		err = e
	}()
	fn()
	return nil
}

func TestErr(t *testing.T) {
	if err := recovered(t, func() { Err(nil) }); err != nil {
		t.Errorf("Err(nil) panicked: %v", err)
	}

	full := errors.New("work queue closed")
	err := recovered(t, func() { Err(full) })
	if !errors.Is(err, full) {
		t.Fatalf("Err() panic = %v, want it to wrap %v", err, full)
	}
	if !strings.Contains(err.Error(), "goroutine") {
		t.Error("Err() panic should carry a stack trace")
	}
}

func TestIf(t *testing.T) {
	tests := []struct {
		name      string
		condition bool
		want      string
	}{
		{"holds", true, ""},
		{"violated", false, "fail-fast: workers must be >= 0, got -3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := recovered(t, func() { If(tt.condition, "workers must be >= 0, got %d", -3) })
			switch {
			case tt.want == "" && err != nil:
				t.Errorf("If() panicked: %v", err)
			case tt.want != "" && (err == nil || err.Error() != tt.want):
				t.Errorf("If() panic = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestNotNil(t *testing.T) {
	var (
		nilPtr  *int
		nilFunc func()
		nilMap  map[string]int
		nilChan chan int
		value   = 7
	)
	tests := []struct {
		name  string
		ptr   interface{}
		panic bool
	}{
		{"untyped nil", nil, true},
		{"nil pointer", nilPtr, true},
		{"nil func", nilFunc, true},
		{"nil map", nilMap, true},
		{"nil chan", nilChan, true},
		{"pointer", &value, false},
		{"func", func() {}, false},
		{"non-pointer value", value, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := recovered(t, func() { NotNil(tt.ptr, "job") })
			if (err != nil) != tt.panic {
				t.Fatalf("NotNil() panic = %v, want panic %v", err, tt.panic)
			}
			if err != nil && err.Error() != "fail-fast: job is nil" {
				t.Errorf("NotNil() panic = %q", err)
			}
		})
	}
}
