package core

import (
	"errors"
	"testing"
	"time"
)

func TestJSONEncode(t *testing.T) {
	tests := []struct {
		name    string
		v       interface{}
		wantErr bool
	}{
		{"valid map", map[string]string{"key": "value"}, false},
		{"valid string", "test", false},
		{"nil value", nil, true},
		{"valid struct", struct{ Name string }{"test"}, false},
		{"unsupported channel", make(chan int), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := JSONEncode(tt.v)
			if (err != nil) != tt.wantErr {
				t.Errorf("JSONEncode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestJSONEncodeDecode_TaggedStruct(t *testing.T) {
	type result struct {
		JobID    string        `json:"job_id"`
		Started  time.Time     `json:"started"`
		Duration time.Duration `json:"duration"`
		Err      string        `json:"error,omitempty"`
	}
	original := result{
		JobID:    "job-1",
		Started:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration: 1500 * time.Millisecond,
	}

	encoded, err := JSONEncode(original)
	if err != nil {
		t.Fatalf("JSONEncode() error = %v", err)
	}
	if want := `{"job_id":"job-1","started":"2024-03-01T12:00:00Z","duration":1500000000}`; string(encoded) != want {
		t.Errorf("JSONEncode() = %s, want %s", encoded, want)
	}

	var decoded result
	if err := JSONDecode(encoded, &decoded); err != nil {
		t.Fatalf("JSONDecode() error = %v", err)
	}
	if decoded != original {
		t.Errorf("decoded = %+v, want %+v", decoded, original)
	}
}

func TestJSON_FailFast_InvalidInput(t *testing.T) {
	var result map[string]string

	tests := []struct {
		name string
		err  error
	}{
		{"encode nil", func() error { _, err := JSONEncode(nil); return err }()},
		{"decode empty", JSONDecode([]byte{}, &result)},
		{"decode nil target", JSONDecode([]byte(`{"key":"value"}`), nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e *Error
			if !errors.As(tt.err, &e) {
				t.Fatalf("error = %v, want *Error", tt.err)
			}
			if e.Code != "INVALID_INPUT" {
				t.Errorf("Error code = %v, want 'INVALID_INPUT'", e.Code)
			}
		})
	}
}

func TestJSONDecode_FailFast_InvalidJSON(t *testing.T) {
	var result map[string]string
	err := JSONDecode([]byte(`{invalid json}`), &result)
	if err == nil {
		t.Error("JSONDecode() should fail-fast with invalid JSON")
	}
	var e *Error
	if errors.As(err, &e) {
		t.Errorf("syntax errors should not be reported as *Error, got %v", e)
	}
}
