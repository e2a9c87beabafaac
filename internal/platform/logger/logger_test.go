package logger

import (
	"strings"
	"testing"
)

func TestSanitizeKVs(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"student_id", "abc",
		"email", "someone@example.edu",
		"scoring_api_key", "sk-123",
		"name", "Ada",
		"dangling",
	})
	if len(out) != 9 {
		t.Fatalf("len=%d", len(out))
	}
	if out[1] != "abc" {
		t.Fatalf("student_id should pass through, got %v", out[1])
	}
	if out[3] != "[REDACTED]" || out[5] != "[REDACTED]" {
		t.Fatalf("expected redaction, got %v %v", out[3], out[5])
	}
	if s, _ := out[7].(string); len(s) != len("hash:")+12 {
		t.Fatalf("expected hashed name, got %v", out[7])
	}
	if out[8] != "dangling" {
		t.Fatalf("odd trailing key should be preserved, got %v", out[8])
	}
}

func TestSanitizeKVs_StudentAndMentorPII(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"student_name", "Ada Lovelace",
		"mentor_email", "mentor@example.edu",
		"mentor_name", "Grace Hopper",
		"mentor_code", "M-7",
	})
	if s, _ := out[1].(string); !strings.HasPrefix(s, "hash:") {
		t.Fatalf("student_name should be hashed, got %v", out[1])
	}
	if out[3] != "[REDACTED]" {
		t.Fatalf("mentor_email should be redacted, got %v", out[3])
	}
	if s, _ := out[5].(string); !strings.HasPrefix(s, "hash:") {
		t.Fatalf("mentor_name should be hashed, got %v", out[5])
	}
	if out[7] != "M-7" {
		t.Fatalf("mentor_code should pass through, got %v", out[7])
	}
}
