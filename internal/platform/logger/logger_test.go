package logger

import (
	"strings"
	"testing"
)

func TestSanitizeKVsRedactsAndHashes(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"openai_api_key", "sk-live",
		"user_id", "u-1",
		"chat_id", "c-1",
		"source", "docs/a.md",
	})
	if len(out) != 8 {
		t.Fatalf("len: want=8 got=%d", len(out))
	}
	if out[1] != "[REDACTED]" {
		t.Fatalf("api key: want redacted got=%v", out[1])
	}
	if s, _ := out[3].(string); !strings.HasPrefix(s, "hash:") {
		t.Fatalf("user_id: want hashed got=%v", out[3])
	}
	if s, _ := out[5].(string); !strings.HasPrefix(s, "hash:") {
		t.Fatalf("chat_id: want hashed got=%v", out[5])
	}
	if out[7] != "docs/a.md" {
		t.Fatalf("source: want passthrough got=%v", out[7])
	}
}

func TestSanitizeKVsOddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"k", "v", "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestHashValueStable(t *testing.T) {
	a := hashValue("u-1")
	b := hashValue("u-1")
	if a != b {
		t.Fatalf("hash not stable: %q vs %q", a, b)
	}
	if hashValue("") != "" {
		t.Fatalf("empty value should hash to empty")
	}
}

func TestRedactorScrubsSecretValues(t *testing.T) {
	r := redactor{enabled: true, salt: "s"}
	out := r.kvs([]interface{}{
		"detail", "sk-abcdefghijklmnopqrstuvwxyz",
		"url", "https://storage.googleapis.com/b/a.pdf?X-Goog-Algorithm=GOOG4&X-Goog-Signature=abc",
		"meta", map[string]interface{}{"password": "p", "source": "a.md"},
	})
	if out[1] != redacted {
		t.Fatalf("api key value: want redacted got=%v", out[1])
	}
	if out[3] != "https://storage.googleapis.com/b/a.pdf?"+redacted {
		t.Fatalf("signed url: got=%v", out[3])
	}
	meta := out[5].(map[string]interface{})
	if meta["password"] != redacted || meta["source"] != "a.md" {
		t.Fatalf("nested map: got=%v", meta)
	}
}

func TestRedactorDisabledPassesThrough(t *testing.T) {
	kv := []interface{}{"api_key", "k", "user_id", "u"}
	out := redactor{}.kvs(kv)
	if out[1] != "k" || out[3] != "u" {
		t.Fatalf("disabled redactor changed values: %v", out)
	}
}

func TestHashDependsOnSalt(t *testing.T) {
	a := redactor{enabled: true, salt: "one"}.hash("u-1")
	b := redactor{enabled: true, salt: "two"}.hash("u-1")
	if a == b {
		t.Fatalf("salt should change the hash")
	}
}
