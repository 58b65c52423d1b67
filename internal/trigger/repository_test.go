package trigger

import (
	"strings"
	"testing"
)

func TestGenerateAPIKeyShape(t *testing.T) {
	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey returned error: %v", err)
	}

	if !strings.HasPrefix(plaintext, "seq_") {
		t.Fatalf("plaintext %q lacks the seq_ prefix", plaintext)
	}
	if len(plaintext) != len("seq_")+64 {
		t.Fatalf("plaintext length = %d, want %d", len(plaintext), len("seq_")+64)
	}
	if prefix != plaintext[:12] {
		t.Fatalf("prefix = %q, want first 12 chars of %q", prefix, plaintext)
	}
	if hash != HashKey(plaintext) {
		t.Fatalf("stored hash does not match HashKey of the plaintext")
	}
	if strings.Contains(hash, plaintext[4:]) {
		t.Fatalf("hash must not contain the raw key material")
	}
}

func TestGenerateAPIKeyIsUnique(t *testing.T) {
	first, _, _, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey returned error: %v", err)
	}
	second, _, _, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey returned error: %v", err)
	}
	if first == second {
		t.Fatalf("two generated keys are identical")
	}
}

func TestHashKeyIsDeterministic(t *testing.T) {
	if HashKey("seq_abc") != HashKey("seq_abc") {
		t.Fatalf("HashKey is not deterministic")
	}
	if HashKey("seq_abc") == HashKey("seq_abd") {
		t.Fatalf("different keys hashed to the same value")
	}
}
