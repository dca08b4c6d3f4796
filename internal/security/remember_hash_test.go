package security

import "testing"

func TestGenerateRememberToken_Unique(t *testing.T) {
	t1, err := GenerateRememberToken()
	if err != nil {
		t.Fatalf("GenerateRememberToken: %v", err)
	}
	t2, err := GenerateRememberToken()
	if err != nil {
		t.Fatalf("GenerateRememberToken: %v", err)
	}
	if t1 == t2 {
		t.Error("GenerateRememberToken produced identical tokens")
	}
	if len(t1) < 40 {
		t.Errorf("token length = %d, want >= 40 (32 bytes base64url)", len(t1))
	}
}

func TestHashRememberToken_Consistent(t *testing.T) {
	token := "test-remember-token-123"
	hash1 := HashRememberToken(token)
	hash2 := HashRememberToken(token)

	if hash1 != hash2 {
		t.Errorf("HashRememberToken not consistent: hash1 = %q, hash2 = %q", hash1, hash2)
	}
	if len(hash1) != 64 {
		t.Errorf("hash length = %d, want 64 (SHA-256 hex)", len(hash1))
	}
}

func TestHashRememberToken_DifferentTokens(t *testing.T) {
	if HashRememberToken("token-1") == HashRememberToken("token-2") {
		t.Error("HashRememberToken produced same hash for different tokens")
	}
}
