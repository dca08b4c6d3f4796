package security

import (
	"testing"
	"time"
)

func TestTokenProvider_IssueAndParseSessionToken(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	sessionID, identityID, role := "s1", "i1", "admin"

	token, exp, err := p.IssueSessionToken(sessionID, identityID, role)
	if err != nil {
		t.Fatalf("IssueSessionToken: %v", err)
	}
	if token == "" {
		t.Fatal("session token empty")
	}
	if exp.Before(time.Now()) {
		t.Fatal("expires at in the past")
	}

	sid, iid, r, err := p.ParseSessionToken(token)
	if err != nil {
		t.Fatalf("ParseSessionToken: %v", err)
	}
	if sid != sessionID || iid != identityID || r != role {
		t.Errorf("ParseSessionToken: got sessionID=%q identityID=%q role=%q", sid, iid, r)
	}
}

func TestTokenProvider_ParseSessionTokenInvalid(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	_, _, _, err = p.ParseSessionToken("invalid-token")
	if err != ErrInvalidToken {
		t.Errorf("ParseSessionToken invalid token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_ParseSessionTokenWrongIssuer(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	other := NewTokenProvider(signer, pub, "other-issuer", "test-audience", time.Minute)
	token, _, err := other.IssueSessionToken("s1", "i1", "user")
	if err != nil {
		t.Fatalf("IssueSessionToken: %v", err)
	}
	if _, _, _, err := p.ParseSessionToken(token); err != ErrInvalidToken {
		t.Errorf("wrong issuer: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_ParseSessionTokenExpired(t *testing.T) {
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	p := NewTokenProvider(signer, pub, "test-issuer", "test-audience", -time.Minute)
	token, _, err := p.IssueSessionToken("s1", "i1", "user")
	if err != nil {
		t.Fatalf("IssueSessionToken: %v", err)
	}
	if _, _, _, err := p.ParseSessionToken(token); err != ErrInvalidToken {
		t.Errorf("expired token: want ErrInvalidToken, got %v", err)
	}
}
