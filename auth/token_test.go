package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestIssueAndVerify(t *testing.T) {
	issuer, err := NewRandomTokenIssuer()
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}

	token, id := issuer.Issue()

	got, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("expected valid token to verify, got: %v", err)
	}
	if got != id {
		t.Errorf("expected id %s, got %s", id, got)
	}
}

func TestIssuedTokensAreUnique(t *testing.T) {
	issuer, _ := NewRandomTokenIssuer()
	t1, _ := issuer.Issue()
	t2, _ := issuer.Issue()
	if t1 == t2 {
		t.Error("two logins got the same token")
	}
}

func TestVerifyForgedToken(t *testing.T) {
	issuer, _ := NewRandomTokenIssuer()
	token, id := issuer.Issue()

	tests := []string{
		"",
		"forged-token-value",
		id + ".",
		id + ".deadbeef",
		"not-a-uuid." + strings.SplitN(token, ".", 2)[1],
	}
	for _, forged := range tests {
		if _, err := issuer.Verify(forged); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify(%q): expected ErrInvalidToken, got %v", forged, err)
		}
	}
}

func TestTokensDoNotCrossSecrets(t *testing.T) {
	issuer1, _ := NewRandomTokenIssuer()
	issuer2, _ := NewRandomTokenIssuer()

	token, _ := issuer1.Issue()
	if _, err := issuer2.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("token from another secret should be rejected, got %v", err)
	}
}

func TestTokensSurviveRestartWithPersistedSecret(t *testing.T) {
	const secret = "00112233445566778899aabbccddeeff"
	issuer1, err := NewHexTokenIssuer(secret)
	if err != nil {
		t.Fatalf("NewHexTokenIssuer failed: %v", err)
	}
	issuer2, _ := NewHexTokenIssuer(secret)

	token, _ := issuer1.Issue()
	if _, err := issuer2.Verify(token); err != nil {
		t.Errorf("same secret should verify across issuers: %v", err)
	}
}

func TestNewHexTokenIssuerRejectsBadSecrets(t *testing.T) {
	for _, s := range []string{"zz", "0011"} {
		if _, err := NewHexTokenIssuer(s); err == nil {
			t.Errorf("expected error for secret %q", s)
		}
	}
}
