package gateway

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	v := NewTokenVerifier("secret")
	now := time.Unix(1700000000, 0)

	token := v.Sign("0xAbCd", now.Add(time.Hour))
	address, err := v.Verify(token, now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if address != "0xabcd" {
		t.Fatalf("address = %q, want lowercased 0xabcd", address)
	}
}

func TestTokenExpired(t *testing.T) {
	v := NewTokenVerifier("secret")
	now := time.Unix(1700000000, 0)

	token := v.Sign("0xabcd", now.Add(-time.Second))
	if _, err := v.Verify(token, now); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("err = %v, want ErrAuthRequired", err)
	}
}

func TestTokenTampered(t *testing.T) {
	v := NewTokenVerifier("secret")
	now := time.Unix(1700000000, 0)
	token := v.Sign("0xabcd", now.Add(time.Hour))

	encoded, sig, _ := strings.Cut(token, ".")
	other := NewTokenVerifier("other-secret").Sign("0xabcd", now.Add(time.Hour))
	_, otherSig, _ := strings.Cut(other, ".")

	cases := []string{
		"",
		"not-a-token",
		encoded,                    // missing signature
		encoded + "." + otherSig,   // signed with a different secret
		encoded + "x" + "." + sig,  // payload altered
		"!!!" + "." + sig,          // undecodable payload
	}
	for _, tc := range cases {
		if _, err := v.Verify(tc, now); !errors.Is(err, ErrAuthRequired) {
			t.Fatalf("Verify(%q) err = %v, want ErrAuthRequired", tc, err)
		}
	}
}
