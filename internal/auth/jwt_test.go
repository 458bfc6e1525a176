package auth

import (
	"testing"
	"time"
)

func TestMintAndParse(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		userID     int64
		signWith   string
		verifyWith string
		ttl        time.Duration
		wantErr    bool
	}{
		{name: "valid token", userID: 7, signWith: "s3cret", verifyWith: "s3cret", ttl: time.Hour},
		{name: "wrong secret", userID: 7, signWith: "s3cret", verifyWith: "other", ttl: time.Hour, wantErr: true},
		{name: "expired", userID: 7, signWith: "s3cret", verifyWith: "s3cret", ttl: -time.Minute, wantErr: true},
		{name: "missing user", userID: 0, signWith: "s3cret", verifyWith: "s3cret", ttl: time.Hour, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := MintAccessToken(tt.userID, "ops@example.com", tt.signWith, tt.ttl, now)
			if err != nil {
				t.Fatalf("MintAccessToken() error = %v", err)
			}
			claims, err := ParseClaims(tok, tt.verifyWith)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseClaims() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && claims.UserID != tt.userID {
				t.Errorf("UserID = %d, want %d", claims.UserID, tt.userID)
			}
		})
	}
}

func TestEmptySecret(t *testing.T) {
	if _, err := MintAccessToken(1, "", "", time.Hour, time.Now()); err != ErrEmptySecret {
		t.Errorf("MintAccessToken() error = %v, want ErrEmptySecret", err)
	}
	if _, err := ParseClaims("x.y.z", ""); err != ErrEmptySecret {
		t.Errorf("ParseClaims() error = %v, want ErrEmptySecret", err)
	}
}
