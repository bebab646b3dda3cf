package user

import (
	"testing"
	"time"

	"github.com/trezcool/tathmini/core"
)

func TestMakeVerifyToken(t *testing.T) {
	tg := newTokenGenerator(core.NewTestConfig())

	now := time.Now()
	usr := User{
		ID:        "2f5c3a5e-7d0f-4f57-9d0b-1bc7c1d0e2f4",
		Name:      "T",
		Username:  "t",
		Email:     "t@test.cd",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: now,
	}
	_ = usr.SetPassword("pwd")

	validToken, err := tg.makeToken(usr)
	if err != nil {
		t.Fatalf("makeToken(): %v", err)
	}

	// generate an expired token
	dayLate := tg.timeout + (24 * time.Hour)
	core.NowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken, err := tg.makeToken(usr)
	core.NowFunc = time.Now // reset
	if err != nil {
		t.Fatalf("makeToken(): %v", err)
	}

	// a new login invalidates older tokens
	loggedIn := usr
	loggedIn.LastLogin = now.Add(time.Minute)

	tests := []struct {
		name    string
		usr     User
		token   string
		wantErr error
	}{
		{name: "no token", usr: usr, wantErr: errInvalidToken},
		{name: "invalid parts len", usr: usr, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "invalid base32", usr: usr, token: "hahaha-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid timestamp", usr: usr, token: "NRXWY-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid token", usr: usr, token: "HE4TS-sigsig-sig", wantErr: errInvalidToken},
		{name: "expired token", usr: usr, token: expiredToken, wantErr: errTokenExpired},
		{name: "used token", usr: loggedIn, token: validToken, wantErr: errInvalidToken},
		{name: "valid token", usr: usr, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tg.verifyToken(tt.usr, tt.token); err != tt.wantErr {
				t.Errorf("verifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeDecodeUID(t *testing.T) {
	usr := User{ID: "2f5c3a5e-7d0f-4f57-9d0b-1bc7c1d0e2f4"}
	id, err := decodeUID(EncodeUID(usr))
	if err != nil {
		t.Fatalf("decodeUID(): %v", err)
	}
	if id != usr.ID {
		t.Errorf("decodeUID() = %v; want %v", id, usr.ID)
	}
}
