package repository

import (
	"context"
	"testing"
)

func TestDefaultFixtureLoads(t *testing.T) {
	f, err := Default()
	if err != nil {
		t.Fatalf("Default error: %v", err)
	}

	profiles, err := f.Profiles(context.Background())
	if err != nil {
		t.Fatalf("Profiles error: %v", err)
	}
	if len(profiles) == 0 {
		t.Fatalf("default dataset must contain profiles")
	}

	wallets, err := f.Wallets(context.Background())
	if err != nil {
		t.Fatalf("Wallets error: %v", err)
	}
	if len(wallets) == 0 {
		t.Fatalf("default dataset must contain wallets")
	}
}

func TestFixtureAbsentKeysReturnEmpty(t *testing.T) {
	f, err := Default()
	if err != nil {
		t.Fatalf("Default error: %v", err)
	}

	ctx := context.Background()

	p, err := f.ProfileByEmail(ctx, "nobody@test.com")
	if err != nil || p != nil {
		t.Fatalf("ProfileByEmail = (%v, %v), want (nil, nil)", p, err)
	}

	w, err := f.WalletByEmail(ctx, "nobody@test.com")
	if err != nil || w != nil {
		t.Fatalf("WalletByEmail = (%v, %v), want (nil, nil)", w, err)
	}

	reqs, err := f.CardRequestsByEmail(ctx, "nobody@test.com")
	if err != nil || len(reqs) != 0 {
		t.Fatalf("CardRequestsByEmail = (%v, %v), want empty", reqs, err)
	}
}

func TestNewFixtureValidation(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "broken json",
			raw:  `{not json`,
		},
		{
			name: "profile without email",
			raw:  `{"profiles":[{"id":"u-1"}]}`,
		},
		{
			name: "unknown card status",
			raw:  `{"wallets":[{"email":"a@test.com","card":{"number":"1","status":"melted"}}]}`,
		},
		{
			name: "unknown transaction type",
			raw:  `{"wallets":[{"email":"a@test.com","transactions":[{"id":"tx","type":"teleport","status":"completed"}]}]}`,
		},
		{
			name: "unknown transaction status",
			raw:  `{"wallets":[{"email":"a@test.com","transactions":[{"id":"tx","type":"topup","status":"maybe"}]}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFixture([]byte(tt.raw)); err == nil {
				t.Fatalf("NewFixture must reject dataset: %s", tt.raw)
			}
		})
	}
}

func TestFixtureFiltersByEmail(t *testing.T) {
	f, err := Default()
	if err != nil {
		t.Fatalf("Default error: %v", err)
	}

	ctx := context.Background()

	reqs, err := f.CardRequestsByEmail(ctx, "anna@test.com")
	if err != nil {
		t.Fatalf("CardRequestsByEmail error: %v", err)
	}
	for _, r := range reqs {
		if r.Email != "anna@test.com" {
			t.Fatalf("foreign card request in result: %+v", r)
		}
	}
	if len(reqs) != 2 {
		t.Fatalf("card requests = %d, want 2", len(reqs))
	}

	blocked, err := f.BlockedCardsByEmail(ctx, "boris@test.com")
	if err != nil {
		t.Fatalf("BlockedCardsByEmail error: %v", err)
	}
	if len(blocked) != 0 {
		t.Fatalf("boris must have no blocked cards, got %d", len(blocked))
	}
}
