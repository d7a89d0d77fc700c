package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkoroteev/buspay/internal/authclient"
	"github.com/dkoroteev/buspay/internal/model"
	"github.com/dkoroteev/buspay/internal/storage"
)

type stubAuth struct {
	resp *model.AuthResponse
	err  error

	calls int
}

func (a *stubAuth) Login(ctx context.Context, email, password string) (*model.AuthResponse, error) {
	a.calls++
	return a.resp, a.err
}

type stubProfiles struct {
	profile *model.UserProfile
	err     error
}

func (p *stubProfiles) GetUserProfile(ctx context.Context, email string) (*model.UserProfile, error) {
	return p.profile, p.err
}

func authResponse(expiresAt time.Time) *model.AuthResponse {
	return &model.AuthResponse{
		AccessToken:  "tok1",
		RefreshToken: "ref1",
		ExpiresAt:    expiresAt.Unix(),
		ExpiresIn:    3600,
		TokenType:    "Bearer",
		User: model.Identity{
			ID:    "42",
			Email: "u@test.com",
			Role:  "passenger",
		},
	}
}

func TestSignInRestoreRoundTrip(t *testing.T) {
	mem := storage.NewMemStore()
	auth := &stubAuth{resp: authResponse(time.Now().Add(time.Hour))}
	profiles := &stubProfiles{profile: &model.UserProfile{
		ID:    "42",
		Email: "u@test.com",
		Name:  "Test User",
	}}

	store := NewStore(mem, auth, profiles, nil)

	sess, err := store.SignIn(context.Background(), "u@test.com", "correct")
	if err != nil {
		t.Fatalf("SignIn error: %v", err)
	}
	if !store.IsAuthenticated() {
		t.Fatalf("IsAuthenticated = false after successful sign-in")
	}

	// Новый Store над тем же хранилищем имитирует перезапуск процесса
	restarted := NewStore(mem, auth, profiles, nil)
	restored := restarted.Restore()
	if restored == nil {
		t.Fatalf("Restore returned no session")
	}

	if restored.AccessToken != sess.AccessToken {
		t.Fatalf("access token = %q, want %q", restored.AccessToken, sess.AccessToken)
	}
	if restored.RefreshToken != sess.RefreshToken {
		t.Fatalf("refresh token = %q, want %q", restored.RefreshToken, sess.RefreshToken)
	}
	if !restored.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Fatalf("expires at = %v, want %v", restored.ExpiresAt, sess.ExpiresAt)
	}
	if restored.User != sess.User {
		t.Fatalf("identity = %+v, want %+v", restored.User, sess.User)
	}
	if restored.Profile == nil || restored.Profile.Name != "Test User" {
		t.Fatalf("profile not restored: %+v", restored.Profile)
	}
}

func TestSignOutIdempotent(t *testing.T) {
	mem := storage.NewMemStore()
	auth := &stubAuth{resp: authResponse(time.Now().Add(time.Hour))}
	store := NewStore(mem, auth, nil, nil)

	if _, err := store.SignIn(context.Background(), "u@test.com", "correct"); err != nil {
		t.Fatalf("SignIn error: %v", err)
	}

	store.SignOut()
	store.SignOut()

	if store.Current() != nil {
		t.Fatalf("session must be absent after sign-out")
	}
	if store.IsAuthenticated() {
		t.Fatalf("IsAuthenticated must be false after sign-out")
	}
	if store.Restore() != nil {
		t.Fatalf("Restore must find no session after sign-out")
	}
}

func TestIsExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{name: "future", expiresAt: time.Now().Add(time.Hour), want: false},
		{name: "past", expiresAt: time.Now().Add(-time.Hour), want: true},
		{name: "just passed", expiresAt: time.Now().Add(-time.Millisecond), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := storage.NewMemStore()
			auth := &stubAuth{resp: authResponse(tt.expiresAt)}
			store := NewStore(mem, auth, nil, nil)

			if _, err := store.SignIn(context.Background(), "u@test.com", "correct"); err != nil {
				t.Fatalf("SignIn error: %v", err)
			}

			if got := store.IsExpired(); got != tt.want {
				t.Fatalf("IsExpired = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsExpiredWithoutSession(t *testing.T) {
	store := NewStore(storage.NewMemStore(), &stubAuth{}, nil, nil)

	if !store.IsExpired() {
		t.Fatalf("IsExpired must be true without a session")
	}
}

func TestSignInFailureWritesNothing(t *testing.T) {
	mem := storage.NewMemStore()
	auth := &stubAuth{err: authclient.ErrInvalidCredentials}
	store := NewStore(mem, auth, nil, nil)

	_, err := store.SignIn(context.Background(), "u@test.com", "wrong")
	if !errors.Is(err, authclient.ErrInvalidCredentials) {
		t.Fatalf("SignIn error = %v, want ErrInvalidCredentials", err)
	}

	for _, key := range []string{"access_token", "refresh_token", "token_expires_at", "user_data"} {
		if _, ok, _ := mem.Get(key); ok {
			t.Fatalf("key %s must not be written on failed sign-in", key)
		}
	}
	if store.IsAuthenticated() {
		t.Fatalf("IsAuthenticated must remain false")
	}
}

func TestRestoreClearsPartialSession(t *testing.T) {
	mem := storage.NewMemStore()
	if err := mem.Set("access_token", "tok1"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := mem.Set("token_expires_at", "not-a-number"); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	store := NewStore(mem, &stubAuth{}, nil, nil)

	if store.Restore() != nil {
		t.Fatalf("partial session must restore as absent")
	}

	// Повреждённые остатки должны быть удалены
	if _, ok, _ := mem.Get("access_token"); ok {
		t.Fatalf("partial session fields must be cleared")
	}
}

func TestOnboardingFlagSurvivesSignOut(t *testing.T) {
	mem := storage.NewMemStore()
	auth := &stubAuth{resp: authResponse(time.Now().Add(time.Hour))}
	store := NewStore(mem, auth, nil, nil)

	if store.HasCompletedOnboarding() {
		t.Fatalf("onboarding flag must start unset")
	}

	if _, err := store.SignIn(context.Background(), "u@test.com", "correct"); err != nil {
		t.Fatalf("SignIn error: %v", err)
	}
	if !store.HasCompletedOnboarding() {
		t.Fatalf("first sign-in must set the onboarding flag")
	}

	store.SignOut()
	if !store.HasCompletedOnboarding() {
		t.Fatalf("onboarding flag must survive sign-out")
	}
}

func TestSignInEndToEnd(t *testing.T) {
	expiresAt := time.Now().Add(time.Hour).Unix()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}

		if req.Password != "correct" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		resp := model.AuthResponse{
			AccessToken:  "tok1",
			RefreshToken: "ref1",
			ExpiresAt:    expiresAt,
			TokenType:    "Bearer",
			User:         model.Identity{ID: "42", Email: req.Email, Role: "passenger"},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	mem := storage.NewMemStore()
	client := authclient.NewClient(ts.URL)

	store := NewStore(mem, client, nil, nil)

	// Неверный пароль: типизированная ошибка, хранилище не тронуто
	_, err := store.SignIn(context.Background(), "u@test.com", "wrong")
	if !errors.Is(err, authclient.ErrInvalidCredentials) {
		t.Fatalf("SignIn error = %v, want ErrInvalidCredentials", err)
	}
	if _, ok, _ := mem.Get("access_token"); ok {
		t.Fatalf("failed sign-in must not persist session fields")
	}

	// Верный пароль: сеанс действует и переживает перезапуск
	sess, err := store.SignIn(context.Background(), "u@test.com", "correct")
	if err != nil {
		t.Fatalf("SignIn error: %v", err)
	}
	if sess.AccessToken != "tok1" {
		t.Fatalf("access token = %q, want tok1", sess.AccessToken)
	}
	if !store.IsAuthenticated() {
		t.Fatalf("IsAuthenticated = false after sign-in")
	}

	restored := NewStore(mem, client, nil, nil).Restore()
	if restored == nil || restored.AccessToken != "tok1" {
		t.Fatalf("restored session = %+v, want access token tok1", restored)
	}
}
