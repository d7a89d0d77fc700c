package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/dkoroteev/buspay/internal/middleware"
	"github.com/dkoroteev/buspay/internal/model"
	"github.com/dkoroteev/buspay/internal/repository"
	"github.com/dkoroteev/buspay/internal/service"
)

type stubService struct {
	authProfile *model.UserProfile
	authErr     error

	profile    *model.UserProfile
	profileErr error

	wallet    *model.Wallet
	walletErr error

	txs    []model.Transaction
	txsErr error

	promotions []model.Promotion
}

func (s *stubService) AuthenticateUser(ctx context.Context, email, password string) (*model.UserProfile, error) {
	return s.authProfile, s.authErr
}

func (s *stubService) GetUserProfile(ctx context.Context, email string) (*model.UserProfile, error) {
	return s.profile, s.profileErr
}

func (s *stubService) GetWalletByEmail(ctx context.Context, email string) (*model.Wallet, error) {
	return s.wallet, s.walletErr
}

func (s *stubService) GetAllTransactions(ctx context.Context, email string) ([]model.Transaction, error) {
	return s.txs, s.txsErr
}

func (s *stubService) GetTransactionsByType(ctx context.Context, email string, t model.TransactionType) ([]model.Transaction, error) {
	var out []model.Transaction
	for _, tx := range s.txs {
		if tx.Type == t {
			out = append(out, tx)
		}
	}
	return out, s.txsErr
}

func (s *stubService) GetTransactionsByStatus(ctx context.Context, email string, st model.TransactionStatus) ([]model.Transaction, error) {
	var out []model.Transaction
	for _, tx := range s.txs {
		if tx.Status == st {
			out = append(out, tx)
		}
	}
	return out, s.txsErr
}

func (s *stubService) GetActivePromotions(ctx context.Context) ([]model.Promotion, error) {
	return s.promotions, nil
}

func newTestHandler(s Service) *Handler {
	return NewHandler(s, zap.NewNop(), middleware.NewAuthMiddleware("test-secret"))
}

func loginBody(t *testing.T, email, password string) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		t.Fatalf("marshal login body: %v", err)
	}
	return bytes.NewReader(body)
}

func TestLogin_OK(t *testing.T) {
	h := newTestHandler(&stubService{authProfile: &model.UserProfile{
		ID:    "u-1001",
		Email: "anna@test.com",
		Role:  "passenger",
	}})

	r := httptest.NewRequest(http.MethodPost, "/api/auth/login", loginBody(t, "anna@test.com", "annapass123"))
	w := httptest.NewRecorder()

	h.Login(w, r)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}

	var resp model.AuthResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatalf("tokens must be issued: %+v", resp)
	}
	if resp.TokenType != "Bearer" {
		t.Fatalf("token_type = %q, want Bearer", resp.TokenType)
	}
	if resp.User.Email != "anna@test.com" {
		t.Fatalf("user email = %q, want anna@test.com", resp.User.Email)
	}
	if resp.WeakPassword {
		t.Fatalf("long password must not be flagged weak")
	}
	if resp.ExpiresAt <= 0 || resp.ExpiresIn <= 0 {
		t.Fatalf("expiry fields must be set: %+v", resp)
	}
}

func TestLogin_WeakPasswordFlag(t *testing.T) {
	h := newTestHandler(&stubService{authProfile: &model.UserProfile{Email: "anna@test.com"}})

	r := httptest.NewRequest(http.MethodPost, "/api/auth/login", loginBody(t, "anna@test.com", "short"))
	w := httptest.NewRecorder()

	h.Login(w, r)

	var resp model.AuthResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.WeakPassword {
		t.Fatalf("short password must be flagged weak")
	}
}

func TestLogin_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       *bytes.Reader
		authErr    error
		wantStatus int
	}{
		{
			name:       "broken json",
			body:       bytes.NewReader([]byte("{not json")),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing password",
			body:       bytes.NewReader([]byte(`{"email":"anna@test.com"}`)),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid credentials",
			body:       bytes.NewReader([]byte(`{"email":"anna@test.com","password":"wrong"}`)),
			authErr:    service.ErrInvalidCredentials,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown user",
			body:       bytes.NewReader([]byte(`{"email":"nobody@test.com","password":"x"}`)),
			authErr:    repository.ErrUserNotFound,
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&stubService{authErr: tt.authErr})

			r := httptest.NewRequest(http.MethodPost, "/api/auth/login", tt.body)
			w := httptest.NewRecorder()

			h.Login(w, r)

			if w.Result().StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestRouter_AuthenticatedFlow(t *testing.T) {
	svc := &stubService{
		authProfile: &model.UserProfile{ID: "u-1001", Email: "anna@test.com", Role: "passenger"},
		wallet: &model.Wallet{
			UserID:  "u-1001",
			Email:   "anna@test.com",
			Balance: 645.5,
		},
	}
	h := newTestHandler(svc)

	ts := httptest.NewServer(h.SetupRouter())
	defer ts.Close()

	// Без токена доступ к кошельку закрыт
	res, err := http.Get(ts.URL + "/api/user/wallet")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", res.StatusCode)
	}

	// Вход выдаёт токен
	loginRes, err := http.Post(ts.URL+"/api/auth/login", "application/json",
		loginBody(t, "anna@test.com", "annapass123"))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer loginRes.Body.Close()

	var auth model.AuthResponse
	if err := json.NewDecoder(loginRes.Body).Decode(&auth); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	// С токеном кошелёк доступен
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/user/wallet", nil)
	req.Header.Set("Authorization", "Bearer "+auth.AccessToken)

	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get wallet with token: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", res.StatusCode)
	}

	var wallet model.Wallet
	if err := json.NewDecoder(res.Body).Decode(&wallet); err != nil {
		t.Fatalf("decode wallet: %v", err)
	}
	if wallet.Balance != 645.5 {
		t.Fatalf("balance = %v, want 645.5", wallet.Balance)
	}
}

func TestGetProfile_HidesPassword(t *testing.T) {
	svc := &stubService{profile: &model.UserProfile{
		ID:       "u-1001",
		Email:    "anna@test.com",
		Password: "annapass123",
	}}
	h := newTestHandler(svc)

	token, _, err := h.authMiddleware.IssueToken("anna@test.com")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}

	ts := httptest.NewServer(h.SetupRouter())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/user/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	defer res.Body.Close()

	var raw map[string]any
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if _, ok := raw["password"]; ok {
		t.Fatalf("password must not be exposed: %v", raw)
	}
}

func TestGetTransactions_Filters(t *testing.T) {
	svc := &stubService{txs: []model.Transaction{
		{ID: "tx-1", Type: model.TransactionPayment, Status: model.TransactionCompleted},
		{ID: "tx-2", Type: model.TransactionPayment, Status: model.TransactionFailed},
		{ID: "tx-3", Type: model.TransactionTopup, Status: model.TransactionCompleted},
	}}
	h := newTestHandler(svc)

	token, _, err := h.authMiddleware.IssueToken("anna@test.com")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}

	ts := httptest.NewServer(h.SetupRouter())
	defer ts.Close()

	get := func(query string) []model.Transaction {
		t.Helper()

		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/user/transactions"+query, nil)
		req.Header.Set("Authorization", "Bearer "+token)

		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("get transactions: %v", err)
		}
		defer res.Body.Close()

		if res.StatusCode == http.StatusNoContent {
			return nil
		}
		if res.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", res.StatusCode)
		}

		var txs []model.Transaction
		if err := json.NewDecoder(res.Body).Decode(&txs); err != nil {
			t.Fatalf("decode transactions: %v", err)
		}
		return txs
	}

	if got := get(""); len(got) != 3 {
		t.Fatalf("all transactions = %d, want 3", len(got))
	}
	if got := get("?type=payment"); len(got) != 2 {
		t.Fatalf("payments = %d, want 2", len(got))
	}
	if got := get("?type=payment&status=completed"); len(got) != 1 || got[0].ID != "tx-1" {
		t.Fatalf("joint filter = %+v, want only tx-1", got)
	}
	if got := get("?type=refund"); got != nil {
		t.Fatalf("refunds must be empty, got %+v", got)
	}
}
