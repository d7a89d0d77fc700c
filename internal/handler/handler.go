// Package handler содержит HTTP-обработчики мокового сервера buspay.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dkoroteev/buspay/internal/middleware"
	"github.com/dkoroteev/buspay/internal/model"
	"github.com/dkoroteev/buspay/internal/repository"
	"github.com/dkoroteev/buspay/internal/service"
)

// Service определяет контракт слоя доменных запросов, используемый HTTP-обработчиками.
type Service interface {
	AuthenticateUser(ctx context.Context, email, password string) (*model.UserProfile, error)
	GetUserProfile(ctx context.Context, email string) (*model.UserProfile, error)
	GetWalletByEmail(ctx context.Context, email string) (*model.Wallet, error)
	GetAllTransactions(ctx context.Context, email string) ([]model.Transaction, error)
	GetTransactionsByType(ctx context.Context, email string, t model.TransactionType) ([]model.Transaction, error)
	GetTransactionsByStatus(ctx context.Context, email string, st model.TransactionStatus) ([]model.Transaction, error)
	GetActivePromotions(ctx context.Context) ([]model.Promotion, error)
}

// Handler реализует HTTP-обработчики мокового сервера buspay.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// weakPasswordLength — порог, ниже которого пароль помечается как слабый.
const weakPasswordLength = 8

// Login выполняет аутентификацию пользователя и выдачу bearer-токена.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	profile, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token, expiresAt, err := h.authMiddleware.IssueToken(profile.Email)
	if err != nil {
		h.logger.Error("issue token error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := model.AuthResponse{
		AccessToken:  token,
		RefreshToken: uuid.NewString(),
		ExpiresAt:    expiresAt.Unix(),
		ExpiresIn:    int64(time.Until(expiresAt).Seconds()),
		TokenType:    "Bearer",
		User: model.Identity{
			ID:    profile.ID,
			Email: profile.Email,
			Role:  profile.Role,
			Phone: profile.Phone,
		},
		WeakPassword: len(req.Password) < weakPasswordLength,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// GetProfile возвращает профиль текущего пользователя.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	email, ok := middleware.GetEmailFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	profile, err := h.service.GetUserProfile(r.Context(), email)
	if err != nil {
		h.logger.Error("get profile error", zap.Error(err), zap.String("email", email))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if profile == nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	// Учётные данные мокового набора не покидают сервер
	p := *profile
	p.Password = ""

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(p); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// GetWallet возвращает кошелёк текущего пользователя.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	email, ok := middleware.GetEmailFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	wallet, err := h.service.GetWalletByEmail(r.Context(), email)
	if err != nil {
		h.logger.Error("get wallet error", zap.Error(err), zap.String("email", email))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if wallet == nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(wallet); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// GetTransactions возвращает операции текущего пользователя с необязательной
// фильтрацией по типу и статусу через query-параметры.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	email, ok := middleware.GetEmailFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	txType := r.URL.Query().Get("type")
	txStatus := r.URL.Query().Get("status")

	var (
		txs []model.Transaction
		err error
	)

	switch {
	case txType != "":
		txs, err = h.service.GetTransactionsByType(r.Context(), email, model.TransactionType(txType))
	case txStatus != "":
		txs, err = h.service.GetTransactionsByStatus(r.Context(), email, model.TransactionStatus(txStatus))
	default:
		txs, err = h.service.GetAllTransactions(r.Context(), email)
	}
	if err != nil {
		h.logger.Error("get transactions error", zap.Error(err), zap.String("email", email))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	// Оба фильтра сразу: статус доотбирается по уже отфильтрованному типу
	if txType != "" && txStatus != "" {
		filtered := txs[:0:0]
		for _, tx := range txs {
			if tx.Status == model.TransactionStatus(txStatus) {
				filtered = append(filtered, tx)
			}
		}
		txs = filtered
	}

	if len(txs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(txs); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// GetPromotions возвращает действующие акции.
func (h *Handler) GetPromotions(w http.ResponseWriter, r *http.Request) {
	promos, err := h.service.GetActivePromotions(r.Context())
	if err != nil {
		h.logger.Error("get promotions error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(promos) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(promos); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}
