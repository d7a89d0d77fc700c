// Package service реализует слой доменных запросов клиента buspay:
// чтение профилей, кошельков и операций поверх фиксированного набора данных.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dkoroteev/buspay/internal/model"
	"github.com/dkoroteev/buspay/internal/repository"
)

// ErrInvalidCredentials возвращается при неверном пароле.
var ErrInvalidCredentials = errors.New("invalid credentials")

// DefaultRecentLimit — число последних операций по умолчанию.
const DefaultRecentLimit = 5

// Repository описывает контракт источника данных, используемый сервисом.
type Repository interface {
	Close() error
	Profiles(ctx context.Context) ([]model.UserProfile, error)
	ProfileByEmail(ctx context.Context, email string) (*model.UserProfile, error)
	Wallets(ctx context.Context) ([]model.Wallet, error)
	WalletByEmail(ctx context.Context, email string) (*model.Wallet, error)
	CardRequestsByEmail(ctx context.Context, email string) ([]model.CardRequest, error)
	BlockedCardsByEmail(ctx context.Context, email string) ([]model.BlockedCard, error)
	Promotions(ctx context.Context) ([]model.Promotion, error)
}

// Service отвечает на запросы о пользователях, кошельках и операциях.
// Все запросы тотальны: отсутствие ключа даёт пустой результат, а не
// ошибку. Пользователи адресуются по email.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService создаёт сервис над указанным источником данных.
func NewService(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// AuthenticateUser проверяет email и пароль пользователя и возвращает его профиль.
// Используется моковым сервером; клиентская часть ходит через сервис идентификации.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.UserProfile, error) {
	p, err := s.repo.ProfileByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, repository.ErrUserNotFound
	}

	hashed := hashPassword(email, password)
	stored := hashPassword(email, p.Password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(stored) {
		return nil, ErrInvalidCredentials
	}

	return p, nil
}

func hashPassword(email, password string) []byte {
	sum := sha256.Sum256([]byte(email + ":" + password))
	return sum[:]
}

// GetUserProfile возвращает профиль пользователя по email или nil.
func (s *Service) GetUserProfile(ctx context.Context, email string) (*model.UserProfile, error) {
	return s.repo.ProfileByEmail(ctx, email)
}

// ListProfiles возвращает все профили пользователей.
func (s *Service) ListProfiles(ctx context.Context) ([]model.UserProfile, error) {
	return s.repo.Profiles(ctx)
}

// GetWalletByEmail возвращает кошелёк по email владельца или nil.
func (s *Service) GetWalletByEmail(ctx context.Context, email string) (*model.Wallet, error) {
	return s.repo.WalletByEmail(ctx, email)
}

// GetWalletByUserID возвращает кошелёк по идентификатору пользователя
// линейным перебором всех кошельков.
func (s *Service) GetWalletByUserID(ctx context.Context, userID string) (*model.Wallet, error) {
	wallets, err := s.repo.Wallets(ctx)
	if err != nil {
		return nil, err
	}

	for i := range wallets {
		if wallets[i].UserID == userID {
			w := wallets[i]
			return &w, nil
		}
	}
	return nil, nil
}

// GetRecentTransactions возвращает префикс списка последних операций
// кошелька длиной min(limit, len). Неположительный limit заменяется
// значением по умолчанию. Список последних операций ведётся в наборе
// данных отдельно от полного списка.
func (s *Service) GetRecentTransactions(ctx context.Context, email string, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	w, err := s.repo.WalletByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, nil
	}

	if limit > len(w.RecentTransactions) {
		limit = len(w.RecentTransactions)
	}
	return w.RecentTransactions[:limit], nil
}

// GetAllTransactions возвращает полный список операций пользователя.
func (s *Service) GetAllTransactions(ctx context.Context, email string) ([]model.Transaction, error) {
	w, err := s.repo.WalletByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, nil
	}
	return w.Transactions, nil
}

// GetTransactionsByType возвращает операции пользователя указанного типа.
func (s *Service) GetTransactionsByType(ctx context.Context, email string, t model.TransactionType) ([]model.Transaction, error) {
	txs, err := s.GetAllTransactions(ctx, email)
	if err != nil {
		return nil, err
	}

	var out []model.Transaction
	for _, tx := range txs {
		if tx.Type == t {
			out = append(out, tx)
		}
	}
	return out, nil
}

// GetTransactionsByStatus возвращает операции пользователя с указанным статусом.
func (s *Service) GetTransactionsByStatus(ctx context.Context, email string, st model.TransactionStatus) ([]model.Transaction, error) {
	txs, err := s.GetAllTransactions(ctx, email)
	if err != nil {
		return nil, err
	}

	var out []model.Transaction
	for _, tx := range txs {
		if tx.Status == st {
			out = append(out, tx)
		}
	}
	return out, nil
}

// GetPaymentMethods возвращает сохранённые способы оплаты пользователя.
func (s *Service) GetPaymentMethods(ctx context.Context, email string) ([]model.PaymentMethod, error) {
	w, err := s.repo.WalletByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, nil
	}
	return w.PaymentMethods, nil
}

// GetDefaultPaymentMethod возвращает способ оплаты по умолчанию или nil.
func (s *Service) GetDefaultPaymentMethod(ctx context.Context, email string) (*model.PaymentMethod, error) {
	methods, err := s.GetPaymentMethods(ctx, email)
	if err != nil {
		return nil, err
	}

	for i := range methods {
		if methods[i].Default {
			m := methods[i]
			return &m, nil
		}
	}
	return nil, nil
}

// GetTravelCard возвращает транспортную карту пользователя или nil.
func (s *Service) GetTravelCard(ctx context.Context, email string) (*model.TravelCard, error) {
	w, err := s.repo.WalletByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, nil
	}
	return w.Card, nil
}

// GetBalance возвращает текущий баланс кошелька; 0 при его отсутствии.
func (s *Service) GetBalance(ctx context.Context, email string) (float64, error) {
	w, err := s.repo.WalletByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	if w == nil {
		return 0, nil
	}
	return w.Balance, nil
}

// GetCardRequests возвращает заявки пользователя на карты в порядке набора данных.
func (s *Service) GetCardRequests(ctx context.Context, email string) ([]model.CardRequest, error) {
	return s.repo.CardRequestsByEmail(ctx, email)
}

// GetLatestCardRequest возвращает последний элемент отфильтрованного
// списка заявок. Порядок — порядок набора данных, не хронологический,
// поэтому вызывающий не должен полагаться на «свежесть» по времени.
func (s *Service) GetLatestCardRequest(ctx context.Context, email string) (*model.CardRequest, error) {
	requests, err := s.repo.CardRequestsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, nil
	}

	latest := requests[len(requests)-1]
	return &latest, nil
}

// GetBlockedCards возвращает заблокированные карты пользователя.
func (s *Service) GetBlockedCards(ctx context.Context, email string) ([]model.BlockedCard, error) {
	return s.repo.BlockedCardsByEmail(ctx, email)
}

// GetActivePromotions возвращает действующие акции. Акции глобальны
// и не фильтруются по пользователю.
func (s *Service) GetActivePromotions(ctx context.Context) ([]model.Promotion, error) {
	promos, err := s.repo.Promotions(ctx)
	if err != nil {
		return nil, err
	}

	var out []model.Promotion
	for _, p := range promos {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

// isSpending отбирает завершённые расходные операции: оплаты и
// списания с транспортной карты.
func isSpending(tx model.Transaction) bool {
	if tx.Status != model.TransactionCompleted {
		return false
	}
	return tx.Type == model.TransactionPayment || tx.Type == model.TransactionCardUse
}

// GetMonthlySpending возвращает сумму расходов пользователя за указанный месяц.
func (s *Service) GetMonthlySpending(ctx context.Context, email string, month time.Month, year int) (float64, error) {
	txs, err := s.GetAllTransactions(ctx, email)
	if err != nil {
		return 0, err
	}

	var total float64
	for _, tx := range txs {
		if !isSpending(tx) {
			continue
		}
		if tx.Timestamp.Month() == month && tx.Timestamp.Year() == year {
			total += tx.Amount
		}
	}
	return total, nil
}

// GetDailySpending возвращает сумму расходов пользователя за календарный день.
// Сравнение идёт по равенству календарной даты, а не по диапазону времени.
func (s *Service) GetDailySpending(ctx context.Context, email string, day time.Time) (float64, error) {
	txs, err := s.GetAllTransactions(ctx, email)
	if err != nil {
		return 0, err
	}

	wantYear, wantMonth, wantDay := day.Date()

	var total float64
	for _, tx := range txs {
		if !isSpending(tx) {
			continue
		}
		y, m, d := tx.Timestamp.Date()
		if y == wantYear && m == wantMonth && d == wantDay {
			total += tx.Amount
		}
	}
	return total, nil
}

// SimulateTopup имитирует пополнение кошелька: намерение фиксируется в
// логе, возвращается синтетическая квитанция. Набор данных не изменяется.
func (s *Service) SimulateTopup(ctx context.Context, email string, amount float64) (*model.Transaction, error) {
	receipt := &model.Transaction{
		ID:          uuid.NewString(),
		Email:       email,
		Type:        model.TransactionTopup,
		Amount:      amount,
		Status:      model.TransactionCompleted,
		Timestamp:   time.Now(),
		Description: "Simulated top-up",
	}

	s.logger.Info("simulated topup",
		zap.String("email", email),
		zap.Float64("amount", amount),
		zap.String("transaction", receipt.ID))

	return receipt, nil
}

// SimulateCardRequest имитирует заявку на выпуск карты. Набор данных не изменяется.
func (s *Service) SimulateCardRequest(ctx context.Context, email, cardType string) (*model.CardRequest, error) {
	receipt := &model.CardRequest{
		ID:          uuid.NewString(),
		Email:       email,
		CardType:    cardType,
		Status:      "pending",
		RequestedAt: time.Now(),
	}

	s.logger.Info("simulated card request",
		zap.String("email", email),
		zap.String("cardType", cardType),
		zap.String("request", receipt.ID))

	return receipt, nil
}

// SimulateCardBlock имитирует блокировку карты. Набор данных не изменяется.
func (s *Service) SimulateCardBlock(ctx context.Context, email, cardNumber, reason string) (*model.BlockedCard, error) {
	receipt := &model.BlockedCard{
		ID:         uuid.NewString(),
		Email:      email,
		CardNumber: cardNumber,
		Reason:     reason,
		BlockedAt:  time.Now(),
	}

	s.logger.Info("simulated card block",
		zap.String("email", email),
		zap.String("card", cardNumber),
		zap.String("reason", reason))

	return receipt, nil
}
