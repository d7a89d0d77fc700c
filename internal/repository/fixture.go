// Package repository содержит источники данных о пользователях и кошельках:
// встроенный фиксированный набор и опциональный PostgreSQL-бэкенд.
package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkoroteev/buspay/internal/model"
)

// ErrUserNotFound возвращается, если пользователь не найден.
var ErrUserNotFound = errors.New("user not found")

//go:embed dataset.json
var defaultDataset []byte

type fixtureData struct {
	Profiles     []model.UserProfile `json:"profiles"`
	Wallets      []model.Wallet      `json:"wallets"`
	CardRequests []model.CardRequest `json:"card_requests"`
	BlockedCards []model.BlockedCard `json:"blocked_cards"`
	Promotions   []model.Promotion   `json:"promotions"`
}

// Fixture предоставляет фиксированный набор данных, загруженный из JSON.
// После загрузки набор не изменяется, поэтому безопасен для
// неограниченного конкурентного чтения без блокировок.
type Fixture struct {
	data fixtureData
}

// NewFixture разбирает и валидирует набор данных из JSON.
func NewFixture(raw []byte) (*Fixture, error) {
	var data fixtureData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	if err := validate(data); err != nil {
		return nil, fmt.Errorf("validate dataset: %w", err)
	}

	return &Fixture{data: data}, nil
}

// Default возвращает встроенный набор данных для разработки и тестов.
func Default() (*Fixture, error) {
	return NewFixture(defaultDataset)
}

func validate(data fixtureData) error {
	for i, p := range data.Profiles {
		if p.Email == "" {
			return fmt.Errorf("profile %d: empty email", i)
		}
	}

	for i, w := range data.Wallets {
		if w.Email == "" {
			return fmt.Errorf("wallet %d: empty email", i)
		}
		if w.Card != nil {
			switch w.Card.Status {
			case model.CardActive, model.CardBlocked, model.CardPending, model.CardExpired:
			default:
				return fmt.Errorf("wallet %s: unknown card status %q", w.Email, w.Card.Status)
			}
		}
		for _, tx := range append(append([]model.Transaction{}, w.Transactions...), w.RecentTransactions...) {
			switch tx.Type {
			case model.TransactionTopup, model.TransactionPayment, model.TransactionRefund, model.TransactionCardUse:
			default:
				return fmt.Errorf("transaction %s: unknown type %q", tx.ID, tx.Type)
			}
			switch tx.Status {
			case model.TransactionCompleted, model.TransactionPending, model.TransactionFailed:
			default:
				return fmt.Errorf("transaction %s: unknown status %q", tx.ID, tx.Status)
			}
		}
	}

	return nil
}

// Close реализует контракт источника данных; для фикстуры это no-op.
func (f *Fixture) Close() error { return nil }

// Profiles возвращает все профили пользователей.
func (f *Fixture) Profiles(ctx context.Context) ([]model.UserProfile, error) {
	return f.data.Profiles, nil
}

// ProfileByEmail возвращает профиль по email или nil, если его нет.
func (f *Fixture) ProfileByEmail(ctx context.Context, email string) (*model.UserProfile, error) {
	for i := range f.data.Profiles {
		if f.data.Profiles[i].Email == email {
			p := f.data.Profiles[i]
			return &p, nil
		}
	}
	return nil, nil
}

// Wallets возвращает все кошельки.
func (f *Fixture) Wallets(ctx context.Context) ([]model.Wallet, error) {
	return f.data.Wallets, nil
}

// WalletByEmail возвращает кошелёк по email владельца или nil, если его нет.
func (f *Fixture) WalletByEmail(ctx context.Context, email string) (*model.Wallet, error) {
	for i := range f.data.Wallets {
		if f.data.Wallets[i].Email == email {
			w := f.data.Wallets[i]
			return &w, nil
		}
	}
	return nil, nil
}

// CardRequestsByEmail возвращает заявки на карты для указанного email
// в порядке следования в наборе данных.
func (f *Fixture) CardRequestsByEmail(ctx context.Context, email string) ([]model.CardRequest, error) {
	var out []model.CardRequest
	for _, r := range f.data.CardRequests {
		if r.Email == email {
			out = append(out, r)
		}
	}
	return out, nil
}

// BlockedCardsByEmail возвращает заблокированные карты для указанного email.
func (f *Fixture) BlockedCardsByEmail(ctx context.Context, email string) ([]model.BlockedCard, error) {
	var out []model.BlockedCard
	for _, b := range f.data.BlockedCards {
		if b.Email == email {
			out = append(out, b)
		}
	}
	return out, nil
}

// Promotions возвращает все акции, включая неактивные.
func (f *Fixture) Promotions(ctx context.Context) ([]model.Promotion, error) {
	return f.data.Promotions, nil
}
