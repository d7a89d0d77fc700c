package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/dkoroteev/buspay/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres предоставляет тот же read-only срез данных, что и Fixture,
// но из PostgreSQL. Суммы хранятся в копейках (BIGINT) и конвертируются
// на границе.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres создаёт источник данных и инициализирует схему БД через миграции.
func NewPostgres(dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &Postgres{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *Postgres) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при сериализационных сбоях, дедлоках и
// обрывах соединения.
func (r *Postgres) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
		}

		if isConnectionError(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *Postgres) Close() error {
	r.pool.Close()
	return nil
}

const profileColumns = `email, id, name, role, phone, language, trip_count, saved_routes,
	 wallet_balance_cents, password, upcoming_trips, recent_tickets, favorite_routes, recent_routes`

func scanProfile(row pgx.Row) (*model.UserProfile, error) {
	var (
		p            model.UserProfile
		balanceCents int64
		trips        []byte
		tickets      []byte
		favorites    []byte
		recent       []byte
	)

	err := row.Scan(&p.Email, &p.ID, &p.Name, &p.Role, &p.Phone, &p.Language,
		&p.TripCount, &p.SavedRoutes, &balanceCents, &p.Password,
		&trips, &tickets, &favorites, &recent)
	if err != nil {
		return nil, err
	}

	p.WalletBalance = float64(balanceCents) / 100

	for _, col := range []struct {
		raw []byte
		dst any
	}{
		{trips, &p.UpcomingTrips},
		{tickets, &p.RecentTickets},
		{favorites, &p.FavoriteRoutes},
		{recent, &p.RecentRoutes},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("decode profile collection: %w", err)
		}
	}

	return &p, nil
}

// Profiles возвращает все профили пользователей.
func (r *Postgres) Profiles(ctx context.Context) ([]model.UserProfile, error) {
	var profiles []model.UserProfile

	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY email`)
		if err != nil {
			return fmt.Errorf("select profiles: %w", err)
		}
		defer rows.Close()

		profiles = nil
		for rows.Next() {
			p, err := scanProfile(rows)
			if err != nil {
				return fmt.Errorf("scan profile: %w", err)
			}
			profiles = append(profiles, *p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return profiles, nil
}

// ProfileByEmail возвращает профиль по email или nil, если его нет.
func (r *Postgres) ProfileByEmail(ctx context.Context, email string) (*model.UserProfile, error) {
	var profile *model.UserProfile

	err := r.withRetry(ctx, func(ctx context.Context) error {
		row := r.pool.QueryRow(ctx,
			`SELECT `+profileColumns+` FROM profiles WHERE email = $1`, email)

		p, err := scanProfile(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				profile = nil
				return nil
			}
			return fmt.Errorf("get profile: %w", err)
		}
		profile = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	return profile, nil
}

// Wallets возвращает все кошельки с вложенными операциями и способами оплаты.
func (r *Postgres) Wallets(ctx context.Context) ([]model.Wallet, error) {
	var wallets []model.Wallet

	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx,
			`SELECT email, user_id, balance_cents,
			        card_number, card_masked, card_status, card_expiry,
			        notifications_enabled, spending_limit_cents
			 FROM wallets ORDER BY email`)
		if err != nil {
			return fmt.Errorf("select wallets: %w", err)
		}
		defer rows.Close()

		wallets = nil
		for rows.Next() {
			w, err := scanWallet(rows)
			if err != nil {
				return err
			}
			wallets = append(wallets, *w)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	for i := range wallets {
		if err := r.fillWallet(ctx, &wallets[i]); err != nil {
			return nil, err
		}
	}

	return wallets, nil
}

// WalletByEmail возвращает кошелёк по email владельца или nil, если его нет.
func (r *Postgres) WalletByEmail(ctx context.Context, email string) (*model.Wallet, error) {
	var wallet *model.Wallet

	err := r.withRetry(ctx, func(ctx context.Context) error {
		row := r.pool.QueryRow(ctx,
			`SELECT email, user_id, balance_cents,
			        card_number, card_masked, card_status, card_expiry,
			        notifications_enabled, spending_limit_cents
			 FROM wallets WHERE email = $1`, email)

		w, err := scanWallet(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				wallet = nil
				return nil
			}
			return err
		}
		wallet = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	if wallet == nil {
		return nil, nil
	}

	if err := r.fillWallet(ctx, wallet); err != nil {
		return nil, err
	}

	return wallet, nil
}

func scanWallet(row pgx.Row) (*model.Wallet, error) {
	var (
		w            model.Wallet
		balanceCents int64
		limitCents   int64
		cardNumber   *string
		cardMasked   *string
		cardStatus   *string
		cardExpiry   *string
	)

	err := row.Scan(&w.Email, &w.UserID, &balanceCents,
		&cardNumber, &cardMasked, &cardStatus, &cardExpiry,
		&w.Settings.NotificationsEnabled, &limitCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}

	w.Balance = float64(balanceCents) / 100
	w.Settings.SpendingLimit = float64(limitCents) / 100

	if cardNumber != nil {
		w.Card = &model.TravelCard{
			Number: *cardNumber,
			Status: model.CardStatus(deref(cardStatus)),
			Masked: deref(cardMasked),
			Expiry: deref(cardExpiry),
		}
	}

	return &w, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *Postgres) fillWallet(ctx context.Context, w *model.Wallet) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		txs, err := r.transactionsByEmail(ctx, w.Email, false)
		if err != nil {
			return err
		}
		w.Transactions = txs

		recent, err := r.transactionsByEmail(ctx, w.Email, true)
		if err != nil {
			return err
		}
		w.RecentTransactions = recent

		methods, err := r.paymentMethodsByEmail(ctx, w.Email)
		if err != nil {
			return err
		}
		w.PaymentMethods = methods

		return nil
	})
}

func (r *Postgres) transactionsByEmail(ctx context.Context, email string, recentOnly bool) ([]model.Transaction, error) {
	query := `SELECT id, email, type, amount_cents, status, ts, description
	          FROM transactions WHERE email = $1 ORDER BY ts`
	if recentOnly {
		query = `SELECT id, email, type, amount_cents, status, ts, description
		         FROM transactions WHERE email = $1 AND recent_rank IS NOT NULL
		         ORDER BY recent_rank`
	}

	rows, err := r.pool.Query(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var (
			tx          model.Transaction
			amountCents int64
		)
		if err := rows.Scan(&tx.ID, &tx.Email, &tx.Type, &amountCents, &tx.Status, &tx.Timestamp, &tx.Description); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Amount = float64(amountCents) / 100
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}

func (r *Postgres) paymentMethodsByEmail(ctx context.Context, email string) ([]model.PaymentMethod, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, type, label, masked, is_default
		 FROM payment_methods WHERE email = $1 ORDER BY id`, email)
	if err != nil {
		return nil, fmt.Errorf("select payment methods: %w", err)
	}
	defer rows.Close()

	var methods []model.PaymentMethod
	for rows.Next() {
		var m model.PaymentMethod
		if err := rows.Scan(&m.ID, &m.Type, &m.Label, &m.Masked, &m.Default); err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		methods = append(methods, m)
	}

	return methods, rows.Err()
}

// CardRequestsByEmail возвращает заявки на карты для указанного email.
func (r *Postgres) CardRequestsByEmail(ctx context.Context, email string) ([]model.CardRequest, error) {
	var requests []model.CardRequest

	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx,
			`SELECT id, email, card_type, status, requested_at
			 FROM card_requests WHERE email = $1 ORDER BY seq`, email)
		if err != nil {
			return fmt.Errorf("select card requests: %w", err)
		}
		defer rows.Close()

		requests = nil
		for rows.Next() {
			var cr model.CardRequest
			if err := rows.Scan(&cr.ID, &cr.Email, &cr.CardType, &cr.Status, &cr.RequestedAt); err != nil {
				return fmt.Errorf("scan card request: %w", err)
			}
			requests = append(requests, cr)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return requests, nil
}

// BlockedCardsByEmail возвращает заблокированные карты для указанного email.
func (r *Postgres) BlockedCardsByEmail(ctx context.Context, email string) ([]model.BlockedCard, error) {
	var cards []model.BlockedCard

	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx,
			`SELECT id, email, card_number, reason, blocked_at
			 FROM blocked_cards WHERE email = $1 ORDER BY blocked_at`, email)
		if err != nil {
			return fmt.Errorf("select blocked cards: %w", err)
		}
		defer rows.Close()

		cards = nil
		for rows.Next() {
			var bc model.BlockedCard
			if err := rows.Scan(&bc.ID, &bc.Email, &bc.CardNumber, &bc.Reason, &bc.BlockedAt); err != nil {
				return fmt.Errorf("scan blocked card: %w", err)
			}
			cards = append(cards, bc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return cards, nil
}

// Promotions возвращает все акции, включая неактивные.
func (r *Postgres) Promotions(ctx context.Context) ([]model.Promotion, error) {
	var promos []model.Promotion

	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx,
			`SELECT id, title, description, active, valid_until
			 FROM promotions ORDER BY id`)
		if err != nil {
			return fmt.Errorf("select promotions: %w", err)
		}
		defer rows.Close()

		promos = nil
		for rows.Next() {
			var p model.Promotion
			if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.Active, &p.ValidUntil); err != nil {
				return fmt.Errorf("scan promotion: %w", err)
			}
			promos = append(promos, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return promos, nil
}
