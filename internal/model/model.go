// Package model содержит доменные сущности клиента транспортного сервиса buspay.
package model

import "time"

// Identity представляет неизменяемые идентифицирующие поля аутентифицированного пользователя.
type Identity struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	Phone         string `json:"phone,omitempty"`
	PhoneVerified bool   `json:"phone_verified,omitempty"`
}

// Session описывает текущий аутентифицированный сеанс клиента.
// Сеанс либо отсутствует целиком, либо заполнен целиком: частичное
// состояние не является допустимым.
type Session struct {
	User         Identity     `json:"user"`
	Profile      *UserProfile `json:"profile,omitempty"`
	AccessToken  string       `json:"-"`
	RefreshToken string       `json:"-"`
	ExpiresAt    time.Time    `json:"-"`
}

// AuthResponse описывает ответ сервиса идентификации на запрос входа.
type AuthResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresAt    int64    `json:"expires_at"`
	ExpiresIn    int64    `json:"expires_in"`
	TokenType    string   `json:"token_type"`
	User         Identity `json:"user"`
	WeakPassword bool     `json:"weak_password,omitempty"`
}

// TransactionType описывает тип операции по кошельку.
type TransactionType string

const (
	TransactionTopup   TransactionType = "topup"
	TransactionPayment TransactionType = "payment"
	TransactionRefund  TransactionType = "refund"
	TransactionCardUse TransactionType = "card_use"
)

// TransactionStatus описывает статус обработки операции.
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionPending   TransactionStatus = "pending"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction описывает одну операцию по кошельку пользователя.
// Операции неизменяемы после создания.
type Transaction struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	Type        TransactionType   `json:"type"`
	Amount      float64           `json:"amount"`
	Status      TransactionStatus `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Description string            `json:"description,omitempty"`
}

// CardStatus описывает состояние транспортной карты.
type CardStatus string

const (
	CardActive  CardStatus = "active"
	CardBlocked CardStatus = "blocked"
	CardPending CardStatus = "pending"
	CardExpired CardStatus = "expired"
)

// TravelCard описывает транспортную карту, привязанную к кошельку.
type TravelCard struct {
	Number string     `json:"number"`
	Masked string     `json:"masked"`
	Status CardStatus `json:"status"`
	Expiry string     `json:"expiry"`
}

// PaymentMethod описывает способ оплаты, сохранённый в кошельке.
type PaymentMethod struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Label   string `json:"label"`
	Masked  string `json:"masked,omitempty"`
	Default bool   `json:"default"`
}

// WalletSettings содержит пользовательские настройки кошелька.
type WalletSettings struct {
	NotificationsEnabled bool    `json:"notifications_enabled"`
	SpendingLimit        float64 `json:"spending_limit"`
}

// Wallet описывает кошелёк пользователя.
// Balance хранится как самостоятельное значение и не пересчитывается
// из списка операций.
type Wallet struct {
	UserID             string          `json:"user_id"`
	Email              string          `json:"email"`
	Balance            float64         `json:"balance"`
	Card               *TravelCard     `json:"card,omitempty"`
	Transactions       []Transaction   `json:"transactions"`
	RecentTransactions []Transaction   `json:"recent_transactions"`
	PaymentMethods     []PaymentMethod `json:"payment_methods"`
	Settings           WalletSettings  `json:"settings"`
}

// Trip описывает предстоящую поездку пользователя.
type Trip struct {
	ID        string    `json:"id"`
	Route     string    `json:"route"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	DepartsAt time.Time `json:"departs_at"`
}

// Ticket описывает купленный билет.
type Ticket struct {
	ID          string    `json:"id"`
	Route       string    `json:"route"`
	Price       float64   `json:"price"`
	Status      string    `json:"status"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// Route описывает маршрут в справочнике маршрутов.
type Route struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	From string `json:"from"`
	To   string `json:"to"`
}

// UserProfile агрегирует данные пользователя и его транспортную статистику.
// Запись доступна только на чтение; источником служит внешний набор данных,
// ключом выступает email.
type UserProfile struct {
	ID             string   `json:"id"`
	Email          string   `json:"email"`
	Name           string   `json:"name"`
	Role           string   `json:"role"`
	Phone          string   `json:"phone,omitempty"`
	Language       string   `json:"language,omitempty"`
	TripCount      int      `json:"trip_count"`
	SavedRoutes    int      `json:"saved_routes"`
	WalletBalance  float64  `json:"wallet_balance"`
	UpcomingTrips  []Trip   `json:"upcoming_trips,omitempty"`
	RecentTickets  []Ticket `json:"recent_tickets,omitempty"`
	FavoriteRoutes []Route  `json:"favorite_routes,omitempty"`
	RecentRoutes   []Route  `json:"recent_routes,omitempty"`

	// Password используется только моковым сервером для проверки входа
	// и не попадает в ответы API.
	Password string `json:"password,omitempty"`
}

// CardRequest описывает заявку пользователя на выпуск транспортной карты.
type CardRequest struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	CardType    string    `json:"card_type"`
	Status      string    `json:"status"`
	RequestedAt time.Time `json:"requested_at"`
}

// BlockedCard описывает факт блокировки транспортной карты.
type BlockedCard struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	CardNumber string    `json:"card_number"`
	Reason     string    `json:"reason,omitempty"`
	BlockedAt  time.Time `json:"blocked_at"`
}

// Promotion описывает акцию транспортного сервиса.
// Акции глобальны и не привязаны к конкретному пользователю.
type Promotion struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	ValidUntil  time.Time `json:"valid_until"`
}
