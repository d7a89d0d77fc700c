// Package authclient предоставляет HTTP-клиент сервиса идентификации.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/dkoroteev/buspay/internal/model"
)

// ErrNetwork возвращается при транспортной ошибке (нет соединения, таймаут).
var (
	ErrNetwork = errors.New("network error")
	// ErrInvalidFormat возвращается на HTTP 400 — некорректный формат запроса.
	ErrInvalidFormat = errors.New("invalid request format")
	// ErrInvalidCredentials возвращается на HTTP 401 — неверные email или пароль.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUserNotFound возвращается на HTTP 404 — пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrServer возвращается на HTTP 500 — внутренняя ошибка сервиса идентификации.
	ErrServer = errors.New("identity service error")
	// ErrUnknown возвращается на прочие статусы и на нечитаемое тело успешного ответа.
	ErrUnknown = errors.New("unknown auth error")
)

// Client инкапсулирует HTTP-взаимодействие с сервисом идентификации.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// NewClient создаёт клиент сервиса идентификации по указанному базовому адресу.
func NewClient(baseURL string) *Client {
	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = 5 * time.Second

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Login выполняет единственную попытку входа с указанными учётными данными.
// Повторные попытки на этом уровне не выполняются: политика ретраев
// принадлежит вызывающему коду. Результат всегда типизирован: либо
// разобранный ответ, либо одна из ошибок Err*.
func (c *Client) Login(ctx context.Context, email, password string) (*model.AuthResponse, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("%w: auth client not configured", ErrNetwork)
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrUnknown, err)
	}

	url := base + "/api/auth/login"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrUnknown, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var result model.AuthResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("%w: decode response: %v", ErrUnknown, err)
		}
		return &result, nil
	}

	// Тело неуспешного ответа используется только для диагностики
	diag, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return nil, wrapStatus(ErrInvalidFormat, diag)
	case http.StatusUnauthorized:
		return nil, wrapStatus(ErrInvalidCredentials, diag)
	case http.StatusNotFound:
		return nil, wrapStatus(ErrUserNotFound, diag)
	case http.StatusInternalServerError:
		return nil, wrapStatus(ErrServer, diag)
	default:
		return nil, fmt.Errorf("%w: unexpected status %d: %s", ErrUnknown, resp.StatusCode, strings.TrimSpace(string(diag)))
	}
}

func wrapStatus(sentinel error, diag []byte) error {
	text := strings.TrimSpace(string(diag))
	if text == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, text)
}
