// Package dispatch выполняет исходящие HTTP-запросы с bearer-токеном
// текущего сеанса.
package dispatch

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"
)

// ErrUnauthenticated возвращается при попытке отправить запрос без активного сеанса.
var (
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrSessionExpired возвращается, когда сервер ответил 401 и сеанс был сброшен.
	ErrSessionExpired = errors.New("session expired")
)

// SessionStore описывает часть хранилища сеанса, нужную диспетчеру.
type SessionStore interface {
	Token() string
	SignOut()
}

// Dispatcher прикрепляет bearer-токен к исходящим запросам. Ответ 401 от
// любого авторизованного вызова сбрасывает весь сеанс, а не только этот
// вызов. Сброс не дебаунсится: конкурентные 401 приводят к повторным,
// но идемпотентным выходам.
type Dispatcher struct {
	session    SessionStore
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDispatcher создаёт диспетчер поверх указанного хранилища сеанса.
func NewDispatcher(session SessionStore, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		session:    session,
		httpClient: cleanhttp.DefaultPooledClient(),
		logger:     logger,
	}
}

// Send отправляет запрос с токеном текущего сеанса. Без токена запрос
// немедленно завершается ErrUnauthenticated без обращения к сети.
// Все статусы, кроме 401, передаются вызывающему без интерпретации;
// закрытие тела ответа остаётся на вызывающем.
func (d *Dispatcher) Send(req *http.Request) (*http.Response, error) {
	token := d.session.Token()
	if token == "" {
		return nil, ErrUnauthenticated
	}

	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		d.logger.Info("authenticated request rejected, signing out",
			zap.String("url", req.URL.String()))
		d.session.SignOut()

		return nil, ErrSessionExpired
	}

	return resp, nil
}
