// Package session управляет жизненным циклом аутентифицированного сеанса:
// вход, восстановление после перезапуска, проверка истечения токена и выход.
package session

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dkoroteev/buspay/internal/model"
	"github.com/dkoroteev/buspay/internal/storage"
)

// Ключи полей сеанса в долговременном хранилище.
const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyExpiresAt    = "token_expires_at"
	keyUserData     = "user_data"
	keyOnboarding   = "hasCompletedOnboarding"
)

var sessionKeys = []string{keyAccessToken, keyRefreshToken, keyExpiresAt, keyUserData}

// AuthClient описывает контракт клиента сервиса идентификации.
type AuthClient interface {
	Login(ctx context.Context, email, password string) (*model.AuthResponse, error)
}

// ProfileResolver возвращает профиль пользователя по email.
// Отсутствие профиля не является ошибкой: возвращается nil.
type ProfileResolver interface {
	GetUserProfile(ctx context.Context, email string) (*model.UserProfile, error)
}

// Store хранит текущий аутентифицированный сеанс и синхронизирует его
// с долговременным хранилищем. Каждый успешный вход и выход записывается
// сразу, без буферизации. Конкурентные входы не упорядочиваются между
// собой: побеждает последняя запись.
type Store struct {
	storage  storage.Store
	auth     AuthClient
	profiles ProfileResolver
	logger   *zap.Logger

	mu      sync.Mutex
	current *model.Session
}

// NewStore создаёт хранилище сеанса с указанными зависимостями.
func NewStore(st storage.Store, auth AuthClient, profiles ProfileResolver, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		storage:  st,
		auth:     auth,
		profiles: profiles,
		logger:   logger,
	}
}

// Restore пытается загрузить ранее сохранённый сеанс. Сеанс считается
// присутствующим только если все поля на месте и разбираются без ошибок;
// частично записанный или повреждённый сеанс удаляется и трактуется как
// его отсутствие, а не как ошибка.
func (s *Store) Restore() *model.Session {
	accessToken, ok := s.getKey(keyAccessToken)
	if !ok {
		s.invalidate()
		return nil
	}

	refreshToken, ok := s.getKey(keyRefreshToken)
	if !ok {
		s.invalidate()
		return nil
	}

	expiresRaw, ok := s.getKey(keyExpiresAt)
	if !ok {
		s.invalidate()
		return nil
	}
	expiresUnix, err := strconv.ParseInt(expiresRaw, 10, 64)
	if err != nil {
		s.logger.Warn("corrupt token_expires_at, dropping session", zap.Error(err))
		s.invalidate()
		return nil
	}

	userRaw, ok := s.getKey(keyUserData)
	if !ok {
		s.invalidate()
		return nil
	}

	var sess model.Session
	if err := json.Unmarshal([]byte(userRaw), &sess); err != nil {
		s.logger.Warn("corrupt user_data, dropping session", zap.Error(err))
		s.invalidate()
		return nil
	}

	sess.AccessToken = accessToken
	sess.RefreshToken = refreshToken
	sess.ExpiresAt = time.Unix(expiresUnix, 0)

	s.mu.Lock()
	s.current = &sess
	s.mu.Unlock()

	return &sess
}

// SignIn выполняет вход с указанными учётными данными. При успехе сеанс
// сохраняется в долговременное хранилище и становится текущим; при
// ошибке аутентификации сохранённое состояние не изменяется.
func (s *Store) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	resp, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	profile := s.resolveProfile(ctx, resp.User)

	sess := &model.Session{
		User:         resp.User,
		Profile:      profile,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Unix(resp.ExpiresAt, 0),
	}

	s.persist(sess, resp.ExpiresAt)

	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()

	return sess, nil
}

// SignOut удаляет все поля сеанса из хранилища и сбрасывает текущий сеанс.
// Всегда завершается успешно: ошибки хранилища логируются, но не
// возвращаются, поскольку состояние в памяти сброшено в любом случае.
// Повторный выход является no-op.
func (s *Store) SignOut() {
	if err := s.storage.RemoveMany(sessionKeys); err != nil {
		s.logger.Warn("sign-out storage cleanup failed", zap.Error(err))
	}

	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// IsExpired сообщает, истёк ли срок действия токена. Отсутствие сеанса
// или отметки истечения трактуется как истёкший токен.
func (s *Store) IsExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.ExpiresAt.IsZero() {
		return true
	}
	return !time.Now().Before(s.current.ExpiresAt)
}

// IsAuthenticated сообщает, есть ли действующий сеанс.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	if current == nil || current.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Before(current.ExpiresAt)
}

// Current возвращает текущий сеанс или nil, если пользователь не вошёл.
func (s *Store) Current() *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Token возвращает текущий bearer-токен или пустую строку.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ""
	}
	return s.current.AccessToken
}

// CompleteOnboarding помечает прохождение онбординга в хранилище.
func (s *Store) CompleteOnboarding() {
	if err := s.storage.Set(keyOnboarding, "true"); err != nil {
		s.logger.Warn("persist onboarding flag failed", zap.Error(err))
	}
}

// HasCompletedOnboarding сообщает, проходил ли пользователь онбординг.
// Флаг переживает выход из аккаунта.
func (s *Store) HasCompletedOnboarding() bool {
	v, ok, err := s.storage.Get(keyOnboarding)
	if err != nil || !ok {
		return false
	}
	completed, err := strconv.ParseBool(v)
	return err == nil && completed
}

func (s *Store) resolveProfile(ctx context.Context, user model.Identity) *model.UserProfile {
	if s.profiles != nil {
		profile, err := s.profiles.GetUserProfile(ctx, user.Email)
		if err != nil {
			s.logger.Warn("profile lookup failed, synthesizing minimal profile",
				zap.String("email", user.Email), zap.Error(err))
		} else if profile != nil {
			return profile
		}
	}

	// Минимальный профиль из данных аутентификации
	return &model.UserProfile{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role,
		Phone: user.Phone,
	}
}

func (s *Store) persist(sess *model.Session, expiresUnix int64) {
	userData, err := json.Marshal(sess)
	if err != nil {
		s.logger.Warn("marshal session failed", zap.Error(err))
		return
	}

	writes := []struct {
		key   string
		value string
	}{
		{keyAccessToken, sess.AccessToken},
		{keyRefreshToken, sess.RefreshToken},
		{keyExpiresAt, strconv.FormatInt(expiresUnix, 10)},
		{keyUserData, string(userData)},
		{keyOnboarding, "true"},
	}

	for _, w := range writes {
		if err := s.storage.Set(w.key, w.value); err != nil {
			s.logger.Warn("persist session field failed",
				zap.String("key", w.key), zap.Error(err))
		}
	}
}

func (s *Store) getKey(key string) (string, bool) {
	v, ok, err := s.storage.Get(key)
	if err != nil {
		s.logger.Warn("storage read failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// invalidate удаляет остатки частично записанного сеанса.
func (s *Store) invalidate() {
	if err := s.storage.RemoveMany(sessionKeys); err != nil {
		s.logger.Warn("invalidate partial session failed", zap.Error(err))
	}
}
