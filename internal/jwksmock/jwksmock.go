// Пакет jwksmock — эмулятор провайдера аутентификации для тестовой среды
// и локальной разработки Deckstore: генерирует RSA ключевую пару,
// отдаёт JWKS по GET /jwks и подписывает JWT по POST /token.
package jwksmock

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

// KeyID — kid единственного ключа в JWKS.
const KeyID = "deckstore-dev-key"

// DefaultTTL — время жизни токена по умолчанию.
const DefaultTTL = time.Hour

// ErrSubjectRequired — в запросе токена не указан sub.
var ErrSubjectRequired = errors.New("поле 'sub' обязательно")

// jwksKey представляет один ключ в JWKS (RFC 7517).
type jwksKey struct {
	Kty string `json:"kty"` // Тип ключа (RSA)
	Kid string `json:"kid"`
	Use string `json:"use"` // Назначение (sig)
	Alg string `json:"alg"`
	N   string `json:"n"` // Модуль RSA (base64url)
	E   string `json:"e"` // Экспонента RSA (base64url)
}

type jwksResponse struct {
	Keys []jwksKey `json:"keys"`
}

// TokenRequest — тело запроса POST /token.
type TokenRequest struct {
	Sub        string `json:"sub"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// claims — JWT claims, совместимые с auth middleware Deckstore.
type claims struct {
	jwt.RegisteredClaims
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Issuer — издатель токенов с собственным RSA ключом.
type Issuer struct {
	privateKey *rsa.PrivateKey
	jwks       []byte // кэшированный JSON JWKS
	logger     *slog.Logger
}

// NewIssuer генерирует ключ заданного размера (не меньше 2048 бит).
func NewIssuer(keySize int, logger *slog.Logger) (*Issuer, error) {
	if keySize < 2048 {
		keySize = 2048
	}
	key, err := rsa.GenerateKey(rand.Reader, keySize)
	if err != nil {
		return nil, fmt.Errorf("генерация RSA ключа: %w", err)
	}

	jwks, err := json.Marshal(buildJWKS(&key.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("сериализация JWKS: %w", err)
	}
	return &Issuer{privateKey: key, jwks: jwks, logger: logger}, nil
}

func buildJWKS(pub *rsa.PublicKey) jwksResponse {
	return jwksResponse{Keys: []jwksKey{{
		Kty: "RSA",
		Kid: KeyID,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}}
}

// JWKS возвращает JSON набора публичных ключей.
func (i *Issuer) JWKS() json.RawMessage {
	return i.jwks
}

// Sign подписывает JWT (RS256) для указанного пользователя.
func (i *Issuer) Sign(req TokenRequest) (string, error) {
	if req.Sub == "" {
		return "", ErrSubjectRequired
	}
	ttl := DefaultTTL
	if req.TTLSeconds != 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.Sub,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "deckstore-jwks-mock",
		},
		Name:  req.Name,
		Email: req.Email,
	})
	token.Header["kid"] = KeyID

	s, err := token.SignedString(i.privateKey)
	if err != nil {
		return "", fmt.Errorf("подпись JWT: %w", err)
	}
	return s, nil
}

// Handler возвращает маршруты эмулятора: GET /jwks, POST /token, GET /health.
func (i *Issuer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/jwks", i.handleJWKS)
	r.Post("/token", i.handleToken)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

func (i *Issuer) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(i.jwks)
}

func (i *Issuer) handleToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Невалидный JSON: "+err.Error())
		return
	}

	token, err := i.Sign(req)
	if err != nil {
		if errors.Is(err, ErrSubjectRequired) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		i.logger.Error("Ошибка подписи JWT", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Ошибка генерации токена")
		return
	}

	i.logger.Info("Токен выдан",
		slog.String("sub", req.Sub),
		slog.Int("ttl_seconds", req.TTLSeconds),
	)
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError пишет ошибку в формате {"error":{"code","message"}}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}
