package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bankcore/apperrors"
	"bankcore/models"
	"bankcore/services"
	"bankcore/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const (
	identityKey  contextKey = "identity"
	requestIDKey contextKey = "request_id"

	// RequestIDHeader заголовок с идентификатором запроса
	RequestIDHeader = "X-Request-ID"
)

// Claims содержимое токена доступа
type Claims struct {
	UserID uint        `json:"user_id"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier выпускает и проверяет HS256 токены
type TokenVerifier struct {
	key []byte
	now func() time.Time
}

// NewTokenVerifier создает TokenVerifier с общим секретом
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{key: []byte(secret), now: time.Now}
}

// Issue создает подписанный токен для пользователя
func (v *TokenVerifier) Issue(userID uint, role models.Role, ttl time.Duration) (string, time.Time, error) {
	issuedAt := v.now()
	expiresAt := issuedAt.Add(ttl)
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify проверяет подпись и срок действия токена и возвращает личность вызывающего
func (v *TokenVerifier) Verify(tokenString string) (services.Identity, error) {
	if tokenString == "" {
		return services.Identity{}, apperrors.Unauthenticated("требуется токен авторизации")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return services.Identity{}, apperrors.Unauthenticated("срок действия токена истек")
		}
		return services.Identity{}, apperrors.Unauthenticated("недействительный токен")
	}
	if !token.Valid || claims.UserID == 0 {
		return services.Identity{}, apperrors.Unauthenticated("недействительный токен")
	}

	return services.Identity{UserID: claims.UserID, Role: claims.Role}, nil
}

// bearerToken убирает префикс "Bearer " из заголовка Authorization
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// WithIdentity добавляет личность вызывающего в контекст
func WithIdentity(ctx context.Context, id services.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext получает личность вызывающего из контекста
func IdentityFromContext(ctx context.Context) (services.Identity, bool) {
	id, ok := ctx.Value(identityKey).(services.Identity)
	return id, ok
}

// RequestIDFromContext возвращает идентификатор запроса, назначенный LoggingMiddleware
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func writeError(w http.ResponseWriter, err error) {
	status, body := apperrors.Response(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

type LoggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *LoggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware логирует запрос и ответ и назначает запросу идентификатор
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))

		lrw := &LoggingResponseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(lrw, r)

		duration := time.Since(start)
		utils.GetMetrics().RecordRequest(duration, lrw.statusCode >= http.StatusInternalServerError)
		utils.LogInfo("Request %s: %s %s - Status: %d - Duration: %v",
			requestID,
			r.Method,
			r.URL.Path,
			lrw.statusCode,
			duration,
		)
	})
}

// AuthMiddleware проверяет токен и кладет services.Identity в контекст запроса
func AuthMiddleware(verifier *TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := verifier.Verify(bearerToken(r.Header.Get("Authorization")))
			if err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// clientIP адрес клиента без порта
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func setRateLimitHeaders(h http.Header, limiter *utils.RateLimiter, key string) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(limiter.GetRemaining(key)))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(limiter.GetResetTime(key).Unix(), 10))
}

// RateLimitMiddleware ограничивает частоту запросов по пользователю; без токена по IP
func RateLimitMiddleware(limiter *utils.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r)
			if id, ok := IdentityFromContext(r.Context()); ok {
				key = "user:" + strconv.FormatUint(uint64(id.UserID), 10)
			}

			allowed := limiter.Allow(key)
			setRateLimitHeaders(w.Header(), limiter, key)
			if !allowed {
				writeError(w, apperrors.New(apperrors.KindRateLimited, "слишком много запросов, попробуйте позже"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
