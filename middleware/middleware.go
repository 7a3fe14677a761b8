package middleware

import (
	"net/http"
	"time"

	"bankcore/apperrors"
	"bankcore/services"
	"bankcore/utils"

	"github.com/gin-gonic/gin"
)

const ginIdentityKey = "identity"

// abortWithError прерывает цепочку gin и отвечает ошибкой в общем формате
func abortWithError(c *gin.Context, err error) {
	status, body := apperrors.Response(err)
	c.AbortWithStatusJSON(status, body)
}

// RateLimit middleware для ограничения частоты запросов по IP-адресу клиента
func RateLimit(limiter *utils.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		allowed := limiter.Allow(clientIP)
		setRateLimitHeaders(c.Writer.Header(), limiter, clientIP)
		if !allowed {
			abortWithError(c, apperrors.New(apperrors.KindRateLimited, "слишком много запросов, попробуйте позже"))
			return
		}

		c.Next()
	}
}

// Logger middleware для логирования запросов
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		duration := time.Since(startTime)
		utils.GetMetrics().RecordRequest(duration, c.Writer.Status() >= http.StatusInternalServerError)
		utils.LogInfo("Admin request: %s %s - Status: %d - Duration: %v",
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			duration,
		)

		for _, e := range c.Errors {
			utils.LogError("Error: %v", e)
		}
	}
}

// Recovery middleware для обработки паник
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				utils.LogError("Panic recovered: %v", err)
				abortWithError(c, apperrors.New(apperrors.KindInternal, "внутренняя ошибка сервера"))
			}
		}()

		c.Next()
	}
}

// RequireAdmin проверяет токен и роль ADMIN; личность доступна через GinIdentity
func RequireAdmin(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := verifier.Verify(bearerToken(c.GetHeader("Authorization")))
		if err != nil {
			abortWithError(c, err)
			return
		}
		if !id.IsAdmin() {
			abortWithError(c, apperrors.Forbidden("операция доступна только администратору"))
			return
		}

		c.Set(ginIdentityKey, id)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// GinIdentity возвращает личность, сохраненную RequireAdmin
func GinIdentity(c *gin.Context) (services.Identity, bool) {
	value, ok := c.Get(ginIdentityKey)
	if !ok {
		return services.Identity{}, false
	}
	id, ok := value.(services.Identity)
	return id, ok
}

// CORSMiddleware middleware для CORS
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
