package middleware

import (
	"net/http"
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/moritzWa/pickup-sub004/internal/domain"
)

const userContextKey = "auth_user"

// UserClaims is the token the API gateway mints after authenticating the
// caller. Withdrawal entitlements ride along so this service never needs to
// call back into the user store.
type UserClaims struct {
	jwt.StandardClaims
	UserID            string `json:"user_id"`
	CanWithdraw       bool   `json:"can_withdraw"`
	InitialDepositUSD string `json:"initial_deposit_usd"`
	HasLockedFunds    bool   `json:"has_locked_funds"`
}

// JWTAuth validates the bearer token and puts the resolved user on the
// request context. Health endpoints are exempt.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/ready" || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "Missing bearer token",
			})
			c.Abort()
			return
		}

		claims := &UserClaims{}
		token, err := jwt.ParseWithClaims(header[len("Bearer "):], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid || claims.UserID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		initialDeposit, err := decimal.NewFromString(claims.InitialDepositUSD)
		if err != nil {
			initialDeposit = decimal.Zero
		}

		c.Set(userContextKey, domain.User{
			ID:                claims.UserID,
			CanWithdraw:       claims.CanWithdraw,
			InitialDepositUSD: initialDeposit,
			HasLockedFunds:    claims.HasLockedFunds,
		})
		c.Next()
	}
}

// UserFromContext returns the authenticated user set by JWTAuth.
func UserFromContext(c *gin.Context) (domain.User, bool) {
	value, exists := c.Get(userContextKey)
	if !exists {
		return domain.User{}, false
	}
	user, ok := value.(domain.User)
	return user, ok
}
