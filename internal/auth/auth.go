// Package auth validates HS256 bearer tokens and checks role capabilities.
// Tokens are issued elsewhere; NewToken exists for tooling and tests.
package auth

import (
	"errors"
	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"net/http"
	"time"
)

const ContextKey = "user"

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleShopAdmin Role = "shop_admin"
	RoleUser      Role = "user"
)

type Capability string

const (
	// CatalogWrite allows creating, changing and deleting products and categories.
	CatalogWrite Capability = "catalog:write"
	// OrdersReadAll allows reading orders of any user.
	OrdersReadAll Capability = "orders:read_all"
)

var capabilities = map[Role][]Capability{
	RoleAdmin:     {CatalogWrite, OrdersReadAll},
	RoleShopAdmin: {CatalogWrite},
	RoleUser:      {},
}

func (r Role) Valid() bool {
	_, ok := capabilities[r]
	return ok
}

func (r Role) Can(c Capability) bool {
	for _, granted := range capabilities[r] {
		if granted == c {
			return true
		}
	}
	return false
}

type JwtCustomClaims struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims checks.
func (c *JwtCustomClaims) Validate() error {
	if c.UserID <= 0 {
		return errors.New("token has no user_id")
	}
	if !c.Role.Valid() {
		return errors.New("token has an unknown role")
	}
	return nil
}

// NewToken signs claims for userID with the given role.
func NewToken(secret []byte, userID int64, role Role, ttl time.Duration) (string, error) {
	claims := &JwtCustomClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	tkn := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tkn.SignedString(secret)
}

// Middleware rejects requests without a valid bearer token and stores the
// parsed token under ContextKey.
func Middleware(secret []byte) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: secret,
		ContextKey: ContextKey,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(JwtCustomClaims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided or are invalid."})
		},
	})
}

// ClaimsFrom returns the claims stored by Middleware.
func ClaimsFrom(c echo.Context) (*JwtCustomClaims, bool) {
	token, ok := c.Get(ContextKey).(*jwt.Token)
	if !ok {
		return nil, false
	}
	claims, ok := token.Claims.(*JwtCustomClaims)
	return claims, ok
}

// Require lets the request through only if the caller's role grants capability.
// It must run after Middleware.
func Require(capability Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := ClaimsFrom(c)
			if !ok || !claims.Role.Can(capability) {
				return c.JSON(http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
			}
			return next(c)
		}
	}
}
