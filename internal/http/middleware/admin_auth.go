package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/storybook-admin/internal/http/response"
	"github.com/yungbote/storybook-admin/internal/platform/ctxutil"
	"github.com/yungbote/storybook-admin/internal/platform/logger"
)

// AdminAuth verifies HS256 bearer tokens issued to console operators.
type AdminAuth struct {
	log    *logger.Logger
	secret []byte
	issuer string
}

func NewAdminAuth(log *logger.Logger, secret, issuer string) *AdminAuth {
	return &AdminAuth{
		log:    log.With("middleware", "AdminAuth"),
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
	}
}

func (a *AdminAuth) RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		if token == "" {
			c.Abort()
			response.RespondError(c, http.StatusUnauthorized, "missing_token", errors.New("missing bearer token"))
			return
		}
		subject, err := a.verify(token)
		if err != nil {
			a.log.Warn("Rejected operator token", "error", err)
			c.Abort()
			response.RespondError(c, http.StatusUnauthorized, "invalid_token", err)
			return
		}
		ctx := ctxutil.WithOperator(c.Request.Context(), &ctxutil.Operator{Subject: subject})
		c.Request = c.Request.WithContext(ctx)
		c.Set("operator", subject)
		c.Next()
	}
}

func (a *AdminAuth) verify(raw string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if !tok.Valid {
		return "", errors.New("token not valid")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

func extractBearer(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
