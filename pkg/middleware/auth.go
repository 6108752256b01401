package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"dubbing-service/pkg/config"
	"dubbing-service/pkg/errno"
	"dubbing-service/pkg/restapi"
)

// JWTAuthMiddleware 校验 Bearer Token（HS256）。secret 为空时不做认证。
// The subject claim is stored as user_uuid.
func JWTAuthMiddleware(cfg config.JWTConfig) gin.HandlerFunc {
	if cfg.Secret == "" {
		return func(c *gin.Context) { c.Next() }
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)
	key := []byte(cfg.Secret)

	return func(c *gin.Context) {
		raw, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			restapi.Failed(c, errno.NewBizError(errno.ErrUnauthorized, err.Error()))
			c.Abort()
			return
		}
		claims := &jwt.RegisteredClaims{}
		if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) { return key, nil }); err != nil {
			restapi.Failed(c, errno.NewBizError(errno.ErrUnauthorized, "invalid token"))
			c.Abort()
			return
		}
		if claims.Subject != "" {
			c.Set(KeyUserUUID, claims.Subject)
		}
		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("authorization header must be a bearer token")
	}
	return strings.TrimSpace(token), nil
}

// IssueToken signs an HS256 token for subject; the CLI uses it to mint API tokens.
func IssueToken(cfg config.JWTConfig, subject string, claims jwt.RegisteredClaims) (string, error) {
	if cfg.Secret == "" {
		return "", errors.New("jwt secret is not configured")
	}
	claims.Subject = subject
	if cfg.Issuer != "" {
		claims.Issuer = cfg.Issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}
