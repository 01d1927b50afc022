package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"settlement-service/pkg/common"
)

const (
	RoleAdmin      = "admin"
	adminIDKey     = "admin_id"
	tokenIssuer    = "settlement-service"
	minSecretBytes = 32
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid admin token")
	ErrWeakSecret   = errors.New("admin token secret must be at least 32 bytes")
)

// AdminClaims are the claims of an admin bearer token. Subject is the admin
// id recorded as the actor on every review and declaration.
type AdminClaims struct {
	jwt.Claims
	Role string `json:"role"`
}

type AdminAuth struct {
	Secret []byte
	Now    func() time.Time
}

func NewAdminAuth(secret string) (*AdminAuth, error) {
	if len(secret) < minSecretBytes {
		return nil, ErrWeakSecret
	}
	return &AdminAuth{Secret: []byte(secret), Now: time.Now}, nil
}

// IssueToken signs an HS256 admin token for adminID.
func (a *AdminAuth) IssueToken(adminID string, ttl time.Duration) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: a.Secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", err
	}
	now := a.Now()
	claims := AdminClaims{
		Claims: jwt.Claims{
			Issuer:    tokenIssuer,
			Subject:   adminID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: RoleAdmin,
	}
	return jwt.Signed(signer).Claims(claims).Serialize()
}

// Verify checks the signature, the time window and the admin role, and
// returns the admin id.
func (a *AdminAuth) Verify(raw string) (string, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return "", ErrInvalidToken
	}
	var claims AdminClaims
	if err := tok.Claims(a.Secret, &claims); err != nil {
		return "", ErrInvalidToken
	}
	err = claims.ValidateWithLeeway(jwt.Expected{Issuer: tokenIssuer, Time: a.Now()}, 30*time.Second)
	if err != nil {
		return "", ErrInvalidToken
	}
	if claims.Role != RoleAdmin || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func bearer(header string) (string, error) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(header[len(prefix):]), nil
}

// RequireAdmin rejects requests without a valid admin bearer token.
func (a *AdminAuth) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := bearer(c.GetHeader("Authorization"))
		if err == nil {
			var adminID string
			adminID, err = a.Verify(raw)
			if err == nil {
				c.Set(adminIDKey, adminID)
				c.Next()
				return
			}
		}
		log.WithFields(log.Fields{"path": c.FullPath(), "ip": c.ClientIP()}).Warn("Rejected admin request")
		c.AbortWithStatusJSON(http.StatusUnauthorized, common.NewErrorResponse(err.Error(), "UNAUTHORIZED", http.StatusUnauthorized))
	}
}

// AdminID returns the admin id set by RequireAdmin.
func AdminID(c *gin.Context) string {
	return c.GetString(adminIDKey)
}

type adminCtxKey struct{}

// AdminFromContext returns the admin id set by UnaryInterceptor.
func AdminFromContext(ctx context.Context) string {
	id, _ := ctx.Value(adminCtxKey{}).(string)
	return id
}

// UnaryInterceptor applies the same token check to gRPC calls, reading the
// token from the "authorization" metadata key.
func (a *AdminAuth) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		var header string
		if values := md.Get("authorization"); len(values) > 0 {
			header = values[0]
		}
		raw, err := bearer(header)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		adminID, err := a.Verify(raw)
		if err != nil {
			log.WithField("method", info.FullMethod).Warn("Rejected admin call")
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(context.WithValue(ctx, adminCtxKey{}, adminID), req)
	}
}
