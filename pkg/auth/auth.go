package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jakechorley/shelter-shifts/pkg/cache"
	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/db"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserDisabled       = errors.New("user disabled")
)

const revokedPrefix = "revoked:"

// Claims carried by a session token. Subject is the user id.
type Claims struct {
	Roles []int16 `json:"roles"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() string {
	return c.Subject
}

// RoleSet returns the normalised roles in the token
func (c *Claims) RoleSet() model.RoleSet {
	return model.NormalizeRoles(c.Roles)
}

// Session is the result of a successful sign-in
type Session struct {
	Token     string     `json:"token"`
	User      model.User `json:"user"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// Provider signs users in against the directory and issues HS256 tokens.
// Signed-out token ids are kept in the cache until the token would expire.
type Provider struct {
	users   db.UserStore
	revoked cache.Cache
	secret  []byte
	ttl     time.Duration
	logger  *zap.Logger

	// Now is the clock used to issue and check tokens
	Now func() time.Time
}

func NewProvider(users db.UserStore, revoked cache.Cache, secret string, ttl time.Duration, logger *zap.Logger) *Provider {
	return &Provider{
		users:   users,
		revoked: revoked,
		secret:  []byte(secret),
		ttl:     ttl,
		logger:  logger,
		Now:     time.Now,
	}
}

// SignIn checks the password and returns a new session.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)

	record, err := p.users.GetUserByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		p.logger.Info("Sign-in for unknown email", zap.String("email", email))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !CheckPassword(record.PasswordHash, password) {
		p.logger.Info("Sign-in with wrong password", zap.String("uid", record.ID))
		return nil, ErrInvalidCredentials
	}
	if !record.Enabled {
		return nil, ErrUserDisabled
	}

	user := record.ToModel()
	now := p.Now()
	expiresAt := now.Add(p.ttl)

	claims := Claims{
		Roles: user.Roles.Codes(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	p.logger.Info("User signed in", zap.String("uid", user.ID))
	return &Session{Token: token, User: user, ExpiresAt: expiresAt}, nil
}

// Verify parses and checks a token, including revocation
func (p *Provider) Verify(ctx context.Context, token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or id", ErrInvalidToken)
	}

	// An unreachable cache must not sign everyone out; revocations are lost
	// until it returns.
	_, revoked, err := p.revoked.Get(ctx, revokedPrefix+claims.ID)
	if err != nil {
		p.logger.Warn("Token revocation check failed, accepting token",
			zap.String("uid", claims.Subject),
			zap.Error(err))
		return claims, nil
	}
	if revoked {
		return nil, fmt.Errorf("%w: signed out", ErrInvalidToken)
	}

	return claims, nil
}

// SignOut revokes the token until its expiry. Signing out an invalid token is an error.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	claims, err := p.Verify(ctx, token)
	if err != nil {
		return err
	}

	ttl := claims.ExpiresAt.Time.Sub(p.Now())
	if ttl <= 0 {
		return nil
	}
	if err := p.revoked.Set(ctx, revokedPrefix+claims.ID, []byte(claims.Subject), ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	p.logger.Info("User signed out", zap.String("uid", claims.Subject))
	return nil
}

// HashPassword hashes with the given bcrypt cost; 0 means bcrypt.DefaultCost
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
