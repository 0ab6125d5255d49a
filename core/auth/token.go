package auth

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
)

const (
	tokenAudience = "Switch2Tech"
	signingMethod = "HS256"
)

var (
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrRefreshExpired = errors.New("refresh has expired")
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role,omitempty"`
}

// Session is an authenticated identity with its access token.
type Session struct {
	Identity     Identity  `json:"identity"`
	AccessToken  string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
	OrigIssuedAt int64     `json:"-"`
}

func (s Session) Valid() bool {
	return s.AccessToken != "" && NowFunc().Before(s.ExpiresAt)
}

func (svc *Service) claimsFor(idt Identity, origIat ...int64) *Claims {
	now := NowFunc()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 && origIat[0] > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    svc.conf.AppName,
			Subject:   idt.ID(),
			Audience:  tokenAudience,
			ExpiresAt: now.Add(svc.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Email:        idt.Email(),
		Role:         idt.Role(),
	}
}

// IssueToken signs a new access token for idt.
// origIat carries the original issue time across refreshes.
func (svc *Service) IssueToken(idt Identity, origIat ...int64) (Session, error) {
	claims := svc.claimsFor(idt, origIat...)
	token := jwt.NewWithClaims(jwt.GetSigningMethod(signingMethod), claims)

	ss, err := token.SignedString(svc.SigningKey())
	if err != nil {
		return Session{}, errors.Wrap(err, "signing token")
	}
	return Session{
		Identity:     idt,
		AccessToken:  ss,
		ExpiresAt:    time.Unix(claims.ExpiresAt, 0),
		OrigIssuedAt: claims.OrigIssuedAt,
	}, nil
}

// ParseToken verifies tokenStr and returns its claims.
func (svc *Service) ParseToken(tokenStr string) (*Claims, error) {
	claims := new(Claims)
	parser := jwt.Parser{ValidMethods: []string{signingMethod}}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return svc.SigningKey(), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SessionFromClaims rebuilds the session of an already verified token.
func (svc *Service) SessionFromClaims(ctx context.Context, tokenStr string, claims *Claims) (Session, error) {
	idt, err := svc.GetIdentity(ctx, claims.Subject)
	if err != nil {
		if err == ErrNotFound {
			return Session{}, ErrInvalidToken
		}
		return Session{}, err
	}
	if !idt.User.IsActive {
		return Session{}, ErrAccountDeactivated
	}
	return Session{
		Identity:     idt,
		AccessToken:  tokenStr,
		ExpiresAt:    time.Unix(claims.ExpiresAt, 0),
		OrigIssuedAt: claims.OrigIssuedAt,
	}, nil
}

// RefreshSession issues a new token for sess, as long as the refresh window opened by the first token is not over.
func (svc *Service) RefreshSession(ctx context.Context, sess Session) (Session, error) {
	refreshLimit := time.Unix(sess.OrigIssuedAt, 0).Add(svc.conf.Server.JWTRefreshExpirationDelta)
	if sess.OrigIssuedAt == 0 || NowFunc().After(refreshLimit) {
		return Session{}, ErrRefreshExpired
	}
	idt, err := svc.GetIdentity(ctx, sess.Identity.ID())
	if err != nil {
		if err == ErrNotFound {
			return Session{}, ErrInvalidToken
		}
		return Session{}, err
	}
	if !idt.User.IsActive {
		return Session{}, ErrAccountDeactivated
	}
	return svc.IssueToken(idt, sess.OrigIssuedAt)
}

func (svc *Service) SigningKey() []byte {
	return []byte(svc.conf.SecretKey)
}
