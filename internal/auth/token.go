package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/studyshelf/apiserver/types"
)

// DefaultTokenTTL is the session lifetime used when no TTL is configured.
const DefaultTokenTTL = 120 * time.Minute

// Claims is the identity snapshot embedded in a session token at issuance.
// It is never refreshed against the user table: revoking approval does not
// invalidate tokens already issued, they simply age out at their expiry.
type Claims struct {
	// Subject is the username the token was issued for.
	Subject string

	// UserID is the numeric id of the user row.
	UserID int

	// Role is the role held at issuance, RoleStudent or RoleTeacher.
	Role string

	// Grade is the school grade held at issuance.
	Grade int

	// IsApproved is the approval flag held at issuance.
	IsApproved bool
}

// DecodeErrorKind distinguishes the two ways token decoding can fail.
type DecodeErrorKind int

const (
	// DecodeMalformed covers bad structure, bad signature, and missing
	// required claims.
	DecodeMalformed DecodeErrorKind = iota

	// DecodeExpired means the token was valid but its expiry has passed.
	DecodeExpired
)

// DecodeError is the tagged failure returned by Codec.Decode.
type DecodeError struct {
	Kind DecodeErrorKind
	err  error
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case DecodeExpired:
		return fmt.Sprintf("token expired: %v", e.err)
	default:
		return fmt.Sprintf("token malformed: %v", e.err)
	}
}

func (e *DecodeError) Unwrap() error {
	return e.err
}

type tokenClaims struct {
	UserID     int    `json:"id"`
	Role       string `json:"role"`
	Grade      int    `json:"grade"`
	IsApproved bool   `json:"is_approved"`
	jwt.RegisteredClaims
}

// Codec issues and verifies signed session tokens. The signing secret and
// lifetime are injected at construction; the codec holds no other state
// and performs no I/O.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec constructs a Codec with the given HS256 secret and token
// lifetime. A non-positive ttl falls back to DefaultTokenTTL.
func NewCodec(secret string, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue produces a signed token carrying a snapshot of the user's identity,
// role, grade, and approval flag, expiring ttl from now.
func (c *Codec) Issue(user types.User) (string, error) {
	now := c.now()
	claims := tokenClaims{
		UserID:     user.ID,
		Role:       user.Role,
		Grade:      user.Grade,
		IsApproved: user.IsApproved,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Decode verifies the token's signature and expiry and returns the embedded
// claim snapshot. Failures come back as a *DecodeError: DecodeExpired when
// the token is past its expiry, DecodeMalformed for everything else. A token
// is invalid at the exact expiry instant. Decode does not consult the user
// table; the snapshot is trusted as-is.
func (c *Codec) Decode(tokenString string) (Claims, error) {
	parsed := tokenClaims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		&parsed,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return c.secret, nil
		},
		jwt.WithTimeFunc(c.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, &DecodeError{Kind: DecodeExpired, err: err}
		}
		return Claims{}, &DecodeError{Kind: DecodeMalformed, err: err}
	}
	if !token.Valid {
		return Claims{}, &DecodeError{Kind: DecodeMalformed, err: errors.New("invalid token")}
	}
	if strings.TrimSpace(parsed.Subject) == "" || parsed.UserID < 1 {
		return Claims{}, &DecodeError{Kind: DecodeMalformed, err: errors.New("missing subject")}
	}

	return Claims{
		Subject:    parsed.Subject,
		UserID:     parsed.UserID,
		Role:       parsed.Role,
		Grade:      parsed.Grade,
		IsApproved: parsed.IsApproved,
	}, nil
}
