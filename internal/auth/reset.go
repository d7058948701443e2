package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/keygate/internal/cache"
	"github.com/kiranshivaraju/keygate/internal/store"
)

const (
	resetIssuer   = "keygate"
	resetAudience = "password-reset"
)

// Mailer delivers password reset links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, link string) error
}

// LogMailer writes reset links to the log instead of sending mail.
type LogMailer struct{}

func (LogMailer) SendPasswordReset(_ context.Context, email, link string) error {
	slog.Info("password reset requested", "email", email, "link", link)
	return nil
}

// SendPasswordResetEmail mails a single-use reset link pointing at redirectTo.
// Unknown addresses succeed silently so callers cannot enumerate accounts.
func (p *Provider) SendPasswordResetEmail(ctx context.Context, email, redirectTo string) error {
	u, err := p.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("send password reset: %w", err)
	}

	jti := uuid.NewString()
	now := p.now()
	claims := jwt.RegisteredClaims{
		Issuer:    resetIssuer,
		Subject:   u.ID.String(),
		Audience:  jwt.ClaimStrings{resetAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.resetTTL)),
		ID:        jti,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.resetSecret)
	if err != nil {
		return fmt.Errorf("sign reset token: %w", err)
	}
	if err := p.cache.Set(ctx, cache.ResetTokenKey(jti), []byte(u.ID.String()), p.resetTTL); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	link, err := resetLink(redirectTo, token)
	if err != nil {
		return err
	}
	if err := p.mailer.SendPasswordReset(ctx, u.Email, link); err != nil {
		return fmt.Errorf("deliver reset email: %w", err)
	}
	return nil
}

// UpdateUserPassword sets a new password using a reset token. Each token
// works once: it is consumed atomically before the password is written, so
// concurrent confirmations of the same token cannot both succeed. A weak
// password is rejected before the token is touched.
func (p *Provider) UpdateUserPassword(ctx context.Context, resetToken, newPassword string) error {
	claims, err := p.parseResetToken(resetToken)
	if err != nil {
		return ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ErrInvalidToken
	}
	hash, err := p.hash(newPassword)
	if err != nil {
		return err
	}

	key := cache.ResetTokenKey(claims.ID)
	_, ok, err := p.cache.Take(ctx, key)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if !ok {
		return ErrInvalidToken
	}

	if err := p.users.UpdateUserPassword(ctx, userID, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		p.restoreResetToken(ctx, key, userID, claims)
		return fmt.Errorf("update password: %w", err)
	}
	slog.Info("password updated", "user_id", userID)
	return nil
}

// restoreResetToken puts a consumed token back after a store failure so the
// user can retry with the same link until it expires.
func (p *Provider) restoreResetToken(ctx context.Context, key string, userID uuid.UUID, claims *jwt.RegisteredClaims) {
	remaining := claims.ExpiresAt.Sub(p.now())
	if remaining <= 0 {
		return
	}
	if err := p.cache.Set(ctx, key, []byte(userID.String()), remaining); err != nil {
		slog.Warn("failed to restore reset token", "error", err)
	}
}

func (p *Provider) parseResetToken(raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.resetSecret, nil
	},
		jwt.WithIssuer(resetIssuer),
		jwt.WithAudience(resetAudience),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func resetLink(redirectTo, token string) (string, error) {
	u, err := url.Parse(redirectTo)
	if err != nil {
		return "", fmt.Errorf("parse reset redirect: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
