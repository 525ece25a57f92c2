package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"bastion-server/internal/config"
	"bastion-server/internal/infrastructure/logger"
)

// Principal is the caller a request acts for. An empty ID means anonymous.
type Principal struct {
	ID        string
	Email     string
	Name      string
	ExpiresAt time.Time
}

func (p Principal) Anonymous() bool {
	return p.ID == ""
}

// Validator checks bearer tokens signed with the shared HS256 secret or a key from the JWKS.
type Validator struct {
	secret       []byte
	jwksURL      string
	issuer       string
	audience     string
	refreshEvery time.Duration
	clockSkew    time.Duration
	log          zerolog.Logger
	jwks         atomic.Pointer[keyfunc.JWKS]
	lastErr      atomic.Value // stores lastErrWrap
}

type lastErrWrap struct{ Err error }

const (
	defaultClockSkew           = 30 * time.Second
	jwksInitialRetryInterval   = time.Second
	jwksInitialRetryMaxBackoff = 10 * time.Second
	jwksInitialRetryTimeout    = time.Minute
)

var (
	hmacMethods = []string{"HS256"}
	jwksMethods = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "PS256"}
)

func NewValidator(ctx context.Context, cfg *config.Config) (*Validator, error) {
	v := &Validator{
		secret:       []byte(strings.TrimSpace(cfg.AuthJWTSecret)),
		jwksURL:      strings.TrimSpace(cfg.AuthJWKSURL),
		issuer:       strings.TrimSpace(cfg.AuthIssuer),
		audience:     strings.TrimSpace(cfg.AuthAudience),
		refreshEvery: cfg.RefreshJWKSInterval,
		clockSkew:    defaultClockSkew,
		log:          logger.Component("auth"),
	}
	v.lastErr.Store(lastErrWrap{Err: nil})

	if len(v.secret) == 0 && v.jwksURL == "" {
		return nil, errors.New("auth requires a jwt secret or a jwks url")
	}
	if v.jwksURL != "" {
		if err := v.initJWKS(ctx); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// NewHMACValidator validates HS256 tokens only.
func NewHMACValidator(secret, issuer, audience string) *Validator {
	v := &Validator{
		secret:    []byte(secret),
		issuer:    issuer,
		audience:  audience,
		clockSkew: defaultClockSkew,
		log:       logger.Component("auth"),
	}
	v.lastErr.Store(lastErrWrap{Err: nil})
	return v
}

func (v *Validator) initJWKS(ctx context.Context) error {
	options := keyfunc.Options{
		Ctx: ctx,
		RefreshErrorHandler: func(err error) {
			v.lastErr.Store(lastErrWrap{Err: err})
			if err != nil {
				v.log.Error().Err(err).Msg("jwks refresh failed")
			}
		},
		RefreshInterval:   v.refreshEvery,
		RefreshUnknownKID: true,
	}

	backoff := jwksInitialRetryInterval
	deadline := time.Now().Add(jwksInitialRetryTimeout)
	for attempt := 1; ; attempt++ {
		jwks, err := keyfunc.Get(v.jwksURL, options)
		if err == nil {
			v.lastErr.Store(lastErrWrap{Err: nil})
			v.jwks.Store(jwks)
			return nil
		}

		v.log.Warn().Err(err).Str("jwks_url", v.jwksURL).Int("attempt", attempt).Msg("initial jwks fetch failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("fetch jwks: %w", ctx.Err())
		case <-time.After(backoff):
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("fetch jwks: %w", err)
		}
		backoff = min(backoff*2, jwksInitialRetryMaxBackoff)
	}
}

// Validate parses rawToken and returns its principal.
func (v *Validator) Validate(_ context.Context, rawToken string) (*Principal, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods()),
		jwt.WithLeeway(v.clockSkew),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(rawToken, jwt.MapClaims{}, v.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errors.New("sub claim missing")
	}

	principal := &Principal{
		ID:    sub,
		Email: claimString(claims["email"]),
		Name:  claimString(claims["name"]),
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		principal.ExpiresAt = exp.Time
	}
	if principal.Name == "" {
		if metadata, ok := claims["user_metadata"].(map[string]any); ok {
			principal.Name = claimString(metadata["full_name"])
		}
	}
	return principal, nil
}

func (v *Validator) methods() []string {
	var methods []string
	if len(v.secret) > 0 {
		methods = append(methods, hmacMethods...)
	}
	if v.jwks.Load() != nil {
		methods = append(methods, jwksMethods...)
	}
	return methods
}

func (v *Validator) keyfunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		if len(v.secret) == 0 {
			return nil, errors.New("hmac tokens are not accepted")
		}
		return v.secret, nil
	}
	jwks := v.jwks.Load()
	if jwks == nil {
		return nil, errors.New("jwks not initialised")
	}
	return jwks.Keyfunc(token)
}

// Ready reports whether the configured key sources are usable.
func (v *Validator) Ready() bool {
	if v == nil {
		return true
	}
	if v.jwksURL == "" {
		return true
	}
	if v.jwks.Load() == nil {
		return false
	}
	if wrap, ok := v.lastErr.Load().(lastErrWrap); ok && wrap.Err != nil {
		return false
	}
	return true
}

func claimString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case json.Number:
		return typed.String()
	}
	return ""
}
