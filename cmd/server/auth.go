package main

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nickyhof/AtlasDB/config"
	"github.com/nickyhof/AtlasDB/core"
)

// AuthConfig configures server authentication.
type AuthConfig struct {
	// JWTSecret is the shared secret for HMAC signed tokens.
	JWTSecret string

	// Issuer is the expected "iss" claim, checked when set.
	Issuer string

	// Audience is the expected "aud" claim, checked when set.
	Audience string

	// NameClaim is the JWT claim for user's name (default: "name").
	NameClaim string

	// EmailClaim is the JWT claim for user's email (default: "email").
	EmailClaim string
}

// AuthConfigFrom returns the authentication settings of cfg, or nil when
// no secret is configured and the server runs open.
func AuthConfigFrom(cfg config.ServerConfig) *AuthConfig {
	if cfg.JWTSecret == "" {
		return nil
	}
	return &AuthConfig{
		JWTSecret:  cfg.JWTSecret,
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		NameClaim:  cfg.NameClaim,
		EmailClaim: cfg.EmailClaim,
	}
}

// grant is what a verified token entitles a session to.
type grant struct {
	identity core.Identity
	expires  time.Time // zero when the token carries no exp claim
}

// Session tracks one client connection.
type Session struct {
	ID    string
	grant *grant
}

// IsAuthenticated reports whether the session holds an unexpired token.
func (session *Session) IsAuthenticated(now time.Time) bool {
	g := session.grant
	return g != nil && (g.expires.IsZero() || now.Before(g.expires))
}

// Identity returns the authenticated identity, the zero value otherwise.
func (session *Session) Identity() core.Identity {
	if session.grant == nil {
		return core.Identity{}
	}
	return session.grant.identity
}

var hmacMethods = []string{"HS256", "HS384", "HS512"}

func (auth *AuthConfig) parser() *jwt.Parser {
	opts := []jwt.ParserOption{jwt.WithValidMethods(hmacMethods)}
	if auth.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(auth.Issuer))
	}
	if auth.Audience != "" {
		opts = append(opts, jwt.WithAudience(auth.Audience))
	}
	return jwt.NewParser(opts...)
}

func (auth *AuthConfig) key(*jwt.Token) (any, error) {
	return []byte(auth.JWTSecret), nil
}

// authenticate verifies an HMAC-signed token and reads the identity from
// its name and email claims. At least one of the two must be present.
func (auth *AuthConfig) authenticate(raw string) (*grant, error) {
	claims := jwt.MapClaims{}
	if _, err := auth.parser().ParseWithClaims(raw, claims, auth.key); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	nameClaim := cmp.Or(auth.NameClaim, "name")
	emailClaim := cmp.Or(auth.EmailClaim, "email")
	name, _ := claims[nameClaim].(string)
	email, _ := claims[emailClaim].(string)
	if name == "" && email == "" {
		return nil, fmt.Errorf("token has neither %q nor %q", nameClaim, emailClaim)
	}

	g := &grant{identity: core.Identity{Name: name, Email: email}}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		g.expires = exp.Time
	}
	return g, nil
}

// isAuthCommand reports whether line starts with the AUTH keyword.
func isAuthCommand(line string) bool {
	verb, _, _ := strings.Cut(strings.TrimLeft(line, " \t"), " ")
	verb, _, _ = strings.Cut(verb, "\t")
	return strings.EqualFold(verb, "AUTH")
}

// parseAuthCommand splits "AUTH <type> <credentials>". JWT is the only
// type accepted.
func parseAuthCommand(line string) (authType, token string, err error) {
	fields := strings.Fields(line)
	switch {
	case len(fields) == 0 || !strings.EqualFold(fields[0], "AUTH"):
		return "", "", errors.New("not an AUTH command")
	case len(fields) != 3:
		return "", "", errors.New("expected AUTH <type> <credentials>")
	}

	authType = strings.ToUpper(fields[1])
	if authType != "JWT" {
		return "", "", fmt.Errorf("unsupported auth type: %s", authType)
	}
	return authType, fields[2], nil
}
