package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownTokenType is returned by ParseTokenType for unrecognized input.
var ErrUnknownTokenType = errors.New("unknown token type")

// TokenType identifies one kind of authentication secret for a platform.
type TokenType string

const (
	TokenTypeJWT          TokenType = "jwt"           // Bearer token sent as the authorization header.
	TokenTypeCSRFToken    TokenType = "csrf_token"    // CSRF token, also sent as the ct0 cookie on X.
	TokenTypeAuthCookie   TokenType = "auth_cookie"   // Session cookie value.
	TokenTypeGraphQLToken TokenType = "graphql_token" // Path token for GraphQL-style endpoints.
)

// AllTokenTypes returns every known token type.
func AllTokenTypes() []TokenType {
	return []TokenType{TokenTypeJWT, TokenTypeCSRFToken, TokenTypeAuthCookie, TokenTypeGraphQLToken}
}

// ParseTokenType converts a string into a TokenType. Matching is case-insensitive.
func ParseTokenType(s string) (TokenType, error) {
	v := TokenType(strings.ToLower(strings.TrimSpace(s)))
	for _, tt := range AllTokenTypes() {
		if tt == v {
			return tt, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTokenType, s)
}

// CredentialBundle is the set of per-platform secrets needed to authenticate
// remote calls. Empty fields mean the secret is not available.
type CredentialBundle struct {
	JWT          string
	CSRFToken    string
	AuthCookie   string
	GraphQLToken string
	Expires      time.Time
}

// Value returns the secret for the given token type, or "" if absent.
func (b CredentialBundle) Value(tt TokenType) string {
	switch tt {
	case TokenTypeJWT:
		return b.JWT
	case TokenTypeCSRFToken:
		return b.CSRFToken
	case TokenTypeAuthCookie:
		return b.AuthCookie
	case TokenTypeGraphQLToken:
		return b.GraphQLToken
	default:
		return ""
	}
}

// Set stores value under the given token type. Unknown types are ignored.
func (b *CredentialBundle) Set(tt TokenType, value string) {
	switch tt {
	case TokenTypeJWT:
		b.JWT = value
	case TokenTypeCSRFToken:
		b.CSRFToken = value
	case TokenTypeAuthCookie:
		b.AuthCookie = value
	case TokenTypeGraphQLToken:
		b.GraphQLToken = value
	}
}

// IsEmpty reports whether no secret is set.
func (b CredentialBundle) IsEmpty() bool {
	for _, tt := range AllTokenTypes() {
		if b.Value(tt) != "" {
			return false
		}
	}
	return true
}

// CredentialRecord is one stored secret for a platform and token type.
type CredentialRecord struct {
	Key       string
	Platform  Platform
	TokenType TokenType
	Value     string
	Expires   time.Time
	UpdatedAt time.Time
}

// CredentialKey builds the unique "platform:token_type" key of a CredentialRecord.
func CredentialKey(platform Platform, tt TokenType) string {
	return string(platform) + ":" + string(tt)
}

// IsExpired reports whether the record is stale at the given time.
func (c CredentialRecord) IsExpired(now time.Time) bool {
	return !c.Expires.After(now)
}
