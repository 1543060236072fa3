// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package secrets generates and persists the per-environment credentials of
// the self-hosted backend stack.
//
// Secrets live in the project's .env file under an environment prefix
// (STAGING_POSTGRES_PASSWORD, ...). Once an environment's database is
// initialized its secrets are frozen: Manager refuses to generate
// replacements.
package secrets

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Key is an unprefixed secret name.
type Key string

const (
	PostgresPassword Key = "POSTGRES_PASSWORD"
	JWTSecret        Key = "JWT_SECRET"
	AnonKey          Key = "ANON_KEY"
	ServiceRoleKey   Key = "SERVICE_ROLE_KEY"
	VaultEncKey      Key = "VAULT_ENC_KEY"
	PGMetaCryptoKey  Key = "PG_META_CRYPTO_KEY"
)

// RequiredKeys lists every key of a complete Bundle, in file order.
var RequiredKeys = []Key{
	PostgresPassword,
	JWTSecret,
	AnonKey,
	ServiceRoleKey,
	VaultEncKey,
	PGMetaCryptoKey,
}

// generationOrder puts JWT_SECRET before the keys it signs.
var generationOrder = []Key{
	JWTSecret,
	PostgresPassword,
	AnonKey,
	ServiceRoleKey,
	VaultEncKey,
	PGMetaCryptoKey,
}

// Shape constrains the value of one key.
type Shape struct {
	// Length is the exact length of a random alphanumeric value.
	Length int

	// Exact marks Length as a hard downstream requirement rather than
	// just the generated length.
	Exact bool

	// MinLength is the shortest acceptable existing value.
	MinLength int

	// Role marks a JWT signed with JWT_SECRET carrying this role claim.
	Role string
}

// Schema is the shape of every required key.
var Schema = map[Key]Shape{
	PostgresPassword: {Length: 32, MinLength: 16},
	JWTSecret:        {Length: 64, MinLength: 32},
	AnonKey:          {Role: "anon"},
	ServiceRoleKey:   {Role: "service_role"},
	// Vault uses the raw string as an AES-256 key.
	VaultEncKey:     {Length: 32, Exact: true, MinLength: 32},
	PGMetaCryptoKey: {Length: 32, MinLength: 16},
}

// ErrBadShape is wrapped by ValidateShape failures.
var ErrBadShape = errors.New("secret does not match its shape")

// ValidateShape checks v against k's Shape. For role keys, jwtSecret is
// used to verify the signature; an empty jwtSecret checks structure only.
func ValidateShape(k Key, v string, jwtSecret string) error {
	shape, ok := Schema[k]
	if !ok {
		return fmt.Errorf("%w: unknown key %s", ErrBadShape, k)
	}

	if shape.Role != "" {
		return validateRoleKey(v, shape.Role, jwtSecret)
	}

	if shape.Exact && len(v) != shape.Length {
		return fmt.Errorf("%w: %s must be exactly %d characters, got %d", ErrBadShape, k, shape.Length, len(v))
	}
	if len(v) < shape.MinLength {
		return fmt.Errorf("%w: %s must be at least %d characters, got %d", ErrBadShape, k, shape.MinLength, len(v))
	}
	return nil
}

func validateRoleKey(token, role, secret string) error {
	claims := jwt.MapClaims{}
	var err error
	if secret == "" {
		_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	} else {
		_, err = jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadShape, err)
	}
	if got, _ := claims["role"].(string); got != role {
		return fmt.Errorf("%w: role claim %q, want %q", ErrBadShape, got, role)
	}
	return nil
}

// SignRoleKey issues a ten-year HS256 API key for role.
func SignRoleKey(role, secret string, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("cannot sign API key without JWT_SECRET")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": role,
		"iss":  "supabase",
		"iat":  now.Unix(),
		"exp":  now.AddDate(10, 0, 0).Unix(),
	})
	return token.SignedString([]byte(secret))
}

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomString returns n unbiased alphanumeric characters read from r.
func RandomString(r io.Reader, n int) (string, error) {
	// 248 is the largest multiple of 62 that fits in a byte.
	const limit = 248
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, alphanumeric[int(b)%len(alphanumeric)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
