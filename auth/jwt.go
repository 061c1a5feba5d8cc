// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const MethodJWT = "jwt"

type JWTConfig struct {
	// Secret enables HS256 verification
	Secret []byte
	// PublicKeyPEM enables RS256 verification
	PublicKeyPEM []byte
	Issuer       string
	Audience     string
	Leeway       time.Duration
}

// JWTAuthenticator accepts signed JWTs and uses the subject claim as the
// voter id
type JWTAuthenticator struct {
	parser  *jwt.Parser
	keyFunc jwt.Keyfunc
}

func NewJWTAuthenticator(cfg JWTConfig) (*JWTAuthenticator, error) {
	var methods []string
	var hmacKey []byte
	var rsaKey any
	if len(cfg.Secret) > 0 {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
		hmacKey = cfg.Secret
	}
	if len(cfg.PublicKeyPEM) > 0 {
		key, err := jwt.ParseRSAPublicKeyFromPEM(cfg.PublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse JWT public key: %w", err)
		}
		methods = append(methods, jwt.SigningMethodRS256.Alg())
		rsaKey = key
	}
	if len(methods) == 0 {
		return nil, errors.New("JWT authenticator needs a secret or a public key")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &JWTAuthenticator{
		parser: jwt.NewParser(opts...),
		keyFunc: func(token *jwt.Token) (any, error) {
			switch token.Method.(type) {
			case *jwt.SigningMethodHMAC:
				if hmacKey != nil {
					return hmacKey, nil
				}
			case *jwt.SigningMethodRSA:
				if rsaKey != nil {
					return rsaKey, nil
				}
			}
			return nil, fmt.Errorf("unexpected signing method %s", token.Method.Alg())
		},
	}, nil
}

// NewJWTAuthenticatorFromFiles reads the secret and public key from files.
// Either path may be empty.
func NewJWTAuthenticatorFromFiles(
	secretFile string,
	publicKeyFile string,
	issuer string,
	audience string,
) (*JWTAuthenticator, error) {
	cfg := JWTConfig{Issuer: issuer, Audience: audience, Leeway: 30 * time.Second}
	var err error
	if secretFile != "" {
		if cfg.Secret, err = os.ReadFile(secretFile); err != nil {
			return nil, fmt.Errorf("read JWT secret: %w", err)
		}
		cfg.Secret = bytes.TrimSpace(cfg.Secret)
	}
	if publicKeyFile != "" {
		if cfg.PublicKeyPEM, err = os.ReadFile(publicKeyFile); err != nil {
			return nil, fmt.Errorf("read JWT public key: %w", err)
		}
	}
	return NewJWTAuthenticator(cfg)
}

func (j *JWTAuthenticator) Authenticate(_ context.Context, token string) (Identity, error) {
	claims := &jwt.RegisteredClaims{}
	if _, err := j.parser.ParseWithClaims(token, claims, j.keyFunc); err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return Identity{VoterId: claims.Subject, Method: MethodJWT}, nil
}
