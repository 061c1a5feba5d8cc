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

// Package keystore implements the key-pair contract used to sign and verify
// vote transactions. Keys are 2048-bit RSA, signatures are PKCS#1 v1.5 over
// a SHA-256 digest, and all key material travels as standard base64 strings:
// public keys as X.509 SubjectPublicKeyInfo DER, private keys as PKCS#8 DER.
package keystore

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
)

// KeySize is the RSA modulus size used for generated key pairs
const KeySize = 2048

var (
	ErrMalformedKey       = errors.New("malformed key")
	ErrMalformedSignature = errors.New("malformed signature")
	ErrInsecureFileMode   = errors.New("insecure file permissions")
	ErrUnsupportedKeyType = errors.New("unsupported key type")
)

// GenerateKeyPair creates a new RSA key pair
func GenerateKeyPair() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, KeySize)
}

// Sign signs data with the private key and returns the base64 encoded signature
func Sign(privateKey *rsa.PrivateKey, data string) (string, error) {
	if privateKey == nil {
		return "", fmt.Errorf("%w: nil private key", ErrMalformedKey)
	}
	digest := sha256.Sum256([]byte(data))
	sig, err := rsa.SignPKCS1v15(rand.Reader, privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign data: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a base64 encoded signature over data against the public key.
// A well-formed signature that does not match returns false with a nil error.
// Only undecodable signature material produces an error.
func Verify(
	publicKey *rsa.PublicKey,
	data string,
	signature string,
) (bool, error) {
	if publicKey == nil {
		return false, fmt.Errorf("%w: nil public key", ErrMalformedKey)
	}
	sig, err := DecodeSignature(signature)
	if err != nil {
		return false, err
	}
	digest := sha256.Sum256([]byte(data))
	if err := rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, digest[:], sig); err != nil {
		return false, nil
	}
	return true, nil
}

// DecodeSignature decodes a base64 signature string
func DecodeSignature(signature string) ([]byte, error) {
	if signature == "" {
		return nil, fmt.Errorf("%w: empty signature", ErrMalformedSignature)
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSignature, err)
	}
	return sig, nil
}

// EncodePublicKey returns the base64 X.509 encoding of the public key
func EncodePublicKey(publicKey *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to encode public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// DecodePublicKey parses a base64 X.509 encoded RSA public key
func DecodePublicKey(encoded string) (*rsa.PublicKey, error) {
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty public key", ErrMalformedKey)
	}
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf(
			"%w: %w: %T",
			ErrMalformedKey,
			ErrUnsupportedKeyType,
			pub,
		)
	}
	return rsaPub, nil
}

// EncodePrivateKey returns the base64 PKCS#8 encoding of the private key
func EncodePrivateKey(privateKey *rsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to encode private key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// DecodePrivateKey parses a base64 PKCS#8 encoded RSA private key
func DecodePrivateKey(encoded string) (*rsa.PrivateKey, error) {
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty private key", ErrMalformedKey)
	}
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf(
			"%w: %w: %T",
			ErrMalformedKey,
			ErrUnsupportedKeyType,
			key,
		)
	}
	return rsaKey, nil
}

// EncodedKeyPair holds both halves of a key pair in transport form
type EncodedKeyPair struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// GenerateEncodedKeyPair creates a key pair and returns its transport encoding
func GenerateEncodedKeyPair() (EncodedKeyPair, error) {
	key, err := GenerateKeyPair()
	if err != nil {
		return EncodedKeyPair{}, fmt.Errorf("key generation failed: %w", err)
	}
	pub, err := EncodePublicKey(&key.PublicKey)
	if err != nil {
		return EncodedKeyPair{}, err
	}
	priv, err := EncodePrivateKey(key)
	if err != nil {
		return EncodedKeyPair{}, err
	}
	return EncodedKeyPair{
		PublicKey:  pub,
		PrivateKey: priv,
	}, nil
}
