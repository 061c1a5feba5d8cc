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

package keystore

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	SigningKeyType      = "SigningKey_RSA2048"
	VerificationKeyType = "VerificationKey_RSA2048"
)

// keyFileEnvelope represents the JSON structure of a key file
type keyFileEnvelope struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Key         string `json:"key"`
}

// WriteKeyFiles writes the signing and verification halves of a key pair to
// the given paths. The signing key file is created with mode 0600.
func WriteKeyFiles(
	keyPair EncodedKeyPair,
	signingKeyPath string,
	verificationKeyPath string,
) error {
	if err := writeKeyFile(
		signingKeyPath,
		keyFileEnvelope{
			Type:        SigningKeyType,
			Description: "Vote Signing Key",
			Key:         keyPair.PrivateKey,
		},
		0o600,
	); err != nil {
		return err
	}
	return writeKeyFile(
		verificationKeyPath,
		keyFileEnvelope{
			Type:        VerificationKeyType,
			Description: "Vote Verification Key",
			Key:         keyPair.PublicKey,
		},
		0o644,
	)
}

func writeKeyFile(path string, env keyFileEnvelope, mode os.FileMode) error {
	data, err := json.MarshalIndent(env, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode key file %q: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return fmt.Errorf("failed to create key file %q: %w", path, err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("failed to write key file %q: %w", path, err)
	}
	return f.Close()
}

// LoadSigningKey loads a private key from a signing key file.
// Returns ErrInsecureFileMode if the file has group or other access.
//
// The file is opened first and permissions are checked on the open handle
// to avoid a race between the permission check and the read.
func LoadSigningKey(path string) (*rsa.PrivateKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file %q: %w", path, err)
	}
	defer f.Close()

	if err := checkOpenFilePermissions(f); err != nil {
		return nil, err
	}
	env, err := readKeyEnvelope(f)
	if err != nil {
		return nil, err
	}
	if env.Type != SigningKeyType {
		return nil, fmt.Errorf(
			"expected %s, got %s",
			SigningKeyType,
			env.Type,
		)
	}
	return DecodePrivateKey(env.Key)
}

// LoadVerificationKey loads the encoded public key from a verification key
// file. Verification keys are public data, so permissions are not checked.
func LoadVerificationKey(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open key file %q: %w", path, err)
	}
	defer f.Close()
	env, err := readKeyEnvelope(f)
	if err != nil {
		return "", err
	}
	if env.Type != VerificationKeyType {
		return "", fmt.Errorf(
			"expected %s, got %s",
			VerificationKeyType,
			env.Type,
		)
	}
	// Make sure the key actually parses before handing it out
	if _, err := DecodePublicKey(env.Key); err != nil {
		return "", fmt.Errorf("failed to parse key file %q: %w", path, err)
	}
	return env.Key, nil
}

func readKeyEnvelope(f *os.File) (*keyFileEnvelope, error) {
	// Limit read to 1 MiB to guard against accidentally pointing at a
	// large file. Valid key files are well under this size.
	const maxKeyFileSize = 1 << 20
	data, err := io.ReadAll(io.LimitReader(f, maxKeyFileSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %q: %w", f.Name(), err)
	}
	var env keyFileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf(
			"could not parse key file envelope %q: %w",
			f.Name(),
			err,
		)
	}
	if env.Key == "" {
		return nil, errors.New("key file envelope has no key")
	}
	return &env, nil
}
