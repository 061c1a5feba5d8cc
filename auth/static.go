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
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/blinklabs-io/votechain/internal/sops"
	"gopkg.in/yaml.v3"
)

const MethodStaticToken = "static-token"

// maxTokenFileSize bounds how much of a token file is read
const maxTokenFileSize = 4 << 20

// StaticTokens maps fixed bearer tokens to voter ids
type StaticTokens struct {
	tokens map[string]string
}

type tokenFile struct {
	Tokens map[string]string `yaml:"tokens"`
}

func NewStaticTokens(tokens map[string]string) *StaticTokens {
	s := &StaticTokens{tokens: make(map[string]string, len(tokens))}
	for token, voterId := range tokens {
		if token == "" || voterId == "" {
			continue
		}
		s.tokens[token] = voterId
	}
	return s
}

// LoadStaticTokens reads a YAML token file, decrypting it first when it
// carries SOPS metadata
func LoadStaticTokens(path string) (*StaticTokens, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxTokenFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	if len(data) > maxTokenFileSize {
		return nil, errors.New("token file too large")
	}
	return ParseStaticTokens(data)
}

func ParseStaticTokens(data []byte) (*StaticTokens, error) {
	if sops.IsEncrypted(data) {
		plain, err := sops.Decrypt(data, sops.FormatYAML)
		if err != nil {
			return nil, fmt.Errorf("decrypt token file: %w", err)
		}
		data = plain
	}
	var tf tokenFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return NewStaticTokens(tf.Tokens), nil
}

func (s *StaticTokens) Len() int {
	return len(s.tokens)
}

// Authenticate compares against every configured token in constant time
func (s *StaticTokens) Authenticate(_ context.Context, token string) (Identity, error) {
	var voterId string
	for candidate, id := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			voterId = id
		}
	}
	if voterId == "" {
		return Identity{}, ErrUnauthenticated
	}
	return Identity{VoterId: voterId, Method: MethodStaticToken}, nil
}
