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

package chain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransaction = errors.New(
		"invalid transaction: voter id and candidate id are required",
	)
	ErrSignatureVerificationFailed = errors.New(
		"transaction signature verification failed",
	)
	ErrMalformedKeyMaterial = errors.New("malformed key material")
)

// MalformedKeyMaterialError reports key or signature material that could
// not be decoded. It is distinct from a well-formed signature that simply
// does not match.
type MalformedKeyMaterialError struct {
	Field string
	Err   error
}

func NewMalformedKeyMaterialError(
	field string,
	err error,
) *MalformedKeyMaterialError {
	return &MalformedKeyMaterialError{
		Field: field,
		Err:   err,
	}
}

func (e *MalformedKeyMaterialError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("malformed %s", e.Field)
	}
	return fmt.Sprintf("malformed %s: %s", e.Field, e.Err)
}

// Is allows errors.Is(err, ErrMalformedKeyMaterial) to match
func (e *MalformedKeyMaterialError) Is(target error) bool {
	return target == ErrMalformedKeyMaterial
}

func (e *MalformedKeyMaterialError) Unwrap() error {
	return e.Err
}
