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

package api

import (
	"github.com/blinklabs-io/votechain/chain"
)

// ErrorResponse is the body of every non-2xx response. Error names the
// failure kind so that clients can branch on it.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

const (
	ErrorKindBadRequest                  = "BadRequest"
	ErrorKindInvalidTransaction          = "InvalidTransaction"
	ErrorKindMalformedKeyMaterial        = "MalformedKeyMaterial"
	ErrorKindSignatureVerificationFailed = "SignatureVerificationFailed"
	ErrorKindDuplicateVote               = "DuplicateVote"
	ErrorKindPoolFull                    = "PoolFull"
	ErrorKindUnauthenticated             = "Unauthenticated"
	ErrorKindNotFound                    = "NotFound"
	ErrorKindInternal                    = "Internal"
)

type HealthResponse struct {
	IsHealthy   bool `json:"is_healthy"`
	ChainLength int  `json:"chain_length"`
}

type ChainResponse struct {
	Chain   []chain.Block `json:"chain"`
	Length  int           `json:"length"`
	IsValid bool          `json:"isValid"`
}

type ValidityResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

type SubmitRequest struct {
	CandidateId     string `json:"candidateId"`
	SenderPublicKey string `json:"senderPublicKey"`
	Signature       string `json:"signature"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type MineResponse struct {
	Message                      string              `json:"message"`
	Block                        *chain.Block        `json:"block,omitempty"`
	PendingTransactionsAfterMine []chain.Transaction `json:"pendingTransactionsAfterMine,omitzero"`
}

type PendingResponse struct {
	PendingTransactions []chain.Transaction `json:"pending_transactions"`
	Count               int                 `json:"count"`
}

type KeyPairResponse struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
	Message    string `json:"message"`
}
