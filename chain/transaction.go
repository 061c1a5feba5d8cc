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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/blinklabs-io/votechain/keystore"
)

const (
	// SystemVoterId is the voter id of the synthetic genesis transaction
	SystemVoterId = "system"
	// GenesisCandidateId is the candidate id of the synthetic genesis transaction
	GenesisCandidateId = "genesis_block_creation"
)

// Transaction is a single signed vote
type Transaction struct {
	VoterId         string `json:"voterId"`
	CandidateId     string `json:"candidateId"`
	Timestamp       int64  `json:"timestamp"`
	SenderPublicKey string `json:"senderPublicKey"`
	Signature       string `json:"signature"`
}

// NewTransaction builds a transaction stamped with the current time in
// milliseconds since the epoch
func NewTransaction(
	voterId string,
	candidateId string,
	senderPublicKey string,
	signature string,
) Transaction {
	return Transaction{
		VoterId:         voterId,
		CandidateId:     candidateId,
		Timestamp:       time.Now().UnixMilli(),
		SenderPublicKey: senderPublicKey,
		Signature:       signature,
	}
}

// NewGenesisTransaction returns the synthetic transaction carried by the
// genesis block
func NewGenesisTransaction() Transaction {
	return NewTransaction(SystemVoterId, GenesisCandidateId, "", "")
}

// SignablePayload returns the exact string covered by the signature: voter
// id, candidate id and sender public key concatenated without separators
func (t Transaction) SignablePayload() string {
	return t.VoterId + t.CandidateId + t.SenderPublicKey
}

// Validate checks the structural requirements for pool admission
func (t Transaction) Validate() error {
	if t.VoterId == "" || t.CandidateId == "" {
		return ErrInvalidTransaction
	}
	return nil
}

// IsSystem reports whether this is the synthetic genesis transaction
func (t Transaction) IsSystem() bool {
	return t.VoterId == SystemVoterId &&
		t.SenderPublicKey == "" &&
		t.Signature == ""
}

// VerifySignature checks the signature against the signable payload using
// the sender public key. A well-formed signature that does not match
// returns false with a nil error. Key or signature material that cannot be
// decoded returns a *MalformedKeyMaterialError.
func (t Transaction) VerifySignature() (bool, error) {
	pubKey, err := keystore.DecodePublicKey(t.SenderPublicKey)
	if err != nil {
		return false, NewMalformedKeyMaterialError("senderPublicKey", err)
	}
	ok, err := keystore.Verify(pubKey, t.SignablePayload(), t.Signature)
	if err != nil {
		if errors.Is(err, keystore.ErrMalformedSignature) {
			return false, NewMalformedKeyMaterialError("signature", err)
		}
		return false, err
	}
	return ok, nil
}

// Hash returns the hex encoded SHA-256 of the canonical serialization
func (t Transaction) Hash() string {
	sum := sha256.Sum256(t.canonicalBytes())
	return hex.EncodeToString(sum[:])
}

func (t Transaction) canonicalBytes() []byte {
	// Marshaling a struct of strings and integers cannot fail
	data, _ := json.Marshal(t)
	return data
}

// CopyTransactions returns a copy of the slice that never aliases the input.
// A nil input yields an empty, non-nil slice.
func CopyTransactions(txs []Transaction) []Transaction {
	ret := make([]Transaction, len(txs))
	copy(ret, txs)
	return ret
}
