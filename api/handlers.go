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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/blinklabs-io/votechain/auth"
	"github.com/blinklabs-io/votechain/chain"
	"github.com/blinklabs-io/votechain/keystore"
	"github.com/blinklabs-io/votechain/ledger"
	"github.com/blinklabs-io/votechain/mempool"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(
	w http.ResponseWriter,
	status int,
	v any,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

func writeError(
	w http.ResponseWriter,
	status int,
	kind string,
	message string,
) {
	writeJSON(w, status, ErrorResponse{
		Error:   kind,
		Message: message,
	})
}

// writeLedgerError maps a ledger error onto an HTTP status and error kind
func (a *Api) writeLedgerError(w http.ResponseWriter, err error) {
	var fullErr *mempool.MempoolFullError
	switch {
	case errors.Is(err, chain.ErrInvalidTransaction):
		writeError(w, http.StatusBadRequest, ErrorKindInvalidTransaction, err.Error())
	case errors.Is(err, chain.ErrMalformedKeyMaterial):
		writeError(w, http.StatusBadRequest, ErrorKindMalformedKeyMaterial, err.Error())
	case errors.Is(err, chain.ErrSignatureVerificationFailed):
		writeError(w, http.StatusBadRequest, ErrorKindSignatureVerificationFailed, err.Error())
	case errors.Is(err, ledger.ErrDuplicateVote):
		writeError(w, http.StatusConflict, ErrorKindDuplicateVote, err.Error())
	case errors.As(err, &fullErr):
		w.Header().Set("Retry-After", "10")
		writeError(w, http.StatusServiceUnavailable, ErrorKindPoolFull, err.Error())
	default:
		a.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrorKindInternal, "internal error")
	}
}

// requireIdentity resolves the caller's identity before invoking next
func (a *Api) requireIdentity(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ident auth.Identity
		if a.config.AuthDisabled {
			ident = auth.Identity{
				VoterId: r.Header.Get(VoterIdHeader),
				Method:  "header",
			}
			if ident.VoterId == "" {
				writeError(
					w,
					http.StatusUnauthorized,
					ErrorKindUnauthenticated,
					"missing "+VoterIdHeader+" header",
				)
				return
			}
		} else {
			token, _ := auth.BearerToken(r)
			var err error
			ident, err = a.config.Authenticator.Authenticate(r.Context(), token)
			if err != nil {
				a.logger.Debug("authentication failed", "error", err)
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(
					w,
					http.StatusUnauthorized,
					ErrorKindUnauthenticated,
					"authentication required",
				)
				return
			}
		}
		next(w, r.WithContext(auth.WithIdentity(r.Context(), ident)))
	}
}

func (a *Api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	length := a.ledger.Len()
	status := http.StatusOK
	if length == 0 {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, HealthResponse{
		IsHealthy:   length > 0,
		ChainLength: length,
	})
}

func (a *Api) handleBlockchain(w http.ResponseWriter, _ *http.Request) {
	blocks := a.ledger.Chain()
	writeJSON(w, http.StatusOK, ChainResponse{
		Chain:   blocks,
		Length:  len(blocks),
		IsValid: a.ledger.ValidateChain() == nil,
	})
}

func (a *Api) handleChainValid(w http.ResponseWriter, _ *http.Request) {
	resp := ValidityResponse{Valid: true}
	if err := a.ledger.ValidateChain(); err != nil {
		resp.Valid = false
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *Api) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrorKindUnauthenticated, "authentication required")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req SubmitRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(
			w,
			http.StatusBadRequest,
			ErrorKindBadRequest,
			"invalid request body: "+err.Error(),
		)
		return
	}
	tx := chain.NewTransaction(
		ident.VoterId,
		req.CandidateId,
		req.SenderPublicKey,
		req.Signature,
	)
	if err := a.ledger.SubmitTransaction(r.Context(), tx); err != nil {
		a.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{
		Message: fmt.Sprintf(
			"Transaction will be added to Block %d by voter: %s",
			a.ledger.Len(),
			ident.VoterId,
		),
	})
}

func (a *Api) handleMine(w http.ResponseWriter, r *http.Request) {
	block, err := a.ledger.MinePending(r.Context())
	if errors.Is(err, ledger.ErrNothingToMine) {
		writeJSON(w, http.StatusOK, MineResponse{
			Message: "No pending transactions to mine.",
		})
		return
	}
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	pending := a.ledger.PendingTransactions()
	if pending == nil {
		pending = []chain.Transaction{}
	}
	writeJSON(w, http.StatusOK, MineResponse{
		Message:                      "New Block Forged!",
		Block:                        block,
		PendingTransactionsAfterMine: pending,
	})
}

func (a *Api) handlePending(w http.ResponseWriter, _ *http.Request) {
	pending := a.ledger.PendingTransactions()
	if pending == nil {
		pending = []chain.Transaction{}
	}
	writeJSON(w, http.StatusOK, PendingResponse{
		PendingTransactions: pending,
		Count:               len(pending),
	})
}

func (a *Api) handleGenerateKeys(w http.ResponseWriter, _ *http.Request) {
	if !a.config.EnableKeyGeneration {
		writeError(w, http.StatusNotFound, ErrorKindNotFound, "key generation is disabled")
		return
	}
	pair, err := keystore.GenerateEncodedKeyPair()
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	a.logger.Warn("served generated key pair over HTTP")
	writeJSON(w, http.StatusOK, KeyPairResponse{
		PublicKey:  pair.PublicKey,
		PrivateKey: pair.PrivateKey,
		Message:    "Keys generated. Keep the private key secret; it is not stored.",
	})
}
