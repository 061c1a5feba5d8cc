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
	"strconv"
	"time"
)

// GenesisPreviousHash is the previous hash recorded on the genesis block
const GenesisPreviousHash = "0"

// HashLength is the length of a block hash in hex characters
const HashLength = sha256.Size * 2

// Block is a hash-sealed batch of transactions linked to its predecessor
type Block struct {
	Index        uint64        `json:"index"`
	Timestamp    int64         `json:"timestamp"`
	Transactions []Transaction `json:"data"`
	PreviousHash string        `json:"previousHash"`
	Hash         string        `json:"hash"`
	Nonce        uint64        `json:"nonce"`
}

// NewBlock builds a block at the given index with the current time, a nonce
// of zero and its initial hash computed. The transactions are copied.
func NewBlock(
	index uint64,
	previousHash string,
	txs []Transaction,
) Block {
	b := Block{
		Index:        index,
		Timestamp:    time.Now().UnixMilli(),
		Transactions: CopyTransactions(txs),
		PreviousHash: previousHash,
	}
	b.Hash = b.ComputeHash()
	return b
}

// NewGenesisBlock builds the unmined genesis block
func NewGenesisBlock() Block {
	return NewBlock(
		0,
		GenesisPreviousHash,
		[]Transaction{NewGenesisTransaction()},
	)
}

// ComputeHash returns the lowercase hex SHA-256 over the decimal index,
// decimal timestamp, JSON encoded transaction batch, previous hash and
// decimal nonce
func (b Block) ComputeHash() string {
	return hashWithNonce(b.hashPrefix(), b.Nonce)
}

// IsGenesis reports whether the block sits at the start of the chain
func (b Block) IsGenesis() bool {
	return b.Index == 0
}

// Clone returns a deep copy of the block
func (b Block) Clone() Block {
	b.Transactions = CopyTransactions(b.Transactions)
	return b
}

// hashPrefix returns everything hashed ahead of the nonce. It does not
// change while mining.
func (b Block) hashPrefix() []byte {
	txs := b.Transactions
	if txs == nil {
		txs = []Transaction{}
	}
	// Marshaling a slice of plain structs cannot fail
	txData, _ := json.Marshal(txs)
	buf := make([]byte, 0, 64+len(txData)+len(b.PreviousHash))
	buf = strconv.AppendUint(buf, b.Index, 10)
	buf = strconv.AppendInt(buf, b.Timestamp, 10)
	buf = append(buf, txData...)
	buf = append(buf, b.PreviousHash...)
	return buf
}

func hashWithNonce(prefix []byte, nonce uint64) string {
	buf := strconv.AppendUint(prefix[:len(prefix):len(prefix)], nonce, 10)
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}
