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

package models

import "github.com/blinklabs-io/votechain/chain"

// MigrateModels contains a list of model objects that should have DB migrations applied
var MigrateModels = []any{
	&Block{},
	&BlockTransaction{},
	&PendingTransaction{},
}

// Block represents a mined block. The primary key is the chain index.
type Block struct {
	Transactions []BlockTransaction `gorm:"foreignKey:BlockIndex;references:Index;constraint:OnDelete:CASCADE"`
	PreviousHash string             `gorm:"size:64;not null"`
	Hash         string             `gorm:"size:64;uniqueIndex;not null"`
	Index        uint64             `gorm:"column:block_index;primaryKey;autoIncrement:false"`
	Timestamp    int64
	Nonce        uint64
}

func (Block) TableName() string {
	return "block"
}

// BlockTransaction is a transaction stored as part of a block. Position
// preserves the order within the block.
type BlockTransaction struct {
	VoterId         string `gorm:"index;not null"`
	CandidateId     string `gorm:"not null"`
	SenderPublicKey string `gorm:"type:text"`
	Signature       string `gorm:"type:text"`
	ID              uint   `gorm:"primaryKey"`
	BlockIndex      uint64 `gorm:"index:idx_block_tx_position,unique"`
	Position        int    `gorm:"index:idx_block_tx_position,unique"`
	Timestamp       int64
}

func (BlockTransaction) TableName() string {
	return "block_transaction"
}

// PendingTransaction is a transaction waiting to be mined. The
// autoincrement ID preserves submission order.
type PendingTransaction struct {
	VoterId         string `gorm:"index;not null"`
	CandidateId     string `gorm:"not null"`
	SenderPublicKey string `gorm:"type:text"`
	Signature       string `gorm:"type:text"`
	ID              uint   `gorm:"primaryKey"`
	Timestamp       int64
}

func (PendingTransaction) TableName() string {
	return "pending_transaction"
}

// BlockFromChain converts a chain block into its database model
func BlockFromChain(b chain.Block) Block {
	ret := Block{
		Index:        b.Index,
		Timestamp:    b.Timestamp,
		PreviousHash: b.PreviousHash,
		Hash:         b.Hash,
		Nonce:        b.Nonce,
		Transactions: make([]BlockTransaction, len(b.Transactions)),
	}
	for i, tx := range b.Transactions {
		ret.Transactions[i] = BlockTransaction{
			BlockIndex:      b.Index,
			Position:        i,
			VoterId:         tx.VoterId,
			CandidateId:     tx.CandidateId,
			Timestamp:       tx.Timestamp,
			SenderPublicKey: tx.SenderPublicKey,
			Signature:       tx.Signature,
		}
	}
	return ret
}

// ToChain converts the model back into a chain block. Transactions must be
// loaded ordered by position.
func (b Block) ToChain() chain.Block {
	ret := chain.Block{
		Index:        b.Index,
		Timestamp:    b.Timestamp,
		PreviousHash: b.PreviousHash,
		Hash:         b.Hash,
		Nonce:        b.Nonce,
		Transactions: make([]chain.Transaction, len(b.Transactions)),
	}
	for i, tx := range b.Transactions {
		ret.Transactions[i] = chain.Transaction{
			VoterId:         tx.VoterId,
			CandidateId:     tx.CandidateId,
			Timestamp:       tx.Timestamp,
			SenderPublicKey: tx.SenderPublicKey,
			Signature:       tx.Signature,
		}
	}
	return ret
}

// PendingFromChain converts a chain transaction into its pending model
func PendingFromChain(tx chain.Transaction) PendingTransaction {
	return PendingTransaction{
		VoterId:         tx.VoterId,
		CandidateId:     tx.CandidateId,
		Timestamp:       tx.Timestamp,
		SenderPublicKey: tx.SenderPublicKey,
		Signature:       tx.Signature,
	}
}

func (p PendingTransaction) ToChain() chain.Transaction {
	return chain.Transaction{
		VoterId:         p.VoterId,
		CandidateId:     p.CandidateId,
		Timestamp:       p.Timestamp,
		SenderPublicKey: p.SenderPublicKey,
		Signature:       p.Signature,
	}
}
