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

package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blinklabs-io/votechain/chain"
	"github.com/blinklabs-io/votechain/database"
	"github.com/blinklabs-io/votechain/event"
	"github.com/blinklabs-io/votechain/mempool"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultDifficulty = 4
	// MaxDifficulty is the length of a hex encoded SHA-256 hash
	MaxDifficulty = chain.HashLength

	tracerName = "github.com/blinklabs-io/votechain/ledger"
)

type LedgerConfig struct {
	Logger         *slog.Logger
	PromRegistry   prometheus.Registerer
	EventBus       *event.EventBus
	TracerProvider trace.TracerProvider
	// Gateway may be nil, in which case nothing is persisted
	Gateway database.Gateway
	// Difficulty is the number of leading zero hex characters required in
	// a block hash
	Difficulty      int
	MempoolCapacity int
	// OneVotePerVoter rejects a voter id that already appears in the chain
	// or the pool
	OneVotePerVoter bool
}

// Ledger owns the chain and the pool of pending transactions. All mutations
// are serialized by a single writer lock.
type Ledger struct {
	sync.RWMutex
	config  LedgerConfig
	logger  *slog.Logger
	tracer  trace.Tracer
	gateway database.Gateway
	mempool *mempool.Mempool
	metrics ledgerMetrics
	chain   []chain.Block
	voters  map[string]struct{}
	// length mirrors len(chain) for readers that must not wait on mining
	length  atomic.Int64
	started bool
}

func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Difficulty < 0 || cfg.Difficulty > MaxDifficulty {
		return nil, fmt.Errorf(
			"invalid difficulty %d: must be between 0 and %d",
			cfg.Difficulty,
			MaxDifficulty,
		)
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	l := &Ledger{
		config:  cfg,
		logger:  cfg.Logger.With("component", "ledger"),
		tracer:  cfg.TracerProvider.Tracer(tracerName),
		gateway: cfg.Gateway,
		voters:  make(map[string]struct{}),
	}
	l.mempool = mempool.NewMempool(mempool.MempoolConfig{
		PromRegistry:    cfg.PromRegistry,
		Logger:          cfg.Logger,
		EventBus:        cfg.EventBus,
		MempoolCapacity: cfg.MempoolCapacity,
	})
	l.metrics.init(cfg.PromRegistry)
	l.metrics.difficulty.Set(float64(cfg.Difficulty))
	return l, nil
}

// Start restores the chain and pool from the gateway. Stored blocks from the
// first gap or broken link onwards are dropped, both in memory and in the
// store. A genesis block is mined and persisted when nothing usable was
// stored. Gateway failures are logged and never abort startup.
func (l *Ledger) Start(ctx context.Context) error {
	l.Lock()
	defer l.Unlock()
	if l.started {
		return nil
	}
	var blocks []chain.Block
	var pending []chain.Transaction
	if l.gateway != nil {
		var err error
		blocks, err = l.gateway.LoadBlocks(ctx)
		if err != nil {
			l.persistenceFailure("load_blocks", err)
			blocks = nil
		}
		pending, err = l.gateway.LoadPending(ctx)
		if err != nil {
			l.persistenceFailure("load_pending", err)
			pending = nil
		}
	}
	if keep, err := usablePrefix(blocks); err != nil {
		l.logger.Warn(
			fmt.Sprintf("truncating stored chain at block %d: %s", keep, err),
			"blocks", len(blocks),
		)
		blocks = blocks[:keep]
		l.save(ctx, "truncate_blocks", func(ctx context.Context) error {
			return l.gateway.TruncateBlocks(ctx, uint64(keep)) //nolint:gosec // keep is a slice length
		})
	}
	if len(blocks) == 0 {
		genesis := chain.NewGenesisBlock()
		genesis.Seal(l.config.Difficulty)
		blocks = []chain.Block{genesis}
		l.save(ctx, "save_block", func(ctx context.Context) error {
			return l.gateway.SaveBlock(ctx, genesis)
		})
		l.logger.Info(
			"genesis block created: "+genesis.Hash,
			"difficulty", l.config.Difficulty,
		)
	} else {
		l.logger.Info(
			fmt.Sprintf("chain loaded with %d blocks", len(blocks)),
		)
	}
	l.chain = blocks
	for _, b := range l.chain {
		for _, tx := range b.Transactions {
			l.trackVoter(tx)
		}
	}
	l.mempool.Load(pending)
	for _, tx := range pending {
		l.trackVoter(tx)
	}
	if len(pending) > 0 {
		l.logger.Info(
			fmt.Sprintf("restored %d pending transactions", len(pending)),
		)
	}
	if err := l.validateChainLocked(); err != nil {
		l.logger.Warn("loaded chain failed validation: " + err.Error())
	}
	l.length.Store(int64(len(l.chain)))
	l.metrics.chainLength.Set(float64(len(l.chain)))
	l.started = true
	return nil
}

// usablePrefix returns how many leading blocks form an unbroken chain from
// genesis: block i carries index i and links to the hash of block i-1. The
// error describes the first break.
func usablePrefix(blocks []chain.Block) (int, error) {
	for i, b := range blocks {
		if b.Index != uint64(i) {
			return i, fmt.Errorf(
				"expected block index %d, found %d",
				i,
				b.Index,
			)
		}
		if i > 0 && b.PreviousHash != blocks[i-1].Hash {
			return i, fmt.Errorf(
				"block %d does not link to block %d",
				i,
				i-1,
			)
		}
	}
	return len(blocks), nil
}

func (l *Ledger) trackVoter(tx chain.Transaction) {
	if tx.IsSystem() {
		return
	}
	l.voters[tx.VoterId] = struct{}{}
}

// save runs a gateway write, absorbing any failure. The write outlives
// cancellation of ctx since the in-memory state has already changed.
func (l *Ledger) save(
	ctx context.Context,
	op string,
	fn func(context.Context) error,
) {
	if l.gateway == nil {
		return
	}
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		l.persistenceFailure(op, err)
	}
}

func (l *Ledger) persistenceFailure(op string, err error) {
	if !errors.Is(err, database.ErrPersistenceFailure) {
		err = &database.PersistenceError{Op: op, Err: err}
	}
	l.metrics.persistenceFailures.WithLabelValues(op).Inc()
	l.logger.Error(
		"persistence failure",
		"op", op,
		"error", err,
	)
	if l.config.EventBus != nil {
		l.config.EventBus.Publish(
			LedgerErrorEventType,
			event.NewEvent(
				LedgerErrorEventType,
				LedgerErrorEvent{Error: err, Operation: op},
			),
		)
	}
}

// SubmitTransaction verifies a vote and appends it to the pool. The pool
// entry is persisted before returning, although a persistence failure only
// gets logged.
func (l *Ledger) SubmitTransaction(
	ctx context.Context,
	tx chain.Transaction,
) error {
	ctx, span := l.tracer.Start(
		ctx,
		"ledger.SubmitTransaction",
		trace.WithAttributes(
			attribute.String("vote.voter_id", tx.VoterId),
			attribute.String("vote.candidate_id", tx.CandidateId),
		),
	)
	defer span.End()
	if err := l.submitTransaction(ctx, tx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (l *Ledger) submitTransaction(
	ctx context.Context,
	tx chain.Transaction,
) error {
	if err := verifyTransaction(tx); err != nil {
		l.reject(tx, err)
		return err
	}
	l.Lock()
	defer l.Unlock()
	if !l.started {
		return ErrNotStarted
	}
	if l.config.OneVotePerVoter {
		if _, ok := l.voters[tx.VoterId]; ok {
			err := fmt.Errorf("%w: %s", ErrDuplicateVote, tx.VoterId)
			l.reject(tx, err)
			return err
		}
	}
	if err := l.mempool.AddTransaction(tx); err != nil {
		l.reject(tx, err)
		return err
	}
	l.trackVoter(tx)
	l.save(ctx, "save_pending", func(ctx context.Context) error {
		return l.gateway.SavePending(ctx, tx)
	})
	l.logger.Debug(
		"transaction accepted",
		"voter_id", tx.VoterId,
		"candidate_id", tx.CandidateId,
		"pending", l.mempool.Len(),
	)
	return nil
}

// verifyTransaction checks the required fields and signature. Key material
// is mandatory for submitted transactions.
func verifyTransaction(tx chain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if tx.SenderPublicKey == "" {
		return chain.NewMalformedKeyMaterialError(
			"senderPublicKey",
			errors.New("missing"),
		)
	}
	if tx.Signature == "" {
		return chain.NewMalformedKeyMaterialError(
			"signature",
			errors.New("missing"),
		)
	}
	ok, err := tx.VerifySignature()
	if err != nil {
		return err
	}
	if !ok {
		return chain.ErrSignatureVerificationFailed
	}
	return nil
}

func rejectReason(err error) string {
	var fullErr *mempool.MempoolFullError
	switch {
	case errors.Is(err, chain.ErrInvalidTransaction):
		return "invalid"
	case errors.Is(err, chain.ErrMalformedKeyMaterial):
		return "malformed_key"
	case errors.Is(err, chain.ErrSignatureVerificationFailed):
		return "bad_signature"
	case errors.Is(err, ErrDuplicateVote):
		return "duplicate"
	case errors.As(err, &fullErr):
		return "pool_full"
	default:
		return "other"
	}
}

func (l *Ledger) reject(tx chain.Transaction, err error) {
	reason := rejectReason(err)
	l.metrics.rejectedTransactions.WithLabelValues(reason).Inc()
	l.logger.Debug(
		"transaction rejected: "+err.Error(),
		"voter_id", tx.VoterId,
		"reason", reason,
	)
	if l.config.EventBus != nil {
		l.config.EventBus.Publish(
			TransactionRejectedEventType,
			event.NewEvent(
				TransactionRejectedEventType,
				TransactionRejectedEvent{
					VoterId: tx.VoterId,
					Reason:  reason,
					Error:   err,
				},
			),
		)
	}
}

// MinePending seals every pending transaction into a new block. It returns
// ErrNothingToMine when the pool is empty. The proof-of-work search runs to
// completion while holding the writer lock.
func (l *Ledger) MinePending(ctx context.Context) (*chain.Block, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.MinePending")
	defer span.End()
	l.Lock()
	defer l.Unlock()
	if !l.started {
		return nil, ErrNotStarted
	}
	if l.mempool.Len() == 0 {
		span.SetAttributes(attribute.Bool("mine.noop", true))
		return nil, ErrNothingToMine
	}
	txs := l.mempool.Snapshot()
	latest := l.chain[len(l.chain)-1]
	block := chain.NewBlock(uint64(len(l.chain)), latest.Hash, txs)
	start := time.Now()
	block.Seal(l.config.Difficulty)
	elapsed := time.Since(start)
	l.chain = append(l.chain, block.Clone())
	l.save(ctx, "save_block", func(ctx context.Context) error {
		return l.gateway.SaveBlock(ctx, block)
	})
	l.save(ctx, "clear_pending", func(ctx context.Context) error {
		return l.gateway.ClearPending(ctx)
	})
	l.mempool.Clear()

	l.length.Store(int64(len(l.chain)))
	l.metrics.blocksMinedTotal.Inc()
	l.metrics.miningSeconds.Observe(elapsed.Seconds())
	l.metrics.chainLength.Set(float64(len(l.chain)))
	span.SetAttributes(
		attribute.Int64("block.index", int64(block.Index)), //nolint:gosec // chain length fits in int64
		attribute.Int("block.transactions", len(block.Transactions)),
		attribute.Int64("block.nonce", int64(block.Nonce)), //nolint:gosec // nonce search never reaches 2^63
		attribute.String("block.hash", block.Hash),
	)
	l.logger.Info(
		fmt.Sprintf(
			"mined block %d with %d transactions",
			block.Index,
			len(block.Transactions),
		),
		"hash", block.Hash,
		"nonce", block.Nonce,
		"duration", elapsed,
	)
	if l.config.EventBus != nil {
		l.config.EventBus.Publish(
			BlockMinedEventType,
			event.NewEvent(
				BlockMinedEventType,
				BlockMinedEvent{Block: block.Clone(), Duration: elapsed},
			),
		)
	}
	return &block, nil
}
