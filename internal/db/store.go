package db

import (
	"context"
	"database/sql"
	"math"
	prand "math/rand"
	"time"
)

// DefaultStoreTimeout is the default timeout used for any interaction with
// the durable store.
var DefaultStoreTimeout = time.Second * 10

const (
	// DefaultNumTxRetries is the default number of times we'll retry a
	// transaction if it fails with an error that permits repetition.
	DefaultNumTxRetries = 10

	// DefaultInitialRetryDelay is the default initial delay between
	// retries. The actual delay is randomized between -50% and +50% of
	// this value and doubled after each attempt, so goroutines created at
	// the same time do not retry in lockstep.
	DefaultInitialRetryDelay = time.Millisecond * 40

	// DefaultMaxRetryDelay is the default maximum delay between retries.
	DefaultMaxRetryDelay = time.Second * 3
)

// TxOptions controls what type of database transaction is created.
type TxOptions interface {
	// ReadOnly returns true if the transaction should be read-only.
	ReadOnly() bool
}

// BaseTxOptions is the plain implementation of TxOptions.
type BaseTxOptions struct {
	readOnly bool
}

// ReadOnly returns true if the transaction should be read only.
//
// NOTE: This implements the TxOptions interface.
func (a *BaseTxOptions) ReadOnly() bool {
	return a.readOnly
}

// ReadTxOption returns a TxOptions for a read-only transaction.
func ReadTxOption() *BaseTxOptions {
	return &BaseTxOptions{readOnly: true}
}

// WriteTxOption returns a TxOptions for a write transaction.
func WriteTxOption() *BaseTxOptions {
	return &BaseTxOptions{readOnly: false}
}

// txOptions holds retry tuning for the transaction executor.
type txOptions struct {
	numRetries        int
	initialRetryDelay time.Duration
	maxRetryDelay     time.Duration
}

// defaultTxOptions returns the default retry tuning.
func defaultTxOptions() *txOptions {
	return &txOptions{
		numRetries:        DefaultNumTxRetries,
		initialRetryDelay: DefaultInitialRetryDelay,
		maxRetryDelay:     DefaultMaxRetryDelay,
	}
}

// randRetryDelay returns a random retry delay between -50% and +50% of the
// configured delay that is doubled for each attempt and capped at a max
// value.
func (t *txOptions) randRetryDelay(attempt int) time.Duration {
	halfDelay := t.initialRetryDelay / 2
	randDelay := prand.Int63n(int64(t.initialRetryDelay)) //nolint:gosec

	// 50% plus 0%-100% gives us the range of 50%-150%.
	initialDelay := halfDelay + time.Duration(randDelay)

	if attempt == 0 {
		return initialDelay
	}

	// Doubling n times multiplies by 2^n; the exponent is capped to
	// avoid overflow.
	factor := time.Duration(math.Pow(2, math.Min(float64(attempt), 32)))
	actualDelay := initialDelay * factor //nolint:durationcheck

	if actualDelay > t.maxRetryDelay {
		return t.maxRetryDelay
	}

	return actualDelay
}

// TxOption is a functional option for the transaction executor.
type TxOption func(*txOptions)

// WithTxRetries overrides the number of times a transaction is retried on a
// repeatable error.
func WithTxRetries(numRetries int) TxOption {
	return func(o *txOptions) {
		o.numRetries = numRetries
	}
}

// WithTxRetryDelay overrides the initial delay before a retry.
func WithTxRetryDelay(delay time.Duration) TxOption {
	return func(o *txOptions) {
		o.initialRetryDelay = delay
	}
}

// Store wraps the raw database handle with a retrying transaction executor.
// Both execution contexts go through a Store; retries with jittered backoff
// absorb the busy/locked errors SQLite returns when their writes collide.
type Store struct {
	db *sql.DB

	opts *txOptions
}

// NewStore creates a Store around an open database connection.
func NewStore(sqlDB *sql.DB, opts ...TxOption) *Store {
	txOpts := defaultTxOptions()
	for _, opt := range opts {
		opt(txOpts)
	}

	return &Store{
		db:   sqlDB,
		opts: txOpts,
	}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ExecTx runs txBody inside a transaction, retrying with jittered backoff
// when the error is a serialization or deadlock error. Rollback is safe to
// call after a successful commit, so the deferred rollback is a no-op on the
// happy path.
func (s *Store) ExecTx(ctx context.Context, txOpts TxOptions,
	txBody func(*sql.Tx) error) error {

	waitBeforeRetry := func(attempt int) {
		retryDelay := s.opts.randRetryDelay(attempt)

		log.DebugS(ctx, "Retrying transaction due to tx "+
			"serialization or deadlock error",
			"attempt_number", attempt,
			"delay", retryDelay)

		time.Sleep(retryDelay)
	}

	for i := 0; i < s.opts.numRetries; i++ {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{
			ReadOnly: txOpts.ReadOnly(),
		})
		if err != nil {
			dbErr := MapSQLError(err)
			if IsSerializationOrDeadlockError(dbErr) {
				waitBeforeRetry(i)
				continue
			}

			return dbErr
		}

		defer func() {
			_ = tx.Rollback()
		}()

		if err := txBody(tx); err != nil {
			dbErr := MapSQLError(err)
			if IsSerializationOrDeadlockError(dbErr) {
				_ = tx.Rollback()
				waitBeforeRetry(i)
				continue
			}

			return dbErr
		}

		if err := tx.Commit(); err != nil {
			dbErr := MapSQLError(err)
			if IsSerializationOrDeadlockError(dbErr) {
				_ = tx.Rollback()
				waitBeforeRetry(i)
				continue
			}

			return dbErr
		}

		return nil
	}

	return ErrRetriesExceeded
}

// WithTx runs txBody inside a write transaction.
func (s *Store) WithTx(ctx context.Context,
	txBody func(*sql.Tx) error) error {

	return s.ExecTx(ctx, WriteTxOption(), txBody)
}

// WithReadTx runs txBody inside a read-only transaction.
func (s *Store) WithReadTx(ctx context.Context,
	txBody func(*sql.Tx) error) error {

	return s.ExecTx(ctx, ReadTxOption(), txBody)
}
