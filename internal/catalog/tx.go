package catalog

import (
	"context"
	"errors"
	"fmt"
)

// TxLevel is the locking strength of a transaction, weakest first.
type TxLevel int

const (
	TxDeferred TxLevel = iota
	TxImmediate
	TxExclusive
)

func (l TxLevel) String() string {
	switch l {
	case TxDeferred:
		return "deferred"
	case TxImmediate:
		return "immediate"
	case TxExclusive:
		return "exclusive"
	default:
		return fmt.Sprintf("TxLevel(%d)", int(l))
	}
}

func (l TxLevel) beginStmt() string {
	switch l {
	case TxImmediate:
		return "BEGIN IMMEDIATE"
	case TxExclusive:
		return "BEGIN EXCLUSIVE"
	default:
		return "BEGIN DEFERRED"
	}
}

// ErrTxAborted is returned by the outermost InTx when a nested transaction
// rolled back but the outer function still returned nil. Nothing is
// committed in that case.
var ErrTxAborted = errors.New("transaction aborted by nested rollback")

type txKey struct{}

// txGuard is the reference-counted state of the one physical transaction
// open on the catalog connection.
type txGuard struct {
	cat          *Catalog
	depth        int
	level        TxLevel
	rollbackOnly bool
}

// InTx runs fn inside a transaction of at least the requested level.
//
// The transaction travels in the context passed to fn: calling InTx again
// with that context nests instead of opening a second transaction. Only the
// outermost call issues BEGIN and COMMIT/ROLLBACK. A nested call asking for a
// stronger level escalates the open transaction; the level never goes back
// down for the rest of the chain.
//
// If fn returns an error or panics, the level is rolled back and the whole
// chain becomes rollback-only, so the outermost exit can never commit a
// partial unit of work.
func (c *Catalog) InTx(ctx context.Context, level TxLevel, fn func(ctx context.Context) error) error {
	g, ok := ctx.Value(txKey{}).(*txGuard)
	if !ok || g.cat != c {
		c.mu.Lock()
		defer c.mu.Unlock()
		g = &txGuard{cat: c}
		ctx = context.WithValue(ctx, txKey{}, g)
	}

	if err := g.begin(ctx, level); err != nil {
		return err
	}

	var fnErr error
	func() {
		defer func() {
			if p := recover(); p != nil {
				_ = g.rollback(ctx) //nolint:errcheck // re-panicking below
				panic(p)
			}
		}()
		fnErr = fn(ctx)
	}()

	if fnErr != nil {
		if rbErr := g.rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", fnErr, rbErr)
		}
		return fnErr
	}
	return g.commit(ctx)
}

// CurrentTx reports the level and nesting depth of the transaction carried by
// ctx, if any.
func CurrentTx(ctx context.Context) (level TxLevel, depth int, ok bool) {
	g, ok := ctx.Value(txKey{}).(*txGuard)
	if !ok || g.depth == 0 {
		return TxDeferred, 0, false
	}
	return g.level, g.depth, true
}

func (g *txGuard) begin(ctx context.Context, level TxLevel) error {
	switch {
	case g.depth == 0:
		if _, err := g.cat.conn.ExecContext(ctx, level.beginStmt()); err != nil {
			return fmt.Errorf("begin %s transaction: %w", level, err)
		}
		g.level = level
		g.rollbackOnly = false
	case level > g.level:
		// SQLite cannot re-BEGIN; a write takes the reserved lock in place.
		// In WAL mode immediate and exclusive hold the same lock.
		if _, err := g.cat.conn.ExecContext(ctx,
			`UPDATE catalog_lock SET seq = seq + 1 WHERE id = 1`); err != nil {
			g.rollbackOnly = true
			return fmt.Errorf("escalate transaction to %s: %w", level, err)
		}
		g.level = level
	}
	g.depth++
	return nil
}

func (g *txGuard) commit(ctx context.Context) error {
	if g.depth > 0 {
		g.depth--
	}
	if g.depth > 0 {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	if g.rollbackOnly {
		if _, err := g.cat.conn.ExecContext(ctx, "ROLLBACK"); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		return ErrTxAborted
	}
	if _, err := g.cat.conn.ExecContext(ctx, "COMMIT"); err != nil {
		// A failed COMMIT (e.g. SQLITE_BUSY) leaves the transaction open.
		_, _ = g.cat.conn.ExecContext(ctx, "ROLLBACK") //nolint:errcheck // reporting the commit error
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (g *txGuard) rollback(ctx context.Context) error {
	if g.depth > 0 {
		g.depth--
	}
	g.rollbackOnly = true
	if g.depth > 0 {
		return nil
	}
	if _, err := g.cat.conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK"); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
