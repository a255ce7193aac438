package composables

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// InTenantTx joins the transaction already in ctx or starts a new one.
func InTenantTx(ctx context.Context, fn func(context.Context) error) error {
	if existing, ok := ctx.Value(txKey).(pgx.Tx); ok && existing != nil {
		if err := ApplyTenantRLS(ctx, existing); err != nil {
			return err
		}
		return fn(ctx)
	}

	pool, err := UsePool(ctx)
	if err != nil {
		return err
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	return finishTx(ctx, tx, fn)
}

func InTenantTxResult[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := InTenantTx(ctx, func(txCtx context.Context) error {
		var innerErr error
		out, innerErr = fn(txCtx)
		return innerErr
	})
	return out, err
}
