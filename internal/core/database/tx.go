// Package database lets repositories of different packages share one GORM
// transaction through the request context.
package database

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// WithTx returns a context carrying tx.
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// Conn returns the transaction carried by ctx, or db when there is none.
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// Transaction runs fn inside a transaction carried by the context fn receives.
// When ctx already carries one, fn joins it through a savepoint.
func Transaction(ctx context.Context, db *gorm.DB, fn func(ctx context.Context) error) error {
	return Conn(ctx, db).Transaction(func(tx *gorm.DB) error {
		return fn(WithTx(ctx, tx))
	})
}
