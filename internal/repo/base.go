// Package repo holds the pieces every GORM-backed repository shares.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Base binds a repository to one connection or transaction handle.
type Base struct {
	conn *gorm.DB
}

func NewBase(conn *gorm.DB) Base {
	return Base{conn: conn}
}

// DB returns the handle scoped to ctx; a nil ctx yields the raw handle.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.conn
	}
	return b.conn.WithContext(ctx)
}

// TakeOne runs q into a fresh T. A missing row is (nil, nil).
func TakeOne[T any](q *gorm.DB) (*T, error) {
	var row T
	err := q.Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
