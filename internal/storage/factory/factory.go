// Package factory opens storage backends by name.
package factory

import (
	"context"
	"fmt"

	"github.com/vigilops/vigil/internal/storage"
	"github.com/vigilops/vigil/internal/storage/memory"
	"github.com/vigilops/vigil/internal/storage/mysql"
)

// Open creates a storage backend. An empty backend selects memory. The
// memory backend ignores dsn; mysql requires a go-sql-driver DSN such as
// "vigil:vigil@tcp(127.0.0.1:3306)/vigil".
func Open(ctx context.Context, backend, dsn string) (storage.Storage, error) {
	switch backend {
	case "", storage.BackendMemory:
		return memory.New(), nil
	case storage.BackendMySQL:
		if dsn == "" {
			return nil, fmt.Errorf("mysql backend requires a dsn")
		}
		return mysql.Open(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: %s, %s)",
			backend, storage.BackendMemory, storage.BackendMySQL)
	}
}
