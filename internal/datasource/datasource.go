// Package datasource defines the minimal contract for input data sources.
// Concrete implementations live in subpackages (currently the local
// filesystem source in datasource/file).
package datasource

import (
	"context"
	"io"
)

// Source opens a byte stream of input data. Open may be called more than
// once; each call returns an independent reader.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}
