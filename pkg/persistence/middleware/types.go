// Package middleware provides composable wrappers around snapshot archives.
package middleware

import "github.com/masltov-creations/opencommotion/pkg/ports"

// Middleware wraps a SnapshotArchive with additional behavior.
type Middleware func(ports.SnapshotArchive) ports.SnapshotArchive

// Chain applies middlewares right to left, so the first one listed is the
// outermost layer.
func Chain(archive ports.SnapshotArchive, middlewares ...Middleware) ports.SnapshotArchive {
	for i := len(middlewares) - 1; i >= 0; i-- {
		archive = middlewares[i](archive)
	}
	return archive
}
