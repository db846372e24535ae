package source

import "context"

// Adapter materializes one remote resource at a local path. The fetcher
// owns retries and atomic placement; an adapter makes a single attempt and
// may leave dst partially written on error.
type Adapter interface {
	Configure(Config) error
	Download(ctx context.Context, ref Ref, dst string) error
}
