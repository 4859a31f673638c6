package naming

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// LockName is the lock file created in the finalized directory while a
// stem is probed and claimed.
const LockName = ".naming.lock"

// ErrLockTimeout is returned when the naming lock could not be taken in time.
var ErrLockTimeout = errors.New("naming lock not acquired")

const lockRetry = 50 * time.Millisecond

type fileLock struct {
	path string
}

// acquireLock creates dir/.naming.lock exclusively. A lock older than
// stale is considered abandoned and removed.
func acquireLock(ctx context.Context, dir string, wait, stale time.Duration) (*fileLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}
	path := filepath.Join(dir, LockName)
	deadline := time.Now().Add(wait)
	for {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			f.Close()
			return &fileLock{path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock: %w", err)
		}
		if st, serr := os.Stat(path); serr == nil && stale > 0 && time.Since(st.ModTime()) > stale {
			log.Warn().Str("lock", path).Dur("age", time.Since(st.ModTime())).Msg("breaking stale naming lock")
			_ = os.Remove(path)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, path)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetry):
		}
	}
}

func (l *fileLock) release() {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("lock", l.path).Msg("failed to remove naming lock")
	}
}
