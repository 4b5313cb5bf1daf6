package tools

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryWait = 200 * time.Millisecond

var (
	lockMu    sync.Mutex
	heldLock  *flock.Flock
	errLocked = errors.New("index lock held by another process")
)

// acquireLock takes the inter-process index lock, waiting up to the
// configured timeout. Holding it already is not an error.
func acquireLock() error {
	lockMu.Lock()
	defer lockMu.Unlock()

	if heldLock != nil && heldLock.Locked() {
		return nil
	}

	lockPath := filepath.Join(dataDir, lockFile)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	l := flock.New(lockPath)
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), settings.Index.LockTimeout)
	defer cancel()

	locked, err := l.TryLockContext(ctx, lockRetryWait)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("timeout waiting for index lock after %v: %w",
				time.Since(startTime).Round(time.Millisecond), errLocked)
		}
		return fmt.Errorf("failed to lock %s: %w", lockPath, err)
	}
	if !locked {
		return errLocked
	}

	heldLock = l
	log.Printf("✓ Index lock acquired (PID %d)", os.Getpid())
	return nil
}

// releaseLock releases the index lock if this process holds it
func releaseLock() error {
	lockMu.Lock()
	defer lockMu.Unlock()

	if heldLock == nil {
		return nil
	}

	if err := heldLock.Unlock(); err != nil {
		return fmt.Errorf("failed to release index lock: %w", err)
	}
	heldLock = nil

	log.Printf("✓ Index lock released")
	return nil
}
