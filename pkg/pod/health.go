package pod

import (
	"context"
	"fmt"
	"time"
)

// pingKey is written and read back by Ping; its name deliberately sorts
// before ordinary content-addressed keys so it never collides with one.
const pingKey = "!lakota-ping"

// Ping verifies a Pod is reachable and writable by round-tripping a small
// probe value, a single on-demand check any caller can invoke directly.
func Ping(ctx context.Context, p Pod) error {
	probe := []byte(time.Now().UTC().Format(time.RFC3339Nano))

	if err := WithRetry(ctx, func() error {
		return p.Put(ctx, pingKey, probe)
	}); err != nil {
		return fmt.Errorf("pod: ping %s: %w", p, err)
	}

	got, err := p.Get(ctx, pingKey)
	if err != nil {
		return fmt.Errorf("pod: ping %s: read back: %w", p, err)
	}
	if string(got) != string(probe) {
		return fmt.Errorf("pod: ping %s: read back mismatch", p)
	}
	return nil
}
