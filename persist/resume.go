package persist

import (
	"context"
	"log/slog"

	"github.com/warrennet/warren/request"
)

// Resume loads every stored record, rebuilds it, and reattaches it to
// its client queue. It runs before Start, while this goroutine is still
// the only writer, so no locking is needed against the job loop.
//
// A record that fails to verify, decode, or resume is logged and
// skipped. Its blob stays in the store for offline inspection; one
// corrupt entry must not take down the rest of the queue.
func (r *Runner) Resume(ctx context.Context, env request.ResumeEnv) (int, error) {
	if !r.enabled {
		return 0, nil
	}
	keys, err := r.store.Keys(ctx)
	if err != nil {
		return 0, err
	}
	var resumed int
	for _, key := range keys {
		blob, err := r.store.Get(ctx, key)
		if err != nil {
			r.logger.Warn("resume read failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
			continue
		}
		id, payload, err := OpenRecord(blob, r.checker)
		if err != nil {
			r.logger.Warn("resume envelope rejected",
				slog.String("key", key),
				slog.String("error", err.Error()))
			continue
		}
		rec, err := request.ResumeRecord(payload, id, env)
		if err != nil {
			r.logger.Warn("resume decode rejected",
				slog.String("key", key),
				slog.String("error", err.Error()))
			continue
		}
		if err := rec.OnResume(ctx, env); err != nil {
			r.logger.Warn("resume reattach failed",
				slog.String("identifier", rec.Identifier()),
				slog.String("error", err.Error()))
			continue
		}
		resumed++
	}
	r.logger.Info("resume complete",
		slog.Int("stored", len(keys)),
		slog.Int("resumed", resumed))
	return resumed, nil
}
