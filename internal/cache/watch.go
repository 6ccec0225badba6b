package cache

import (
	"context"
	"log/slog"

	"github.com/mknutsen/chorequest/internal/notify"
)

// Entity names used in change events and watch streams.
const (
	EntityChores      = "chores"
	EntityTemplates   = "templates"
	EntityRewards     = "rewards"
	EntityRedemptions = "redemptions"
	EntityUsers       = "users"
	EntityLogs        = "logs"
)

// watchList streams the current snapshot of an entity collection,
// re-emitting it whenever the hub reports a change for that entity.
// Slow consumers see latest-value semantics: a pending stale snapshot is
// replaced rather than queued. The stream closes when ctx is done.
func watchList[T any](ctx context.Context, hub *notify.Hub, entity string, load func() ([]T, error)) <-chan []T {
	out := make(chan []T, 1)
	events, cancel := hub.Subscribe()

	go func() {
		defer close(out)
		defer cancel()

		emit := func() {
			items, err := load()
			if err != nil {
				slog.Warn("watch reload failed", "entity", entity, "error", err)
				return
			}
			// Drop any unconsumed stale snapshot, then send the fresh one.
			select {
			case <-out:
			default:
			}
			select {
			case out <- items:
			case <-ctx.Done():
			}
		}

		emit()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if e.Entity == entity {
					emit()
				}
			}
		}
	}()

	return out
}
