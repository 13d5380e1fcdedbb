/*
Package debounce implements a debounced, single-flight action scheduler.

A Scheduler accepts a stream of (delay, payload) requests tagged by an action
identity. For each identity it guarantees:

  - at most one pending timer: a new request cancels and replaces the old one,
    so only the latest payload of a burst ever fires;
  - at most one invocation of the action in flight;
  - at most one queued payload: a timer that expires while the action is running
    stores its payload (last write wins) and the queued payload runs immediately
    after the current invocation completes, without another delay.

Completion is the same for success and failure. A failing action clears the
in-progress flag and drains the queue exactly like a successful one, and the
scheduler never retries. Independent identities never block each other.

An in-flight invocation cannot be aborted. Superseding intent is done only by
overwriting the queued payload. WithActionTimeout gives each invocation a
context deadline for actions that honor it.

# Usage

	s := debounce.New[string, string]()
	s.Schedule(250*time.Millisecond, pattern, "search", func(ctx context.Context, p string) error {
		return backend.Find(ctx, p)
	})
*/
package debounce
