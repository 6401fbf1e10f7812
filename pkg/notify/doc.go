/*
Package notify implements the change-notification broker: the subscription
registry, the path matcher and the delivery pipeline, all owned by a single
request loop.

# Architecture

	┌──────────── clients ────────────┐     ┌──── watch.Manager ────┐
	│ Register / Unregister / Deliver │     │  fsnotify watchers    │
	│ RemoveByProcess / Shutdown      │     │  (one per scope)      │
	└───────────────┬─────────────────┘     └──────────┬────────────┘
	                │ call (reply chan)                │ Post (no wait)
	                ▼                                  ▼
	         ┌──────────────────── requests ────────────────────┐
	         │                 buffered channel                 │
	         └────────────────────────┬─────────────────────────┘
	                                  ▼
	                         ┌──── Server.Run ────┐
	                         │ one request at a   │
	                         │ time, to completion│
	                         └──┬─────────────┬───┘
	                            │             │
	                     ┌──────▼─────┐ ┌─────▼──────┐
	                     │  Registry  │ │  deliver   │──► sink.Sink
	                     │  (slots)   │ │ShouldNotify│
	                     └────────────┘ └────────────┘

# Ownership

Registration and ticket payloads live in a shm.Gateway. On Register the
broker maps the caller's payload for writing, assigns an id when the
caller left it at types.InvalidID, and keeps a clone owned by the broker
PID; the caller's block stays the caller's. The assigned id, or the
sentinel on failure, is written back into the caller's payload.

A delivered ticket is freed by the broker exactly once, after every
subscription has seen it. Sinks receive the ticket handle and must finish
reading it before Deliver returns.

# Matching

See ShouldNotify. Non-recursive subscriptions match their scope and any
ticket reported against an ancestor of it; watchers for non-recursive
scopes report every change against the watched directory itself, keeping
the kind of change and adding update-dir. A subscription's watch is
recursive only when its Recursive flag is set.

# Usage

	arena := shm.NewArena(0)
	sinks := sink.NewTable()
	resolver, _ := itemid.NewFSResolver("/")

	srv := notify.NewServer(notify.DefaultConfig(), arena, sinks, resolver)
	srv.Start()
	defer srv.Stop()

Most callers go through pkg/client instead of calling the Server directly.
*/
package notify
