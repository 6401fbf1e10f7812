/*
Package watch runs the background directory watchers that feed
interrupt-level tickets into the broker.

# Architecture

	┌────────────────────── WATCH MANAGER ──────────────────────┐
	│                                                             │
	│  notify.Server ──StartWatch──► Manager ──► Watcher (goroutine)
	│        ▲                                     │              │
	│        │                          fsnotify events           │
	│        │                                     ▼              │
	│        └──────────── Post(ticket) ◄── AllocTicket (shm)      │
	│                                                             │
	│  RequestStop / RequestStopAll: close stop channel, no join  │
	└─────────────────────────────────────────────────────────────┘

A watcher never calls into the registry or the delivery pipeline. It
allocates a ticket tagged with the interrupt bit in the shared arena under
the broker's PID and posts it onto the broker's request channel; if the
post is refused the watcher frees the ticket itself. Once a stop is
requested the watcher posts nothing further, closes its fsnotify handle and
removes itself from the manager.

# Event mapping

  - Create: mkdir for directories (recursive watches start watching them),
    create otherwise
  - Write: update-item
  - Remove: rmdir for watched directories, delete otherwise
  - Rename: rename-folder for watched directories, rename otherwise
  - Chmod: attributes
  - queue overflow: update-dir on the watched directory

Recursive watches report the changed item. Non-recursive watches report
every change against the watched directory itself, with update-dir added
to the mapped bits.
*/
package watch
