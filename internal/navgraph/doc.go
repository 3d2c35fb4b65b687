// Package navgraph is the learned per-package navigation graph (C8):
// screens identified by a hash of their activity and UI landmarks, and the
// transitions discovered between them. internal/executor consults it during
// smart navigation recovery and feeds it new screens during Learn Mode.
//
// Each package's graph is a single JSON file under
// "<data dir>/navigation/<package>.json", matching the store's per-device
// JSON persistence rather than a database table — navigation graphs are
// shared across every device running the same app, not scoped to one
// device, so there is no natural SQL key to hang them off.
package navgraph
