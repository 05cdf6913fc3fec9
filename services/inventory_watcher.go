// services/inventory_watcher.go
package services

import (
	"context"
	"os"
	"time"

	"rolewarden/common"
)

const watchInterval = 10 * time.Second

var (
	watchedModTime time.Time
	watcherActive  bool
)

// StartInventoryWatcher polls the inventory file's mtime and reloads the
// inventory when it moves forward. Runs until the context ends.
func StartInventoryWatcher(ctx context.Context) {
	if watcherActive {
		return
	}
	watcherActive = true

	if p := InventoryPath(); p != "" {
		if st, err := os.Stat(p); err == nil {
			watchedModTime = st.ModTime()
		}
	}

	go func() {
		tick := time.NewTicker(watchInterval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				common.InfoLog("inventory watcher stopped")
				watcherActive = false
				return
			case <-tick.C:
				reloadIfChanged()
			}
		}
	}()

	common.InfoLog("inventory watcher started (every %s)", watchInterval)
}

func reloadIfChanged() {
	p := InventoryPath()
	if p == "" {
		return
	}
	st, err := os.Stat(p)
	if err != nil {
		common.DebugLog("inventory watcher: stat %s: %v", p, err)
		return
	}
	if mt := st.ModTime(); mt.After(watchedModTime) {
		common.InfoLog("inventory file changed, reloading")
		if err := ReloadInventory(); err != nil {
			common.ErrorLog("inventory reload failed: %v", err)
		}
		watchedModTime = mt
	}
}
