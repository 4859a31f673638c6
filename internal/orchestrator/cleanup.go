package orchestrator

import (
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/rs/zerolog/log"
)

// CleanupTemps removes leftover temporary files of interrupted atomic
// writes (".<name>-<random>") older than maxAge from dirs. Subdirectories
// are walked; missing dirs are ignored. It returns the number removed.
func CleanupTemps(dirs []string, maxAge time.Duration) int {
    now := time.Now()
    removed := 0
    for _, dir := range dirs {
        _ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
            if err != nil || info == nil || info.IsDir() { return nil }
            if !isAtomicTemp(info.Name()) { return nil }
            if now.Sub(info.ModTime()) >= maxAge {
                if os.Remove(path) == nil {
                    removed++
                    log.Debug().Str("file", path).Msg("removed stale temp file")
                }
            }
            return nil
        })
    }
    return removed
}

// isAtomicTemp matches names produced by fsutil.WriteAtomic, e.g.
// ".PO-1.csv-123456".
func isAtomicTemp(name string) bool {
    if !strings.HasPrefix(name, ".") { return false }
    i := strings.LastIndex(name, "-")
    return i > 1 && i < len(name)-1 && strings.Contains(name[1:i], ".")
}
