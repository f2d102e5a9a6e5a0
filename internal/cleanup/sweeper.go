// Package cleanup retires stale working directories left behind by the
// repo stage. It runs as its own ticker loop, independent of the
// dispatcher's polling cadence, per spec.md's scheduled-method redesign.
package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cifix/pipeline/internal/data/repos/builds"
	"github.com/cifix/pipeline/internal/domain"
	"github.com/cifix/pipeline/internal/platform/dbctx"
	"github.com/cifix/pipeline/internal/platform/logger"
)

// Sweeper deletes working directories under WorkRoot that are older than
// Retention and whose owning build, if still resolvable, is not in
// progress. An orphan directory (no matching build row at all) is also
// eligible once it ages out, but never while a build is processing.
type Sweeper struct {
	workRoot  string
	retention time.Duration
	buildRepo builds.BuildRepo
	log       *logger.Logger
}

func NewSweeper(workRoot string, retention time.Duration, buildRepo builds.BuildRepo, baseLog *logger.Logger) *Sweeper {
	return &Sweeper{
		workRoot:  workRoot,
		retention: retention,
		buildRepo: buildRepo,
		log:       baseLog.With("component", "CleanupSweeper"),
	}
}

// Start runs the sweep on interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("cleanup sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	entries, err := os.ReadDir(s.workRoot)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("failed to list work root", "work_root", s.workRoot, "error", err)
		}
		return
	}

	cutoff := time.Now().Add(-s.retention)
	removed := 0

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(s.workRoot, entry.Name())

		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		buildID, ok := buildIDFromDirName(entry.Name())
		if ok {
			build, err := s.buildRepo.Find(dbctx.Context{Ctx: ctx}, buildID)
			if err != nil {
				s.log.Warn("failed to look up build for cleanup candidate", "dir", dirPath, "error", err)
				continue
			}
			if build != nil && build.Status == domain.BuildProcessing {
				continue
			}
		}

		if err := os.RemoveAll(dirPath); err != nil {
			s.log.Warn("failed to remove stale working directory", "dir", dirPath, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.log.Info("cleanup sweep removed stale working directories", "count", removed)
	}
}

// buildIDFromDirName parses the "build-{id}" naming convention the repo
// stage uses (internal/pipeline/stages/repo).
func buildIDFromDirName(name string) (uint, bool) {
	const prefix = "build-"
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(name, prefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}
