package board

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cppla/goboard/store"
	"github.com/cppla/goboard/utils"
)

// StartOrphanSweeper launches a background goroutine that periodically
// removes files under uploadDir that no post or user record references
// anymore. Unlink failures never surface as mutation errors, so stale files
// can accumulate; the sweeper is the best-effort catch-up. Files younger
// than one hour are skipped so uploads that have not been attached to a
// record yet survive.
func StartOrphanSweeper(s store.Store, fileRoot, uploadDir string, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	go func() {
		for {
			// Sleep first to avoid racing immediately at startup.
			time.Sleep(interval)
			if err := sweepOrphans(s, fileRoot, uploadDir); err != nil {
				if utils.Sugar != nil {
					utils.Sugar.Warnf("orphan sweep failed: %v", err)
				}
			}
		}
	}()
}

func sweepOrphans(s store.Store, fileRoot, uploadDir string) error {
	referenced, err := referencedPaths(s)
	if err != nil {
		return err
	}

	root := filepath.Join(fileRoot, uploadDir)
	cutoff := time.Now().Add(-time.Hour)
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || info.ModTime().After(cutoff) {
			return nil
		}
		rel, err := filepath.Rel(fileRoot, path)
		if err != nil {
			return nil
		}
		stored := "/" + filepath.ToSlash(rel)
		if referenced[stored] {
			return nil
		}
		if err := os.Remove(path); err != nil {
			if utils.Sugar != nil {
				utils.Sugar.Warnf("orphan sweep remove failed: %v", err)
			}
			return nil
		}
		if utils.Sugar != nil {
			utils.Sugar.Infow("removed orphaned upload", "path", path)
		}
		return nil
	})
}

// referencedPaths collects every stored file path currently referenced by a
// post image or user profile image.
func referencedPaths(s store.Store) (map[string]bool, error) {
	refs := map[string]bool{}
	posts, err := s.ListPosts()
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		if p.Image != "" {
			refs[p.Image] = true
		}
	}
	users, err := s.ListUsers()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ProfileImage != "" {
			refs[u.ProfileImage] = true
		}
	}
	return refs, nil
}
