package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taskbell/internal/ops"
	"taskbell/internal/task"
)

// storeInDataDir rejects a store_file that lives outside data_dir, since
// backup and restore only cover data_dir.
func storeInDataDir(e *env) error {
	dir, err := filepath.Abs(e.cfg.DataDir)
	if err != nil {
		return err
	}
	store, err := filepath.Abs(e.cfg.StorePath())
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(dir, store)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("store_file %s is outside data_dir %s; back it up separately", store, dir)
	}
	return nil
}

func cmdBackup(e *env, args []string) error {
	fs := newFlagSet(e, "backup")
	out := fs.String("out", "", "output archive path (.tar.gz)")
	verify := fs.Bool("verify", false, "restore into a temp dir and compare digests")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if *out == "" {
		ts := time.Now().UTC().Format("20060102T150405Z")
		*out = filepath.Join("backups", "taskbell-"+ts+".tar.gz")
	}
	if err := storeInDataDir(e); err != nil {
		return err
	}

	sum, err := ops.Backup(e.cfg.DataDir, *out)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, sum.Archive)
	fmt.Fprintf(e.stdout, "files: %d digest: %s\n", len(sum.Files), sum.Digest)

	if *verify {
		work, err := os.MkdirTemp("", "taskbell-verify-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(work)
		if _, err := ops.Restore(sum.Archive, work, false); err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		digest, err := ops.Digest(work)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		if digest != sum.Digest {
			return fmt.Errorf("verify: digest mismatch after restore: src=%s restored=%s", sum.Digest, digest)
		}
		fmt.Fprintln(e.stdout, "verified")
	}
	return nil
}

// cmdRestore unpacks an archive into the data directory while holding the
// store lock, so a running scheduler cannot overwrite the result.
func cmdRestore(e *env, args []string) error {
	fs := newFlagSet(e, "restore")
	archive := fs.String("archive", "", "input backup archive (.tar.gz)")
	force := fs.Bool("force", false, "overwrite existing task data")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *archive == "" {
		return usageErrorf("usage: restore [-force] -archive FILE")
	}
	if err := storeInDataDir(e); err != nil {
		return err
	}

	store, err := task.NewStore(task.Options{Path: e.cfg.StorePath(), Logger: e.logger})
	if err != nil {
		return err
	}
	if err := store.TryLock(); err != nil {
		return err
	}
	defer store.Unlock()

	restored, err := ops.Restore(*archive, e.cfg.DataDir, *force)
	if err != nil {
		return err
	}
	for _, name := range restored {
		fmt.Fprintln(e.stdout, "restored", name)
	}
	return nil
}
