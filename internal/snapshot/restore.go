package snapshot

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/keshon/hoard/internal/config"
	"github.com/keshon/hoard/internal/indexer"
	"github.com/keshon/hoard/internal/pipe"
	"github.com/keshon/hoard/internal/progress"
	"github.com/keshon/hoard/internal/store"
	"github.com/keshon/hoard/internal/tree"
	"github.com/keshon/hoard/internal/version"
)

// ReadVersionIndex loads the index of a stored version. The locally
// retained plaintext copy is preferred; otherwise the repository copy
// is streamed through the decoder program and gunzip.
func (e *Engine) ReadVersionIndex(ctx context.Context, id string) ([]version.Entry, error) {
	if index, err := indexer.ReadLocalIndex(e.Archive.Root, id); err == nil {
		return index, nil
	}

	rc, err := e.Versions.ReadVersion(ctx, e.Archive.Name, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	decR, decW := io.Pipe()
	runErr := make(chan error, 1)
	go func() {
		_, err := pipe.Run(ctx, e.Archive.DecodeCommand(), rc, decW, e.Options.Timeout)
		decW.CloseWithError(err)
		runErr <- err
	}()

	// The gzip reader consumes the stream header in its constructor,
	// so it must be built only after the decoder process is started
	// and writing; building it first deadlocks against the writer.
	gz, err := gzip.NewReader(decR)
	if err != nil {
		decR.CloseWithError(err)
		<-runErr
		return nil, fmt.Errorf("read version %q: %w", id, err)
	}

	index, readErr := version.ReadIndex(gz)
	gzErr := gz.Close()
	decR.Close()
	if err := <-runErr; err != nil {
		return nil, fmt.Errorf("decode version %q: %w", id, err)
	}
	if readErr != nil {
		return nil, readErr
	}
	if gzErr != nil {
		return nil, gzErr
	}
	return index, nil
}

// Restore materializes a stored version under targetDir. Entries are
// restored in index order; the index is path-sorted, so a directory
// comes before the entries inside it, and a file's missing parent
// directories are created as needed. Per-entry failures are collected
// and reported together.
func (e *Engine) Restore(ctx context.Context, id, targetDir string) error {
	index, err := e.ReadVersionIndex(ctx, id)
	if err != nil {
		return err
	}

	if targetDir == "" {
		targetDir = e.Archive.Root
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return err
	}

	var errs *multierror.Error
	for _, entry := range index {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !filepath.IsLocal(entry.Path) {
			errs = multierror.Append(errs, fmt.Errorf("refusing to restore non-local path %q", entry.Path))
			continue
		}
		if err := e.restoreEntry(ctx, entry, filepath.Join(targetDir, entry.Path)); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", entry.Path, err))
			continue
		}
		progress.Emit(e.Reporter, progress.Event{Kind: progress.EventStored, Path: entry.Path, Bytes: entry.Size})
	}
	return errs.ErrorOrNil()
}

func (e *Engine) restoreEntry(ctx context.Context, entry version.Entry, dst string) error {
	switch entry.Kind {
	case tree.KindDir:
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return err
		}
		return os.Chmod(dst, entry.Perm.Mode())
	case tree.KindSymlink:
		if _, err := os.Lstat(dst); err == nil {
			if err := os.Remove(dst); err != nil {
				return err
			}
		}
		return os.Symlink(entry.Target, dst)
	case tree.KindFile:
		return e.restoreFile(ctx, entry, dst)
	default:
		// unknown entries carry no content; nothing to materialize
		return nil
	}
}

func (e *Engine) restoreFile(ctx context.Context, entry version.Entry, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	if entry.Size == 0 {
		if err := os.WriteFile(dst, nil, entry.Perm.Mode()); err != nil {
			return err
		}
		return os.Chmod(dst, entry.Perm.Mode())
	}
	if len(entry.CodedID) == 0 {
		return fmt.Errorf("no stored block for file of %d bytes", entry.Size)
	}

	block, err := e.Blocks.Get(ctx, entry.CodedID)
	if err != nil {
		return err
	}
	defer block.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".hoard-restore-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	plainR, plainW := io.Pipe()
	runErr := make(chan error, 1)
	go func() {
		_, err := pipe.Run(ctx, e.Archive.DecodeCommand(), block, plainW, e.Options.Timeout)
		plainW.CloseWithError(err)
		runErr <- err
	}()

	_, copyErr := io.Copy(tmp, plainR)
	plainR.Close()
	closeErr := tmp.Close()
	decodeErr := <-runErr

	if decodeErr != nil {
		os.Remove(tmpPath)
		return decodeErr
	}
	if copyErr != nil {
		os.Remove(tmpPath)
		return copyErr
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return closeErr
	}

	if err := os.Chmod(tmpPath, entry.Perm.Mode()); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// List returns the archive's stored versions, oldest first. An
// archive that has never been snapshotted lists as empty.
func (e *Engine) List(ctx context.Context) ([]version.Version, error) {
	info, err := e.Versions.GetArchive(ctx, e.Archive.Name)
	if errors.Is(err, store.ErrArchiveNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	versions := make([]version.Version, 0, len(info.Versions))
	for _, meta := range info.Versions {
		versions = append(versions, version.Version{
			ID:        meta.ID,
			CreatedAt: meta.CreatedAt,
			Size:      meta.Size,
		})
	}
	return versions, nil
}

// localVersionPath exists so trim can prune retained indexes.
func (e *Engine) localVersionPath(id string) string {
	return config.VersionPath(e.Archive.Root, id)
}
