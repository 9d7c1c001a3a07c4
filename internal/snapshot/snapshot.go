// Package snapshot orchestrates version creation: plan the index
// against the block store, encode and store missing blocks, then
// materialize the version in the repository and the working tree.
package snapshot

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/multiformats/go-multihash"
	"golang.org/x/sync/errgroup"

	"github.com/keshon/hoard/internal/config"
	"github.com/keshon/hoard/internal/fs"
	"github.com/keshon/hoard/internal/indexer"
	"github.com/keshon/hoard/internal/logging"
	"github.com/keshon/hoard/internal/pipe"
	"github.com/keshon/hoard/internal/progress"
	"github.com/keshon/hoard/internal/store"
	"github.com/keshon/hoard/internal/version"
)

var log = logging.For("snapshot")

// Action says what the orchestrator will do for one planned entry.
type Action int

const (
	// ActionNone: the entry has no content to store.
	ActionNone Action = iota
	// ActionReuse: the encoded block already exists in the store.
	ActionReuse
	// ActionStore: the content must be encoded and stored.
	ActionStore
)

// PlanEntry pairs an index entry with its storage action.
type PlanEntry struct {
	version.Entry
	Action Action
}

// Engine drives snapshots for one archive against a repository.
type Engine struct {
	Archive  *config.Archive
	Blocks   store.BlockStore
	Versions store.VersionStore
	FS       fs.FS
	Options  config.Options
	Reporter progress.Reporter
}

// NewEngine wires an engine over the OS filesystem.
func NewEngine(a *config.Archive, blocks store.BlockStore, versions store.VersionStore, opts config.Options, reporter progress.Reporter) *Engine {
	return &Engine{
		Archive:  a,
		Blocks:   blocks,
		Versions: versions,
		FS:       fs.NewOSFS(),
		Options:  opts,
		Reporter: reporter,
	}
}

// Create produces a new version of the archive's working tree.
//
// Block storage failures abort before the version write; blocks that
// did reach the store stay there, which is safe because they are
// addressed by content and a retry will reuse them.
func (e *Engine) Create(ctx context.Context) (*version.Version, error) {
	plan, err := e.Plan(ctx)
	if err != nil {
		return nil, err
	}

	coded, err := e.storeBlocks(ctx, plan)
	if err != nil {
		return nil, err
	}

	index := assign(plan, coded)

	v, err := e.materialize(ctx, index)
	if err != nil {
		return nil, err
	}

	// written last: a crash before this point leaves the repository
	// version in place and the next snapshot picks it up as the most
	// recent
	if err := e.writeLocalIndex(v.ID, index); err != nil {
		return nil, err
	}
	return v, nil
}

// Plan builds the index and attaches an action to every entry by
// asking the block store which coded blocks already exist. An
// existence query failure plans a re-encode instead of failing the
// snapshot.
func (e *Engine) Plan(ctx context.Context) ([]PlanEntry, error) {
	ix := indexer.New(e.Archive.Root, e.Archive.Matcher(), e.Reporter)
	ix.FS = e.FS
	index, err := ix.Build()
	if err != nil {
		return nil, err
	}

	var candidates []multihash.Multihash
	seen := make(map[string]bool)
	for _, entry := range index {
		if len(entry.CodedID) > 0 && !seen[store.BlockKey(entry.CodedID)] {
			seen[store.BlockKey(entry.CodedID)] = true
			candidates = append(candidates, entry.CodedID)
		}
	}

	present := map[string]struct{}{}
	if len(candidates) > 0 {
		present, err = e.Blocks.GetBatch(ctx, candidates)
		if err != nil {
			log.WithError(err).Warn("block existence query failed, re-encoding")
			present = map[string]struct{}{}
		}
	}

	plan := make([]PlanEntry, 0, len(index))
	for _, entry := range index {
		pe := PlanEntry{Entry: entry}
		switch {
		case len(entry.ContentID) == 0:
			pe.Action = ActionNone
		case len(entry.CodedID) > 0 && hasKey(present, entry.CodedID):
			pe.Action = ActionReuse
		default:
			// a stale coded-id that is gone from the store gets
			// re-encoded
			pe.CodedID = nil
			pe.Action = ActionStore
		}
		plan = append(plan, pe)
	}
	return plan, nil
}

func hasKey(set map[string]struct{}, id multihash.Multihash) bool {
	_, ok := set[store.BlockKey(id)]
	return ok
}

// storeBlocks encodes and stores every unique content-id planned for
// storage, with bounded parallelism, and returns the collected
// content-id → coded-id map.
func (e *Engine) storeBlocks(ctx context.Context, plan []PlanEntry) (map[string]multihash.Multihash, error) {
	type job struct {
		contentKey string
		path       string
	}

	var jobs []job
	queued := make(map[string]bool)
	for _, pe := range plan {
		if pe.Action != ActionStore {
			continue
		}
		key := store.BlockKey(pe.ContentID)
		if queued[key] {
			continue
		}
		queued[key] = true
		jobs = append(jobs, job{contentKey: key, path: pe.Path})
	}

	coded := make(map[string]multihash.Multihash, len(jobs))
	if len(jobs) == 0 {
		return coded, nil
	}

	concurrency := e.Options.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]multihash.Multihash, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, j := range jobs {
		g.Go(func() error {
			id, err := e.encodeAndStore(gctx, j.path)
			if err != nil {
				return err
			}
			results[i] = id
			progress.Emit(e.Reporter, progress.Event{Kind: progress.EventStored, Path: j.path})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, j := range jobs {
		coded[j.contentKey] = results[i]
	}
	return coded, nil
}

// encodeAndStore pipes one file through the encoder program into the
// block store and returns the store-assigned id.
func (e *Engine) encodeAndStore(ctx context.Context, relPath string) (multihash.Multihash, error) {
	f, err := os.Open(filepath.Join(e.Archive.Root, relPath))
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", relPath, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	type runOutcome struct {
		res pipe.Result
		err error
	}
	done := make(chan runOutcome, 1)
	go func() {
		res, err := pipe.Run(ctx, e.Archive.EncodeCommand(), f, pw, e.Options.Timeout)
		pw.CloseWithError(err)
		done <- runOutcome{res: res, err: err}
	}()

	id, putErr := e.Blocks.Put(ctx, pr)
	pr.Close()
	outcome := <-done
	if outcome.err != nil {
		return nil, fmt.Errorf("encode %q: %w", relPath, outcome.err)
	}
	if putErr != nil {
		return nil, fmt.Errorf("store %q: %w", relPath, putErr)
	}

	log.WithField("path", relPath).
		WithField("plain_bytes", outcome.res.InputBytes).
		WithField("coded_bytes", outcome.res.OutputBytes).
		WithField("elapsed", outcome.res.Elapsed).
		Debug("block encoded")
	return id, nil
}

// assign rewrites the plan into the final index using the collected
// coded-ids.
func assign(plan []PlanEntry, coded map[string]multihash.Multihash) []version.Entry {
	index := make([]version.Entry, 0, len(plan))
	for _, pe := range plan {
		entry := pe.Entry
		if pe.Action == ActionStore {
			entry.CodedID = coded[store.BlockKey(entry.ContentID)]
		}
		index = append(index, entry)
	}
	return index
}

// materialize allocates a version id and streams the serialized index
// through gzip and the encoder program into the version store. An id
// collision allocates a fresh id and retries; transient store errors
// retry with the same plan.
func (e *Engine) materialize(ctx context.Context, index []version.Entry) (*version.Version, error) {
	var meta *store.VersionMeta
	var id string

	op := func() error {
		var err error
		id, err = version.NewID(time.Now())
		if err != nil {
			return backoff.Permanent(err)
		}
		meta, err = e.writeVersion(ctx, id, index)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, store.ErrVersionExists):
			// id collision: retry with a fresh id
			return err
		default:
			var reserved *store.ReservedNameError
			var invalid *version.InvalidIndexError
			var sub *pipe.SubprocessError
			if errors.As(err, &reserved) || errors.As(err, &invalid) || errors.As(err, &sub) {
				return backoff.Permanent(err)
			}
			return err
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}

	createdAt, err := version.ParseID(id)
	if err != nil {
		return nil, err
	}

	v := &version.Version{
		ID:        id,
		CreatedAt: createdAt,
		Size:      meta.Size,
		Index:     index,
	}
	v.Totals()
	return v, nil
}

func (e *Engine) writeVersion(ctx context.Context, id string, index []version.Entry) (*store.VersionMeta, error) {
	// plaintext TSV through gzip into the encoder's stdin
	plainR, plainW := io.Pipe()
	go func() {
		gz := gzip.NewWriter(plainW)
		err := version.WriteIndex(gz, index)
		if cerr := gz.Close(); err == nil {
			err = cerr
		}
		plainW.CloseWithError(err)
	}()

	encR, encW := io.Pipe()
	runErr := make(chan error, 1)
	go func() {
		_, err := pipe.Run(ctx, e.Archive.EncodeCommand(), plainR, encW, e.Options.Timeout)
		encW.CloseWithError(err)
		runErr <- err
	}()

	meta, storeErr := e.Versions.StoreVersion(ctx, e.Archive.Name, id, encR)
	encR.Close()
	runResult := <-runErr
	// unblock the TSV/gzip feeder if the encoder quit without
	// draining it
	plainR.Close()

	// the store may refuse before reading (reserved name, id
	// collision); in that case the pipe error is just fallout
	if storeErr != nil {
		return nil, storeErr
	}
	if runResult != nil {
		return nil, runResult
	}
	return meta, nil
}

// writeLocalIndex retains the plaintext index in the working tree so
// later snapshots can reuse coded-ids without touching the
// repository.
func (e *Engine) writeLocalIndex(id string, index []version.Entry) error {
	dir := config.VersionsPath(e.Archive.Root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create versions dir: %w", err)
	}

	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := f.Name()

	err = version.WriteIndex(f, index)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write local version %q: %w", id, err)
	}
	if err := os.Rename(tmpPath, config.VersionPath(e.Archive.Root, id)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write local version %q: %w", id, err)
	}
	return nil
}
