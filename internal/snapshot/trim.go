package snapshot

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/keshon/hoard/internal/store"
)

// TrimPolicy says which versions to retain. A version is kept when
// either rule keeps it; zero values disable a rule.
type TrimPolicy struct {
	// KeepVersions retains the newest n versions.
	KeepVersions int
	// KeepDays retains versions younger than this many days.
	KeepDays int
}

// Enabled reports whether either retention rule is set. A policy with
// no rule set removes nothing.
func (p TrimPolicy) Enabled() bool {
	return p.KeepVersions > 0 || p.KeepDays > 0
}

// PlanTrim selects the versions to remove under the policy. Input is
// ordered oldest first, as the stores return it.
func PlanTrim(versions []store.VersionMeta, policy TrimPolicy, now time.Time) []store.VersionMeta {
	if !policy.Enabled() {
		return nil
	}

	cutoff := time.Time{}
	if policy.KeepDays > 0 {
		cutoff = now.Add(-time.Duration(policy.KeepDays) * 24 * time.Hour)
	}

	var removed []store.VersionMeta
	for i, meta := range versions {
		newest := len(versions) - i
		if policy.KeepVersions > 0 && newest <= policy.KeepVersions {
			continue
		}
		if policy.KeepDays > 0 && meta.CreatedAt.After(cutoff) {
			continue
		}
		removed = append(removed, meta)
	}
	return removed
}

// Trim removes repository versions beyond the archive's retention
// policy and prunes the matching locally retained indexes. It returns
// the removed ids.
func (e *Engine) Trim(ctx context.Context, policy TrimPolicy, now time.Time) ([]string, error) {
	info, err := e.Versions.GetArchive(ctx, e.Archive.Name)
	if errors.Is(err, store.ErrArchiveNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, meta := range PlanTrim(info.Versions, policy, now) {
		ok, err := e.Versions.RemoveVersion(ctx, e.Archive.Name, meta.ID)
		if err != nil {
			return removed, err
		}
		if ok {
			removed = append(removed, meta.ID)
			// best-effort: the local copy is only a reuse cache
			os.Remove(e.localVersionPath(meta.ID))
		}
	}
	return removed, nil
}
