package router

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jiazeyu1987/AgentTalk/pkg/fsatomic"
	"github.com/jiazeyu1987/AgentTalk/pkg/substrate/errs"
)

// archiveOneByStableID archives a source JSON document identified by
// stableID into dstDir/<prefix><stableID>.json. If the destination
// already holds different bytes, the write is rejected as
// ID_REUSED_WITH_DIFFERENT_CONTENT; if it holds identical bytes, this is a
// silent no-op; otherwise the document is copied in atomically.
func archiveOneByStableID(srcPath, dstDir, prefix, stableID string) (skipped bool, err error) {
	dst := filepath.Join(dstDir, prefix+stableID+".json")
	srcSHA, err := fsatomic.FileSHA256(srcPath)
	if err != nil {
		return false, err
	}
	if fsatomic.Exists(dst) {
		dstSHA, err := fsatomic.FileSHA256(dst)
		if err != nil {
			return false, err
		}
		if dstSHA == srcSHA {
			return true, nil
		}
		return false, errs.New(errs.CodeIDReusedDifferentContent, "%s reused with different content at %s", stableID, dst)
	}
	return false, fsatomic.Copy(srcPath, dst)
}

// alertArchiveFailure records an archival failure; a stable-ID reuse with
// different content additionally dead-letters, preserving the original
// archived bytes untouched.
func (r *Router) alertArchiveFailure(planID string, err error, path string) {
	code, _ := errs.CodeOf(err)
	if code == errs.CodeIDReusedDifferentContent {
		_ = r.alerts.DeadLetter(planID, code, err.Error(), path, nil)
	}
	_ = r.alerts.Alert(planID, code, err.Error(), map[string]any{"path": path})
}

// archiveAcks copies every ack_*.json found in any agent's
// outbox/<plan> directory into the plan's acks/ archive.
func (r *Router) archiveAcks(planID string) error {
	plan := r.Roots.Plan(planID)
	files, err := discoverOutboxFiles(r.Roots, planID, "", "ack_")
	if err != nil {
		return err
	}
	for _, f := range files {
		stableID := strings.TrimSuffix(strings.TrimPrefix(f.FileName, "ack_"), ".json")
		if _, err := archiveOneByStableID(f.Path, plan.Acks(), "ack_", stableID); err != nil {
			r.alertArchiveFailure(planID, err, f.Path)
		}
	}
	return nil
}

// archiveControlArtifacts archives decision_record_*.json or
// release_manifest_*.json documents from agent outboxes into the plan's
// control-plane archive under subdir.
func (r *Router) archiveControlArtifacts(planID, subdir, prefix string) error {
	plan := r.Roots.Plan(planID)
	var dstDir string
	switch subdir {
	case "decisions":
		dstDir = plan.Decisions()
	case "releases":
		dstDir = plan.Releases()
	default:
		return fmt.Errorf("unknown control artifact subdir %q", subdir)
	}
	files, err := discoverOutboxFiles(r.Roots, planID, "", prefix)
	if err != nil {
		return err
	}
	for _, f := range files {
		stableID := strings.TrimSuffix(strings.TrimPrefix(f.FileName, prefix), ".json")
		if _, err := archiveOneByStableID(f.Path, dstDir, prefix, stableID); err != nil {
			r.alertArchiveFailure(planID, err, f.Path)
		}
	}
	return nil
}

type releaseManifestDoc struct {
	CreatedAt string `json:"created_at"`
}

// refreshLatestReleaseManifest copies whichever archived release manifest
// has the newest created_at (ties broken by filename) to the plan-level
// release_manifest.json pointer file that dashboards and release gates
// read, skipping the write if the pointer already matches.
func (r *Router) refreshLatestReleaseManifest(planID string) error {
	plan := r.Roots.Plan(planID)
	entries, err := fsatomic.ListReadyFiles(plan.Releases(), ".json")
	if err != nil || len(entries) == 0 {
		return nil
	}

	sort.Slice(entries, func(i, j int) bool {
		var di, dj releaseManifestDoc
		_ = fsatomic.ReadJSON(filepath.Join(plan.Releases(), entries[i]), &di)
		_ = fsatomic.ReadJSON(filepath.Join(plan.Releases(), entries[j]), &dj)
		if di.CreatedAt != dj.CreatedAt {
			return di.CreatedAt < dj.CreatedAt
		}
		return entries[i] < entries[j]
	})
	newest := entries[len(entries)-1]
	srcPath := filepath.Join(plan.Releases(), newest)

	srcSHA, err := fsatomic.FileSHA256(srcPath)
	if err != nil {
		return err
	}
	dst := plan.ReleaseManifestPointer()
	if fsatomic.Exists(dst) {
		if dstSHA, err := fsatomic.FileSHA256(dst); err == nil && dstSHA == srcSHA {
			return nil
		}
	}
	return fsatomic.Copy(srcPath, dst)
}
