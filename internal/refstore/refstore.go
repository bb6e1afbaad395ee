// Package refstore implements SPEC_FULL §4.K: the two-level trunk/
// subsection reference layout under <node>/.log, subsection creation,
// promotion (three-way merge + T-COMMIT), and the versions index JSON.
// Ported from exodus-anchor-weaver.c's get_trunk_head_file/
// get_subsection_head_file/get_active_head_file/execute_add_subs_job/
// execute_promote_job/generate_versions_json.
package refstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/anchorweave/anchorweave/internal/awerr"
	"github.com/anchorweave/anchorweave/internal/commitgraph"
	"github.com/anchorweave/anchorweave/internal/merge"
	"github.com/anchorweave/anchorweave/internal/objstore"
)

// Trunk is the reserved name of the trunk branch; it cannot be created
// as a subsection.
const Trunk = "master"

// Store is the reference manager for one node (working-tree root).
type Store struct {
	NodeRoot string // the node's working-tree root, not .log
}

// New returns a Store rooted at nodeRoot.
func New(nodeRoot string) *Store {
	return &Store{NodeRoot: nodeRoot}
}

func (s *Store) logDir() string { return filepath.Join(s.NodeRoot, ".log") }

// TrunkHeadFile returns the path to TRUNK_HEAD.
func (s *Store) TrunkHeadFile() string { return filepath.Join(s.logDir(), "TRUNK_HEAD") }

// SubsectionsDir returns the path to the subsections directory.
func (s *Store) SubsectionsDir() string { return filepath.Join(s.logDir(), "subsections") }

// SubsectionHeadFile returns the path to a named subsection's HEAD file.
func (s *Store) SubsectionHeadFile(name string) string {
	return filepath.Join(s.SubsectionsDir(), name+".subsec")
}

// VersionsFile returns the path to a branch's versions index JSON:
// TRUNK.versions.json for the trunk, <name>.versions.json otherwise.
func (s *Store) VersionsFile(branch string) string {
	if branch == Trunk {
		return filepath.Join(s.logDir(), "TRUNK.versions.json")
	}
	return filepath.Join(s.SubsectionsDir(), branch+".versions.json")
}

// ActiveHeadFile resolves which HEAD file a branch name refers to.
func (s *Store) ActiveHeadFile(branch string) string {
	if branch == Trunk {
		return s.TrunkHeadFile()
	}
	return s.SubsectionHeadFile(branch)
}

// ReadHead returns the commit hash stored in branch's HEAD file, or ""
// for an unborn branch (missing or empty file).
func (s *Store) ReadHead(branch string) (string, error) {
	raw, err := os.ReadFile(s.ActiveHeadFile(branch))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", awerr.Wrap(awerr.ErrIO, "read branch head", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// WriteHead atomically updates branch's HEAD file to commitHex.
func (s *Store) WriteHead(branch, commitHex string) error {
	path := s.ActiveHeadFile(branch)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return awerr.Wrap(awerr.ErrIO, "create ref directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-head-*")
	if err != nil {
		return awerr.Wrap(awerr.ErrIO, "create temp head file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(commitHex); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return awerr.Wrap(awerr.ErrIO, "write temp head file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return awerr.Wrap(awerr.ErrIO, "close temp head file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return awerr.Wrap(awerr.ErrIO, "rename head file into place", err)
	}
	return nil
}

// ParentData is what a new commit on branch needs: the parent commit
// (for delta/ancestry purposes), the parent's tree (for delta parenting
// of files), and — on a subsection — the anchor commit the subsection's
// first S-COMMIT was cut from.
type ParentData struct {
	ParentCommit string
	ParentTree   string
	Anchor       string
}

// ResolveParent implements get_parent_commit_data: on the trunk, the
// parent is simply TRUNK_HEAD; on a subsection, an unborn branch anchors
// to TRUNK_HEAD, while an existing branch's stored hash is either a
// T-COMMIT (the anchor itself, for the branch's first S-COMMIT) or an
// S-COMMIT (continuing the chain, whose own anchor field is reused).
func (s *Store) ResolveParent(objs *objstore.Store, branch string) (ParentData, error) {
	var pd ParentData

	if branch == Trunk {
		head, err := s.ReadHead(Trunk)
		if err != nil {
			return ParentData{}, err
		}
		pd.ParentCommit = head
	} else {
		stored, err := s.ReadHead(branch)
		if err != nil {
			return ParentData{}, err
		}
		if stored == "" {
			anchor, err := s.ReadHead(Trunk)
			if err != nil {
				return ParentData{}, err
			}
			pd.Anchor = anchor
			pd.ParentCommit = anchor
		} else {
			c, err := commitgraph.Load(objs, stored)
			if err != nil {
				return ParentData{}, err
			}
			if c.Kind == commitgraph.KindSubsection {
				pd.ParentCommit = stored
				pd.Anchor = c.Anchor
			} else {
				pd.Anchor = stored
				pd.ParentCommit = stored
			}
		}
	}

	if pd.ParentCommit != "" {
		c, err := commitgraph.Load(objs, pd.ParentCommit)
		if err != nil {
			return ParentData{}, err
		}
		pd.ParentTree = c.Tree
	}
	return pd, nil
}

// CreateSubsection implements execute_add_subs_job: a new subsection is
// anchored to the current TRUNK_HEAD, which must already have at least
// one commit.
func (s *Store) CreateSubsection(name string) error {
	if name == Trunk {
		return awerr.Wrap(awerr.ErrMalformedInput, "subsection name reserved", nil)
	}
	trunkHead, err := s.ReadHead(Trunk)
	if err != nil {
		return err
	}
	if trunkHead == "" {
		return awerr.Wrap(awerr.ErrMissingReference, "trunk has no commits", nil)
	}
	if _, err := os.Stat(s.SubsectionHeadFile(name)); err == nil {
		return awerr.Wrap(awerr.ErrMalformedInput, "subsection already exists", nil)
	}
	return s.WriteHead(name, trunkHead)
}

// DeleteSubsection removes a subsection's HEAD and versions-index files,
// used by Promote's --delete flag.
func (s *Store) DeleteSubsection(name string) error {
	if err := os.Remove(s.SubsectionHeadFile(name)); err != nil && !os.IsNotExist(err) {
		return awerr.Wrap(awerr.ErrIO, "remove subsection head file", err)
	}
	if err := os.Remove(s.VersionsFile(name)); err != nil && !os.IsNotExist(err) {
		return awerr.Wrap(awerr.ErrIO, "remove subsection versions file", err)
	}
	return nil
}

// PromoteResult is what a successful promotion produced.
type PromoteResult struct {
	NewCommit string
}

// Promote implements execute_promote_job: merges a subsection's tree
// against the trunk's, using the subsection's anchor commit as the
// three-way merge base, and records the result as a new T-COMMIT whose
// "promoted" field names the subsection head it absorbed.
func Promote(objs *objstore.Store, s *Store, subsection, message, author string, authorUID int, timestampUnix int64, deleteAfter bool) (PromoteResult, error) {
	oursHead, err := s.ReadHead(Trunk)
	if err != nil {
		return PromoteResult{}, err
	}
	theirsHead, err := s.ReadHead(subsection)
	if err != nil {
		return PromoteResult{}, err
	}
	if theirsHead == "" {
		return PromoteResult{}, awerr.Wrap(awerr.ErrMissingReference, "subsection is empty", nil)
	}

	theirsCommit, err := commitgraph.Load(objs, theirsHead)
	if err != nil {
		return PromoteResult{}, err
	}
	if theirsCommit.Anchor == "" {
		return PromoteResult{}, awerr.Wrap(awerr.ErrCorruptObject, "subsection commit missing anchor", nil)
	}
	baseHead := theirsCommit.Anchor

	var oursTree, baseTree string
	theirsTree := theirsCommit.Tree
	if oursHead != "" {
		c, err := commitgraph.Load(objs, oursHead)
		if err != nil {
			return PromoteResult{}, err
		}
		oursTree = c.Tree
	}
	if baseHead != "" {
		c, err := commitgraph.Load(objs, baseHead)
		if err != nil {
			return PromoteResult{}, err
		}
		baseTree = c.Tree
	}

	mergedTree, err := merge.Merge(objs, baseTree, oursTree, theirsTree)
	if err != nil {
		return PromoteResult{}, err
	}

	commit := commitgraph.Commit{
		Kind:      commitgraph.KindTrunk,
		Tree:      mergedTree,
		Parent:    oursHead,
		Promoted:  theirsHead,
		Author:    author,
		AuthorUID: authorUID,
		Timestamp: timestampUnix,
		Committer: author,
		CommUID:   authorUID,
		CommTS:    timestampUnix,
		Message:   "Promoted subsection '" + subsection + "': " + message,
	}
	newHash, err := commitgraph.Write(objs, commit)
	if err != nil {
		return PromoteResult{}, err
	}
	if err := s.WriteHead(Trunk, newHash); err != nil {
		return PromoteResult{}, err
	}

	if deleteAfter {
		if err := s.DeleteSubsection(subsection); err != nil {
			return PromoteResult{}, err
		}
	}

	if err := s.GenerateVersionsIndex(objs, Trunk); err != nil {
		return PromoteResult{}, err
	}
	return PromoteResult{NewCommit: newHash}, nil
}

// versionRecord is one entry of a branch's versions index JSON.
type versionRecord struct {
	CommitHash      string `json:"commit_hash"`
	Type            string `json:"type,omitempty"`
	Tree            string `json:"tree,omitempty"`
	Parent          string `json:"parent,omitempty"`
	Anchor          string `json:"anchor,omitempty"`
	PromotedCommit  string `json:"promoted_commit,omitempty"`
	Timestamp       int64  `json:"timestamp,omitempty"`
	VersionTag      string `json:"version_tag,omitempty"`
}

// GenerateVersionsIndex writes branch's versions-index JSON, one record
// per commit in its ancestry, newest first. Ported from
// generate_versions_json.
func (s *Store) GenerateVersionsIndex(objs *objstore.Store, branch string) error {
	head, err := s.ReadHead(branch)
	if err != nil {
		return err
	}
	if head == "" {
		return nil
	}
	ancestry, err := commitgraph.Ancestry(objs, head)
	if err != nil {
		return err
	}
	records := make([]versionRecord, 0, len(ancestry))
	for _, a := range ancestry {
		records = append(records, versionRecord{
			CommitHash:     a.CommitHash,
			Type:           string(a.Type),
			Tree:           a.Tree,
			Parent:         a.Parent,
			Anchor:         a.Anchor,
			PromotedCommit: a.Promoted,
			Timestamp:      a.Timestamp,
			VersionTag:     a.VersionTag,
		})
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return awerr.Wrap(awerr.ErrIO, "encode versions index", err)
	}

	path := s.VersionsFile(branch)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return awerr.Wrap(awerr.ErrIO, "create versions index directory", err)
	}
	return os.WriteFile(path, raw, 0o644)
}
