// Package commitgraph implements SPEC_FULL §4.J: the commit object text
// format (T-COMMIT/S-COMMIT), its parse/encode, and the two history walks
// every higher layer needs — tag lookup and linear ancestry for the
// versions index. Ported from exodus-anchor-weaver.c's
// execute_commit_job's commit_content formatting,
// find_commit_hash_by_tag, and generate_versions_json's header parsing.
package commitgraph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/anchorweave/anchorweave/internal/awerr"
	"github.com/anchorweave/anchorweave/internal/hashutil"
	"github.com/anchorweave/anchorweave/internal/objstore"
)

// Kind distinguishes trunk commits from subsection commits.
type Kind string

const (
	KindTrunk      Kind = "T-COMMIT"
	KindSubsection Kind = "S-COMMIT"
)

// Commit is the fully decoded form of a commit object.
type Commit struct {
	Kind      Kind
	Tree      string // hex hash
	Parent    string // hex hash, empty if none (first commit)
	Anchor    string // hex hash, S-COMMIT only
	Promoted  string // hex hash of the promoted subsection head, T-COMMIT only
	Author    string
	AuthorUID int
	Timestamp int64
	Committer string
	CommUID   int
	CommTS    int64
	Message   string // free-text version tag
}

// maxHistoryDepth bounds both tag lookup and versions-index walks against
// a corrupt parent cycle, mirroring the reference's 2000-commit safety
// limit.
const maxHistoryDepth = 2000

// Encode renders c as the canonical commit text. author@domain is fixed
// to "anchorweave" (the reference used "exodus").
func Encode(c Commit) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "type: %s\n", c.Kind)
	fmt.Fprintf(&b, "tree %s\n", c.Tree)
	if c.Parent != "" {
		fmt.Fprintf(&b, "parent %s\n", c.Parent)
	}
	if c.Anchor != "" {
		fmt.Fprintf(&b, "anchor %s\n", c.Anchor)
	}
	if c.Promoted != "" {
		fmt.Fprintf(&b, "promoted %s\n", c.Promoted)
	}
	fmt.Fprintf(&b, "author %s <%d@anchorweave> %d +0000\n", c.Author, c.AuthorUID, c.Timestamp)
	fmt.Fprintf(&b, "committer %s <%d@anchorweave> %d +0000\n", c.Committer, c.CommUID, c.CommTS)
	b.WriteString("\n")
	b.WriteString(c.Message)
	b.WriteString("\n")
	return []byte(b.String())
}

// Parse decodes canonical commit text into a Commit. Only the first line
// of the message body is kept as Message — matching find_commit_hash_by_tag's
// first-\n-terminated comparison, so a multi-line commit message's
// trailing lines are never significant to tag lookup.
func Parse(text []byte) (Commit, error) {
	s := string(text)
	headerEnd := strings.Index(s, "\n\n")
	if headerEnd < 0 {
		return Commit{}, awerr.Wrap(awerr.ErrCorruptObject, "commit missing header/message separator", fmt.Errorf("no blank line"))
	}
	header := s[:headerEnd]
	body := s[headerEnd+2:]

	var c Commit
	for _, line := range strings.Split(header, "\n") {
		switch {
		case strings.HasPrefix(line, "type: "):
			c.Kind = Kind(strings.TrimPrefix(line, "type: "))
		case strings.HasPrefix(line, "tree "):
			c.Tree = strings.TrimPrefix(line, "tree ")
		case strings.HasPrefix(line, "parent "):
			c.Parent = strings.TrimPrefix(line, "parent ")
		case strings.HasPrefix(line, "anchor "):
			c.Anchor = strings.TrimPrefix(line, "anchor ")
		case strings.HasPrefix(line, "promoted "):
			c.Promoted = strings.TrimPrefix(line, "promoted ")
		case strings.HasPrefix(line, "author "):
			name, uid, ts, err := parseSignature(strings.TrimPrefix(line, "author "))
			if err != nil {
				return Commit{}, err
			}
			c.Author, c.AuthorUID, c.Timestamp = name, uid, ts
		case strings.HasPrefix(line, "committer "):
			name, uid, ts, err := parseSignature(strings.TrimPrefix(line, "committer "))
			if err != nil {
				return Commit{}, err
			}
			c.Committer, c.CommUID, c.CommTS = name, uid, ts
		}
	}

	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		c.Message = body[:nl]
	} else {
		c.Message = body
	}
	return c, nil
}

// parseSignature parses "<name> <uid>@anchorweave <unix-ts> +0000".
func parseSignature(s string) (name string, uid int, ts int64, err error) {
	open := strings.IndexByte(s, '<')
	close := strings.IndexByte(s, '>')
	if open < 0 || close < 0 || close < open {
		return "", 0, 0, awerr.Wrap(awerr.ErrCorruptObject, "malformed commit signature", fmt.Errorf("signature %q", s))
	}
	name = strings.TrimSpace(s[:open])
	idAndHost := s[open+1 : close]
	at := strings.IndexByte(idAndHost, '@')
	if at < 0 {
		return "", 0, 0, awerr.Wrap(awerr.ErrCorruptObject, "malformed commit signature id", fmt.Errorf("signature %q", s))
	}
	uid64, err := strconv.Atoi(idAndHost[:at])
	if err != nil {
		return "", 0, 0, awerr.Wrap(awerr.ErrCorruptObject, "malformed commit uid", err)
	}
	rest := strings.TrimSpace(s[close+1:])
	fields := strings.Fields(rest)
	if len(fields) < 1 {
		return "", 0, 0, awerr.Wrap(awerr.ErrCorruptObject, "malformed commit timestamp", fmt.Errorf("signature %q", s))
	}
	tsVal, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return "", 0, 0, awerr.Wrap(awerr.ErrCorruptObject, "malformed commit timestamp value", err)
	}
	return name, uid64, tsVal, nil
}

// Load reads and decodes the commit object at hashHex.
func Load(objs *objstore.Store, hashHex string) (Commit, error) {
	content, err := objs.ReadObject(hashHex)
	if err != nil {
		return Commit{}, err
	}
	return Parse(content)
}

// Write encodes and stores c, returning its hex hash.
func Write(objs *objstore.Store, c Commit) (string, error) {
	content := Encode(c)
	hashHex := objstore.HashHex(hashutil.SumSHA256(content))
	if err := objs.WriteBlob(hashHex, content); err != nil {
		return "", err
	}
	return hashHex, nil
}

// FindByTag walks the commit chain starting at headHex looking for a
// commit whose first message line equals tag. "LATEST_HEAD" is a
// sentinel meaning "return headHex itself, unwalked".
func FindByTag(objs *objstore.Store, headHex, tag string) (string, error) {
	if tag == "LATEST_HEAD" {
		return headHex, nil
	}
	current := headHex
	for depth := 0; current != "" && depth < maxHistoryDepth; depth++ {
		c, err := Load(objs, current)
		if err != nil {
			return "", err
		}
		if c.Message == tag {
			return current, nil
		}
		current = c.Parent
	}
	return "", awerr.Wrap(awerr.ErrMissingReference, "tag not found in history", fmt.Errorf("tag %q", tag))
}

// VersionEntry is one record of the linear ancestry walk used to build a
// subsection's versions index.
type VersionEntry struct {
	CommitHash string
	Type       Kind
	Tree       string
	Parent     string
	Anchor     string
	Promoted   string
	Timestamp  int64
	VersionTag string
}

// Ancestry walks headHex's parent chain and returns one VersionEntry per
// commit, most recent first.
func Ancestry(objs *objstore.Store, headHex string) ([]VersionEntry, error) {
	var out []VersionEntry
	current := headHex
	for depth := 0; current != "" && depth < maxHistoryDepth; depth++ {
		c, err := Load(objs, current)
		if err != nil {
			return nil, err
		}
		out = append(out, VersionEntry{
			CommitHash: current,
			Type:       c.Kind,
			Tree:       c.Tree,
			Parent:     c.Parent,
			Anchor:     c.Anchor,
			Promoted:   c.Promoted,
			Timestamp:  c.Timestamp,
			VersionTag: c.Message,
		})
		current = c.Parent
	}
	return out, nil
}
