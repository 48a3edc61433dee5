package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity). The returned slice
// is b.Data itself, not a copy.
func MarshalBlob(b *Blob) []byte {
	return b.Data
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// TagObj
// ---------------------------------------------------------------------------

// UnmarshalTag parses the "object <oid>\n" header out of a tag's raw bytes.
func UnmarshalTag(data []byte) (*TagObj, error) {
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal tag: missing header")
	}
	line := string(data[:idx])
	key, val, ok := strings.Cut(line, " ")
	if !ok || key != "object" {
		return nil, fmt.Errorf("unmarshal tag: malformed header %q", line)
	}
	return &TagObj{TargetHash: Hash(val), Data: append([]byte(nil), data...)}, nil
}

// ---------------------------------------------------------------------------
// TreeObj
// ---------------------------------------------------------------------------

// treeSortKey returns the name used to order tree entries: directories
// compare as if suffixed by "/", so "foo" sorts after "foo.go" but before
// "foo/bar".
func treeSortKey(e TreeEntry) string {
	if e.IsDir {
		return e.Name + "/"
	}
	return e.Name
}

// MarshalTree serializes a TreeObj as a sequence of concatenated binary
// records, one per entry, sorted by name:
//
//	"<mode> <name>\0<20-byte-oid>"
//
// This is Git's canonical tree encoding.
func MarshalTree(tr *TreeObj) []byte {
	sorted := make([]TreeEntry, len(tr.Entries))
	copy(sorted, tr.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return treeSortKey(sorted[i]) < treeSortKey(sorted[j])
	})

	var buf bytes.Buffer
	for _, e := range sorted {
		mode := treeModeOrDefault(e)
		oidHash := e.BlobHash
		if e.IsDir {
			oidHash = e.SubtreeHash
		}
		oid, err := BinaryOID(oidHash)
		if err != nil {
			// Callers are expected to only marshal valid trees; an oid that
			// is not 40 hex characters is written as 20 zero bytes, without
			// an error.
			oid = make([]byte, 20)
		}
		fmt.Fprintf(&buf, "%s %s\x00", mode, e.Name)
		buf.Write(oid)
	}
	return buf.Bytes()
}

// UnmarshalTree parses a TreeObj from its binary serialized form.
func UnmarshalTree(data []byte) (*TreeObj, error) {
	tr := &TreeObj{}
	rest := data
	for len(rest) > 0 {
		sp := bytes.IndexByte(rest, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("unmarshal tree: malformed record (no mode separator)")
		}
		mode := string(rest[:sp])
		rest = rest[sp+1:]

		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return nil, fmt.Errorf("unmarshal tree: malformed record (no NUL after name)")
		}
		name := string(rest[:nul])
		rest = rest[nul+1:]

		if len(rest) < 20 {
			return nil, fmt.Errorf("unmarshal tree: truncated oid for entry %q", name)
		}
		oidBytes := rest[:20]
		rest = rest[20:]

		isDir, normMode, err := parseTreeMode(mode)
		if err != nil {
			return nil, fmt.Errorf("unmarshal tree: %w", err)
		}
		oid, err := HashFromBinary(oidBytes)
		if err != nil {
			return nil, fmt.Errorf("unmarshal tree: entry %q: %w", name, err)
		}

		entry := TreeEntry{Name: name, IsDir: isDir, Mode: normMode}
		if isDir {
			entry.SubtreeHash = oid
		} else {
			entry.BlobHash = oid
		}
		tr.Entries = append(tr.Entries, entry)
	}
	return tr, nil
}

func treeModeOrDefault(e TreeEntry) string {
	if e.IsDir {
		return TreeModeDir
	}
	if strings.TrimSpace(e.Mode) == "" {
		return TreeModeFile
	}
	return e.Mode
}

func parseTreeMode(mode string) (bool, string, error) {
	switch mode {
	case TreeModeDir:
		return true, TreeModeDir, nil
	case TreeModeFile:
		return false, TreeModeFile, nil
	case TreeModeExecutable:
		return false, TreeModeExecutable, nil
	default:
		return false, "", fmt.Errorf("unknown mode %q", mode)
	}
}

// ---------------------------------------------------------------------------
// CommitObj
// ---------------------------------------------------------------------------

// identityLine formats an author/committer line as "<name> <email> <epoch> <tz>".
func identityLine(name, email string, epoch int64, tz string) string {
	if tz == "" {
		tz = "+0000"
	}
	return fmt.Sprintf("%s <%s> %d %s", name, email, epoch, tz)
}

// MarshalCommit serializes a CommitObj:
//
//	tree H
//	parent H     (zero or more, in order; many for merge commits)
//	author NAME <EMAIL> EPOCH TZ
//	committer NAME <EMAIL> EPOCH TZ
//
//	message
func MarshalCommit(c *CommitObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", string(c.TreeHash))
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", string(p))
	}
	fmt.Fprintf(&buf, "author %s\n", identityLine(c.Author, c.AuthorEmail, c.Timestamp, c.AuthorTimezone))
	fmt.Fprintf(&buf, "committer %s\n", identityLine(c.Committer, c.CommitterEmail, c.CommitterTimestamp, c.CommitterTimezone))
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// parseIdentityLine parses "NAME <EMAIL> EPOCH TZ" into its components.
func parseIdentityLine(val string) (name, email string, epoch int64, tz string, err error) {
	lt := strings.IndexByte(val, '<')
	gt := strings.IndexByte(val, '>')
	if lt < 0 || gt < 0 || gt < lt {
		return "", "", 0, "", fmt.Errorf("malformed identity line %q", val)
	}
	name = strings.TrimSpace(val[:lt])
	email = val[lt+1 : gt]
	rest := strings.Fields(val[gt+1:])
	if len(rest) < 1 {
		return "", "", 0, "", fmt.Errorf("malformed identity line %q: missing timestamp", val)
	}
	epoch, err = strconv.ParseInt(rest[0], 10, 64)
	if err != nil {
		return "", "", 0, "", fmt.Errorf("malformed identity line %q: bad timestamp: %w", val, err)
	}
	if len(rest) >= 2 {
		tz = rest[1]
	}
	return name, email, epoch, tz, nil
}

// UnmarshalCommit parses a CommitObj from its serialized form.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal commit: missing header/message separator")
	}
	header := string(data[:idx])
	message := string(data[idx+2:])

	c := &CommitObj{Message: message}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal commit: malformed header line %q", line)
		}
		switch key {
		case "tree":
			c.TreeHash = Hash(val)
		case "parent":
			c.Parents = append(c.Parents, Hash(val))
		case "author":
			name, email, epoch, tz, err := parseIdentityLine(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: %w", err)
			}
			c.Author, c.AuthorEmail, c.Timestamp, c.AuthorTimezone = name, email, epoch, tz
		case "committer":
			name, email, epoch, tz, err := parseIdentityLine(val)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: %w", err)
			}
			c.Committer, c.CommitterEmail, c.CommitterTimestamp, c.CommitterTimezone = name, email, epoch, tz
		default:
			return nil, fmt.Errorf("unmarshal commit: unknown header key %q", key)
		}
	}
	return c, nil
}
