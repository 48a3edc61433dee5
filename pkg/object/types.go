package object

// Hash is a 40-character hex-encoded SHA-1 digest (the object's OID).
type Hash string

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTag    ObjectType = "tag"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
)

const (
	// Tree mode constants compatible with Git's canonical mode strings.
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
)

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TagObj preserves annotated tag payload while tracking the referenced object.
// Not required by the core engine; kept for object-model completeness.
type TagObj struct {
	TargetHash Hash
	Data       []byte
}

// TreeEntry is one entry in a tree object.
type TreeEntry struct {
	Name        string
	IsDir       bool
	Mode        string
	BlobHash    Hash
	SubtreeHash Hash
}

// TreeObj holds a sorted list of tree entries, sorted by Name with
// directories compared as if suffixed by "/".
type TreeObj struct {
	Entries []TreeEntry
}

// CommitObj represents a commit pointing to a tree with author/committer
// metadata and zero, one, or many parents (many for merge commits).
type CommitObj struct {
	TreeHash           Hash
	Parents            []Hash
	Author             string
	AuthorEmail        string
	Timestamp          int64
	AuthorTimezone     string
	Committer          string
	CommitterEmail     string
	CommitterTimestamp int64
	CommitterTimezone  string
	Message            string
}
