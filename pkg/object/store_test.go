package object

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHashBytesDeterminism(t *testing.T) {
	data := []byte("hello world")
	h1 := HashBytes(data)
	h2 := HashBytes(data)
	if h1 != h2 {
		t.Errorf("HashBytes not deterministic: %q != %q", h1, h2)
	}
	if len(h1) != 40 {
		t.Errorf("Hash length: got %d, want 40", len(h1))
	}
}

func TestHashBytesDifferentInput(t *testing.T) {
	h1 := HashBytes([]byte("aaa"))
	h2 := HashBytes([]byte("bbb"))
	if h1 == h2 {
		t.Error("Different inputs produced same hash")
	}
}

func TestHashObjectEnvelope(t *testing.T) {
	data := []byte("hello")
	h1 := HashObject(TypeBlob, data)
	h2 := HashBytes(data)
	if h1 == h2 {
		t.Error("HashObject should differ from HashBytes due to envelope")
	}

	h3 := HashObject(TypeBlob, data)
	if h1 != h3 {
		t.Error("HashObject not deterministic")
	}

	h4 := HashObject(TypeCommit, data)
	if h1 == h4 {
		t.Error("Different types should produce different hashes")
	}
}

func TestKnownBlobHash(t *testing.T) {
	// "1\n" hashed with Git's blob envelope scheme; confirms the scenario 1
	// fixture committed to by the spec.
	h := HashObject(TypeBlob, []byte("1\n"))
	want := Hash("e440e5c842586965a7fb77deda2eca68612b1f53")
	if h != want {
		t.Errorf("blob hash of \"1\\n\": got %s, want %s", h, want)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(dir)
}

func TestStoreWriteReadBlob(t *testing.T) {
	s := newTestStore(t)
	orig := &Blob{Data: []byte("package main\n")}

	h, err := s.WriteBlob(orig)
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	if !s.Has(h) {
		t.Fatal("Has returned false for just-written object")
	}

	got, err := s.ReadBlob(h)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if string(got.Data) != string(orig.Data) {
		t.Errorf("blob round-trip mismatch: got %q, want %q", got.Data, orig.Data)
	}
}

func TestStoreWriteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	data := []byte("same content")
	h1, err := s.WriteBlob(&Blob{Data: data})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	h2, err := s.WriteBlob(&Blob{Data: data})
	if err != nil {
		t.Fatalf("WriteBlob (second): %v", err)
	}
	if h1 != h2 {
		t.Errorf("writing identical content twice produced different oids: %s != %s", h1, h2)
	}
}

func TestStoreWriteReadTree(t *testing.T) {
	s := newTestStore(t)
	blobHash, err := s.WriteBlob(&Blob{Data: []byte("1\n")})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}

	orig := &TreeObj{Entries: []TreeEntry{
		{Name: "a.txt", Mode: TreeModeFile, BlobHash: blobHash},
	}}
	h, err := s.WriteTree(orig)
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	got, err := s.ReadTree(h)
	if err != nil {
		t.Fatalf("ReadTree: %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0].Name != "a.txt" || got.Entries[0].BlobHash != blobHash {
		t.Errorf("tree round-trip mismatch: %+v", got.Entries)
	}
}

func TestStoreWriteReadCommit(t *testing.T) {
	s := newTestStore(t)
	treeHash, err := s.WriteTree(&TreeObj{})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	orig := &CommitObj{
		TreeHash:           treeHash,
		Author:             "Ada Lovelace",
		AuthorEmail:        "ada@example.com",
		Timestamp:          1700000000,
		AuthorTimezone:     "+0000",
		Committer:          "Ada Lovelace",
		CommitterEmail:     "ada@example.com",
		CommitterTimestamp: 1700000000,
		CommitterTimezone:  "+0000",
		Message:            "Initial commit\n",
	}
	h, err := s.WriteCommit(orig)
	if err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	got, err := s.ReadCommit(h)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if got.Author != orig.Author || got.Message != orig.Message || got.TreeHash != orig.TreeHash {
		t.Errorf("commit round-trip mismatch: got %+v", got)
	}
}

func TestStoreTypeMismatch(t *testing.T) {
	s := newTestStore(t)
	h, err := s.WriteBlob(&Blob{Data: []byte("x")})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	if _, err := s.ReadTree(h); err == nil {
		t.Error("ReadTree on a blob oid should fail")
	}
}

func TestStoreReadCorruptObject(t *testing.T) {
	s := newTestStore(t)
	h, err := s.WriteBlob(&Blob{Data: []byte("x")})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	// Corrupt the on-disk bytes so the zlib stream no longer decodes.
	path := filepath.Join(s.root, "objects", string(h[:2]), string(h[2:]))
	if err := os.WriteFile(path, []byte("not zlib data"), 0o644); err != nil {
		t.Fatalf("corrupt object: %v", err)
	}
	_, _, err = s.Read(h)
	if err == nil {
		t.Fatal("expected error reading corrupted object")
	}
	var corrupt *CorruptObjectError
	if !asCorrupt(err, &corrupt) {
		t.Errorf("expected *CorruptObjectError, got %T: %v", err, err)
	}
}

func asCorrupt(err error, target **CorruptObjectError) bool {
	for err != nil {
		if ce, ok := err.(*CorruptObjectError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func TestObjectPathFanout(t *testing.T) {
	s := newTestStore(t)
	h := Hash("e440e5c842586965a7fb77deda2eca68612b1f53")
	p := s.objectPath(h)
	want := filepath.Join(s.root, "objects", "e4", "40e5c842586965a7fb77deda2eca68612b1f53")
	if p != want {
		t.Errorf("objectPath: got %s, want %s", p, want)
	}
}
