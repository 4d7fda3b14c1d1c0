// Package spool is the on-disk queue of cargo waiting to be delivered
// (outbox) or handed over to the local gateway (inbox).
//
// Cargo is content-addressed: each file is named by the CargoID of its
// bytes, so re-spooling the same cargo is a no-op and the id can be sent
// as the cargo id of a delivery without extra bookkeeping.
package spool

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ipfs/go-cid"
)

// Spool is a directory of immutable cargo keyed by CID.
type Spool struct {
	root string
}

// New opens the spool rooted at root. The directory will be created if needed.
func New(root string) (*Spool, error) {
	if root == "" {
		return nil, errors.New("spool: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Spool{root: root}, nil
}

// Root returns the spool directory.
func (s *Spool) Root() string { return s.root }

// Put stores b and returns its id. It is idempotent; an existing file with
// different contents is never overwritten.
func (s *Spool) Put(b []byte) (cid.Cid, error) {
	id, err := CargoID(b)
	if err != nil {
		return cid.Undef, err
	}

	path := s.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			existing, rerr := s.Get(id)
			if rerr != nil || !bytes.Equal(existing, b) {
				return cid.Undef, ErrImmutable
			}
			return id, nil
		}
		return cid.Undef, err
	}

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return cid.Undef, err
	}
	return id, nil
}

// Get returns the cargo stored under id, verifying it still hashes to id.
func (s *Spool) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	b, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	got, err := CargoID(b)
	if err != nil {
		return nil, err
	}
	if got != id {
		return nil, ErrCIDMismatch
	}
	return b, nil
}

// Open returns a reader over the verified cargo stored under id.
func (s *Spool) Open(id cid.Cid) (io.ReadCloser, error) {
	b, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *Spool) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(s.pathFor(id))
	return err == nil
}

// Remove deletes the cargo stored under id.
func (s *Spool) Remove(id cid.Cid) error {
	if !id.Defined() {
		return ErrInvalidCID
	}
	if err := os.Remove(s.pathFor(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// List returns the ids of every stored cargo, sorted by their string form.
// Files whose names are not cargo ids are ignored.
func (s *Spool) List() ([]cid.Cid, error) {
	shards, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var ids []cid.Cid
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.root, shard.Name()))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			id, err := ParseID(e.Name())
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (s *Spool) pathFor(id cid.Cid) string {
	name := id.String()
	if len(name) < 2 {
		return filepath.Join(s.root, name)
	}
	return filepath.Join(s.root, name[:2], name)
}
