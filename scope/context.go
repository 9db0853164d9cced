package scope

import (
	"bytes"

	"github.com/hads-project/hads/backend"
	"github.com/hads-project/hads/cost"
	"github.com/hads-project/hads/hashutil"
)

// Context is a prefixed, scoped view over a backend.Reader/KV, separating
// the data/aux/roots logical spaces described in spec.md §4.2. Every key
// read or written through a Context is automatically namespaced by
// prefix(path), so callers never construct backend keys by hand.
type Context struct {
	reader backend.Reader
	path   Path
	prefix []byte
}

// New derives a Context scoped to path from the given reader (a backend.KV
// or a backend.Transaction — both satisfy backend.Reader), using h to
// compute prefix(path).
func New(reader backend.Reader, h hashutil.Hasher, path Path) (*Context, error) {
	pfx, err := Prefix(h, path)
	if err != nil {
		return nil, err
	}
	return &Context{reader: reader, path: path.Clone(), prefix: pfx}, nil
}

// Path returns the path this Context is scoped to.
func (c *Context) Path() Path { return c.path }

// ScopedKey returns key prefixed with this Context's path prefix, for
// callers (such as merk.Merk.Commit) that need to write directly through a
// backend.Batch rather than through Context's read-only accessors.
func (c *Context) ScopedKey(key []byte) []byte {
	return c.scopedKey(key)
}

func (c *Context) scopedKey(key []byte) []byte {
	out := make([]byte, 0, len(c.prefix)+len(key))
	out = append(out, c.prefix...)
	out = append(out, key...)
	return out
}

// Get reads a value in the data column, scoped to this path.
func (c *Context) Get(key []byte) (cost.Context[[]byte], error) {
	v, err := c.reader.Get(backend.Data, c.scopedKey(key))
	cc := cost.Context[[]byte]{Cost: cost.Cost{SeekCount: 1}}
	if err != nil {
		return cc, err
	}
	cc.Value = v
	cc.Cost.LoadedBytes = uint32(len(v))
	cc.Cost.StorageLoadedBytes = uint32(len(v))
	return cc, nil
}

// GetAux reads a value in the aux (user meta) column, scoped to this path.
func (c *Context) GetAux(key []byte) ([]byte, error) {
	return c.reader.Get(backend.Aux, c.scopedKey(key))
}

// GetRoots reads a value in the roots (Merk internal) column, scoped to this
// path.
func (c *Context) GetRoots(key []byte) ([]byte, error) {
	return c.reader.Get(backend.Roots, c.scopedKey(key))
}

// Iterator returns a raw iterator over col restricted to this path's
// key-space. keySuffixPrefix, if non-empty, further restricts iteration to
// keys whose user-key portion starts with it.
func (c *Context) Iterator(col backend.Column, keySuffixPrefix []byte) backend.RawIterator {
	full := c.scopedKey(keySuffixPrefix)
	return &unscopeIterator{inner: c.reader.RawIterator(col, full), prefix: c.prefix}
}

// unscopeIterator strips the scope's path prefix off every key it yields, so
// callers above scope.Context never see backend-internal prefixes.
type unscopeIterator struct {
	inner  backend.RawIterator
	prefix []byte
}

func (it *unscopeIterator) SeekToFirst()     { it.inner.SeekToFirst() }
func (it *unscopeIterator) SeekToLast()      { it.inner.SeekToLast() }
func (it *unscopeIterator) Seek(key []byte)  { it.inner.Seek(key) }
func (it *unscopeIterator) Next()            { it.inner.Next() }
func (it *unscopeIterator) Prev()            { it.inner.Prev() }
func (it *unscopeIterator) Valid() bool      { return it.inner.Valid() }
func (it *unscopeIterator) Value() []byte    { return it.inner.Value() }
func (it *unscopeIterator) Close()           { it.inner.Close() }

func (it *unscopeIterator) Key() []byte {
	k := it.inner.Key()
	if len(k) < len(it.prefix) {
		return k
	}
	return bytes.TrimPrefix(k, it.prefix)
}

var _ backend.RawIterator = (*unscopeIterator)(nil)
