// Package atoms implements the bidirectional name<->atom mapping the
// selection engine uses to intern and resolve X11 atoms. Entries are
// never evicted: the atom space touched by a single daemon run is tiny
// (the three selections, a handful of targets, and the REPEAT_N
// property names) and lives for the process lifetime.
package atoms

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
)

// Conn is the subset of the X11 connection the cache needs to resolve
// atoms it hasn't seen yet. selection.Display satisfies it.
type Conn interface {
	InternAtom(onlyIfExists bool, name string) (xproto.Atom, error)
	GetAtomName(atom xproto.Atom) (string, error)
}

// Cache is a lazily-populated, never-evicted name<->atom table.
type Cache struct {
	conn    Conn
	byName  map[string]xproto.Atom
	byAtom  map[xproto.Atom]string
}

// New returns a Cache backed by conn.
func New(conn Conn) *Cache {
	return &Cache{
		conn:   conn,
		byName: make(map[string]xproto.Atom),
		byAtom: make(map[xproto.Atom]string),
	}
}

// Get interns name, returning the cached atom if already known.
func (c *Cache) Get(name string, onlyIfExists bool) (xproto.Atom, error) {
	if atom, ok := c.byName[name]; ok {
		return atom, nil
	}
	atom, err := c.conn.InternAtom(onlyIfExists, name)
	if err != nil {
		return 0, fmt.Errorf("intern atom %q: %w", name, err)
	}
	c.put(name, atom)
	return atom, nil
}

// NameOf resolves atom to its name, preferring the reverse scan over a
// round trip: the table is tiny in practice, so a linear scan over
// entries interned so far is cheaper than assuming a miss.
func (c *Cache) NameOf(atom xproto.Atom) (string, error) {
	if name, ok := c.byAtom[atom]; ok {
		return name, nil
	}
	for name, a := range c.byName {
		if a == atom {
			c.byAtom[atom] = name
			return name, nil
		}
	}
	name, err := c.conn.GetAtomName(atom)
	if err != nil {
		return "", fmt.Errorf("get atom name %d: %w", atom, err)
	}
	c.put(name, atom)
	return name, nil
}

// Contains reports whether atom has already been interned through this
// cache, without issuing any request.
func (c *Cache) Contains(atom xproto.Atom) bool {
	_, ok := c.byAtom[atom]
	return ok
}

func (c *Cache) put(name string, atom xproto.Atom) {
	c.byName[name] = atom
	c.byAtom[atom] = name
}
