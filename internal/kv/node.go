// Package kv decodes the two Valve key/value tree formats PICS responses
// arrive in: the text VDF used for app info, and the byte-tagged binary VDF
// used for package info. Neither decoder throws; malformed input yields a
// partial node and callers treat that as "skip this entry".
package kv

import "strconv"

// Node is a generic key/value tree. Scalars are split across a string map
// and an integer map because binary VDF tags strings and int32s
// differently; text VDF only ever produces strings, so Ints stays empty
// there and callers parse with ParseInt on demand.
type Node struct {
	Strings  map[string]string
	Ints     map[string]int32
	Children map[string]*Node
}

func NewNode() *Node {
	return &Node{
		Strings:  map[string]string{},
		Ints:     map[string]int32{},
		Children: map[string]*Node{},
	}
}

func (n *Node) child(name string) *Node {
	if n.Children == nil {
		n.Children = map[string]*Node{}
	}
	c, ok := n.Children[name]
	if !ok {
		c = NewNode()
		n.Children[name] = c
	}
	return c
}

// String returns a scalar attribute by key.
func (n *Node) String(key string) (string, bool) {
	if n == nil {
		return "", false
	}
	v, ok := n.Strings[key]
	return v, ok
}

// Int returns an integer attribute, parsing a string attribute if the
// node only carries string scalars (text VDF has no native int type).
func (n *Node) Int(key string) (int32, bool) {
	if n == nil {
		return 0, false
	}
	if v, ok := n.Ints[key]; ok {
		return v, true
	}
	if s, ok := n.Strings[key]; ok {
		if i, err := strconv.ParseInt(s, 10, 32); err == nil {
			return int32(i), true
		}
	}
	return 0, false
}

// Child returns a named child node.
func (n *Node) Child(key string) (*Node, bool) {
	if n == nil || n.Children == nil {
		return nil, false
	}
	c, ok := n.Children[key]
	return c, ok
}

// Path walks a sequence of child names, e.g. Path("common", "name"),
// returning the node at that path. Intermediate segments that don't exist abort the
// walk and return (nil, false) rather than panicking.
func (n *Node) Path(segs ...string) (*Node, bool) {
	cur := n
	for _, s := range segs {
		c, ok := cur.Child(s)
		if !ok {
			return nil, false
		}
		cur = c
	}
	return cur, true
}

// PathString resolves all but the last segment as children and reads the
// last segment as a string scalar on the resulting node, e.g.
// PathString("common", "name").
func (n *Node) PathString(segs ...string) (string, bool) {
	if len(segs) == 0 {
		return "", false
	}
	node, ok := n.Path(segs[:len(segs)-1]...)
	if !ok {
		return "", false
	}
	return node.String(segs[len(segs)-1])
}
