// Package trie implements a path-segment prefix trie used to answer
// longest-matching-prefix queries over absolute file paths.
package trie

import "strings"

// node is a single trie node. Children are keyed by path segment; a node
// carries a replacement value only when it terminates a configured prefix.
type node struct {
	children map[string]*node
	value    string
	terminal bool
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

// Trie maps path prefixes to replacement prefixes. It is built once per
// load and never mutated afterwards; reloads construct a fresh Trie so
// concurrent readers always see a self-consistent snapshot.
type Trie struct {
	root *node
	size int
}

// New returns an empty trie.
func New() *Trie {
	return &Trie{root: newNode()}
}

// Len returns the number of configured prefixes.
func (t *Trie) Len() int {
	return t.size
}

// Insert associates prefixPath with replacement. The path is split on '/'
// and one node is created per segment. Inserting an existing key overwrites
// its value (last write wins).
func (t *Trie) Insert(prefixPath, replacement string) {
	n := t.root
	for _, seg := range strings.Split(prefixPath, "/") {
		child, ok := n.children[seg]
		if !ok {
			child = newNode()
			n.children[seg] = child
		}
		n = child
	}
	if !n.terminal {
		t.size++
	}
	n.value = replacement
	n.terminal = true
}

// LongestMatch walks the trie greedily, consuming one segment of path at a
// time while a child exists for that segment. If the node the walk stops at
// terminates a configured prefix, it returns the consumed segments rejoined
// by '/' and the node's replacement value.
//
// The walk never backtracks: it reports the value of the deepest node on
// the single greedy path, which is not necessarily the longest configured
// key if the path diverges from every key before reaching a terminal.
func (t *Trie) LongestMatch(path string) (matchedPrefix, replacement string, ok bool) {
	n := t.root
	segments := strings.Split(path, "/")
	consumed := 0
	for _, seg := range segments {
		child, exists := n.children[seg]
		if !exists {
			break
		}
		n = child
		consumed++
	}
	if !n.terminal {
		return "", "", false
	}
	return strings.Join(segments[:consumed], "/"), n.value, true
}
