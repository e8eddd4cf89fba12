package repository

import "github.com/zeebo/xxh3"

// Treap ordered by the leaderboard key: score DESC, then the configured
// tie-break. "less" means ranks earlier, so in-order traversal yields the
// leaderboard from best to worst. Each node carries its subtree size so rank
// is an order-statistic walk.

// key is the composite ordering value of a ranked participant.
type key struct {
	score int64
	tie   uint64 // commit generation at which score was reached; 0 unless first_reached
	id    string
}

type node struct {
	key   key
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

// treap is not safe for concurrent use; TreapStore guards it.
type treap struct {
	root *node
	less func(a, b key) bool
}

// priority hashes the participant id. Priorities are independent of the
// score so the tree stays balanced in expectation whatever the score
// distribution is.
func priority(id string) uint64 {
	return xxh3.HashString(id)
}

func (t *treap) len() int { return nsize(t.root) }

func (t *treap) insert(k key) {
	t.root = t.insertAt(t.root, k, priority(k.id))
}

func (t *treap) insertAt(n *node, k key, prio uint64) *node {
	if n == nil {
		return &node{key: k, prio: prio, size: 1}
	}
	if t.less(k, n.key) {
		n.left = t.insertAt(n.left, k, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = t.insertAt(n.right, k, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func (t *treap) remove(k key) {
	t.root = t.removeAt(t.root, k)
}

func (t *treap) removeAt(n *node, k key) *node {
	if n == nil {
		return nil
	}
	switch {
	case n.key == k:
		// Rotate the higher-priority child up until the node is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = t.removeAt(n.right, k)
		} else {
			n = rotateLeft(n)
			n.left = t.removeAt(n.left, k)
		}
	case t.less(k, n.key):
		n.left = t.removeAt(n.left, k)
	default:
		n.right = t.removeAt(n.right, k)
	}
	fix(n)
	return n
}

// rank returns the 1-based position of k, or 0 if k is not in the tree.
func (t *treap) rank(k key) int {
	acc := 0
	n := t.root
	for n != nil {
		switch {
		case n.key == k:
			return acc + nsize(n.left) + 1
		case t.less(k, n.key):
			n = n.left
		default:
			acc += nsize(n.left) + 1
			n = n.right
		}
	}
	return 0
}

// top appends up to limit keys in rank order.
func (t *treap) top(limit int) []key {
	if limit > t.len() {
		limit = t.len()
	}
	out := make([]key, 0, limit)
	collectTop(t.root, limit, &out)
	return out
}

func collectTop(n *node, limit int, out *[]key) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTop(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.key)
	}
	if len(*out) < limit {
		collectTop(n.right, limit, out)
	}
}

// comparator builds the ordering for a tie-break policy.
func comparator(policy TieBreak) func(a, b key) bool {
	switch policy {
	case TieBreakIDDesc:
		return func(a, b key) bool {
			if a.score != b.score {
				return a.score > b.score
			}
			return a.id > b.id
		}
	case TieBreakFirstReached:
		return func(a, b key) bool {
			if a.score != b.score {
				return a.score > b.score
			}
			if a.tie != b.tie {
				return a.tie < b.tie
			}
			return a.id < b.id
		}
	default:
		return func(a, b key) bool {
			if a.score != b.score {
				return a.score > b.score
			}
			return a.id < b.id
		}
	}
}
