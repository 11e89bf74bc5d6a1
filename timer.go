package gsk

// timer.go implements the reactor's pending-timer ordering structure: a
// classic parent-pointer red-black tree keyed on (expireSec, expireUsec,
// identity). A container/heap min-heap gives O(log n) insert and pop-min,
// but a timer source can be rearmed or removed from anywhere in the
// schedule while still pending, which a heap can only do in O(n) without
// an auxiliary index. The tree gives O(log n) insert, remove-by-node, and
// peek-min, all that the reactor needs.

type timerColor bool

const (
	timerRed   timerColor = true
	timerBlack timerColor = false
)

// timerNode is one entry in the tree. It is embedded directly in the
// timer-kind Source so arming/rearming never allocates.
type timerNode struct {
	left, right, parent *timerNode
	color                timerColor

	expireSec  int64
	expireUsec int64
	identity   uint64 // tie-break for equal (sec, usec): monotonic insertion counter

	source *Source
	inTree bool
}

// less reports whether a sorts before b.
func (a *timerNode) less(b *timerNode) bool {
	if a.expireSec != b.expireSec {
		return a.expireSec < b.expireSec
	}
	if a.expireUsec != b.expireUsec {
		return a.expireUsec < b.expireUsec
	}
	return a.identity < b.identity
}

// timerTree is a red-black tree of timerNode, ordered by expiry.
type timerTree struct {
	root     *timerNode
	size     int
	nextSeq  uint64
}

func (t *timerTree) nextIdentity() uint64 {
	t.nextSeq++
	return t.nextSeq
}

// Len returns the number of pending timers.
func (t *timerTree) Len() int { return t.size }

// Min returns the earliest-expiring node, or nil if the tree is empty.
func (t *timerTree) Min() *timerNode {
	n := t.root
	if n == nil {
		return nil
	}
	for n.left != nil {
		n = n.left
	}
	return n
}

// Insert adds n to the tree. n must not already be in a tree.
func (t *timerTree) Insert(n *timerNode) {
	n.left, n.right, n.parent = nil, nil, nil
	n.color = timerRed
	n.inTree = true

	if t.root == nil {
		t.root = n
		n.color = timerBlack
		t.size++
		return
	}

	cur := t.root
	var parent *timerNode
	goLeft := false
	for cur != nil {
		parent = cur
		if n.less(cur) {
			cur = cur.left
			goLeft = true
		} else {
			cur = cur.right
			goLeft = false
		}
	}
	n.parent = parent
	if goLeft {
		parent.left = n
	} else {
		parent.right = n
	}
	t.size++
	t.insertFixup(n)
}

func (t *timerTree) insertFixup(z *timerNode) {
	for z.parent != nil && z.parent.color == timerRed {
		grandparent := z.parent.parent
		if grandparent == nil {
			break
		}
		if z.parent == grandparent.left {
			uncle := grandparent.right
			if uncle != nil && uncle.color == timerRed {
				z.parent.color = timerBlack
				uncle.color = timerBlack
				grandparent.color = timerRed
				z = grandparent
				continue
			}
			if z == z.parent.right {
				z = z.parent
				t.rotateLeft(z)
			}
			z.parent.color = timerBlack
			grandparent.color = timerRed
			t.rotateRight(grandparent)
		} else {
			uncle := grandparent.left
			if uncle != nil && uncle.color == timerRed {
				z.parent.color = timerBlack
				uncle.color = timerBlack
				grandparent.color = timerRed
				z = grandparent
				continue
			}
			if z == z.parent.left {
				z = z.parent
				t.rotateRight(z)
			}
			z.parent.color = timerBlack
			grandparent.color = timerRed
			t.rotateLeft(grandparent)
		}
	}
	t.root.color = timerBlack
}

func (t *timerTree) rotateLeft(x *timerNode) {
	y := x.right
	x.right = y.left
	if y.left != nil {
		y.left.parent = x
	}
	y.parent = x.parent
	if x.parent == nil {
		t.root = y
	} else if x == x.parent.left {
		x.parent.left = y
	} else {
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (t *timerTree) rotateRight(x *timerNode) {
	y := x.left
	x.left = y.right
	if y.right != nil {
		y.right.parent = x
	}
	y.parent = x.parent
	if x.parent == nil {
		t.root = y
	} else if x == x.parent.right {
		x.parent.right = y
	} else {
		x.parent.left = y
	}
	y.right = x
	x.parent = y
}

// Remove deletes n from the tree. n must currently be in this tree.
func (t *timerTree) Remove(z *timerNode) {
	if !z.inTree {
		return
	}
	y := z
	yOriginalColor := y.color
	var x, xParent *timerNode

	if z.left == nil {
		x = z.right
		xParent = z.parent
		t.transplant(z, z.right)
	} else if z.right == nil {
		x = z.left
		xParent = z.parent
		t.transplant(z, z.left)
	} else {
		y = t.subtreeMin(z.right)
		yOriginalColor = y.color
		x = y.right
		if y.parent == z {
			xParent = y
		} else {
			xParent = y.parent
			t.transplant(y, y.right)
			y.right = z.right
			y.right.parent = y
		}
		t.transplant(z, y)
		y.left = z.left
		y.left.parent = y
		y.color = z.color
	}

	if yOriginalColor == timerBlack {
		t.deleteFixup(x, xParent)
	}

	z.left, z.right, z.parent = nil, nil, nil
	z.inTree = false
	t.size--
}

func (t *timerTree) subtreeMin(n *timerNode) *timerNode {
	for n.left != nil {
		n = n.left
	}
	return n
}

func (t *timerTree) transplant(u, v *timerNode) {
	if u.parent == nil {
		t.root = v
	} else if u == u.parent.left {
		u.parent.left = v
	} else {
		u.parent.right = v
	}
	if v != nil {
		v.parent = u.parent
	}
}

// deleteFixup rebalances after a black node's removal. x may be nil (the nil
// leaf that took the removed node's place), so its parent is threaded
// through explicitly since a nil node carries no parent pointer of its own.
func (t *timerTree) deleteFixup(x, parent *timerNode) {
	for x != t.root && isBlack(x) {
		if parent == nil {
			break
		}
		if x == parent.left {
			w := parent.right
			if w == nil {
				break
			}
			if w.color == timerRed {
				w.color = timerBlack
				parent.color = timerRed
				t.rotateLeft(parent)
				w = parent.right
				if w == nil {
					break
				}
			}
			if isBlack(w.left) && isBlack(w.right) {
				w.color = timerRed
				x = parent
				parent = x.parent
			} else {
				if isBlack(w.right) {
					if w.left != nil {
						w.left.color = timerBlack
					}
					w.color = timerRed
					t.rotateRight(w)
					w = parent.right
				}
				w.color = parent.color
				parent.color = timerBlack
				if w.right != nil {
					w.right.color = timerBlack
				}
				t.rotateLeft(parent)
				x = t.root
				parent = nil
			}
		} else {
			w := parent.left
			if w == nil {
				break
			}
			if w.color == timerRed {
				w.color = timerBlack
				parent.color = timerRed
				t.rotateRight(parent)
				w = parent.left
				if w == nil {
					break
				}
			}
			if isBlack(w.right) && isBlack(w.left) {
				w.color = timerRed
				x = parent
				parent = x.parent
			} else {
				if isBlack(w.left) {
					if w.right != nil {
						w.right.color = timerBlack
					}
					w.color = timerRed
					t.rotateLeft(w)
					w = parent.left
				}
				w.color = parent.color
				parent.color = timerBlack
				if w.left != nil {
					w.left.color = timerBlack
				}
				t.rotateRight(parent)
				x = t.root
				parent = nil
			}
		}
	}
	if x != nil {
		x.color = timerBlack
	}
}

func isBlack(n *timerNode) bool {
	return n == nil || n.color == timerBlack
}
