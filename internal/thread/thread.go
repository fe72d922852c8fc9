// Package thread assembles reply trees from flat message rows.
//
// Messages are stored as a flat table keyed by id with a nullable parent
// reference. The functions here index those rows by id and link them into a
// forest without issuing further queries.
package thread

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chirino/messaging-service/internal/model"
	"github.com/google/uuid"
)

// ErrCycle is returned when a parent chain loops back on itself.
var ErrCycle = errors.New("reply chain contains a cycle")

// Node is a message together with its direct replies.
type Node struct {
	model.Message
	Depth   int     `json:"depth"`
	Replies []*Node `json:"replies"`
}

// Less orders messages by sent time, then by insertion sequence, then by id
// so the order is total even for rows that were never assigned a sequence.
func Less(a, b *model.Message) bool {
	if !a.SentAt.Equal(b.SentAt) {
		return a.SentAt.Before(b.SentAt)
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.ID.String() < b.ID.String()
}

// Sort orders messages in place using Less.
func Sort(messages []model.Message) {
	sort.SliceStable(messages, func(i, j int) bool { return Less(&messages[i], &messages[j]) })
}

// Build links messages into a forest. The first pass indexes every message by
// id; the second appends each node to its parent's replies, or makes it a root
// when the parent is not part of the input. The result does not depend on the
// order of the input slice.
func Build(messages []model.Message) []*Node {
	ordered := make([]model.Message, len(messages))
	copy(ordered, messages)
	Sort(ordered)

	index := make(map[uuid.UUID]*Node, len(ordered))
	nodes := make([]*Node, 0, len(ordered))
	for i := range ordered {
		m := ordered[i]
		m.Replies = nil
		n := &Node{Message: m, Replies: []*Node{}}
		index[m.ID] = n
		nodes = append(nodes, n)
	}

	roots := []*Node{}
	for _, n := range nodes {
		if n.ParentMessageID != nil {
			if parent, ok := index[*n.ParentMessageID]; ok && parent != n {
				parent.Replies = append(parent.Replies, n)
				continue
			}
		}
		roots = append(roots, n)
	}

	setDepths(roots)
	return roots
}

// Subtree builds the tree rooted at rootID from messages that contain it and
// its descendants. Depths are relative to the returned root.
func Subtree(rootID uuid.UUID, messages []model.Message) *Node {
	for _, n := range Build(messages) {
		if n.ID == rootID {
			return n
		}
	}
	return nil
}

// FromPreloaded converts a message with eagerly loaded Replies into a Node.
func FromPreloaded(m model.Message) *Node {
	return fromPreloaded(m, 0)
}

func fromPreloaded(m model.Message, depth int) *Node {
	replies := m.Replies
	m.Replies = nil
	n := &Node{Message: m, Depth: depth, Replies: make([]*Node, 0, len(replies))}
	sorted := make([]model.Message, len(replies))
	copy(sorted, replies)
	Sort(sorted)
	for _, r := range sorted {
		n.Replies = append(n.Replies, fromPreloaded(r, depth+1))
	}
	return n
}

// Walk visits every node of the forest depth first, parents before replies.
func Walk(roots []*Node, fn func(*Node)) {
	stack := make([]*Node, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(n)
		for i := len(n.Replies) - 1; i >= 0; i-- {
			stack = append(stack, n.Replies[i])
		}
	}
}

// Count returns the number of nodes in the forest.
func Count(roots []*Node) int {
	total := 0
	Walk(roots, func(*Node) { total++ })
	return total
}

func setDepths(roots []*Node) {
	for _, r := range roots {
		r.Depth = 0
	}
	Walk(roots, func(n *Node) {
		for _, c := range n.Replies {
			c.Depth = n.Depth + 1
		}
	})
}

// Depth counts the hops from id to its root by following parents. A message
// missing from parents is treated as having no parent. The walk is bounded by
// the number of known messages, so a corrupted chain yields ErrCycle instead
// of looping.
func Depth(parents map[uuid.UUID]*uuid.UUID, id uuid.UUID) (int, error) {
	depth := 0
	current := id
	for {
		parent, ok := parents[current]
		if !ok || parent == nil {
			return depth, nil
		}
		depth++
		if depth > len(parents) {
			return 0, fmt.Errorf("message %s: %w", id, ErrCycle)
		}
		current = *parent
	}
}
