package thread

import (
	"github.com/pinreview/backend/internal/models"
)

// AddReply returns a copy of replies with reply appended under the node
// parentID, or at the root when parentID is empty. It reports false when
// the parent does not exist.
func AddReply(replies []models.Reply, parentID string, reply models.Reply) ([]models.Reply, bool) {
	out := models.CloneReplies(replies)
	if parentID == "" {
		return append(out, reply), true
	}
	if insert(out, parentID, reply) {
		return out, true
	}
	return replies, false
}

// insert and remove reach any depth; only Walk is bounded.
func insert(nodes []models.Reply, parentID string, reply models.Reply) bool {
	for i := range nodes {
		if nodes[i].ID == parentID {
			nodes[i].Replies = append(nodes[i].Replies, reply)
			return true
		}
		if insert(nodes[i].Replies, parentID, reply) {
			return true
		}
	}
	return false
}

// RemoveReply returns a copy of replies without the node id and its whole
// subtree. It reports false when id was not found.
func RemoveReply(replies []models.Reply, id string) ([]models.Reply, bool) {
	out, removed := remove(replies, id)
	if !removed {
		return replies, false
	}
	return out, true
}

func remove(nodes []models.Reply, id string) ([]models.Reply, bool) {
	out := make([]models.Reply, 0, len(nodes))
	removed := false
	for _, n := range nodes {
		if !removed && n.ID == id {
			removed = true
			continue
		}
		if !removed {
			var children []models.Reply
			children, removed = remove(n.Replies, id)
			if removed {
				n.Replies = children
			}
		}
		n.Replies = models.CloneReplies(n.Replies)
		out = append(out, n)
	}
	return out, removed
}

// Walk visits the tree depth first, parents before children, and stops
// descending at MaxDepth. Returning false from fn stops the walk.
func Walk(replies []models.Reply, fn func(r models.Reply, depth int) bool) {
	walk(replies, 0, fn)
}

func walk(nodes []models.Reply, depth int, fn func(models.Reply, int) bool) bool {
	if depth >= MaxDepth {
		return true
	}
	for _, n := range nodes {
		if !fn(n, depth) {
			return false
		}
		if !walk(n.Replies, depth+1, fn) {
			return false
		}
	}
	return true
}

// Count returns the number of replies in the tree.
func Count(replies []models.Reply) int {
	n := 0
	Walk(replies, func(models.Reply, int) bool {
		n++
		return true
	})
	return n
}

// Find returns the reply with the given id.
func Find(replies []models.Reply, id string) (models.Reply, bool) {
	var found models.Reply
	ok := false
	Walk(replies, func(r models.Reply, _ int) bool {
		if r.ID == id {
			found, ok = r, true
			return false
		}
		return true
	})
	return found, ok
}
