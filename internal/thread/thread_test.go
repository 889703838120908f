package thread

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinreview/backend/internal/models"
)

func TestToggle_RoundTrip(t *testing.T) {
	assert.Equal(t, models.StatusResolved, Toggle(models.StatusActive))
	assert.Equal(t, models.StatusActive, Toggle(Toggle(models.StatusActive)))
	assert.Equal(t, models.StatusResolved, Toggle(Toggle(models.StatusResolved)))
	assert.Equal(t, models.StatusResolved, Toggle(""))
}

func TestValidateText(t *testing.T) {
	got, err := ValidateText("  looks off  ")
	require.NoError(t, err)
	assert.Equal(t, "looks off", got)

	_, err = ValidateText(" \n\t ")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestPlanDueDate(t *testing.T) {
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	friday := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	mondayOtherZone := monday.In(time.FixedZone("x", 3600))

	tests := []struct {
		name       string
		prev, next *time.Time
		want       DueDateAction
	}{
		{"none to none", nil, nil, DueDateNone},
		{"set", nil, &monday, DueDateCreate},
		{"clear", &monday, nil, DueDateDelete},
		{"change", &monday, &friday, DueDateUpdate},
		{"same instant", &monday, &mondayOtherZone, DueDateNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlanDueDate(tt.prev, tt.next))
		})
	}
}

func tree() []models.Reply {
	return []models.Reply{
		{ID: "r1", Text: "one", Replies: []models.Reply{
			{ID: "r1a", Text: "one-a", Replies: []models.Reply{
				{ID: "r1a1", Text: "deep"},
			}},
		}},
		{ID: "r2", Text: "two"},
	}
}

func TestAddReply(t *testing.T) {
	original := tree()

	root, ok := AddReply(original, "", models.Reply{ID: "r3"})
	require.True(t, ok)
	assert.Len(t, root, 3)
	assert.Len(t, original, 2, "input must not be mutated")

	nested, ok := AddReply(original, "r1a1", models.Reply{ID: "r1a1x"})
	require.True(t, ok)
	found, ok := Find(nested, "r1a1x")
	assert.True(t, ok)
	assert.Equal(t, "r1a1x", found.ID)
	_, ok = Find(original, "r1a1x")
	assert.False(t, ok)

	_, ok = AddReply(original, "missing", models.Reply{ID: "x"})
	assert.False(t, ok)
}

func TestRemoveReply_RemovesSubtree(t *testing.T) {
	original := tree()

	out, ok := RemoveReply(original, "r1a")
	require.True(t, ok)
	assert.Equal(t, 2, Count(out))
	_, ok = Find(out, "r1a1")
	assert.False(t, ok)
	assert.Equal(t, 4, Count(original))

	_, ok = RemoveReply(original, "nope")
	assert.False(t, ok)
}

func TestWalk_DepthFirstOrder(t *testing.T) {
	var ids []string
	var depths []int
	Walk(tree(), func(r models.Reply, depth int) bool {
		ids = append(ids, r.ID)
		depths = append(depths, depth)
		return true
	})

	assert.Equal(t, []string{"r1", "r1a", "r1a1", "r2"}, ids)
	assert.Equal(t, []int{0, 1, 2, 0}, depths)
}

func TestWalk_StopsAtMaxDepth(t *testing.T) {
	var deep []models.Reply
	for i := 0; i < MaxDepth+10; i++ {
		deep = []models.Reply{{ID: "n", Replies: deep}}
	}

	assert.Equal(t, MaxDepth, Count(deep))
}

func TestReplies_WritesPastMaxDepth(t *testing.T) {
	replies := []models.Reply{}
	parent := ""
	for i := 1; i <= MaxDepth+6; i++ {
		id := fmt.Sprintf("r%d", i)
		var ok bool
		replies, ok = AddReply(replies, parent, models.Reply{ID: id})
		require.True(t, ok, "adding %s under %q", id, parent)
		parent = id
	}

	leaf := fmt.Sprintf("r%d", MaxDepth+6)
	replies, ok := AddReply(replies, leaf, models.Reply{ID: "tail"})
	require.True(t, ok)

	cut := fmt.Sprintf("r%d", MaxDepth)
	trimmed, ok := RemoveReply(replies, cut)
	require.True(t, ok)
	assert.Equal(t, MaxDepth-1, Count(trimmed))

	_, ok = RemoveReply(trimmed, "tail")
	assert.False(t, ok, "the subtree went with its root")
}
