package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinreview/backend/internal/models"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		view    ViewerState
		want    models.ScopeKey
		wantErr bool
	}{
		{
			name: "website",
			view: ViewerState{TargetType: models.TargetWebsite, TargetID: "w1", PagePath: "/about", DeviceView: "desktop", ImageID: "ignored"},
			want: models.ScopeKey{TargetID: "w1", SubScopeID: "/about", DeviceView: "desktop"},
		},
		{
			name: "mockup ignores device",
			view: ViewerState{TargetType: models.TargetMockup, TargetID: "m1", ImageID: "img-7", DeviceView: "phone"},
			want: models.ScopeKey{TargetID: "m1", SubScopeID: "img-7"},
		},
		{
			name: "video",
			view: ViewerState{TargetType: models.TargetVideo, TargetID: "v1", VideoAssetID: "cut-2"},
			want: models.ScopeKey{TargetID: "v1", SubScopeID: "cut-2"},
		},
		{
			name:    "website without device",
			view:    ViewerState{TargetType: models.TargetWebsite, TargetID: "w1", PagePath: "/"},
			wantErr: true,
		},
		{
			name:    "missing target",
			view:    ViewerState{TargetType: models.TargetMockup, ImageID: "img"},
			wantErr: true,
		},
		{
			name:    "unknown type",
			view:    ViewerState{TargetType: "pdf", TargetID: "x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.view)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIncompleteView)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_DeviceIsHardFilter(t *testing.T) {
	comments := []models.Comment{
		{ID: "a", TargetID: "w1", TargetType: models.TargetWebsite, PageURL: "/about", DeviceView: "desktop"},
		{ID: "b", TargetID: "w1", TargetType: models.TargetWebsite, PageURL: "/about", DeviceView: "phone"},
		{ID: "c", TargetID: "w1", TargetType: models.TargetWebsite, PageURL: "/", DeviceView: "desktop"},
	}

	desktop := Filter(comments, models.ScopeKey{TargetID: "w1", SubScopeID: "/about", DeviceView: "desktop"})
	require.Len(t, desktop, 1)
	assert.Equal(t, "a", desktop[0].ID)

	phone := Filter(comments, models.ScopeKey{TargetID: "w1", SubScopeID: "/about", DeviceView: "phone"})
	require.Len(t, phone, 1)
	assert.Equal(t, "b", phone[0].ID)
}

func TestForSubAsset(t *testing.T) {
	site := &models.AnnotationTarget{
		ID:    "w1",
		Type:  models.TargetWebsite,
		Pages: []models.Page{{ID: "p1", Path: "/about"}},
	}
	comments := []models.Comment{
		{ID: "a", TargetID: "w1", TargetType: models.TargetWebsite, PageURL: "/about", DeviceView: "desktop"},
		{ID: "b", TargetID: "w1", TargetType: models.TargetWebsite, PageURL: "/about", DeviceView: "phone"},
		{ID: "c", TargetID: "w1", TargetType: models.TargetWebsite, PageURL: "/", DeviceView: "desktop"},
	}

	got := ForSubAsset(site, comments, "p1")
	assert.Len(t, got, 2)
	assert.Empty(t, ForSubAsset(site, comments, "missing"))
}

func TestComposer_ScopeChangeClearsPendingPin(t *testing.T) {
	desktop := models.ScopeKey{TargetID: "w1", SubScopeID: "/about", DeviceView: "desktop"}
	phone := models.ScopeKey{TargetID: "w1", SubScopeID: "/about", DeviceView: "phone"}

	c := NewComposer(desktop)
	c.Place(models.Relative(50, 10), nil)
	require.True(t, c.Open())

	assert.False(t, c.SetScope(desktop), "same scope keeps composition")
	assert.True(t, c.Open())

	assert.True(t, c.SetScope(phone))
	assert.False(t, c.Open())
	pos, rng := c.Pending()
	assert.Nil(t, pos)
	assert.Nil(t, rng)
	assert.Equal(t, phone, c.Scope())
}

func TestComposer_PlaceCopiesInputs(t *testing.T) {
	c := NewComposer(models.ScopeKey{TargetID: "v1", SubScopeID: "a"})
	rng := models.TimeRange{Start: 1, End: 6}
	c.Place(models.Absolute(10, 20), &rng)
	rng.End = 100

	pos, got := c.Pending()
	require.NotNil(t, pos)
	require.NotNil(t, got)
	assert.Equal(t, 6.0, got.End)

	c.Cancel()
	pos, _ = c.Pending()
	assert.Nil(t, pos)
}
