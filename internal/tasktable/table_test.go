package tasktable

import (
	"testing"

	"github.com/seoshub/seos/internal/appimage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_AddFindRemove(t *testing.T) {
	tt := New(4)
	h := &appimage.Header{AppID: appimage.MakeAppID(1, 1)}
	task, ok := tt.Add(1, h, 10)
	require.True(t, ok)
	assert.Equal(t, int32(1), task.TID)

	found, ok := tt.FindByTID(1)
	require.True(t, ok)
	assert.Same(t, task, found)

	foundByApp, ok := tt.FindByAppID(h.AppID)
	require.True(t, ok)
	assert.Same(t, task, foundByApp)

	assert.True(t, tt.Remove(1))
	_, ok = tt.FindByTID(1)
	assert.False(t, ok)
}

func TestTable_CapacityEnforced(t *testing.T) {
	tt := New(2)
	_, ok := tt.Add(1, &appimage.Header{}, 0)
	require.True(t, ok)
	_, ok = tt.Add(2, &appimage.Header{}, 0)
	require.True(t, ok)
	_, ok = tt.Add(3, &appimage.Header{}, 0)
	assert.False(t, ok)
}

func TestTask_SubscriptionSetHasNoDuplicates(t *testing.T) {
	task := &Task{}
	task.Subscribe(5)
	task.Subscribe(5)
	assert.Equal(t, []uint32{5}, task.subscribed)
	assert.True(t, task.Subscribed(5))

	task.Unsubscribe(5)
	assert.False(t, task.Subscribed(5))
}

func TestTable_RemoveSwapsWithLast(t *testing.T) {
	tt := New(4)
	tt.Add(1, &appimage.Header{}, 0)
	tt.Add(2, &appimage.Header{}, 0)
	tt.Add(3, &appimage.Header{}, 0)

	assert.True(t, tt.Remove(1))
	assert.Equal(t, 2, tt.Len())
	_, ok := tt.FindByTID(2)
	assert.True(t, ok)
	_, ok = tt.FindByTID(3)
	assert.True(t, ok)
}
