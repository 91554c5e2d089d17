package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SnapshotLifecycle(t *testing.T) {
	ctx := context.Background()
	c := New()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	got, err := c.LoadSnapshot(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)

	data := []byte(`{"marks":["0:1"]}`)
	require.NoError(t, c.SaveSnapshot(ctx, "s1", data, time.Hour))
	data[0] = 'x'
	got, err = c.LoadSnapshot(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, `{"marks":["0:1"]}`, string(got), "stored bytes are copied")

	now = now.Add(2 * time.Hour)
	got, err = c.LoadSnapshot(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1, c.Sweep())

	require.NoError(t, c.SaveSnapshot(ctx, "s2", []byte("{}"), time.Hour))
	require.NoError(t, c.DeleteSnapshot(ctx, "s2"))
	got, _ = c.LoadSnapshot(ctx, "s2")
	assert.Nil(t, got)
}
