package canvas

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newOpenCanvas(t *testing.T) *Canvas {
	t.Helper()
	c, err := New(1920, 1080)
	require.NoError(t, err)
	require.False(t, c.Open())
	return c
}

func TestNew_InvalidSize(t *testing.T) {
	_, err := New(0, 100)
	assert.Error(t, err)
	_, err = New(100, -1)
	assert.Error(t, err)
}

func TestCanvas_RequiresOpen(t *testing.T) {
	c, err := New(100, 100)
	require.NoError(t, err)
	assert.False(t, c.IsOpen())

	_, err = c.DrawRectangle(Point{1, 1}, Point{2, 2})
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, c.AddText("hi", Point{1, 1}), ErrNotOpen)
	_, err = c.FillAt(Point{1, 1})
	assert.ErrorIs(t, err, ErrNotOpen)

	assert.False(t, c.Open())
	assert.True(t, c.Open(), "second open reports already open")
	assert.True(t, c.IsOpen())
}

func TestCanvas_DrawRectangleNormalizesCorners(t *testing.T) {
	c := newOpenCanvas(t)
	r, err := c.DrawRectangle(Point{1140, 700}, Point{780, 380})
	require.NoError(t, err)
	assert.Equal(t, Rectangle{Min: Point{780, 380}, Max: Point{1140, 700}}, r)
	assert.True(t, r.Contains(Point{960, 540}))
	assert.True(t, r.Contains(Point{780, 700}), "edges are inside")
	assert.False(t, r.Contains(Point{779, 540}))
}

func TestCanvas_Bounds(t *testing.T) {
	c := newOpenCanvas(t)
	_, err := c.DrawRectangle(Point{0, 0}, Point{1920, 10})
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.ErrorIs(t, c.AddText("x", Point{-1, 5}), ErrOutOfBounds)
	_, err = c.FillAt(Point{5, 1080})
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.Empty(t, c.Snapshot().Rectangles)
}

func TestCanvas_FillTargetsInnermostRectangle(t *testing.T) {
	c := newOpenCanvas(t)
	_, err := c.DrawRectangle(Point{100, 200}, Point{1000, 900})
	require.NoError(t, err)
	_, err = c.DrawRectangle(Point{400, 400}, Point{600, 600})
	require.NoError(t, err)

	f, err := c.FillAt(Point{500, 500})
	require.NoError(t, err)
	assert.Equal(t, 1, f.Target)

	f, err = c.FillAt(Point{150, 250})
	require.NoError(t, err)
	assert.Equal(t, 0, f.Target)

	f, err = c.FillAt(Point{1500, 100})
	require.NoError(t, err)
	assert.Equal(t, -1, f.Target, "background")
}

func TestCanvas_SnapshotIsACopy(t *testing.T) {
	c := newOpenCanvas(t)
	require.NoError(t, c.AddText("School of AI", Point{960, 540}))

	snap := c.Snapshot()
	snap.Labels[0].Text = "changed"
	assert.Equal(t, "School of AI", c.Snapshot().Labels[0].Text)
	assert.Equal(t, 1920, snap.Width)
	assert.True(t, snap.Open)
}

func TestCanvas_ConcurrentUse(t *testing.T) {
	c := newOpenCanvas(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = c.DrawRectangle(Point{i, i}, Point{i + 10, i + 10})
			_ = c.AddText("t", Point{i, i})
			_, _ = c.FillAt(Point{i, i})
		}(i)
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Len(t, snap.Rectangles, 8)
	assert.Len(t, snap.Labels, 8)
	assert.Len(t, snap.Fills, 8)
}
