package display

import (
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCard records calls so tests can assert ordering without hardware.
type fakeCard struct {
	mode      drmModeInfo
	connected bool
	failAt    string

	calls   []string
	commits [][]atomicProp
	clips   [][]drmClipRect
	mem     []byte
}

func (f *fakeCard) record(name string) error {
	f.calls = append(f.calls, name)
	if f.failAt == name {
		return fmt.Errorf("%s failed", name)
	}
	return nil
}

func (f *fakeCard) SetClientCap(capability, value uint64) error {
	return f.record(fmt.Sprintf("cap%d", capability))
}

func (f *fakeCard) SetMaster() error { return f.record("master") }

func (f *fakeCard) Resources() ([]uint32, []uint32, error) {
	return []uint32{30, 31}, []uint32{40}, f.record("resources")
}

func (f *fakeCard) Connector(id uint32) (*connectorInfo, error) {
	if err := f.record("connector"); err != nil {
		return nil, err
	}
	// Only the second connector is plugged in.
	return &connectorInfo{ID: id, Connected: f.connected && id == 31, Modes: []drmModeInfo{f.mode}}, nil
}

func (f *fakeCard) Planes() ([]uint32, error) { return []uint32{50}, f.record("planes") }

func (f *fakeCard) PropertyID(obj, objType uint32, name string) (uint32, error) {
	return obj*100 + uint32(len(name)), nil
}

func (f *fakeCard) CreateModeBlob(mode drmModeInfo) (uint32, error) {
	return 77, f.record("blob")
}

func (f *fakeCard) DestroyBlob(id uint32) error { return f.record("destroy_blob") }

func (f *fakeCard) CreateDumb(width, height, bpp uint32) (dumbBuffer, error) {
	if err := f.record("create_dumb"); err != nil {
		return dumbBuffer{}, err
	}
	return dumbBuffer{Handle: 5, Pitch: width * bpp / 8, Size: uint64(width * height * bpp / 8)}, nil
}

func (f *fakeCard) AddFB(width, height uint32, buf dumbBuffer, depth, bpp uint32) (uint32, error) {
	return 9, f.record("addfb")
}

func (f *fakeCard) AtomicCommit(props []atomicProp, flags uint32) error {
	f.commits = append(f.commits, props)
	return f.record("commit")
}

func (f *fakeCard) MapDumb(buf dumbBuffer) ([]byte, error) {
	f.mem = make([]byte, buf.Size)
	return f.mem, f.record("map")
}

func (f *fakeCard) Unmap(mem []byte) error { return f.record("unmap") }

func (f *fakeCard) DirtyFB(fb uint32, clips []drmClipRect) error {
	f.clips = append(f.clips, clips)
	return f.record("dirty")
}

func (f *fakeCard) RmFB(fb uint32) error            { return f.record("rmfb") }
func (f *fakeCard) DestroyDumb(handle uint32) error { return f.record("destroy_dumb") }
func (f *fakeCard) Close() error                    { return f.record("close") }

func touchBarMode() drmModeInfo {
	m := drmModeInfo{Hdisplay: 60, Vdisplay: 2008, Vrefresh: 60}
	copy(m.Name[:], "60x2008")
	return m
}

func newTestFinder(t *testing.T, cards map[string]*fakeCard) *Finder {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path := range cards {
		require.NoError(t, afero.WriteFile(fs, path, nil, 0o600))
	}
	return &Finder{
		fs: fs,
		open: func(path string) (card, error) {
			c, ok := cards[path]
			if !ok {
				return nil, errors.New("no such card")
			}
			return c, nil
		},
	}
}

func TestIsTouchBar(t *testing.T) {
	tests := []struct {
		name string
		w, h uint16
		want bool
	}{
		{"touch bar", 60, 2008, true},
		{"wide touch bar", 60, 2170, true},
		{"exact ratio", 10, 300, true},
		{"just below", 10, 299, false},
		{"laptop panel", 2560, 1600, false},
		{"zero width", 0, 2008, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTouchBar(drmModeInfo{Hdisplay: tt.w, Vdisplay: tt.h}))
		})
	}
}

func TestOpenSkipsNonTouchBarCards(t *testing.T) {
	panel := &fakeCard{mode: drmModeInfo{Hdisplay: 2560, Vdisplay: 1600}, connected: true}
	bar := &fakeCard{mode: touchBarMode(), connected: true}

	p := newTestFinder(t, map[string]*fakeCard{
		"/dev/dri/card0": panel,
		"/dev/dri/card1": bar,
	})

	d, err := p.Open()
	require.NoError(t, err)
	assert.Equal(t, "/dev/dri/card1", d.Path())
	assert.Contains(t, panel.calls, "close", "rejected card must be closed")
	assert.NotContains(t, panel.calls, "create_dumb")

	w, h := d.LogicalSize()
	assert.Equal(t, 2008, w)
	assert.Equal(t, 60, h)
	assert.Equal(t, "60x2008", d.Mode().Name)
	assert.Equal(t, 256, d.Pitch())

	require.Len(t, bar.commits, 1)
	assert.Len(t, bar.commits[0], 13)
	assert.Equal(t, []string{"cap2", "cap3", "master", "resources", "connector", "connector",
		"create_dumb", "addfb", "planes", "blob", "commit"}, bar.calls)
}

func TestOpenAccumulatesErrors(t *testing.T) {
	p := newTestFinder(t, map[string]*fakeCard{
		"/dev/dri/card0": {mode: touchBarMode(), connected: false},
		"/dev/dri/card1": {mode: drmModeInfo{Hdisplay: 100, Vdisplay: 100}, connected: true},
	})

	_, err := p.Open()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoDevice)
	assert.ErrorIs(t, err, ErrNotTouchBar)
	assert.Contains(t, err.Error(), "/dev/dri/card0")
	assert.Contains(t, err.Error(), "/dev/dri/card1")
}

func TestOpenNoCandidates(t *testing.T) {
	_, err := newTestFinder(t, nil).Open()
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestFailedCommitReleasesBuffers(t *testing.T) {
	bar := &fakeCard{mode: touchBarMode(), connected: true, failAt: "commit"}
	_, err := newTestFinder(t, map[string]*fakeCard{"/dev/dri/card0": bar}).Open()
	require.Error(t, err)

	n := len(bar.calls)
	require.GreaterOrEqual(t, n, 3)
	assert.Equal(t, []string{"destroy_blob", "rmfb", "destroy_dumb", "close"}, bar.calls[n-4:])
}

func TestOpenKeepsBlobOnSuccess(t *testing.T) {
	bar := &fakeCard{mode: touchBarMode(), connected: true}
	_, err := newTestFinder(t, map[string]*fakeCard{"/dev/dri/card0": bar}).Open()
	require.NoError(t, err)
	assert.NotContains(t, bar.calls, "destroy_blob")
}

func openFake(t *testing.T) (*Display, *fakeCard) {
	t.Helper()
	bar := &fakeCard{mode: touchBarMode(), connected: true}
	d, err := newTestFinder(t, map[string]*fakeCard{"/dev/dri/card0": bar}).Open()
	require.NoError(t, err)
	bar.calls = nil
	return d, bar
}

func TestMarkDirtyPassesClips(t *testing.T) {
	d, bar := openFake(t)

	err := d.MarkDirty([]image.Rectangle{
		image.Rect(0, 10, 60, 200),
		image.Rect(0, 1990, 80, 2100), // clipped to the buffer
		image.Rect(0, 0, 0, 0),        // empty, dropped
	})
	require.NoError(t, err)
	require.Len(t, bar.clips, 1)
	assert.Equal(t, []drmClipRect{
		{X1: 0, Y1: 10, X2: 60, Y2: 200},
		{X1: 0, Y1: 1990, X2: 64, Y2: 2008},
	}, bar.clips[0])
}

func TestMapIsCached(t *testing.T) {
	d, bar := openFake(t)

	a, err := d.Map()
	require.NoError(t, err)
	b, err := d.Map()
	require.NoError(t, err)
	assert.Equal(t, len(a), len(b))
	assert.Equal(t, 64*2008*4, len(a))
	assert.Equal(t, []string{"map"}, bar.calls)
}

func TestCloseOrderAndIdempotence(t *testing.T) {
	d, bar := openFake(t)
	_, err := d.Map()
	require.NoError(t, err)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Equal(t, []string{"map", "unmap", "rmfb", "destroy_dumb", "close"}, bar.calls)

	_, err = d.Map()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, d.MarkDirty([]image.Rectangle{image.Rect(0, 0, 1, 1)}), ErrClosed)
}

func TestCloseContinuesAfterFailure(t *testing.T) {
	d, bar := openFake(t)
	bar.failAt = "rmfb"

	err := d.Close()
	require.Error(t, err)
	assert.Equal(t, []string{"rmfb", "destroy_dumb", "close"}, bar.calls)
}
