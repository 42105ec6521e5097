package resource

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNative struct {
	pre, post, disposed int
	failPost            error
}

func (f *fakeNative) Dispose()  { f.disposed++ }
func (f *fakeNative) PreReset() { f.pre++ }
func (f *fakeNative) PostReset() error {
	f.post++
	return f.failPost
}

func TestHandlePublishNotifiesEachSubscriberOnce(t *testing.T) {
	ph := NewPlaceholder(32, 32, nil)
	h := NewHandle(2, "a.png", Whole, ph)

	var calls1, calls2 int
	var last *Descriptor
	h.Subscribe(func(d *Descriptor) { calls1++; last = d })
	h.Subscribe(func(*Descriptor) { calls2++ })

	d := NewWhole(64, 16, nil)
	h.Publish(d)

	assert.Equal(t, 1, calls1)
	assert.Equal(t, 1, calls2)
	assert.Same(t, d, last)
	assert.Same(t, d, h.Descriptor())
	assert.Equal(t, 2, d.ID())
	assert.Equal(t, 64, h.Width())
	assert.Equal(t, 16, h.Height())

	h.Notify()
	assert.Equal(t, 2, calls1)
	assert.Equal(t, 2, calls2)
}

func TestHandleUnsubscribe(t *testing.T) {
	h := NewHandle(1, "x", Whole, NewWhole(1, 1, nil))
	calls := 0
	cancel := h.Subscribe(func(*Descriptor) { calls++ })
	assert.Equal(t, 1, h.Subscribers())

	cancel()
	cancel()
	assert.Equal(t, 0, h.Subscribers())

	h.Publish(NewWhole(2, 2, nil))
	assert.Equal(t, 0, calls)
}

func TestHandleSubscriberMayUnsubscribeDuringNotify(t *testing.T) {
	h := NewHandle(1, "x", Whole, NewWhole(1, 1, nil))
	calls := 0
	var cancel func()
	cancel = h.Subscribe(func(*Descriptor) {
		calls++
		cancel()
	})
	h.Publish(NewWhole(2, 2, nil))
	h.Publish(NewWhole(3, 3, nil))
	assert.Equal(t, 1, calls)
}

func TestHandleLoaded(t *testing.T) {
	ph := NewPlaceholder(32, 32, nil)
	placeholder := NewHandle(1, "noTexture.png", Whole, ph)
	other := NewHandle(2, "missing.png", Whole, ph)

	assert.True(t, placeholder.Loaded())
	assert.False(t, other.Loaded())
	assert.Equal(t, 1, other.Descriptor().ID())

	other.Publish(NewWhole(8, 8, nil))
	assert.True(t, other.Loaded())
}

func TestNewHandleRequiresDescriptor(t *testing.T) {
	assert.Panics(t, func() { NewHandle(1, "x", Whole, nil) })
}

func TestDescriptorResetStates(t *testing.T) {
	n := &fakeNative{}
	d := NewWhole(4, 4, n)
	assert.Equal(t, Resident, d.State())

	d.PreReset()
	d.PreReset()
	assert.Equal(t, Discarded, d.State())
	assert.Equal(t, 1, n.pre)

	require.NoError(t, d.PostReset())
	require.NoError(t, d.PostReset())
	assert.Equal(t, Resident, d.State())
	assert.Equal(t, 1, n.post)
	assert.Equal(t, Identity, d.Coords())
	assert.Equal(t, 4, d.Width())
}

func TestDescriptorPostResetFailure(t *testing.T) {
	boom := errors.New("boom")
	d := NewWhole(4, 4, &fakeNative{failPost: boom})
	d.PreReset()
	err := d.PostReset()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Recreating, d.State())

	d.native.(*fakeNative).failPost = nil
	require.NoError(t, d.PostReset())
	assert.Equal(t, Resident, d.State())
}

func TestDescriptorDispose(t *testing.T) {
	n := &fakeNative{}
	d := NewWhole(4, 4, n)
	d.Dispose()
	d.Dispose()
	assert.Equal(t, 1, n.disposed)
	assert.Nil(t, d.Native())

	require.NoError(t, d.PostReset())
	assert.Equal(t, Discarded, d.State())
}

func TestDeferredDescriptorWaitsForOwner(t *testing.T) {
	d := NewDeferred(8, 8)
	assert.True(t, d.Deferred())
	assert.Equal(t, Discarded, d.State())
	assert.Nil(t, d.Native())

	// Only the owning cache can give it native state.
	require.NoError(t, d.PostReset())
	assert.Equal(t, Discarded, d.State())

	d.Dispose()
	assert.False(t, d.Deferred())
}

func TestDerivedDescriptor(t *testing.T) {
	backing := NewHandle(1, "sheet.png", Whole, NewWhole(64, 64, nil))
	r := Rect{U0: 0, V0: 0, U1: 0.25, V1: 0.25}
	d := NewDerived(backing, 16, 16, r)
	assert.Equal(t, Derived, d.Kind())
	assert.Same(t, backing, d.Backing())
	assert.Equal(t, r, d.Coords())
	assert.Nil(t, d.Native())

	d.PreReset()
	assert.Equal(t, Discarded, d.State())
	require.NoError(t, d.PostReset())
	assert.Equal(t, Resident, d.State())
}

func TestTableIDsAreDense(t *testing.T) {
	tbl := NewTable[string]()
	names := []string{"a", "b", "c", "d", "e"}
	for _, n := range names {
		_, err := tbl.Register(n, func(id int) string { return n })
		require.NoError(t, err)
	}
	assert.Equal(t, len(names), tbl.Len())

	var ids []int
	for id, v := range tbl.All() {
		ids = append(ids, id)
		got, err := tbl.ByID(id)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, ids)
}

func TestTableDuplicateName(t *testing.T) {
	tbl := NewTable[int]()
	_, err := tbl.Register("a", func(id int) int { return id })
	require.NoError(t, err)
	_, err = tbl.Register("a", func(id int) int { return id })
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.Equal(t, 1, tbl.Len())

	_, err = tbl.Register("b", func(id int) int { return id })
	require.NoError(t, err)
	v, ok := tbl.Lookup("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestTableByIDNotFound(t *testing.T) {
	tbl := NewTable[int]()
	for _, n := range []string{"a", "b", "c"} {
		_, err := tbl.Register(n, func(id int) int { return id })
		require.NoError(t, err)
	}
	_, err := tbl.ByID(5)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = tbl.ByID(0)
	assert.ErrorIs(t, err, ErrNotFound)
}
