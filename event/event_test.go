package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeInvoker struct {
	calls int
	disp  Disposition
}

func (f *fakeInvoker) InvokeGPEMethod(blockName string, gpeNumber int) (Disposition, error) {
	f.calls++
	return f.disp, nil
}

func TestEdgeTriggeredGPEReenablesAfterTrigger(t *testing.T) {
	b := NewBlock("GPE0")
	b.Register(1, TriggerEdge)
	require.NoError(t, b.Enable(1, false))

	inv := &fakeInvoker{disp: DispositionLeaveDisabled}
	require.NoError(t, b.Trigger(1, inv))

	require.Equal(t, 1, inv.calls)
	require.Equal(t, GPEEnabledRuntime, b.gpes[1].State)
}

func TestLevelTriggeredGPEStaysDisabledWithoutReenableDisposition(t *testing.T) {
	b := NewBlock("GPE0")
	b.Register(2, TriggerLevel)
	require.NoError(t, b.Enable(2, false))

	inv := &fakeInvoker{disp: DispositionLeaveDisabled}
	require.NoError(t, b.Trigger(2, inv))

	require.Equal(t, GPEDisabled, b.gpes[2].State)
}

func TestDisabledGPEDoesNotDispatch(t *testing.T) {
	b := NewBlock("GPE0")
	b.Register(3, TriggerEdge)

	inv := &fakeInvoker{disp: DispositionReenable}
	require.NoError(t, b.Trigger(3, inv))
	require.Equal(t, 0, inv.calls)
}

func TestSnapshotReportsRegisteredGPEsInOrder(t *testing.T) {
	b := NewBlock("GPE0")
	b.Register(2, TriggerLevel)
	b.Register(0, TriggerEdge)
	require.NoError(t, b.Enable(0, false))
	b.Mask(2)

	snap := b.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, 0, snap[0].Number)
	require.Equal(t, GPEEnabledRuntime, snap[0].State)
	require.Equal(t, 2, snap[1].Number)
	require.True(t, snap[1].Masked)
}

func TestNotifyPreservesPerTargetFIFOOrder(t *testing.T) {
	d := NewNotifyDispatcher()
	defer d.Close()

	var mu sync.Mutex
	var got []uint32
	done := make(chan struct{})

	d.InstallHandler("\\_SB.PCI0", func(path string, value uint32) {
		mu.Lock()
		got = append(got, value)
		if len(got) == 3 {
			close(done)
		}
		mu.Unlock()
	})

	d.Notify("\\_SB.PCI0", 1)
	d.Notify("\\_SB.PCI0", 2)
	d.Notify("\\_SB.PCI0", 3)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notify delivery")
	}

	require.Equal(t, []uint32{1, 2, 3}, got)
}

func TestImplicitNotifyFallsBackWhenNoAMLHandler(t *testing.T) {
	d := NewNotifyDispatcher()
	defer d.Close()

	delivered := make(chan uint32, 1)
	d.InstallHandler("\\_SB.LID0", func(path string, value uint32) { delivered <- value })

	impl := &ImplicitNotify{
		Dispatcher: d,
		DeviceForGPE: func(blockName string, gpeNumber int) (string, uint32, bool) {
			return "\\_SB.LID0", 0x80, true
		},
	}

	b := NewBlock("GPE0")
	b.Register(5, TriggerEdge)
	require.NoError(t, b.Enable(5, false))
	require.NoError(t, b.Trigger(5, impl))

	select {
	case v := <-delivered:
		require.Equal(t, uint32(0x80), v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for implicit notify")
	}
}
