package debugreporter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeLogger struct {
	debugs []string
}

func (l *fakeLogger) Debug(msg string, args ...any) { l.debugs = append(l.debugs, msg) }
func (l *fakeLogger) Info(msg string, args ...any)  {}
func (l *fakeLogger) Warn(msg string, args ...any)  {}
func (l *fakeLogger) Error(msg string, args ...any) {}

func TestReporter_DisabledIsNoOp(t *testing.T) {
	log := &fakeLogger{}
	r := New(false, log)
	r.Trigger(Snapshot{})
	for i := 0; i < 5; i++ {
		r.Step()
	}
	assert.Empty(t, log.debugs)
}

func TestReporter_TriggerSuppressedMidCycle(t *testing.T) {
	log := &fakeLogger{}
	r := New(true, log)

	r.Trigger(Snapshot{Bias: [3]float64{1, 2, 3}})
	assert.True(t, r.pending)

	r.Step() // idle -> print_offset
	assert.Equal(t, statePrintOffset, r.state)

	// mid-cycle trigger must be dropped, not overwrite the snapshot.
	r.Trigger(Snapshot{Bias: [3]float64{9, 9, 9}})
	assert.Equal(t, [3]float64{1, 2, 3}, r.snapshot.Bias)
}

func TestReporter_FullCycleReturnsToIdle(t *testing.T) {
	if testing.Short() {
		t.Skip("exercises the real 300ms wait gate")
	}
	log := &fakeLogger{}
	r := New(true, log)
	r.Trigger(Snapshot{Bias: [3]float64{0.01, 0.02, 0.03}, StillnessConfidence: 0.9})

	require := assert.New(t)

	r.Step() // idle -> print_offset
	require.Equal(statePrintOffset, r.state)

	r.Step() // print_offset -> wait (logs offset, registers the wait gate)
	require.Equal(stateWaitAfterOffset, r.state)
	require.Len(log.debugs, 1)

	// the gate was just registered by the print above, so an immediate
	// Step must NOT advance past it.
	r.Step()
	require.Equal(stateWaitAfterOffset, r.state)

	time.Sleep(320 * time.Millisecond)
	r.Step() // wait -> print_stillness
	require.Equal(statePrintStillness, r.state)

	r.Step() // print_stillness -> wait (logs stillness, registers the gate again)
	require.Equal(stateWaitAfterStillness, r.state)
	require.Len(log.debugs, 2)

	r.Step()
	require.Equal(stateWaitAfterStillness, r.state)

	time.Sleep(320 * time.Millisecond)
	r.Step() // wait -> idle
	require.Equal(stateIdle, r.state)
}
