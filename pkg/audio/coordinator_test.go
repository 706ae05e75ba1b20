package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestInputGrantedWhenIdle(t *testing.T) {
	c := NewCoordinator("test")
	require.NoError(t, c.RequestInput())
	assert.Equal(t, Listening, c.State())
}

func TestRequestInputDeniedWhileSpeaking(t *testing.T) {
	c := NewCoordinator("test")
	c.RequestOutput()
	assert.ErrorIs(t, c.RequestInput(), ErrDeviceBusy)
}

func TestRequestOutputPreemptsListening(t *testing.T) {
	c := NewCoordinator("test")
	require.NoError(t, c.RequestInput())
	c.RequestOutput()
	assert.Equal(t, Speaking, c.State())
}

func TestReleaseReturnsToIdle(t *testing.T) {
	c := NewCoordinator("test")
	c.RequestOutput()
	c.Release()
	assert.Equal(t, Idle, c.State())
	assert.False(t, c.IsBusy())
}

func TestWaitUntilIdleUnblocksOnRelease(t *testing.T) {
	c := NewCoordinator("test")
	c.RequestOutput()

	done := make(chan bool, 1)
	go func() {
		done <- c.WaitUntilIdle(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	c.Release()

	select {
	case ok := <-done:
		assert.True(t, ok, "expected WaitUntilIdle to report true after Release")
	case <-time.After(time.Second):
		t.Fatal("WaitUntilIdle did not unblock after Release")
	}
}

func TestWaitUntilIdleTimesOut(t *testing.T) {
	c := NewCoordinator("test")
	c.RequestOutput()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.False(t, c.WaitUntilIdle(ctx), "expected WaitUntilIdle to time out while device stays Speaking")
}

func TestEchoSuppressorDetectsRecentlyPlayedAudio(t *testing.T) {
	es := NewEchoSuppressor()
	chunk := make([]byte, 4410*2)
	for i := range chunk {
		if i%2 == 0 {
			chunk[i] = 0x10
		}
	}

	es.RecordPlayedAudio(chunk)
	assert.True(t, es.IsEcho(chunk), "expected identical chunk shortly after playback to register as echo")
}

func TestEchoSuppressorIgnoresAfterSilenceWindow(t *testing.T) {
	es := NewEchoSuppressor()
	es.echoSilenceMS = 5
	chunk := make([]byte, 100)
	for i := range chunk {
		chunk[i] = byte(i)
	}

	es.RecordPlayedAudio(chunk)
	time.Sleep(10 * time.Millisecond)

	assert.False(t, es.IsEcho(chunk), "expected no echo once outside the silence window")
}

func TestEchoSuppressorDisabledNeverDetects(t *testing.T) {
	es := NewEchoSuppressor()
	chunk := []byte{1, 2, 3, 4}
	es.RecordPlayedAudio(chunk)
	es.SetEnabled(false)

	assert.False(t, es.IsEcho(chunk), "expected disabled suppressor to never report echo")
}
