package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SingleActiveSession(t *testing.T) {
	release := make(chan struct{})
	m := NewManager(func(ctx context.Context, prompt, workDir string) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})

	first, err := m.Start(context.Background(), "prompt one", "/w", nil)
	require.NoError(t, err)
	assert.Equal(t, StateActive, first.State)

	_, err = m.Start(context.Background(), "prompt two", "/w", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), first.ID)

	close(release)
}

func TestManager_CompletesAfterRun(t *testing.T) {
	done := make(chan *Session, 1)
	m := NewManager(func(ctx context.Context, prompt, workDir string) error {
		return nil
	})

	s, err := m.Start(context.Background(), "quick", "/w", func(s *Session) { done <- s })
	require.NoError(t, err)

	select {
	case ended := <-done:
		assert.Equal(t, s.ID, ended.ID)
		assert.Equal(t, StateCompleted, m.Current().State)
	case <-time.After(time.Second):
		t.Fatal("session never completed")
	}

	// A new session can start once the previous one finished.
	_, err = m.Start(context.Background(), "next", "/w", nil)
	assert.NoError(t, err)
}

func TestManager_Abort(t *testing.T) {
	done := make(chan *Session, 1)
	m := NewManager(func(ctx context.Context, prompt, workDir string) error {
		<-ctx.Done()
		return ctx.Err()
	})

	_, err := m.Start(context.Background(), "long running", "/w", func(s *Session) { done <- s })
	require.NoError(t, err)

	require.True(t, m.Abort())

	select {
	case <-done:
		assert.Equal(t, StateAborted, m.Current().State)
	case <-time.After(time.Second):
		t.Fatal("aborted session never ended")
	}

	assert.False(t, m.Abort(), "nothing active to abort")
}

func TestManager_CurrentIsNilBeforeFirstStart(t *testing.T) {
	m := NewManager(func(ctx context.Context, prompt, workDir string) error { return nil })
	assert.Nil(t, m.Current())
}
