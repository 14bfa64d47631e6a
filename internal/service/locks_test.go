package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	k := newKeyedMutex()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("u1")
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, k.size(), "released keys are forgotten")
}

func TestKeyedMutex_KeysAreIndependent(t *testing.T) {
	k := newKeyedMutex()

	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.size())

	unlockA()
	assert.Equal(t, 1, k.size())
	unlockB()
	assert.Zero(t, k.size())
}

func TestEngineReleasesUserLocks(t *testing.T) {
	ctx := context.Background()
	m, e := newTestSessionManager(nil)
	initialize(t, e, risingSignDeclaration("u1"), risingSignDeclaration("u2"))

	s, err := m.CreateSession(ctx, "u1")
	require.NoError(t, err)
	probe, err := m.GetNextProbe(ctx, s.SessionID)
	require.NoError(t, err)
	require.NotNil(t, probe)
	_, err = m.ProcessResponse(ctx, s.SessionID, choose(probe.ID, 0))
	require.NoError(t, err)
	e.CheckConfirmations(ctx, "u2")

	assert.Zero(t, e.locks.size())
	assert.Zero(t, m.locks.size())
}
