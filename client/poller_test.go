package client_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/flashbots/mpcauction/client"
	"github.com/flashbots/mpcauction/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerTracksParties(t *testing.T) {
	cluster := testutil.StartCluster(t)

	var mu sync.Mutex
	changes := make(map[string]client.PartyStatus)
	poller := cluster.Client.NewPoller(20*time.Millisecond, func(party string, status client.PartyStatus) {
		mu.Lock()
		defer mu.Unlock()
		changes[party] = status
	})

	for _, status := range poller.Statuses() {
		assert.Equal(t, client.StatusChecking, status)
	}

	poller.Start(context.Background())
	defer poller.Stop()

	require.Eventually(t, func() bool {
		for _, status := range poller.Statuses() {
			if status != client.StatusOnline {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cluster.Servers[1].Close()
	require.Eventually(t, func() bool {
		return poller.Statuses()[cluster.URLs[1]] == client.StatusOffline
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, client.StatusOffline, changes[cluster.URLs[1]])
	mu.Unlock()
	assert.Equal(t, client.StatusOnline, poller.Statuses()[cluster.URLs[0]])
}

func TestPollerPause(t *testing.T) {
	cluster := testutil.StartCluster(t, testutil.Unseeded())
	poller := cluster.Client.NewPoller(time.Hour, nil)

	poller.Pause()
	assert.False(t, poller.CheckNow(context.Background()))
	assert.Equal(t, client.StatusChecking, poller.Statuses()[cluster.URLs[0]])

	poller.Resume()
	assert.True(t, poller.CheckNow(context.Background()))
	assert.Equal(t, client.StatusOnline, poller.Statuses()[cluster.URLs[0]])
}

func TestPollerStopIsIdempotent(t *testing.T) {
	cluster := testutil.StartCluster(t, testutil.Unseeded())
	poller := cluster.Client.NewPoller(10*time.Millisecond, nil)

	poller.Stop()
	poller.Start(context.Background())
	poller.Start(context.Background())
	poller.Stop()
	poller.Stop()
}
