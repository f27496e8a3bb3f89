package queue

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastReachesSubscriber(t *testing.T) {
	hub := NewHub(nil)
	providerID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Subscribe(w, r, providerID)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	// Registration happens on the server goroutine; wait for it.
	require.Eventually(t, func() bool {
		return hub.SubscriberCount(providerID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(providerID, Snapshot{
		ProviderID: providerID.String(),
		Date:       "2026-03-09",
		Waiting:    2,
		Entries: []SnapshotEntry{
			{BookingID: uuid.NewString(), PatientName: "Amara Eze", Reason: "checkup", Position: 2, Status: "waiting", EstimatedWaitMinutes: 0},
			{BookingID: uuid.NewString(), PatientName: "Chidi Anagonye", Position: 3, Status: "waiting", EstimatedWaitMinutes: 15},
		},
	})

	var snap Snapshot
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, 2, snap.Waiting)
	assert.Len(t, snap.Entries, 2)
	assert.False(t, snap.SentAt.IsZero())
}

func TestHubRemovesClosedSubscribers(t *testing.T) {
	hub := NewHub(nil)
	providerID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Subscribe(w, r, providerID)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool {
		return hub.SubscriberCount(providerID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return hub.SubscriberCount(providerID) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
