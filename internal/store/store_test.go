package store

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bidkeeper/internal/auction"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// webhook fakes the spreadsheet endpoint, recording every payload
type webhook struct {
	t        *testing.T
	requests []map[string]any
	answers  map[string]string
	failures int
}

func (w *webhook) handler(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	require.NoError(w.t, err)
	payload := map[string]any{}
	require.NoError(w.t, json.Unmarshal(body, &payload))
	w.requests = append(w.requests, payload)

	if w.failures > 0 {
		w.failures--
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	action, _ := payload["action"].(string)
	answer, ok := w.answers[action]
	if !ok {
		answer = "{}"
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.Write([]byte(answer))
}

func newTestClient(t *testing.T, hook *webhook) *Client {
	t.Helper()
	hook.t = t
	server := httptest.NewServer(http.HandlerFunc(hook.handler))
	t.Cleanup(server.Close)
	return NewClient(server.URL, 0)
}

func TestGetMemberBalances(t *testing.T) {
	hook := &webhook{answers: map[string]string{
		ACTION_GET_POINTS: `{"points":{"Alice":500,"Bob":300}}`,
	}}
	client := newTestClient(t, hook)

	points, err := client.GetMemberBalances()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Alice": 500, "Bob": 300}, points)

	require.Len(t, hook.requests, 1)
	assert.Equal(t, ACTION_GET_POINTS, hook.requests[0]["action"])
}

func TestSubmitTallyPayload(t *testing.T) {
	hook := &webhook{}
	client := newTestClient(t, hook)

	entries := []auction.TallyEntry{
		{Lot: "Dragon Sword", Winner: "Bob", Amount: 200, Timestamp: time.Now()},
	}
	require.NoError(t, client.SubmitTally("08/01/26 20:00", entries))

	require.Len(t, hook.requests, 1)
	payload := hook.requests[0]
	assert.Equal(t, ACTION_SUBMIT_RESULTS, payload["action"])
	assert.Equal(t, "08/01/26 20:00", payload["session"])
	results, ok := payload["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 1)
	first := results[0].(map[string]any)
	assert.Equal(t, "Dragon Sword", first["item"])
	assert.Equal(t, "Bob", first["winner"])
}

func TestSubmitEmptyTallySkipsTheRequest(t *testing.T) {
	hook := &webhook{}
	client := newTestClient(t, hook)

	require.NoError(t, client.SubmitTally("08/01/26 20:00", nil))
	assert.Empty(t, hook.requests)
}

func TestLoadSnapshotWithNoSavedState(t *testing.T) {
	hook := &webhook{answers: map[string]string{
		ACTION_GET_STATE: `{"state":null}`,
	}}
	client := newTestClient(t, hook)

	snapshot, err := client.LoadSnapshot()
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}

func TestSnapshotRoundTrip(t *testing.T) {
	saved := ""
	hook := &webhook{}
	client := newTestClient(t, hook)

	snapshot := auction.Snapshot{
		Active:       true,
		SessionStamp: "08/01/26 20:00",
		Queue:        []auction.LotSpec{{Name: "Phoenix Plume", StartPrice: 50, DurationMin: 5, Quantity: 3}},
		Locks:        map[string]int{"carol": 300},
		SavedAt:      time.Now().UTC(),
	}
	require.NoError(t, client.SaveSnapshot(snapshot))

	require.Len(t, hook.requests, 1)
	state, err := json.Marshal(hook.requests[0]["state"])
	require.NoError(t, err)
	saved = string(state)

	hook.answers = map[string]string{ACTION_GET_STATE: `{"state":` + saved + `}`}
	loaded, err := client.LoadSnapshot()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Active)
	assert.Equal(t, snapshot.Locks, loaded.Locks)
	require.Len(t, loaded.Queue, 1)
	assert.Equal(t, "Phoenix Plume", loaded.Queue[0].Name)
}

func TestTransientFailureGetsOneRetry(t *testing.T) {
	hook := &webhook{
		failures: 1,
		answers:  map[string]string{ACTION_GET_POINTS: `{"points":{}}`},
	}
	client := newTestClient(t, hook)

	_, err := client.GetMemberBalances()
	require.NoError(t, err)
	assert.Len(t, hook.requests, 2)
}

func TestPersistentFailureReportsTheAction(t *testing.T) {
	hook := &webhook{failures: 2}
	client := newTestClient(t, hook)

	_, err := client.GetMemberBalances()
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, ACTION_GET_POINTS, reqErr.Action)
	assert.Equal(t, http.StatusInternalServerError, reqErr.Status)
}
