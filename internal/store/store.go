package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bidkeeper/internal/auction"
	"bidkeeper/internal/common"

	"github.com/rs/zerolog/log"
)

// Actions understood by the spreadsheet webhook
const ACTION_GET_POINTS = "getBiddingPoints"
const ACTION_SUBMIT_RESULTS = "submitBiddingResults"
const ACTION_ADD_ITEMS = "addBiddingItems"
const ACTION_SAVE_STATE = "saveBotState"
const ACTION_GET_STATE = "getBotState"

const REQUEST_TIMEOUT = 10 * time.Second
const RETRY_BACKOFF = 2 * time.Second

// RequestError carries the action and HTTP status of a failed webhook
// call so the chat surface can report something more useful than
// "store error"
type RequestError struct {
	Action string
	Status int
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("store action %s failed with status %d", e.Action, e.Status)
	}
	return fmt.Sprintf("store action %s failed: %s", e.Action, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Client talks to the spreadsheet webhook. Every call goes through a
// shared throttle because the webhook endpoint tolerates only one
// request per second or so before it starts rejecting.
type Client struct {
	url      string
	client   *http.Client
	throttle *common.Throttle
}

func NewClient(url string, minDelay time.Duration) *Client {
	return &Client{
		url:      url,
		client:   &http.Client{Timeout: REQUEST_TIMEOUT},
		throttle: common.NewThrottle(minDelay),
	}
}

// GetMemberBalances fetches the current point totals for every member
func (c *Client) GetMemberBalances() (map[string]int, error) {

	// Request
	data, err := c.request(ACTION_GET_POINTS, map[string]any{})
	if err != nil {
		return nil, err
	}

	// Decode
	var response struct {
		Points map[string]int `json:"points"`
	}
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("could not decode member balances: %w", err)
	}
	log.Debug().Msg(fmt.Sprintf("Fetched balances for %d members", len(response.Points)))
	return response.Points, nil
}

// SubmitTally appends the session's results to the spreadsheet
func (c *Client) SubmitTally(stamp string, entries []auction.TallyEntry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := c.request(ACTION_SUBMIT_RESULTS, map[string]any{
		"session": stamp,
		"results": entries,
	})
	if err != nil {
		return err
	}
	log.Info().Msg(fmt.Sprintf("Submitted %d results for session %s", len(entries), stamp))
	return nil
}

// MoveQueueItems returns unauctioned lots to the spreadsheet's
// pending-items list
func (c *Client) MoveQueueItems(items []auction.LotSpec) error {
	if len(items) == 0 {
		return nil
	}
	_, err := c.request(ACTION_ADD_ITEMS, map[string]any{"items": items})
	if err != nil {
		return err
	}
	log.Info().Msg(fmt.Sprintf("Returned %d lots to the store", len(items)))
	return nil
}

// SaveSnapshot overwrites the persisted session state
func (c *Client) SaveSnapshot(snapshot auction.Snapshot) error {
	_, err := c.request(ACTION_SAVE_STATE, map[string]any{"state": snapshot})
	return err
}

// LoadSnapshot fetches the persisted session state. A webhook that has
// never saved anything answers with a null state; that is not an error.
func (c *Client) LoadSnapshot() (*auction.Snapshot, error) {

	// Request
	data, err := c.request(ACTION_GET_STATE, map[string]any{})
	if err != nil {
		return nil, err
	}

	// Decode
	var response struct {
		State *auction.Snapshot `json:"state"`
	}
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("could not decode persisted state: %w", err)
	}
	return response.State, nil
}

// request POSTs one action to the webhook and returns the raw body.
// Transient failures get a single retry after a short backoff.
func (c *Client) request(action string, payload map[string]any) ([]byte, error) {

	payload["action"] = action
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("could not encode payload for %s: %w", action, err)
	}

	data, err := c.post(action, body)
	if err == nil {
		return data, nil
	}
	log.Warn().Msg(fmt.Sprintf("Store action %s failed, retrying: %s", action, err))
	time.Sleep(RETRY_BACKOFF)
	return c.post(action, body)
}

func (c *Client) post(action string, body []byte) ([]byte, error) {

	c.throttle.Wait()

	resp, err := c.client.Post(c.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, &RequestError{Action: action, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &RequestError{Action: action, Status: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Action: action, Err: err}
	}
	return data, nil
}
