package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/deedharvest/api/schemas"
	"github.com/xkilldash9x/deedharvest/internal/scrape"
)

type fakeStatusStore struct {
	run      *schemas.Run
	statuses []schemas.StatusEvent
	cleared  bool
	err      error
}

func (f *fakeStatusStore) LatestRun(context.Context) (*schemas.Run, error) { return f.run, f.err }

func (f *fakeStatusStore) Statuses(_ context.Context, runID string) ([]schemas.StatusEvent, error) {
	return f.statuses, f.err
}

func (f *fakeStatusStore) ClearStatuses(context.Context) error {
	f.cleared = true
	return f.err
}

type fakeSlot struct {
	runID string
	value string
	ttl   time.Duration
	err   error
}

func (f *fakeSlot) Put(_ context.Context, runID, value string, ttl time.Duration) error {
	f.runID, f.value, f.ttl = runID, value, ttl
	return f.err
}

type fakeRunner struct {
	inputs  chan scrape.Inputs
	release chan struct{}
	result  schemas.RunResult
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		inputs:  make(chan scrape.Inputs, 1),
		release: make(chan struct{}),
		result:  schemas.RunResult{Outcome: schemas.OutcomeSuccess, Message: "done"},
	}
}

func (f *fakeRunner) Run(_ context.Context, in scrape.Inputs) schemas.RunResult {
	f.inputs <- in
	<-f.release
	return f.result
}

type fakeExporter struct {
	payload string
	err     error
}

func (f *fakeExporter) WriteTo(_ context.Context, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, f.payload)
	return err
}

type fixture struct {
	srv      *Server
	store    *fakeStatusStore
	slot     *fakeSlot
	runner   *fakeRunner
	exporter *fakeExporter
	router   http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    &fakeStatusStore{},
		slot:     &fakeSlot{},
		runner:   newFakeRunner(),
		exporter: &fakeExporter{payload: "workbook-bytes"},
	}
	f.srv = New(zaptest.NewLogger(t), f.store, f.slot, f.runner, f.exporter, 5*time.Minute)
	f.router = f.srv.Router()
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestGetStatusNoRuns(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Run      *schemas.Run          `json:"run"`
		Statuses []schemas.StatusEvent `json:"statuses"`
		Active   bool                  `json:"active"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.Run)
	assert.Empty(t, resp.Statuses)
	assert.False(t, resp.Active)
}

func TestGetStatusLatestRun(t *testing.T) {
	f := newFixture(t)
	f.store.run = &schemas.Run{ID: "run-9", StartedAt: time.Now()}
	f.store.statuses = []schemas.StatusEvent{
		{ID: 1, RunID: "run-9", Message: "Filling Username And Password To login"},
		{ID: 2, RunID: "run-9", Message: "Please solve CAPTCHA #1 in the UI", Image: []byte{1, 2}},
	}

	w := f.do(http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Run)
	assert.Equal(t, "run-9", resp.Run.ID)
	require.Len(t, resp.Statuses, 2)
	assert.Equal(t, []byte{1, 2}, resp.Statuses[1].Image)
}

func TestPostCaptchaStoresValueForLatestRun(t *testing.T) {
	f := newFixture(t)
	f.store.run = &schemas.Run{ID: "run-3"}

	w := f.do(http.MethodPost, "/captcha", `{"captcha_value":" AB12 "}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "run-3", f.slot.runID)
	assert.Equal(t, "AB12", f.slot.value)
	assert.Equal(t, 5*time.Minute, f.slot.ttl)
}

func TestPostCaptchaEmptyValue(t *testing.T) {
	f := newFixture(t)
	f.store.run = &schemas.Run{ID: "run-3"}

	w := f.do(http.MethodPost, "/captcha", `{"captcha_value":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.slot.value)
}

func TestPostCaptchaWithoutRun(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/captcha", `{"captcha_value":"AB12"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPostScrapeLaunchesRun(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/scrape", `{
		"username":"operator","password":"secret","district":"Bhopal",
		"deed_type":"Sale Deed","date_from":"2023-01-01","date_to":"2023-01-31"
	}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	select {
	case in := <-f.runner.inputs:
		assert.Equal(t, "operator", in.Username)
		assert.Equal(t, "Bhopal", in.District)
		assert.Equal(t, "2023-01-01", in.DateFrom)
	case <-time.After(time.Second):
		t.Fatal("runner was never invoked")
	}
	close(f.runner.release)
}

func TestPostScrapeRejectsBadDateBeforeLaunching(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/scrape", `{
		"username":"operator","password":"secret","district":"Bhopal",
		"deed_type":"Sale Deed","date_from":"01/01/2023","date_to":"2023-01-31"
	}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid date format. Expected YYYY-MM-DD.")
	assert.Empty(t, f.runner.inputs)
}

func TestPostScrapeOneRunAtATime(t *testing.T) {
	f := newFixture(t)
	body := `{
		"username":"operator","password":"secret","district":"Bhopal",
		"deed_type":"Sale Deed","date_from":"2023-01-01","date_to":"2023-01-31"
	}`

	first := f.do(http.MethodPost, "/scrape", body)
	require.Equal(t, http.StatusAccepted, first.Code)
	<-f.runner.inputs // first run is now in flight

	second := f.do(http.MethodPost, "/scrape", body)
	assert.Equal(t, http.StatusConflict, second.Code)

	close(f.runner.release)

	// The guard clears once the run finishes.
	require.Eventually(t, func() bool {
		w := f.do(http.MethodPost, "/scrape", body)
		if w.Code == http.StatusAccepted {
			<-f.runner.inputs
			return true
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestGetExport(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "workbook-bytes", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "scraped_data.xlsx")
	assert.Contains(t, w.Header().Get("Content-Type"), "spreadsheetml")
}

func TestPostClearLogs(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/clear-logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.store.cleared)
	assert.Contains(t, w.Body.String(), "Logs cleared")
}

func TestPostClearLogsFailure(t *testing.T) {
	f := newFixture(t)
	f.store.err = errors.New("db down")

	w := f.do(http.MethodPost, "/clear-logs", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
