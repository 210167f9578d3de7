package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"obd-backend/internal/database"
	"obd-backend/internal/ingest"
	"obd-backend/internal/models"
	"obd-backend/pkg/config"
)

const userID = "0b6c3f0e-8d0e-4b55-9a51-0c8f8d3e2a11"

var fixedNow = time.Date(2025, time.June, 15, 13, 45, 0, 0, time.UTC)

type fakeStore struct {
	countsErr error
	lastErr   error
	spansErr  error

	inFlight atomic.Int32
	peak     atomic.Int32
	since    time.Time
	mu       sync.Mutex
}

// enter holds each query briefly so concurrent calls overlap
func (f *fakeStore) enter() func() {
	n := f.inFlight.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeStore) FaultCounts(_ context.Context, _ string, since time.Time) ([]models.FaultCount, error) {
	defer f.enter()()
	f.mu.Lock()
	f.since = since
	f.mu.Unlock()
	if f.countsErr != nil {
		return []models.FaultCount{{Fault: "partial", Count: 1}}, f.countsErr
	}
	return []models.FaultCount{{Fault: models.FaultOverheating, Count: 7}}, nil
}

func (f *fakeStore) FaultLastSeen(context.Context, string) ([]models.FaultLastSeen, error) {
	defer f.enter()()
	if f.lastErr != nil {
		return nil, f.lastErr
	}
	return []models.FaultLastSeen{{Fault: models.FaultOverheating, LastSeen: fixedNow.Add(-time.Hour)}}, nil
}

func (f *fakeStore) FaultSpans(context.Context, string) ([]models.FaultSpan, error) {
	defer f.enter()()
	if f.spansErr != nil {
		return nil, f.spansErr
	}
	return []models.FaultSpan{{Fault: models.FaultOverheating, FirstSeen: fixedNow.AddDate(0, -1, 0), LastSeen: fixedNow}}, nil
}

type fakeResponder struct {
	prompt string
	answer string
}

func (r *fakeResponder) Respond(_ context.Context, prompt string) string {
	r.prompt = prompt
	return r.answer
}

type fakeSink struct {
	events []*models.DiagnosticsEvent
}

func (s *fakeSink) Enqueue(ev *models.DiagnosticsEvent) bool {
	s.events = append(s.events, ev)
	return true
}

func newService(store FaultStore, responder Responder, sink EventSink) *DiagnosticsService {
	s := NewDiagnosticsService(store, responder, sink, zap.NewNop())
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestChat(t *testing.T) {
	store := &fakeStore{}
	responder := &fakeResponder{answer: "\n  Check the radiator.  \n"}
	sink := &fakeSink{}

	got, err := newService(store, responder, sink).Chat(context.Background(), userID, "What faults since 2024 and how to fix?")
	require.NoError(t, err)

	assert.Equal(t, "Check the radiator.", got)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), store.since)
	assert.EqualValues(t, 3, store.peak.Load(), "queries run concurrently")

	assert.Contains(t, responder.prompt, "- Overheating: 7 times")
	assert.Contains(t, responder.prompt, "📅 Fault Duration:")
	assert.Contains(t, responder.prompt, "🔧 Suggested Checks/Replacements:")

	require.Len(t, sink.events, 1)
	assert.Equal(t, userID, sink.events[0].UserID)
	assert.Equal(t, "Check the radiator.", sink.events[0].Response)
}

func TestChatDefaultsToAllHistory(t *testing.T) {
	store := &fakeStore{}
	_, err := newService(store, &fakeResponder{}, nil).Chat(context.Background(), userID, "any faults?")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC), store.since)
}

func TestChatQueryFailuresDegrade(t *testing.T) {
	boom := errors.New("connection refused")
	store := &fakeStore{countsErr: boom, lastErr: boom}
	responder := &fakeResponder{answer: "ok"}

	got, err := newService(store, responder, nil).Chat(context.Background(), userID, "any faults? when did it last occur?")
	require.NoError(t, err)

	assert.Equal(t, "ok", got)
	assert.Contains(t, responder.prompt, "No faults detected in the selected period.")
	assert.NotContains(t, responder.prompt, "partial")
	assert.NotContains(t, responder.prompt, "Last Occurrences")
}

func TestChatRejectsInvalidUserID(t *testing.T) {
	responder := &fakeResponder{}
	_, err := newService(&fakeStore{}, responder, nil).Chat(context.Background(), "nope", "faults?")

	assert.ErrorIs(t, err, database.ErrInvalidUserID)
	assert.Empty(t, responder.prompt)
}

func TestReport(t *testing.T) {
	store := &fakeStore{}
	responder := &fakeResponder{answer: "  report  "}

	got, err := newService(store, responder, nil).Report(context.Background(), userID, "how is my car")
	require.NoError(t, err)

	assert.Equal(t, "  report  ", got)
	assert.Equal(t, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), store.since)
	assert.Contains(t, responder.prompt, "`timestamp >= '2025-06-01 00:00:00'`")
	assert.Contains(t, responder.prompt, "**Fault Time Periods:**")
}

type fakeWriter struct {
	mu       sync.Mutex
	batches  [][]models.LabeledRow
	calls    int
	failures int
	uploads  []models.UploadRow
}

func (w *fakeWriter) InsertTelemetry(_ context.Context, rows []models.LabeledRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.failures > 0 {
		w.failures--
		return errors.New("temporary")
	}
	w.batches = append(w.batches, append([]models.LabeledRow(nil), rows...))
	return nil
}

func (w *fakeWriter) InsertUploadRows(_ context.Context, rows []models.UploadRow) error {
	w.uploads = append(w.uploads, rows...)
	return nil
}

func (w *fakeWriter) sizes() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []int
	for _, b := range w.batches {
		out = append(out, len(b))
	}
	return out
}

func TestIngestBatchesBySize(t *testing.T) {
	w := &fakeWriter{failures: 1}
	s := NewIngestService(w, config.IngestConfig{BatchSize: 3, FlushInterval: time.Hour, QueueSize: 10}, zap.NewNop())

	for i := 0; i < 7; i++ {
		s.TelemetryChan <- &models.TelemetryRow{UserID: userID, CoolantTemperature: float64(i)}
	}
	close(s.TelemetryChan)

	s.Run(context.Background())

	// the first batch fails once and is dropped without a second attempt
	assert.Equal(t, 3, w.calls)
	assert.Equal(t, []int{3, 1}, w.sizes())
	assert.Equal(t, models.SourceClean, w.batches[0][0].Source)
	assert.Equal(t, 3.0, w.batches[0][0].CoolantTemperature)
	assert.Equal(t, 6.0, w.batches[1][0].CoolantTemperature)
}

func TestIngestFailedBatchIsNotRetried(t *testing.T) {
	w := &fakeWriter{failures: 100}
	s := NewIngestService(w, config.IngestConfig{BatchSize: 2, FlushInterval: time.Hour, QueueSize: 10}, zap.NewNop())

	s.TelemetryChan <- &models.TelemetryRow{UserID: userID}
	s.TelemetryChan <- &models.TelemetryRow{UserID: userID}
	close(s.TelemetryChan)

	s.Run(context.Background())

	assert.Equal(t, 1, w.calls)
	assert.Empty(t, w.sizes())
}

func TestIngestFlushesOnInterval(t *testing.T) {
	w := &fakeWriter{}
	s := NewIngestService(w, config.IngestConfig{BatchSize: 100, FlushInterval: 10 * time.Millisecond, QueueSize: 10}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	s.TelemetryChan <- &models.TelemetryRow{UserID: userID}
	require.Eventually(t, func() bool { return len(w.sizes()) == 1 }, time.Second, 5*time.Millisecond)

	s.TelemetryChan <- &models.TelemetryRow{UserID: userID}
	s.TelemetryChan <- &models.TelemetryRow{UserID: userID}
	cancel()
	<-done

	total := 0
	for _, n := range w.sizes() {
		total += n
	}
	assert.Equal(t, 3, total)
}

func TestUpload(t *testing.T) {
	w := &fakeWriter{}
	s := NewUploadService(w, config.DefaultUploadUserID, nil, zap.NewNop())

	cols := make([]string, 28)
	for i := range cols {
		cols[i] = "v"
	}
	cols[27] = "2024-02-03"
	csv := "header\n" + strings.Join(cols, ",") + "\nshort,row\n"

	res, err := s.Upload(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 1, res.Dropped)
	require.Len(t, w.uploads, 1)
	assert.Equal(t, config.DefaultUploadUserID, w.uploads[0].UserID)
	assert.Equal(t, time.Date(2024, time.February, 3, 0, 0, 0, 0, time.UTC), w.uploads[0].Timestamp)

	// a header naming no channels leaves the telemetry table untouched
	assert.Zero(t, w.calls)
	assert.NotEmpty(t, res.Unmapped)
}

func TestUploadReachesTelemetryTable(t *testing.T) {
	w := &fakeWriter{}
	columns := ingest.ColumnMap{}
	for i, column := range models.ChannelColumns {
		columns[column] = i
	}
	s := NewUploadService(w, config.DefaultUploadUserID, columns, zap.NewNop())

	cols := make([]string, 28)
	for i := range cols {
		cols[i] = "1"
	}
	cols[5] = "130" // coolant_temperature
	cols[8] = "12"  // control_module_voltage
	cols[27] = "4/1/2024"
	csv := "header\n" + strings.Join(cols, ",") + "\n"

	res, err := s.Upload(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)
	assert.Empty(t, res.Unmapped)

	require.Len(t, w.uploads, 1)
	require.Len(t, w.batches, 1)
	require.Len(t, w.batches[0], 1)

	row := w.batches[0][0]
	assert.Equal(t, config.DefaultUploadUserID, row.UserID)
	assert.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), row.Timestamp)
	assert.Equal(t, 130.0, row.CoolantTemperature)
	assert.Equal(t, 12.0, row.ControlModuleVoltage)
	assert.Equal(t, models.SourceClean, row.Source)
	assert.False(t, row.IsSynthetic)
	assert.Nil(t, row.InjectedFault)
}
