package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheresmyjobat/wheresmyjobat/internal/model"
	"github.com/wheresmyjobat/wheresmyjobat/internal/store"
)

type fakeMailbox struct {
	mu        sync.Mutex
	messages  map[string]model.EmailMessage
	order     []string
	processed map[string]struct{}
	listErr   error
	fetchErr  error
	connected bool
	fetchGate chan struct{} // when set, FetchAndDecode blocks until closed
}

func newFakeMailbox(msgs ...model.EmailMessage) *fakeMailbox {
	f := &fakeMailbox{
		messages:  make(map[string]model.EmailMessage),
		processed: make(map[string]struct{}),
		connected: true,
	}
	for _, m := range msgs {
		f.messages[m.ID] = m
		f.order = append(f.order, m.ID)
	}
	return f
}

func (f *fakeMailbox) AuthURL() (string, error) { return "https://auth.example.com", nil }

func (f *fakeMailbox) Authenticate(context.Context, string) (string, error) {
	return "user@example.com", nil
}

func (f *fakeMailbox) IsAuthenticated() bool { return f.connected }

func (f *fakeMailbox) Identity(context.Context) string {
	if !f.connected {
		return ""
	}
	return "user@example.com"
}

func (f *fakeMailbox) ListCandidates(_ context.Context, max int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var ids []string
	for _, id := range f.order {
		if int64(len(ids)) >= max {
			break
		}
		if _, seen := f.processed[id]; !seen {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeMailbox) FetchAndDecode(ctx context.Context, id string) (model.EmailMessage, error) {
	f.mu.Lock()
	f.processed[id] = struct{}{}
	gate := f.fetchGate
	err := f.fetchErr
	msg := f.messages[id]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.EmailMessage{}, ctx.Err()
		}
	}
	if err != nil {
		return model.EmailMessage{}, err
	}
	return msg, nil
}

func (f *fakeMailbox) SeedProcessed(context.Context, int64) int { return 0 }

func (f *fakeMailbox) ProcessedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.processed)
}

type fakeClassifier struct {
	mu      sync.Mutex
	results map[string]model.Classification // keyed by subject
	err     error
	calls   int
}

func (f *fakeClassifier) Classify(_ context.Context, subject, _, _ string) (model.Classification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return model.Classification{}, f.err
	}
	return f.results[subject], nil
}

func (f *fakeClassifier) Available() bool { return true }

func (f *fakeClassifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePublisher struct {
	mu        sync.Mutex
	events    []string // interleaved event log, in publish order
	snapshots []model.Snapshot
}

func (f *fakePublisher) PublishSnapshot(s model.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "snapshot")
	f.snapshots = append(f.snapshots, s)
}

func (f *fakePublisher) PublishNewApplication(ev model.NewApplicationEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, fmt.Sprintf("new:%s/%s", ev.Company, ev.Position))
}

func (f *fakePublisher) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func email(id, subject string) model.EmailMessage {
	return model.EmailMessage{ID: id, Subject: subject, Body: "body", Sender: "hr@acme.com", Date: time.Now()}
}

func newTestMonitor(mbox *fakeMailbox, cls *fakeClassifier, pub *fakePublisher) (*Monitor, *store.Store) {
	st := store.New(nil)
	m := New(Config{}, mbox, cls, st, pub)
	return m, st
}

func TestScanMergesQualifyingClassification(t *testing.T) {
	mbox := newFakeMailbox(email("m1", "offer letter"))
	cls := &fakeClassifier{results: map[string]model.Classification{
		"offer letter": {Company: "Acme", Title: "SWE", Tag: model.TagOffer, Confidence: 90},
	}}
	pub := &fakePublisher{}
	m, st := newTestMonitor(mbox, cls, pub)

	result, err := m.ManualScan(context.Background())

	require.NoError(t, err)
	assert.Equal(t, ScanResult{Scanned: 1, Created: 1}, result)
	assert.Equal(t, 1, st.Count())
	apps := st.List()
	assert.Equal(t, model.StageOffer, apps[0].Stage)
}

func TestScanSkipsLowConfidence(t *testing.T) {
	mbox := newFakeMailbox(email("m1", "maybe job related"))
	cls := &fakeClassifier{results: map[string]model.Classification{
		"maybe job related": {Company: "Acme", Title: "SWE", Tag: model.TagOffer, Confidence: 20},
	}}
	m, st := newTestMonitor(mbox, cls, &fakePublisher{})

	result, err := m.ManualScan(context.Background())

	require.NoError(t, err)
	assert.Equal(t, ScanResult{Scanned: 1}, result)
	assert.Zero(t, st.Count())
}

func TestScanSkipsNoSignalClassification(t *testing.T) {
	mbox := newFakeMailbox(email("m1", "newsletter"))
	cls := &fakeClassifier{results: map[string]model.Classification{}} // zero value for every subject
	m, st := newTestMonitor(mbox, cls, &fakePublisher{})

	result, err := m.ManualScan(context.Background())

	require.NoError(t, err)
	assert.Equal(t, ScanResult{Scanned: 1}, result)
	assert.Zero(t, st.Count())
}

func TestScanNeverRefetchesProcessedMessages(t *testing.T) {
	mbox := newFakeMailbox(email("m1", "newsletter"))
	cls := &fakeClassifier{}
	m, _ := newTestMonitor(mbox, cls, &fakePublisher{})

	_, err := m.ManualScan(context.Background())
	require.NoError(t, err)
	_, err = m.ManualScan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, cls.callCount(), "a discarded message must not be classified twice")
}

func TestScanPublishesEventsBeforeSnapshot(t *testing.T) {
	mbox := newFakeMailbox(email("m1", "acme"), email("m2", "globex"))
	cls := &fakeClassifier{results: map[string]model.Classification{
		"acme":   {Company: "Acme", Title: "SWE", Tag: model.TagApplicationReceived, Confidence: 80},
		"globex": {Company: "Globex", Title: "PM", Tag: model.TagApplicationReceived, Confidence: 80},
	}}
	pub := &fakePublisher{}
	m, _ := newTestMonitor(mbox, cls, pub)

	_, err := m.ManualScan(context.Background())
	require.NoError(t, err)

	log := pub.log()
	require.Len(t, log, 3)
	assert.Equal(t, "new:Acme/SWE", log[0])
	assert.Equal(t, "new:Globex/PM", log[1])
	assert.Equal(t, "snapshot", log[2])
}

func TestScanStageAdvancePublishesSnapshotOnly(t *testing.T) {
	mbox := newFakeMailbox(email("m1", "interview"))
	cls := &fakeClassifier{results: map[string]model.Classification{
		"interview": {Company: "Acme", Title: "SWE", Tag: model.TagPhoneScreen, Confidence: 80},
	}}
	pub := &fakePublisher{}
	m, st := newTestMonitor(mbox, cls, pub)
	st.Merge("Acme", "SWE", model.StageApplied)

	result, err := m.ManualScan(context.Background())

	require.NoError(t, err)
	assert.Equal(t, ScanResult{Scanned: 1, Updated: 1}, result)
	assert.Equal(t, []string{"snapshot"}, pub.log())
}

func TestScanNoChangesPublishesNothing(t *testing.T) {
	mbox := newFakeMailbox(email("m1", "stale update"))
	cls := &fakeClassifier{results: map[string]model.Classification{
		"stale update": {Company: "Acme", Title: "SWE", Tag: model.TagApplicationReceived, Confidence: 80},
	}}
	pub := &fakePublisher{}
	m, st := newTestMonitor(mbox, cls, pub)
	st.Merge("Acme", "SWE", model.StageOffer)

	result, err := m.ManualScan(context.Background())

	require.NoError(t, err)
	assert.Equal(t, ScanResult{Scanned: 1}, result)
	assert.Empty(t, pub.log())
}

func TestScanReportsListError(t *testing.T) {
	mbox := newFakeMailbox()
	mbox.listErr = errors.New("mailbox unreachable")
	m, _ := newTestMonitor(mbox, &fakeClassifier{}, &fakePublisher{})

	_, err := m.ManualScan(context.Background())

	assert.Error(t, err)
}

func TestScanContinuesPastFailedMessages(t *testing.T) {
	mbox := newFakeMailbox(email("m1", "broken"), email("m2", "offer"))
	cls := &fakeClassifier{results: map[string]model.Classification{
		"offer": {Company: "Acme", Title: "SWE", Tag: model.TagOffer, Confidence: 90},
	}}
	m, st := newTestMonitor(mbox, cls, &fakePublisher{})

	// First message fails to fetch, second succeeds.
	mbox.fetchErr = errors.New("transient")
	_, err := m.ManualScan(context.Background())
	assert.Error(t, err, "a failed message surfaces as a scan error for backoff")
	assert.Zero(t, st.Count())

	mbox.fetchErr = nil
	mbox.mu.Lock()
	delete(mbox.processed, "m2")
	mbox.mu.Unlock()
	_, err = m.ManualScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Count())
}

func TestStartIsIdempotent(t *testing.T) {
	mbox := newFakeMailbox()
	m, _ := newTestMonitor(mbox, &fakeClassifier{}, &fakePublisher{})

	m.Start(context.Background())
	m.Start(context.Background())
	defer m.Stop()

	assert.True(t, m.IsRunning())
}

func TestStopInterruptsMidBatch(t *testing.T) {
	mbox := newFakeMailbox(email("m1", "a"), email("m2", "b"), email("m3", "c"))
	mbox.fetchGate = make(chan struct{}) // every fetch blocks until Stop cancels
	cls := &fakeClassifier{}
	m, _ := newTestMonitor(mbox, cls, &fakePublisher{})

	m.Start(context.Background())
	require.Eventually(t, func() bool { return mbox.ProcessedCount() >= 1 }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return; batch was not interrupted")
	}
	assert.False(t, m.IsRunning())
	assert.Zero(t, cls.callCount(), "no message should have been classified")
}

func TestStatusWellFormedBeforeAuthentication(t *testing.T) {
	mbox := newFakeMailbox()
	mbox.connected = false
	m, _ := newTestMonitor(mbox, &fakeClassifier{}, &fakePublisher{})

	st := m.Status(context.Background())

	assert.False(t, st.IsRunning)
	assert.False(t, st.EmailConnected)
	assert.Empty(t, st.EmailIdentity)
	assert.Nil(t, st.LastActivity)
	assert.Equal(t, 5.0, st.CheckInterval)
	assert.Equal(t, 5.0, st.DynamicInterval)
	assert.Zero(t, st.TotalApplications)
}

func TestNextDelayBacksOffAndRecovers(t *testing.T) {
	m, _ := newTestMonitor(newFakeMailbox(), &fakeClassifier{}, &fakePublisher{})

	assert.Equal(t, 10*time.Second, m.nextDelay(ScanResult{}, errors.New("boom")))
	assert.Equal(t, 20*time.Second, m.nextDelay(ScanResult{}, errors.New("boom")))
	assert.Equal(t, 40*time.Second, m.nextDelay(ScanResult{}, errors.New("boom")))
	assert.Equal(t, 60*time.Second, m.nextDelay(ScanResult{}, errors.New("boom")))
	assert.Equal(t, 60*time.Second, m.nextDelay(ScanResult{}, errors.New("boom")))

	// A successful tick with activity resets the backoff entirely.
	assert.Equal(t, 500*time.Millisecond, m.nextDelay(ScanResult{Created: 1}, nil))
	assert.Equal(t, 10*time.Second, m.nextDelay(ScanResult{}, errors.New("boom")))
}

func TestStatusCountsExaminedEmailsOnly(t *testing.T) {
	mbox := newFakeMailbox(email("m1", "a"), email("m2", "b"))
	// Old mail sits in the dedup set without ever being examined, the way
	// Start seeds it.
	mbox.mu.Lock()
	mbox.processed["old1"] = struct{}{}
	mbox.processed["old2"] = struct{}{}
	mbox.mu.Unlock()
	m, _ := newTestMonitor(mbox, &fakeClassifier{}, &fakePublisher{})

	assert.Zero(t, m.Status(context.Background()).ProcessedEmails)

	_, err := m.ManualScan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, m.Status(context.Background()).ProcessedEmails,
		"only examined emails count, not the seeded dedup set")
}

func TestNextDelayRecordsActivityDespiteError(t *testing.T) {
	m, _ := newTestMonitor(newFakeMailbox(), &fakeClassifier{}, &fakePublisher{})
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	// A tick that merged an application and also hit a transient failure
	// backs off, but the merge still counts as activity.
	assert.Equal(t, 10*time.Second, m.nextDelay(ScanResult{Created: 1}, errors.New("boom")))
	require.NotNil(t, m.Status(context.Background()).LastActivity)

	clock = clock.Add(10 * time.Second)
	assert.Equal(t, 1*time.Second, m.nextDelay(ScanResult{}, nil),
		"cadence resumes in the active tier after the backoff clears")
}

func TestNextDelayCadenceTiers(t *testing.T) {
	m, _ := newTestMonitor(newFakeMailbox(), &fakeClassifier{}, &fakePublisher{})
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	assert.Equal(t, 500*time.Millisecond, m.nextDelay(ScanResult{Created: 1}, nil))

	clock = clock.Add(10 * time.Second)
	assert.Equal(t, 1*time.Second, m.nextDelay(ScanResult{}, nil))

	clock = clock.Add(30 * time.Second)
	assert.Equal(t, 2*time.Second, m.nextDelay(ScanResult{}, nil))

	clock = clock.Add(2 * time.Minute)
	assert.Equal(t, 5*time.Second, m.nextDelay(ScanResult{}, nil))
}
