package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxpilot/config"
	"inboxpilot/models"
)

type fakeMailbox struct {
	unread      map[string][]models.Item
	listErr     error
	sinceSeen   map[string]time.Time
	markedRead  []string
	readFolders map[string]string
	filed       map[string]string
	filedFrom   map[string]string
	fileErr     error
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		unread:      make(map[string][]models.Item),
		sinceSeen:   make(map[string]time.Time),
		readFolders: make(map[string]string),
		filed:       make(map[string]string),
		filedFrom:   make(map[string]string),
	}
}

func (f *fakeMailbox) ListUnread(folder string, since time.Time, max int) ([]models.Item, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if folder == "" {
		folder = "INBOX"
	}
	f.sinceSeen[folder] = since
	return f.unread[folder], nil
}

func (f *fakeMailbox) MarkRead(itemID, folder string) error {
	if folder == "" {
		folder = "INBOX"
	}
	f.markedRead = append(f.markedRead, itemID)
	f.readFolders[itemID] = folder
	return nil
}

func (f *fakeMailbox) FileAway(itemID, fromFolder, toFolder string) error {
	if f.fileErr != nil {
		return f.fileErr
	}
	if fromFolder == "" {
		fromFolder = "INBOX"
	}
	f.filed[itemID] = toFolder
	f.filedFrom[itemID] = fromFolder
	return nil
}

type fixedClassifier struct {
	results map[string]models.Classification
}

func (f fixedClassifier) Classify(ctx context.Context, item models.Item) models.Classification {
	if cls, ok := f.results[item.ID]; ok {
		return cls
	}
	return models.Classification{Category: models.CategoryEnquiry, Routing: models.RoutingAuto, GuidanceKey: "wedding_enquiry"}
}

type fakeTasks struct {
	added  []models.Item
	drafts []models.Item
}

func (f *fakeTasks) AddTask(item models.Item, questions []models.Question, guidanceKey string) (models.Task, error) {
	f.added = append(f.added, item)
	return models.Task{ID: "task-" + item.ID, OriginalItem: item, Questions: questions}, nil
}

func (f *fakeTasks) CreateAutoDraft(ctx context.Context, item models.Item, guidanceKey string) (models.Draft, error) {
	f.drafts = append(f.drafts, item)
	return models.Draft{ID: "draft-" + item.ID}, nil
}

type fakeProcessed struct {
	processed map[string]bool
	lastCheck time.Time
}

func newFakeProcessed() *fakeProcessed {
	return &fakeProcessed{processed: make(map[string]bool)}
}

func (f *fakeProcessed) IsProcessed(itemID string) bool { return f.processed[itemID] }

func (f *fakeProcessed) MarkProcessed(itemID string) error {
	f.processed[itemID] = true
	return nil
}

func (f *fakeProcessed) LastCheckTime() time.Time { return f.lastCheck }

func (f *fakeProcessed) SetLastCheckTime(t time.Time) error {
	f.lastCheck = t
	return nil
}

type fakeDelayer struct {
	enqueued     map[string]models.DelayedPayload
	enqueueCalls int
	ready        []models.PendingDelayedAction
	removed      []string
	cleaned      int
}

func newFakeDelayer() *fakeDelayer {
	return &fakeDelayer{enqueued: make(map[string]models.DelayedPayload)}
}

func (f *fakeDelayer) Enqueue(itemID string, payload models.DelayedPayload) error {
	f.enqueued[itemID] = payload
	f.enqueueCalls++
	return nil
}

func (f *fakeDelayer) IsPending(itemID string) bool {
	_, ok := f.enqueued[itemID]
	return ok
}

func (f *fakeDelayer) DrainReady(now time.Time) []models.PendingDelayedAction { return f.ready }

func (f *fakeDelayer) Remove(itemID string) error {
	delete(f.enqueued, itemID)
	f.removed = append(f.removed, itemID)
	return nil
}

func (f *fakeDelayer) Cleanup(now time.Time) (int, error) { return f.cleaned, nil }

type fakeOperator struct {
	notified []models.Task
}

func (f *fakeOperator) NotifyTask(task models.Task) error {
	f.notified = append(f.notified, task)
	return nil
}

type fakeSMS struct {
	configured bool
	sent       []string
}

func (f *fakeSMS) Configured() bool { return f.configured }

func (f *fakeSMS) Notify(text string) error {
	f.sent = append(f.sent, text)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		IMAP:                 config.IMAPConfig{DeferredFolder: "Deferred"},
		IntakeInterval:       5 * time.Minute,
		DeferredInterval:     10 * time.Minute,
		DelayedSweepInterval: time.Minute,
	}
}

func item(id string, sender, subject string) models.Item {
	return models.Item{ID: id, Sender: sender, Subject: subject, Body: "body of " + id}
}

func cls(cat models.Category, routing models.Routing, questions ...models.Question) models.Classification {
	return models.Classification{Category: cat, Routing: routing, Questions: questions, GuidanceKey: "wedding_enquiry"}
}

func TestIntakeSweep_Routing(t *testing.T) {
	mb := newFakeMailbox()
	mb.unread["INBOX"] = []models.Item{
		item("<enq-auto>", "a@example.com", "Love your work"),
		item("<enq-input>", "b@example.com", "Pricing?"),
		item("<invoice>", "billing@vendor.com", "Invoice #9"),
		item("<promo>", "deals@shop.com", "50% off"),
		item("<notify>", "noreply@bank.com", "Security alert"),
	}
	classifier := fixedClassifier{results: map[string]models.Classification{
		"<enq-auto>":  cls(models.CategoryEnquiry, models.RoutingAuto),
		"<enq-input>": cls(models.CategoryEnquiry, models.RoutingNeedsInput, models.Question{ID: "q1", Text: "Price?"}),
		"<invoice>":   cls(models.CategoryInvoice, models.RoutingAuto),
		"<promo>":     cls(models.CategoryPromotion, models.RoutingAuto),
		"<notify>":    cls(models.CategoryNotification, models.RoutingAuto),
	}}

	tasks := &fakeTasks{}
	processed := newFakeProcessed()
	delayer := newFakeDelayer()
	operator := &fakeOperator{}
	sms := &fakeSMS{configured: true}

	p := NewPipeline(testConfig(), mb, classifier, tasks, processed, delayer, operator, sms)
	require.NoError(t, p.IntakeSweep(context.Background()))

	// Auto enquiry gets a draft, needs-input opens a task and pings the chat.
	require.Len(t, tasks.drafts, 1)
	assert.Equal(t, "<enq-auto>", tasks.drafts[0].ID)
	require.Len(t, tasks.added, 1)
	assert.Equal(t, "<enq-input>", tasks.added[0].ID)
	require.Len(t, operator.notified, 1)

	// Invoice triggers the out-of-band alert.
	require.Len(t, sms.sent, 1)
	assert.Contains(t, sms.sent[0], "billing@vendor.com")

	// Promotion is deferred, not filed immediately.
	assert.Contains(t, delayer.enqueued, "<promo>")
	assert.Empty(t, mb.filed)

	// Notification is marked read.
	assert.Contains(t, mb.markedRead, "<notify>")

	// Terminal handling marks the item processed; an enqueued promotion is
	// not terminal until the delayed sweep files it.
	for _, id := range []string{"<enq-auto>", "<enq-input>", "<invoice>", "<notify>"} {
		assert.True(t, processed.IsProcessed(id), "item %s not marked processed", id)
	}
	assert.False(t, processed.IsProcessed("<promo>"), "an enqueued promotion is not terminally handled yet")
	assert.False(t, processed.lastCheck.IsZero())
}

func TestIntakeSweep_PendingPromotionKeepsItsClock(t *testing.T) {
	mb := newFakeMailbox()
	mb.unread["INBOX"] = []models.Item{item("<promo>", "deals@shop.com", "50% off")}
	classifier := fixedClassifier{results: map[string]models.Classification{
		"<promo>": cls(models.CategoryPromotion, models.RoutingAuto),
	}}

	delayer := newFakeDelayer()
	p := NewPipeline(testConfig(), mb, classifier, &fakeTasks{}, newFakeProcessed(), delayer, nil, nil)

	// The promotion stays unread in the inbox during its grace window, so
	// consecutive sweeps keep listing it. Only the first may enqueue.
	require.NoError(t, p.IntakeSweep(context.Background()))
	require.NoError(t, p.IntakeSweep(context.Background()))

	assert.Equal(t, 1, delayer.enqueueCalls, "a pending item must not be re-enqueued")
}

func TestSweepSearchWindows(t *testing.T) {
	mb := newFakeMailbox()
	processed := newFakeProcessed()
	checkpoint := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	processed.lastCheck = checkpoint

	p := NewPipeline(testConfig(), mb, fixedClassifier{}, &fakeTasks{}, processed, newFakeDelayer(), nil, nil)
	require.NoError(t, p.IntakeSweep(context.Background()))
	require.NoError(t, p.DeferredSweep(context.Background()))

	// Intake narrows the search to the last checkpoint; the deferred sweep
	// must see everything, however old.
	assert.Equal(t, checkpoint, mb.sinceSeen["INBOX"])
	assert.True(t, mb.sinceSeen["Deferred"].IsZero())
}

func TestIntakeSweep_SkipsProcessedAndMissingIDs(t *testing.T) {
	mb := newFakeMailbox()
	mb.unread["INBOX"] = []models.Item{
		item("<seen>", "a@example.com", "already handled"),
		{Sender: "b@example.com", Subject: "no message id"},
	}

	tasks := &fakeTasks{}
	processed := newFakeProcessed()
	processed.processed["<seen>"] = true

	p := NewPipeline(testConfig(), mb, fixedClassifier{}, tasks, processed, newFakeDelayer(), nil, nil)
	require.NoError(t, p.IntakeSweep(context.Background()))

	assert.Empty(t, tasks.drafts)
	assert.Empty(t, tasks.added)
}

func TestIntakeSweep_ListFailurePropagates(t *testing.T) {
	mb := newFakeMailbox()
	mb.listErr = errors.New("imap down")

	p := NewPipeline(testConfig(), mb, fixedClassifier{}, &fakeTasks{}, newFakeProcessed(), newFakeDelayer(), nil, nil)
	assert.Error(t, p.IntakeSweep(context.Background()))
}

func TestDeferredSweep_BypassesDeferral(t *testing.T) {
	mb := newFakeMailbox()
	mb.unread["Deferred"] = []models.Item{
		item("<rescued>", "couple@example.com", "Actually an enquiry"),
		item("<still-promo>", "deals@shop.com", "Promo again"),
	}
	classifier := fixedClassifier{results: map[string]models.Classification{
		"<rescued>":     cls(models.CategoryEnquiry, models.RoutingAuto),
		"<still-promo>": cls(models.CategoryPromotion, models.RoutingAuto),
	}}

	tasks := &fakeTasks{}
	delayer := newFakeDelayer()
	processed := newFakeProcessed()
	p := NewPipeline(testConfig(), mb, classifier, tasks, processed, delayer, nil, nil)
	require.NoError(t, p.DeferredSweep(context.Background()))

	// The rescued enquiry gets a draft; the promotion stays filed instead of
	// re-entering the delay queue.
	require.Len(t, tasks.drafts, 1)
	assert.Equal(t, "<rescued>", tasks.drafts[0].ID)
	assert.Empty(t, delayer.enqueued)

	// Both copies are marked read in the deferred folder so the next sweep
	// does not re-ingest them.
	for _, id := range []string{"<rescued>", "<still-promo>"} {
		assert.Contains(t, mb.markedRead, id)
		assert.Equal(t, "Deferred", mb.readFolders[id])
		assert.True(t, processed.IsProcessed(id))
	}
}

func TestDeferredSweep_RescuesAlreadyProcessedItem(t *testing.T) {
	// An item that was filed away is already in the processed record. When an
	// operator marks its deferred copy unread, the sweep must still re-ingest
	// it; the unread flag outranks the processed record here.
	mb := newFakeMailbox()
	mb.unread["Deferred"] = []models.Item{
		item("<filed-enquiry>", "couple@example.com", "June wedding"),
	}
	classifier := fixedClassifier{results: map[string]models.Classification{
		"<filed-enquiry>": cls(models.CategoryEnquiry, models.RoutingAuto),
	}}

	processed := newFakeProcessed()
	processed.processed["<filed-enquiry>"] = true

	tasks := &fakeTasks{}
	p := NewPipeline(testConfig(), mb, classifier, tasks, processed, newFakeDelayer(), nil, nil)
	require.NoError(t, p.DeferredSweep(context.Background()))

	require.Len(t, tasks.drafts, 1)
	assert.Equal(t, "<filed-enquiry>", tasks.drafts[0].ID)
}

func TestDeferredSweep_CancelsPendingDelay(t *testing.T) {
	// Rescue can race the delayed sweep: the item is still queued when its
	// deferred copy shows up unread. Re-ingesting must drop the queued action
	// so the grace-period filing never fires afterwards.
	mb := newFakeMailbox()
	mb.unread["Deferred"] = []models.Item{
		item("<racing>", "couple@example.com", "Not a promo after all"),
	}
	classifier := fixedClassifier{results: map[string]models.Classification{
		"<racing>": cls(models.CategoryEnquiry, models.RoutingAuto),
	}}

	delayer := newFakeDelayer()
	require.NoError(t, delayer.Enqueue("<racing>", models.DelayedPayload{}))

	p := NewPipeline(testConfig(), mb, classifier, &fakeTasks{}, newFakeProcessed(), delayer, nil, nil)
	require.NoError(t, p.DeferredSweep(context.Background()))

	assert.False(t, delayer.IsPending("<racing>"))
}

func TestDelayedSweep_AtLeastOnce(t *testing.T) {
	now := time.Now().UTC()

	t.Run("successful filing removes the action", func(t *testing.T) {
		mb := newFakeMailbox()
		delayer := newFakeDelayer()
		delayer.ready = []models.PendingDelayedAction{
			{ItemID: "<promo>", EnqueuedAt: now.Add(-10 * time.Minute)},
		}

		processed := newFakeProcessed()
		p := NewPipeline(testConfig(), mb, fixedClassifier{}, &fakeTasks{}, processed, delayer, nil, nil)
		require.NoError(t, p.DelayedSweep(context.Background()))

		assert.Equal(t, "Deferred", mb.filed["<promo>"])
		assert.Equal(t, "INBOX", mb.filedFrom["<promo>"])
		assert.Contains(t, mb.markedRead, "<promo>")
		assert.Equal(t, []string{"<promo>"}, delayer.removed)
		assert.True(t, processed.IsProcessed("<promo>"), "filing is the terminal handling")
	})

	t.Run("filing failure keeps the action for retry", func(t *testing.T) {
		mb := newFakeMailbox()
		mb.fileErr = errors.New("imap down")
		delayer := newFakeDelayer()
		delayer.ready = []models.PendingDelayedAction{
			{ItemID: "<promo>", EnqueuedAt: now.Add(-10 * time.Minute)},
		}

		processed := newFakeProcessed()
		p := NewPipeline(testConfig(), mb, fixedClassifier{}, &fakeTasks{}, processed, delayer, nil, nil)
		require.NoError(t, p.DelayedSweep(context.Background()))

		assert.Empty(t, delayer.removed, "a failed side effect must leave the action queued")
		assert.False(t, processed.IsProcessed("<promo>"))
	})
}
