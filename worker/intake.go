package worker

import (
	"context"
	"log"
	"os"
	"time"

	"inboxpilot/config"
	"inboxpilot/models"
	"inboxpilot/utils"
)

// Mailbox is the slice of the mailbox client the pipeline drives. An empty
// folder argument means INBOX.
type Mailbox interface {
	ListUnread(folder string, since time.Time, max int) ([]models.Item, error)
	MarkRead(itemID, folder string) error
	FileAway(itemID, fromFolder, toFolder string) error
}

// Classifier decides category and routing for one item.
type Classifier interface {
	Classify(ctx context.Context, item models.Item) models.Classification
}

// TaskManager is the slice of the task lifecycle the pipeline drives.
type TaskManager interface {
	AddTask(item models.Item, questions []models.Question, guidanceKey string) (models.Task, error)
	CreateAutoDraft(ctx context.Context, item models.Item, guidanceKey string) (models.Draft, error)
}

// ProcessedStore tracks which item ids were already handled.
type ProcessedStore interface {
	IsProcessed(itemID string) bool
	MarkProcessed(itemID string) error
	LastCheckTime() time.Time
	SetLastCheckTime(t time.Time) error
}

// Delayer is the slice of the delayed-action scheduler the pipeline drives.
type Delayer interface {
	Enqueue(itemID string, payload models.DelayedPayload) error
	IsPending(itemID string) bool
	DrainReady(now time.Time) []models.PendingDelayedAction
	Remove(itemID string) error
	Cleanup(now time.Time) (int, error)
}

// OperatorNotifier pushes a new question task to the operator chat.
type OperatorNotifier interface {
	NotifyTask(task models.Task) error
}

// InvoiceNotifier sends the out-of-band invoice alert.
type InvoiceNotifier interface {
	Configured() bool
	Notify(text string) error
}

// Pipeline wires the intake, deferred-folder and delayed-action sweeps. Each
// sweep is registered as a scheduler loop; all three share the same
// collaborators.
type Pipeline struct {
	cfg        *config.Config
	mailbox    Mailbox
	classifier Classifier
	tasks      TaskManager
	processed  ProcessedStore
	delayer    Delayer
	operator   OperatorNotifier
	invoices   InvoiceNotifier
	logger     *log.Logger
}

func NewPipeline(cfg *config.Config, mailbox Mailbox, classifier Classifier, tasks TaskManager, processed ProcessedStore, delayer Delayer, operator OperatorNotifier, invoices InvoiceNotifier) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		mailbox:    mailbox,
		classifier: classifier,
		tasks:      tasks,
		processed:  processed,
		delayer:    delayer,
		operator:   operator,
		invoices:   invoices,
		logger:     log.New(os.Stdout, "INTAKE: ", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

// Loops returns the three sweeps with staggered initial delays.
func (p *Pipeline) Loops() []Loop {
	return []Loop{
		{
			Name:         "intake",
			InitialDelay: 5 * time.Second,
			BaseInterval: p.cfg.IntakeInterval,
			JitterWindow: p.cfg.JitterWindow,
			Fn:           p.IntakeSweep,
		},
		{
			Name:         "deferred-folder",
			InitialDelay: 20 * time.Second,
			BaseInterval: p.cfg.DeferredInterval,
			JitterWindow: p.cfg.JitterWindow,
			Fn:           p.DeferredSweep,
		},
		{
			Name:         "delayed-actions",
			InitialDelay: 35 * time.Second,
			BaseInterval: p.cfg.DelayedSweepInterval,
			JitterWindow: p.cfg.JitterWindow,
			Fn:           p.DelayedSweep,
		},
	}
}

// IntakeSweep lists unread inbox items, classifies each new one and routes
// it. A failure on one item logs and moves on; the sweep itself only fails
// when the mailbox cannot be listed at all.
func (p *Pipeline) IntakeSweep(ctx context.Context) error {
	items, err := p.mailbox.ListUnread("", p.processed.LastCheckTime(), 0)
	if err != nil {
		return err
	}

	handled := 0
	for _, item := range items {
		if item.ID == "" {
			utils.LogEvent("intake_missing_message_id", map[string]interface{}{
				"subject": item.Subject,
				"sender":  item.Sender,
			})
			continue
		}
		// Items waiting in the delay queue stay unread in the inbox during
		// their grace window; re-routing them would restamp the clock.
		if p.processed.IsProcessed(item.ID) || p.delayer.IsPending(item.ID) {
			continue
		}
		if err := p.routeItem(ctx, item, "", false); err != nil {
			utils.LogError("intake_route_failed", err, map[string]interface{}{
				"item_id": item.ID,
			})
			continue
		}
		handled++
	}

	if err := p.processed.SetLastCheckTime(time.Now().UTC()); err != nil {
		utils.LogError("intake_checkpoint_failed", err, nil)
	}
	if handled > 0 {
		p.logger.Printf("📬 Intake sweep handled %d new item(s)", handled)
	}
	return nil
}

// DeferredSweep re-ingests unread items sitting in the deferred folder. A
// human leaving a message unread there signals a misfiled promotion, so the
// item runs through classification again with the deferral path disabled.
func (p *Pipeline) DeferredSweep(ctx context.Context) error {
	if p.cfg.IMAP.DeferredFolder == "" {
		return nil
	}
	folder := p.cfg.IMAP.DeferredFolder
	items, err := p.mailbox.ListUnread(folder, time.Time{}, 0)
	if err != nil {
		return err
	}
	for _, item := range items {
		// No processed-record skip here: filed items are processed by
		// definition, and the unread flag alone is the rescue signal.
		if item.ID == "" {
			continue
		}
		if err := p.routeItem(ctx, item, folder, true); err != nil {
			utils.LogError("deferred_route_failed", err, map[string]interface{}{
				"item_id": item.ID,
			})
			continue
		}
		if err := p.delayer.Remove(item.ID); err != nil {
			utils.LogError("deferred_dequeue_failed", err, map[string]interface{}{
				"item_id": item.ID,
			})
		}
		// Mark the deferred copy read so the next sweep does not re-ingest it.
		if err := p.mailbox.MarkRead(item.ID, folder); err != nil {
			utils.LogError("deferred_mark_read_failed", err, map[string]interface{}{
				"item_id": item.ID,
			})
		}
	}
	return nil
}

// DelayedSweep executes the side effect for every due delayed action, then
// discards anything past the hard ceiling.
func (p *Pipeline) DelayedSweep(ctx context.Context) error {
	now := time.Now().UTC()
	for _, action := range p.delayer.DrainReady(now) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := p.mailbox.MarkRead(action.ItemID, ""); err != nil {
			utils.LogError("delayed_mark_read_failed", err, map[string]interface{}{
				"item_id": action.ItemID,
			})
		}
		if err := p.mailbox.FileAway(action.ItemID, "", p.cfg.IMAP.DeferredFolder); err != nil {
			utils.LogError("delayed_file_away_failed", err, map[string]interface{}{
				"item_id": action.ItemID,
			})
			continue
		}
		// Filing is the terminal handling for a deferred promotion; only now
		// does the item count as processed.
		if err := p.processed.MarkProcessed(action.ItemID); err != nil {
			utils.LogError("delayed_mark_processed_failed", err, map[string]interface{}{
				"item_id": action.ItemID,
			})
		}
		if err := p.delayer.Remove(action.ItemID); err != nil {
			utils.LogError("delayed_remove_failed", err, map[string]interface{}{
				"item_id": action.ItemID,
			})
		}
	}

	dropped, err := p.delayer.Cleanup(now)
	if err != nil {
		return err
	}
	if dropped > 0 {
		utils.LogEvent("delayed_actions_expired", map[string]interface{}{
			"dropped": dropped,
		})
	}
	return nil
}

// routeItem dispatches one classified item living in folder. skipDeferral
// disables the promotions hold for items rescued out of the deferred folder.
func (p *Pipeline) routeItem(ctx context.Context, item models.Item, folder string, skipDeferral bool) error {
	cls := p.classifier.Classify(ctx, item)

	switch cls.Category {
	case models.CategoryEnquiry:
		if cls.Routing == models.RoutingNeedsInput {
			task, err := p.tasks.AddTask(item, cls.Questions, cls.GuidanceKey)
			if err != nil {
				return err
			}
			if p.operator != nil {
				if err := p.operator.NotifyTask(task); err != nil {
					utils.LogError("operator_notify_failed", err, map[string]interface{}{
						"task_id": task.ID,
					})
				}
			}
		} else {
			if _, err := p.tasks.CreateAutoDraft(ctx, item, cls.GuidanceKey); err != nil {
				return err
			}
		}

	case models.CategoryInvoice:
		if p.invoices != nil && p.invoices.Configured() {
			if err := p.invoices.Notify("New invoice email from " + item.Sender + ": " + item.Subject); err != nil {
				utils.LogError("invoice_notify_failed", err, map[string]interface{}{
					"item_id": item.ID,
				})
			}
		}

	case models.CategoryPromotion:
		if !skipDeferral {
			if err := p.delayer.Enqueue(item.ID, models.DelayedPayload{
				ThreadID: item.ThreadID,
				Sender:   item.Sender,
				Subject:  item.Subject,
			}); err != nil {
				return err
			}
			// Enqueueing is not terminal handling; the item is marked
			// processed once the delayed sweep files it away.
			return nil
		}
		// A rescued item that classifies as a promotion again just stays in
		// the deferred folder; the sweep marks it read.

	case models.CategoryNotification, models.CategoryWhitelisted:
		if err := p.mailbox.MarkRead(item.ID, folder); err != nil {
			return err
		}

	default:
		// Classify never emits anything outside the closed set, but an
		// unknown value still terminates as the safe default.
		if _, err := p.tasks.CreateAutoDraft(ctx, item, "wedding_enquiry"); err != nil {
			return err
		}
	}

	return p.processed.MarkProcessed(item.ID)
}
