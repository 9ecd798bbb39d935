// Package cycle runs one upload cycle: list the catalog, pick an unposted
// video at random, download it, publish it, record it, and notify.
//
// The ledger is saved before the audit row and the success notification.
// A crash after the save can lose a notification but can never cause the
// same item to be published twice.
package cycle

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fpang/reelbot/internal/audit"
	"github.com/fpang/reelbot/internal/caption"
	"github.com/fpang/reelbot/internal/catalog"
	"github.com/fpang/reelbot/internal/fileutil"
	"github.com/fpang/reelbot/internal/instagram"
	"github.com/fpang/reelbot/internal/ledger"
	"github.com/fpang/reelbot/internal/metrics"
	"github.com/fpang/reelbot/internal/reelerr"
)

// State is a step of the cycle state machine.
type State int

const (
	Idle State = iota
	CatalogListed
	ItemSelected
	Fetched
	Published
	Recorded
	Notified
	Aborted
	NoOp
)

var stateNames = [...]string{"idle", "catalog-listed", "item-selected", "fetched", "published", "recorded", "notified", "aborted", "noop"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Outcome is how a cycle ended.
type Outcome string

const (
	OutcomePosted  Outcome = "posted"
	OutcomeNoOp    Outcome = "noop"
	OutcomeAborted Outcome = "aborted"
)

// Publisher logs in to the platform and publishes a local file.
type Publisher interface {
	Login(ctx context.Context) (*instagram.Session, error)
	Publish(ctx context.Context, sess *instagram.Session, localPath, caption string) (string, error)
}

// Notifier sends best-effort operator messages.
type Notifier interface {
	Send(ctx context.Context, text string)
}

// AuditLog receives one row per published item.
type AuditLog interface {
	Append(row audit.Row) error
}

// Config wires a Coordinator. Catalog, Ledger, and Publisher are required.
type Config struct {
	Catalog   catalog.Catalog
	Ledger    ledger.Ledger
	Publisher Publisher
	Notifier  Notifier
	Audit     AuditLog

	TagFile     string
	DownloadDir string
	// Location is used for notification timestamps. Defaults to UTC.
	Location *time.Location

	// MetricsNamespace enables one EMF document per cycle when set.
	MetricsNamespace string
	MetricsOut       io.Writer

	Rand *rand.Rand
	Now  func() time.Time
}

// Result describes a finished cycle.
type Result struct {
	CycleID  string
	Outcome  Outcome
	State    State // Notified, NoOp, or Aborted
	FailedAt State // last state reached before an abort
	Item     catalog.Item
	MediaID  string
	Caption  string
	Total    int // catalog size
	Posted   int // catalog items posted, including this one
	Duration time.Duration
}

// Remaining is the number of catalog items still unposted.
func (r Result) Remaining() int {
	return r.Total - r.Posted
}

// Coordinator runs cycles one at a time.
type Coordinator struct {
	cfg Config
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

func New(cfg Config) *Coordinator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{cfg: cfg, rng: rng, now: now}
}

// Run executes one cycle. It returns a nil error for both posted and
// no-op outcomes. On abort it returns the cause, classified with a
// reelerr marker, after notifying the operator. Concurrent calls are
// serialized.
func (c *Coordinator) Run(ctx context.Context) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.now()
	res := Result{CycleID: uuid.NewString(), State: Idle}
	logger := log.With().Str("cycleId", res.CycleID).Logger()
	logger.Info().Msg("Upload cycle started")

	err := c.run(logger.WithContext(ctx), &res)
	res.Duration = c.now().Sub(start)

	switch {
	case err != nil:
		res.Outcome = OutcomeAborted
		res.FailedAt, res.State = res.State, Aborted
		logger.Error().Err(err).Str("kind", reelerr.Kind(err)).Str("failedAt", res.FailedAt.String()).Dur("duration", res.Duration).Msg("Upload cycle aborted")
	case res.Outcome == OutcomeNoOp:
		logger.Info().Int("total", res.Total).Dur("duration", res.Duration).Msg("Nothing left to post")
	default:
		logger.Info().Str("itemId", res.Item.ID).Str("name", res.Item.Name).Int("posted", res.Posted).Int("total", res.Total).Dur("duration", res.Duration).Msg("Upload cycle completed")
	}
	c.flushMetrics(res, err)
	return res, err
}

func (c *Coordinator) run(ctx context.Context, res *Result) error {
	logger := zerolog.Ctx(ctx)

	// Idle -> CatalogListed
	items, err := c.cfg.Catalog.List(ctx)
	if err != nil {
		return c.abort(ctx, res, classify(reelerr.ErrFetch, "list catalog", err))
	}
	records, err := c.cfg.Ledger.Load(ctx)
	if err != nil {
		return c.abort(ctx, res, classify(reelerr.ErrIO, "load ledger", err))
	}
	res.State = CatalogListed

	remaining := unposted(items, records)
	res.Total = len(items)
	res.Posted = res.Total - len(remaining)
	logger.Debug().Int("catalog", len(items)).Int("ledger", len(records)).Int("remaining", len(remaining)).Msg("Catalog listed")

	if len(remaining) == 0 {
		res.Outcome = OutcomeNoOp
		res.State = NoOp
		c.notify(ctx, MessageAllPosted())
		return nil
	}

	// CatalogListed -> ItemSelected
	item := remaining[c.rng.IntN(len(remaining))]
	res.Item = item
	res.State = ItemSelected
	logger.Info().Str("itemId", item.ID).Str("name", item.Name).Msg("Item selected")

	// ItemSelected -> Fetched
	localPath, err := c.cfg.Catalog.Fetch(ctx, item, c.cfg.DownloadDir)
	if err != nil {
		c.removePartial(item)
		return c.abort(ctx, res, classify(reelerr.ErrFetch, "fetch "+item.Name, err))
	}
	res.State = Fetched

	// Fetched -> Published. The local file is kept on failure for inspection.
	tags, err := caption.LoadTags(c.cfg.TagFile)
	if err != nil {
		logger.Warn().Err(err).Str("path", c.cfg.TagFile).Msg("Tag pool unreadable, captioning without tags")
	}
	res.Caption = caption.Build(item.Name, tags, c.rng)

	sess, err := c.cfg.Publisher.Login(ctx)
	if err != nil {
		return c.abort(ctx, res, classify(reelerr.ErrAuth, "login", err))
	}
	mediaID, err := c.cfg.Publisher.Publish(ctx, sess, localPath, res.Caption)
	if err != nil {
		return c.abort(ctx, res, classify(reelerr.ErrPublish, "publish "+item.Name, err))
	}
	res.MediaID = mediaID
	res.State = Published

	// Published -> Recorded
	postedAt := c.now()
	updated, err := ledger.Append(records, ledger.Record{ID: item.ID, Name: item.Name, PostedAt: postedAt})
	if err == nil {
		err = c.cfg.Ledger.Save(ctx, updated)
	}
	if errors.Is(err, ledger.ErrConcurrentRecord) {
		logger.Error().Err(err).Str("itemId", item.ID).Msg("Item recorded by a concurrent cycle")
		c.notify(ctx, MessageConcurrentRecord(item.Name))
		err = nil
	}
	if err != nil {
		err = classify(reelerr.ErrIO, "save ledger", err)
		c.notify(ctx, MessageNotRecorded(item.Name, err))
		return err
	}
	res.Posted++
	res.State = Recorded

	// Recorded -> Notified
	if c.cfg.Audit != nil {
		if err := c.cfg.Audit.Append(audit.Row{Timestamp: postedAt, Filename: item.Name, Caption: res.Caption}); err != nil {
			logger.Warn().Err(err).Msg("Audit row not written")
		}
	}
	c.notify(ctx, MessagePosted(item.Name, res.Posted, res.Total, postedAt.In(c.cfg.Location)))
	if err := os.Remove(localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Str("path", localPath).Msg("Staged file not removed")
	}
	res.State = Notified
	res.Outcome = OutcomePosted
	return nil
}

func (c *Coordinator) abort(ctx context.Context, res *Result, err error) error {
	c.notify(ctx, MessageFailed(res.Item.Name, err))
	return err
}

func (c *Coordinator) notify(ctx context.Context, text string) {
	if c.cfg.Notifier != nil {
		c.cfg.Notifier.Send(ctx, text)
	}
}

// removePartial deletes whatever a failed fetch may have left behind.
func (c *Coordinator) removePartial(item catalog.Item) {
	path, err := catalog.StagePath(c.cfg.DownloadDir, item)
	if err != nil {
		return
	}
	for _, p := range []string{path, path + fileutil.PartialSuffix} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", p).Msg("Partial download not removed")
		}
	}
}

func (c *Coordinator) flushMetrics(res Result, err error) {
	if c.cfg.MetricsNamespace == "" {
		return
	}
	var rec *metrics.Recorder
	if c.cfg.MetricsOut != nil {
		rec = metrics.NewWithWriter(c.cfg.MetricsNamespace, c.cfg.MetricsOut)
	} else {
		rec = metrics.New(c.cfg.MetricsNamespace)
	}
	rec.Dimension("Outcome", string(res.Outcome)).
		Duration("CycleDurationMs", res.Duration).
		Count("Posted", res.Posted).
		Count("Remaining", res.Remaining()).
		Count("CatalogSize", res.Total).
		Property("cycleId", res.CycleID)
	if err != nil {
		rec.Property("errorKind", reelerr.Kind(err))
	}
	rec.Flush()
}

// unposted returns the catalog items whose IDs are not in the ledger,
// in catalog order.
func unposted(items []catalog.Item, records []ledger.Record) []catalog.Item {
	posted := ledger.IDs(records)
	out := make([]catalog.Item, 0, len(items))
	for _, it := range items {
		if _, ok := posted[it.ID]; !ok {
			out = append(out, it)
		}
	}
	return out
}

// classify keeps an existing reelerr marker and applies fallback otherwise.
func classify(fallback error, op string, err error) error {
	if reelerr.Kind(err) != "unknown" {
		return err
	}
	return reelerr.Wrap(fallback, op, err)
}
