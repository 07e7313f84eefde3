package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"funnelgram/bot/funnel"
	"funnelgram/entity"
	"funnelgram/internal/lib/sl"
)

// Store persists campaigns and their audience snapshots.
type Store interface {
	GetBroadcast(ctx context.Context, id string) (*entity.Broadcast, error)
	SaveBroadcast(ctx context.Context, b *entity.Broadcast) error
	SaveAudience(ctx context.Context, broadcastID string, rcpts []entity.Recipient) error
	LoadAudience(ctx context.Context, broadcastID string) ([]entity.Recipient, error)
	ListDueScheduled(ctx context.Context, now time.Time) ([]entity.Broadcast, error)
}

// AudienceSource resolves an audience filter into concrete recipients.
type AudienceSource interface {
	Audience(ctx context.Context, botID string, f entity.AudienceFilter) ([]entity.Recipient, error)
}

// ProgressSink receives live counter updates during a run.
type ProgressSink interface {
	BroadcastProgress(b *entity.Broadcast)
}

// Config tunes delivery pacing and resilience.
type Config struct {
	Workers       int           // concurrent sends
	RatePerSecond float64       // global send rate cap
	RetryLimit    int           // attempts per recipient for transient errors
	FailurePause  int           // consecutive failures before auto-pause, 0 disables
	SchedulerTick time.Duration // poll interval for due scheduled campaigns
	PersistEvery  int           // recipients between counter persistence
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 25
	}
	if c.RetryLimit <= 0 {
		c.RetryLimit = 3
	}
	if c.SchedulerTick <= 0 {
		c.SchedulerTick = 30 * time.Second
	}
	if c.PersistEvery <= 0 {
		c.PersistEvery = 25
	}
	return c
}

// Processor runs broadcast campaigns: it snapshots the audience, paces sends
// through a shared rate limiter and a bounded worker pool, and persists the
// cursor so pause and restart resume instead of re-sending.
type Processor struct {
	store    Store
	audience AudienceSource
	sender   funnel.Sender
	progress ProgressSink
	cfg      Config
	log      *slog.Logger

	mu    sync.Mutex
	runs  map[string]context.CancelFunc
	stops map[string]entity.BroadcastStatus
	wg    sync.WaitGroup
}

// NewProcessor creates a broadcast processor.
func NewProcessor(store Store, audience AudienceSource, sender funnel.Sender,
	cfg Config, log *slog.Logger) *Processor {
	return &Processor{
		store:    store,
		audience: audience,
		sender:   sender,
		cfg:      cfg.withDefaults(),
		log:      log.With(sl.Module("broadcast")),
		runs:     make(map[string]context.CancelFunc),
		stops:    make(map[string]entity.BroadcastStatus),
	}
}

// SetProgressSink attaches a live progress consumer.
func (p *Processor) SetProgressSink(sink ProgressSink) {
	p.progress = sink
}

// Start transitions a draft or scheduled campaign to sending. The audience
// is snapshotted here; later subscriber changes do not affect this run.
func (p *Processor) Start(ctx context.Context, id string) error {
	b, err := p.store.GetBroadcast(ctx, id)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("broadcast %s not found", id)
	}
	if !b.CanStart() {
		return fmt.Errorf("broadcast %s cannot start from status %s", id, b.Status)
	}

	rcpts, err := p.audience.Audience(ctx, b.BotID, b.Filter)
	if err != nil {
		return fmt.Errorf("resolving audience: %w", err)
	}
	if err := p.store.SaveAudience(ctx, b.ID, rcpts); err != nil {
		return fmt.Errorf("saving audience snapshot: %w", err)
	}

	now := time.Now()
	b.Status = entity.BroadcastSending
	b.Total = len(rcpts)
	b.Cursor = 0
	b.StartedAt = &now
	if err := p.store.SaveBroadcast(ctx, b); err != nil {
		return err
	}

	p.log.Info("broadcast started",
		slog.String("broadcast_id", b.ID),
		slog.Int("total", b.Total),
	)
	p.launch(b, rcpts)
	return nil
}

// Resume continues a paused campaign from its persisted cursor over the
// original audience snapshot.
func (p *Processor) Resume(ctx context.Context, id string) error {
	b, err := p.store.GetBroadcast(ctx, id)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("broadcast %s not found", id)
	}
	if !b.CanResume() {
		return fmt.Errorf("broadcast %s cannot resume from status %s", id, b.Status)
	}

	rcpts, err := p.store.LoadAudience(ctx, b.ID)
	if err != nil {
		return fmt.Errorf("loading audience snapshot: %w", err)
	}

	b.Status = entity.BroadcastSending
	if err := p.store.SaveBroadcast(ctx, b); err != nil {
		return err
	}

	p.log.Info("broadcast resumed",
		slog.String("broadcast_id", b.ID),
		slog.Int("cursor", b.Cursor),
	)
	p.launch(b, rcpts)
	return nil
}

// Pause stops delivery after in-flight sends finish. The cursor is persisted
// by the run loop on exit.
func (p *Processor) Pause(ctx context.Context, id string) error {
	b, err := p.store.GetBroadcast(ctx, id)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("broadcast %s not found", id)
	}
	if !b.CanPause() {
		return fmt.Errorf("broadcast %s cannot pause from status %s", id, b.Status)
	}
	p.stopRun(id, entity.BroadcastPaused)
	p.log.Info("broadcast paused", slog.String("broadcast_id", id))
	return nil
}

// Cancel terminally stops a campaign in any non-final status.
func (p *Processor) Cancel(ctx context.Context, id string) error {
	b, err := p.store.GetBroadcast(ctx, id)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("broadcast %s not found", id)
	}
	if !b.CanCancel() {
		return fmt.Errorf("broadcast %s cannot cancel from status %s", id, b.Status)
	}

	// An active run persists the terminal status itself, together with the
	// final counters of its in-flight chunk.
	if p.stopRun(id, entity.BroadcastCancelled) {
		p.log.Info("broadcast cancelled", slog.String("broadcast_id", id))
		return nil
	}

	b.Status = entity.BroadcastCancelled
	if err := p.store.SaveBroadcast(ctx, b); err != nil {
		return err
	}
	p.log.Info("broadcast cancelled", slog.String("broadcast_id", id))
	return nil
}

// RunScheduler polls for due scheduled campaigns until ctx is cancelled.
func (p *Processor) RunScheduler(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.SchedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := p.store.ListDueScheduled(ctx, time.Now())
			if err != nil {
				p.log.Error("listing due broadcasts", sl.Err(err))
				continue
			}
			for _, b := range due {
				if err := p.Start(ctx, b.ID); err != nil {
					p.log.Error("starting scheduled broadcast",
						slog.String("broadcast_id", b.ID), sl.Err(err))
				}
			}
		}
	}
}

// Shutdown stops all active runs and waits for them to persist.
func (p *Processor) Shutdown() {
	p.mu.Lock()
	for _, cancel := range p.runs {
		cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Processor) launch(b *entity.Broadcast, rcpts []entity.Recipient) {
	runCtx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.runs[b.ID] = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.runs, b.ID)
			delete(p.stops, b.ID)
			p.mu.Unlock()
			cancel()
		}()
		p.run(runCtx, b, rcpts)
	}()
}

// stopRun interrupts an active run and records which status it should land
// in. It reports whether a run was actually active.
func (p *Processor) stopRun(id string, status entity.BroadcastStatus) bool {
	p.mu.Lock()
	cancel, ok := p.runs[id]
	if ok {
		p.stops[id] = status
	}
	p.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (p *Processor) takeStop(id string) (entity.BroadcastStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	status, ok := p.stops[id]
	if ok {
		delete(p.stops, id)
	}
	return status, ok
}

// run is the delivery loop. Recipients are processed in worker-sized chunks;
// cancellation takes effect between chunks, so every attempted recipient gets
// a recorded outcome exactly once.
func (p *Processor) run(ctx context.Context, b *entity.Broadcast, rcpts []entity.Recipient) {
	log := p.log.With(slog.String("broadcast_id", b.ID))
	limiter := rate.NewLimiter(rate.Limit(p.cfg.RatePerSecond), p.cfg.Workers)

	consecutiveFailures := 0
	sincePersist := 0

	for b.Cursor < len(rcpts) {
		select {
		case <-ctx.Done():
			status, ok := p.takeStop(b.ID)
			if !ok {
				status = entity.BroadcastPaused
			}
			b.Status = status
			p.persist(log, b)
			return
		default:
		}

		end := b.Cursor + p.cfg.Workers
		if end > len(rcpts) {
			end = len(rcpts)
		}
		chunk := rcpts[b.Cursor:end]

		var sent, failed, blocked atomic.Int64
		g, chunkCtx := errgroup.WithContext(context.WithoutCancel(ctx))
		g.SetLimit(p.cfg.Workers)
		for _, r := range chunk {
			r := r
			g.Go(func() error {
				if err := limiter.Wait(chunkCtx); err != nil {
					failed.Add(1)
					return nil
				}
				switch err := p.deliver(chunkCtx, b, r); {
				case err == nil:
					sent.Add(1)
				case errors.Is(err, funnel.ErrRecipientBlocked):
					blocked.Add(1)
				default:
					failed.Add(1)
					log.Warn("send failed",
						slog.Int64("user_id", r.UserID), sl.Err(err))
				}
				return nil
			})
		}
		_ = g.Wait()

		b.Sent += sent.Load()
		b.Failed += failed.Load()
		b.Blocked += blocked.Load()
		b.Cursor = end
		sincePersist += len(chunk)

		if sent.Load() > 0 || blocked.Load() > 0 {
			consecutiveFailures = 0
		} else {
			consecutiveFailures += int(failed.Load())
		}
		if p.cfg.FailurePause > 0 && consecutiveFailures >= p.cfg.FailurePause {
			log.Error("auto-pausing after consecutive delivery failures",
				slog.Int("failures", consecutiveFailures))
			b.Status = entity.BroadcastPaused
			p.persist(log, b)
			return
		}

		if sincePersist >= p.cfg.PersistEvery {
			sincePersist = 0
			p.persist(log, b)
		}
	}

	// a cancel that landed during the final chunk still wins
	if status, ok := p.takeStop(b.ID); ok && status == entity.BroadcastCancelled {
		b.Status = entity.BroadcastCancelled
		p.persist(log, b)
		return
	}

	now := time.Now()
	b.Status = entity.BroadcastCompleted
	b.CompletedAt = &now
	p.persist(log, b)
	log.Info("broadcast completed",
		slog.Int("total", b.Total),
		slog.Int64("sent", b.Sent),
		slog.Int64("delivered", b.Delivered),
		slog.Int64("failed", b.Failed),
		slog.Int64("blocked", b.Blocked),
	)
}

// deliver sends to one recipient, retrying transient errors. A blocked
// recipient is terminal immediately.
func (p *Processor) deliver(ctx context.Context, b *entity.Broadcast, r entity.Recipient) error {
	msg := &entity.OutboundMessage{
		ChatID:   r.ChatID,
		Content:  b.Content,
		Keyboard: b.Keyboard,
	}

	var err error
	for attempt := 1; attempt <= p.cfg.RetryLimit; attempt++ {
		err = p.sender.Send(ctx, msg)
		if err == nil || errors.Is(err, funnel.ErrRecipientBlocked) {
			return err
		}
		if attempt < p.cfg.RetryLimit {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
	}
	return err
}

func (p *Processor) persist(log *slog.Logger, b *entity.Broadcast) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	b.UpdatedAt = time.Now()
	if err := p.store.SaveBroadcast(ctx, b); err != nil {
		log.Error("persisting broadcast progress", sl.Err(err))
	}
	if p.progress != nil {
		p.progress.BroadcastProgress(b)
	}
}
