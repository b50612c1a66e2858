package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mizpos/terminal-link-go/internal/repository"
)

// CleanupJob is the periodic maintenance pass over the rendezvous state:
// expired pairings are deleted, terminals with lapsed heartbeats are flipped
// offline, and payment requests idle past the retention window are purged
// when finished and cancelled when still open. Requests deliberately outlive
// their pairing by that window, keeping them writable for a terminal
// reporting a late outcome.
type CleanupJob struct {
	pairingRepo      repository.PairingRepository
	requestRepo      repository.PaymentRequestRepository
	interval         time.Duration
	heartbeatTimeout time.Duration
	retention        time.Duration
	done             chan struct{}
}

func NewCleanupJob(
	pairingRepo repository.PairingRepository,
	requestRepo repository.PaymentRequestRepository,
	interval time.Duration,
	heartbeatTimeout time.Duration,
	retention time.Duration,
) *CleanupJob {
	return &CleanupJob{
		pairingRepo:      pairingRepo,
		requestRepo:      requestRepo,
		interval:         interval,
		heartbeatTimeout: heartbeatTimeout,
		retention:        retention,
		done:             make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	j.runCleanup(ctx, "expired pairings", j.pairingRepo.DeleteExpired)
	j.runCleanup(ctx, "stale terminal connections", func(ctx context.Context) (int64, error) {
		return j.pairingRepo.DisconnectStale(ctx, time.Now().Add(-j.heartbeatTimeout))
	})
	j.runCleanup(ctx, "finished payment requests", func(ctx context.Context) (int64, error) {
		return j.requestRepo.DeleteFinishedBefore(ctx, time.Now().Add(-j.retention))
	})
	j.runCleanup(ctx, "abandoned payment requests", func(ctx context.Context) (int64, error) {
		return j.requestRepo.CancelAbandonedBefore(ctx, time.Now().Add(-j.retention))
	})
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to clean up %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
