package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// monitorJob watches a job until it reaches a terminal state. If the total
// timeout elapses first, the job is cancelled so workers stop spending
// provider budget on it.
func (o *Orchestrator) monitorJob(jobID string) {
	timeout := o.cfg.Worker.JobTotalTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	log.Debug().Str("job_id", jobID).Dur("timeout", timeout).Msg("job monitor started")

	for {
		select {
		case <-deadline.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			log.Warn().Str("job_id", jobID).Dur("timeout", timeout).Msg("job timeout reached, cancelling")
			_ = o.deps.Queue.CancelJob(ctx, jobID)
			st, ok, _ := o.deps.Status.Get(ctx, jobID)
			if !ok {
				st = Status{}
			}
			if st.Status != "success" && st.Status != "failed" {
				now := time.Now()
				st.Status = "failed"
				st.Message = "timed out"
				st.End = &now
				_ = o.deps.Status.Set(ctx, jobID, st)
			}
			cancel()
			return

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if cancelled, _ := o.deps.Queue.IsCancelled(ctx, jobID); cancelled {
				log.Info().Str("job_id", jobID).Msg("job cancelled, monitor stopping")
				cancel()
				return
			}
			st, ok, err := o.deps.Status.Get(ctx, jobID)
			cancel()
			if err != nil || !ok {
				continue
			}
			switch st.Status {
			case "success", "failed", "cancelled":
				log.Debug().Str("job_id", jobID).Str("status", st.Status).Msg("job monitor done")
				return
			}
		}
	}
}
