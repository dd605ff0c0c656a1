package bench

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"quizbench/auth"
	"quizbench/recorder"
	"quizbench/session"
	"quizbench/strategy"
)

// Options configures one load run against a live session.
type Options struct {
	// BaseURL is the coordinator's HTTP root, e.g. http://localhost:8080.
	BaseURL string
	// WSURL is the websocket endpoint; derived from BaseURL when empty.
	WSURL string
	// JoinCode of the session every participant enters.
	JoinCode string
	// Count of synthetic participants.
	Count int
	// Stagger between consecutive connection attempts. Participant i
	// starts its credential exchange i*Stagger after Run begins, keeping
	// the handshake load on the coordinator bounded. Default 250ms.
	Stagger time.Duration
	// MaxThink bounds the random pre-answer delay. Default 1s.
	MaxThink time.Duration
	// Seed makes the fleet deterministic; participant i answers with a
	// strategy seeded Seed+i.
	Seed int64
	// AckTimeout, when non-zero, bounds each acknowledgment wait
	// instead of waiting forever.
	AckTimeout time.Duration
}

// Result summarizes a finished run.
type Result struct {
	Started     int
	Finished    int
	Failed      int
	Samples     int
	MeanLatency float64
	HasMean     bool
}

func (r Result) String() string {
	mean := "n/a"
	if r.HasMean {
		mean = fmt.Sprintf("%.4fs", r.MeanLatency)
	}
	return fmt.Sprintf("participants=%d finished=%d failed=%d samples=%d mean_latency=%s",
		r.Started, r.Finished, r.Failed, r.Samples, mean)
}

// Runner spawns Count independent synthetic participants. Each one owns
// its channel, dispatcher and strategy; only the latency recorder is
// shared. One participant failing never stops the rest.
type Runner struct {
	opts Options
	rec  *recorder.Recorder
	auth *auth.Client
}

func New(opts Options) *Runner {
	if opts.Stagger <= 0 {
		opts.Stagger = 250 * time.Millisecond
	}
	if opts.MaxThink <= 0 {
		opts.MaxThink = time.Second
	}
	if opts.WSURL == "" {
		opts.WSURL = "ws" + strings.TrimPrefix(opts.BaseURL, "http") + "/ws"
	}
	return &Runner{
		opts: opts,
		rec:  recorder.New(),
		auth: auth.NewClient(opts.BaseURL),
	}
}

// Recorder exposes the shared latency samples, e.g. for progress output
// while a run is still going.
func (r *Runner) Recorder() *recorder.Recorder {
	return r.rec
}

// Run blocks until every participant is done or ctx is canceled.
func (r *Runner) Run(ctx context.Context) Result {
	var wg sync.WaitGroup
	var finished, failed atomic.Int32

	for i := 0; i < r.opts.Count; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()

			// staggered admission
			timer := time.NewTimer(time.Duration(index) * r.opts.Stagger)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				failed.Add(1)
				return
			}

			if err := r.runParticipant(ctx, index); err != nil {
				log.Printf("participant %d: %v", index, err)
				failed.Add(1)
				return
			}
			finished.Add(1)
		}(i)
	}
	wg.Wait()

	res := Result{
		Started:  r.opts.Count,
		Finished: int(finished.Load()),
		Failed:   int(failed.Load()),
		Samples:  r.rec.Count(),
	}
	res.MeanLatency, res.HasMean = r.rec.Mean()
	return res
}

func (r *Runner) runParticipant(ctx context.Context, index int) error {
	email := fmt.Sprintf("guest-%d@guest.com", index)
	password := fmt.Sprintf("pw%d", index)

	token, err := r.auth.GuestToken(ctx, email, password)
	if err != nil {
		return fmt.Errorf("credential exchange: %w", err)
	}

	ch, err := session.Dial(ctx, r.opts.WSURL, token, &session.Options{
		AckTimeout: r.opts.AckTimeout,
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	strat := strategy.NewRandom(r.opts.Seed+int64(index), strategy.WithMaxThink(r.opts.MaxThink))
	p := session.NewParticipant(ch, email, strat)
	p.OnLatency = r.rec.Record
	p.OnSessionEnd = func(resultID string) {
		log.Printf("%s finished the session (results %s)", email, resultID)
	}

	if err := p.Run(ctx, r.opts.JoinCode); err != nil {
		ch.Close()
		return err
	}
	return nil
}
