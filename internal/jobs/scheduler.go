package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"imagevault/internal/queue"
)

type TaskQueue interface {
	Enqueue(ctx context.Context, task queue.Task) error
}

type Scheduler struct {
	cron   *cron.Cron
	queue  TaskQueue
	spec   string
	window time.Duration
	log    zerolog.Logger
}

func NewScheduler(queue TaskQueue, spec string, window time.Duration, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:   c,
		queue:  queue,
		spec:   spec,
		window: window,
		log:    log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil || s.spec == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.spec, s.enqueueSweep); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) enqueueSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	since := time.Now().Add(-s.window)
	if err := s.queue.Enqueue(ctx, queue.Task{Type: queue.TaskSweep, Since: since.Unix()}); err != nil {
		s.log.Error().Err(err).Msg("enqueue sweep failed")
		return
	}
	s.log.Info().Time("since", since).Msg("thumbnail sweep enqueued")
}
