package job

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/prisonops/lifecycle/internal/util"
	"github.com/prisonops/lifecycle/logger"
)

// StartOptions configures a job run. A zero Date means today.
type StartOptions struct {
	Date           time.Time
	ExpireUnmarked bool
}

// Service starts jobs: it records the job then dispatches it.
type Service struct {
	store      *Store
	dispatcher *Dispatcher
	location   *time.Location
	now        func() time.Time
	log        *zap.SugaredLogger
}

// NewService creates a job service. "Today" is computed in loc.
func NewService(store *Store, dispatcher *Dispatcher, loc *time.Location, log *zap.SugaredLogger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		location:   loc,
		now:        time.Now,
		log:        logger.AddJobSymbol(log.Named("job")),
	}
}

// Start records a job of jobType and sends its per-prison messages.
// The job is returned even when dispatch fails; it then never becomes successful.
func (s *Service) Start(ctx context.Context, jobType JobType, opts StartOptions) (*Job, error) {
	j, err := s.store.Create(ctx, jobType)
	if err != nil {
		return nil, err
	}

	date := opts.Date
	if date.IsZero() {
		date = util.Today(s.now(), s.location)
	}

	s.log.Infow("Starting job", logger.FieldJobID, j.ID, logger.FieldJobType, jobType, logger.FieldDate, util.FormatDate(date))

	if err := s.dispatcher.SendEvents(ctx, j, EventOptions{Date: util.DateOf(date), ExpireUnmarked: opts.ExpireUnmarked}); err != nil {
		return j, err
	}
	return j, nil
}

// Store returns the job registry
func (s *Service) Store() *Store {
	return s.store
}
