package history

import (
	"errors"
	"log/slog"

	"github.com/dotcommander/crew/internal/agent"
	"github.com/dotcommander/crew/internal/history/payload"
)

// Recorder logs settled tool calls into the index and payload store. It
// hangs off the manager as its call observer; recording failures are logged
// and never leak back into the call being recorded.
type Recorder struct {
	db       *DB
	payloads *payload.Store
	logger   *slog.Logger
}

// NewRecorder builds a recorder. The payload store may be nil, in which case
// only indexed metadata is kept.
func NewRecorder(db *DB, payloads *payload.Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{
		db:       db,
		payloads: payloads,
		logger:   logger,
	}
}

// Observe records one settled call.
func (r *Recorder) Observe(stats agent.CallStats) {
	rec := Record{
		ID:        NewCallID(),
		Server:    stats.Server,
		Tool:      stats.Tool,
		Status:    statusFor(stats.Err),
		StartedAt: stats.Start.UTC(),
		Duration:  stats.Duration,
	}
	if stats.Err != nil {
		rec.Err = stats.Err.Error()
	}

	if err := r.db.Save(rec); err != nil {
		r.logger.Warn("could not record call", "tool", stats.Tool, "error", err)
		return
	}
	if r.payloads == nil {
		return
	}
	p := payload.Payload{
		Params: stats.Args,
		Output: stats.Output,
		Err:    rec.Err,
	}
	if err := r.payloads.Write(rec.ID, p); err != nil {
		r.logger.Warn("could not store call payload", "tool", stats.Tool, "error", err)
	}
}

func statusFor(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, agent.ErrCallTimeout):
		return StatusTimeout
	default:
		return StatusError
	}
}
