package uploads

import (
	"context"
	"errors"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/megaerp/catalog-image-sync/pkg/logger"
)

// Requeuer re-publishes work envelopes: back onto the processing queue with
// an incremented attempt counter, or onto the dead-letter queue once the
// attempt budget is spent.
type Requeuer struct {
	processing publisher
	deadLetter publisher
	logg       *logger.Logger
}

func NewRequeuer(processing, deadLetter *pubsub.Publisher, logg *logger.Logger) (*Requeuer, error) {
	if processing == nil {
		return nil, errors.New("processing publisher is required")
	}
	if deadLetter == nil {
		return nil, errors.New("dead-letter publisher is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Requeuer{
		processing: newGCPPublisher(processing),
		deadLetter: newGCPPublisher(deadLetter),
		logg:       logg,
	}, nil
}

// Retry re-enqueues the object key with attempts+1.
func (r *Requeuer) Retry(ctx context.Context, objectKey string, attempts int) error {
	env := Envelope{ObjectKey: objectKey, Attempts: attempts + 1}
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"object_key": objectKey,
		"attempts":   env.Attempts,
	})

	if _, err := publishEnvelope(ctx, r.processing, env); err != nil {
		r.logg.Error(logCtx, "failed to re-enqueue message", err)
		return err
	}
	r.logg.Info(logCtx, "message re-enqueued for retry")
	return nil
}

// DeadLetter publishes the terminal copy of the envelope, attempts frozen at
// the exhausted count, with diagnostic extra payload.
func (r *Requeuer) DeadLetter(ctx context.Context, objectKey string, attempts int, extra map[string]any) error {
	env := Envelope{ObjectKey: objectKey, Attempts: attempts + 1, Extra: extra}
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"object_key": objectKey,
		"attempts":   env.Attempts,
	})

	if _, err := publishEnvelope(ctx, r.deadLetter, env); err != nil {
		r.logg.Error(logCtx, "failed to publish to dead-letter queue", err)
		return err
	}
	r.logg.Info(logCtx, "message sent to dead-letter queue")
	return nil
}
