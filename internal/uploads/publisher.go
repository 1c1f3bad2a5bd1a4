package uploads

import (
	"context"
	"errors"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
)

const defaultPublishTimeout = 15 * time.Second

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// publishEnvelope sends one envelope to the given queue and waits for the
// server acknowledgment.
func publishEnvelope(ctx context.Context, pub publisher, env Envelope) (string, error) {
	if pub == nil {
		return "", errors.New("publisher is not configured")
	}

	data, err := env.Encode()
	if err != nil {
		return "", err
	}

	msg := &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"publish_id": uuid.NewString(),
			"object_key": env.ObjectKey,
			"attempts":   strconv.Itoa(env.Attempts),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return "", errors.New("publisher returned no result")
	}
	return result.Get(publishCtx)
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
