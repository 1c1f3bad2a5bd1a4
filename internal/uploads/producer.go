package uploads

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/megaerp/catalog-image-sync/pkg/logger"
)

const (
	objectFinalizeEvent  = "OBJECT_FINALIZE"
	payloadFormatJSONAPI = "JSON_API_V1"
)

// Producer turns storage object-created notifications into work envelopes on
// the processing queue, always with a fresh attempt counter of zero.
type Producer struct {
	publisher    publisher
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

// NewProducer wires the producer to the notification subscription and the
// processing topic publisher.
func NewProducer(processing *pubsub.Publisher, subscription *pubsub.Subscriber, logg *logger.Logger) (*Producer, error) {
	if processing == nil {
		return nil, errors.New("processing publisher is required")
	}
	if subscription == nil {
		return nil, errors.New("notification subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Producer{
		publisher:    newGCPPublisher(processing),
		subscription: subscription,
		logg:         logg,
	}, nil
}

// Run processes notifications until the context is canceled or the
// subscription errors.
func (p *Producer) Run(ctx context.Context) error {
	return p.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := p.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (p *Producer) process(ctx context.Context, msg *pubsub.Message) processResult {
	attrs := parseAttributes(msg.Attributes)
	fields := buildNotificationFields(msg.ID, attrs, nil)
	logCtx := p.logg.WithFields(ctx, fields)

	if attrs.EventType != objectFinalizeEvent {
		p.logg.Info(logCtx, "skipping non-finalize event")
		return processResult{ack: true}
	}
	if attrs.PayloadFormat != payloadFormatJSONAPI {
		p.logg.Warn(logCtx, "unsupported payload format")
		return processResult{ack: true}
	}

	payload, err := decodePayload(msg.Data)
	if err != nil {
		p.logg.Error(logCtx, "failed to decode payload", err)
		return processResult{ack: true}
	}

	var notification storagePayload
	if err := json.Unmarshal(payload, &notification); err != nil {
		fields["payload_preview"] = previewBytes(payload, 800)
		fields["payload_len"] = len(payload)
		logCtx = p.logg.WithFields(ctx, fields)
		p.logg.Error(logCtx, "failed to unmarshal payload", err)
		return processResult{ack: true}
	}

	if strings.TrimSpace(notification.Name) == "" {
		fields = buildNotificationFields(msg.ID, attrs, &notification)
		logCtx = p.logg.WithFields(ctx, fields)
		p.logg.Error(logCtx, "payload missing storage object name", fmt.Errorf("empty name"))
		return processResult{ack: true}
	}

	fields = buildNotificationFields(msg.ID, attrs, &notification)
	logCtx = p.logg.WithFields(ctx, fields)

	env := Envelope{ObjectKey: notification.Name, Attempts: 0}
	if _, err := publishEnvelope(ctx, p.publisher, env); err != nil {
		// Enqueue failures propagate to the trigger: nacking hands the
		// notification back to the subscription's own redelivery policy.
		p.logg.Error(logCtx, "failed to enqueue upload for processing", err)
		return processResult{nack: true}
	}

	p.logg.Info(logCtx, "upload enqueued for processing")
	return processResult{ack: true}
}

type storageAttributes struct {
	EventType     string
	BucketID      string
	ObjectID      string
	PayloadFormat string
}

func parseAttributes(attrs map[string]string) storageAttributes {
	return storageAttributes{
		EventType:     attrs["eventType"],
		BucketID:      attrs["bucketId"],
		ObjectID:      attrs["objectId"],
		PayloadFormat: attrs["payloadFormat"],
	}
}

type storagePayload struct {
	Name        string `json:"name"`
	Bucket      string `json:"bucket"`
	Generation  string `json:"generation"`
	ContentType string `json:"contentType"`
	Size        string `json:"size"`
}

func buildNotificationFields(messageID string, attrs storageAttributes, payload *storagePayload) map[string]any {
	fields := map[string]any{
		"message_id": messageID,
		"event_type": attrs.EventType,
		"bucket":     firstNonEmpty(attrs.BucketID, payloadBucket(payload)),
	}
	if payload != nil {
		fields["object_key"] = payload.Name
	}
	return fields
}

func payloadBucket(p *storagePayload) string {
	if p == nil {
		return ""
	}
	return p.Bucket
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func decodePayload(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("payload empty")
	}
	if decoded, err := base64.StdEncoding.DecodeString(string(data)); err == nil {
		return decoded, nil
	}
	return data, nil
}

func previewBytes(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "...(truncated)"
}
