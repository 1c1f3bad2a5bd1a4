package uploads

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/gabriel-vasile/mimetype"
	"github.com/megaerp/catalog-image-sync/internal/catalog"
	"github.com/megaerp/catalog-image-sync/pkg/logger"
	"github.com/megaerp/catalog-image-sync/pkg/metrics"
)

const (
	workerName = "upload-consumer"

	principalPosition = 0
	// A principal entry must serve the main, small and thumbnail display
	// roles; fewer than two tags means a prior upload only partially applied.
	principalMinRoles = 2
)

// Pipeline step names, used in logs and metrics labels.
const (
	stepResolveIdentity = "resolve_identity"
	stepFetchProduct    = "fetch_product"
	stepReconcileEntry  = "reconcile_existing_entry"
	stepFetchImage      = "fetch_image_bytes"
	stepUploadImage     = "upload_image"
	stepPrincipalRepair = "principal_repair"
)

type catalogAPI interface {
	GetProductByCode(ctx context.Context, code string) (*catalog.Product, error)
	RemoveImage(ctx context.Context, sku string, entryID int64) error
	UploadImage(ctx context.Context, in catalog.UploadInput) error
}

type objectStore interface {
	Object(ctx context.Context, key string, asBase64 bool) ([]byte, error)
}

type requeuer interface {
	Retry(ctx context.Context, objectKey string, attempts int) error
	DeadLetter(ctx context.Context, objectKey string, attempts int, extra map[string]any) error
}

// Consumer drives one upload message through the sync workflow: resolve the
// product identity from the object key, reconcile any entry already occupying
// the gallery slot, fetch the image and upload it, then repair the principal
// slot's role tags when position 0 changed. Any step failure re-enqueues the
// envelope with attempts+1; an exhausted budget dead-letters it instead. No
// failure escapes a single message's processing.
type Consumer struct {
	catalog      catalogAPI
	store        objectStore
	queue        requeuer
	subscription *pubsub.Subscriber
	logg         *logger.Logger
	metrics      *metrics.PipelineMetrics
	maxAttempts  int
}

type ConsumerParams struct {
	Catalog      catalogAPI
	Store        objectStore
	Queue        requeuer
	Subscription *pubsub.Subscriber
	Logger       *logger.Logger
	Metrics      *metrics.PipelineMetrics
	MaxAttempts  int
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Catalog == nil {
		return nil, errors.New("catalog client is required")
	}
	if params.Store == nil {
		return nil, errors.New("object store is required")
	}
	if params.Queue == nil {
		return nil, errors.New("requeuer is required")
	}
	if params.Subscription == nil {
		return nil, errors.New("processing subscription is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Consumer{
		catalog:      params.Catalog,
		store:        params.Store,
		queue:        params.Queue,
		subscription: params.Subscription,
		logg:         params.Logger,
		metrics:      params.Metrics,
		maxAttempts:  maxAttempts,
	}, nil
}

// Run processes work messages until the context is canceled or the
// subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	start := time.Now()

	env, err := DecodeEnvelope(msg.Data)
	if err != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"message_id":      msg.ID,
			"payload_preview": previewBytes(msg.Data, 800),
		})
		c.logg.Error(logCtx, "failed to decode work message", err)
		// Without an object key there is nothing to re-enqueue; hand the raw
		// message back to the subscription's redelivery policy.
		return processResult{nack: true}
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"object_key": env.ObjectKey,
		"attempts":   env.Attempts,
	})
	c.logg.Info(logCtx, "processing upload message")

	if env.Attempts+1 > c.maxAttempts {
		c.logg.Error(logCtx, "max attempts reached", fmt.Errorf("attempts exhausted at %d", env.Attempts+1))
		if err := c.queue.DeadLetter(logCtx, env.ObjectKey, env.Attempts, map[string]any{
			"reason":    "Max attempts reached",
			"objectKey": env.ObjectKey,
			"attempts":  env.Attempts,
		}); err != nil {
			c.logg.Error(logCtx, "failed to dead-letter exhausted message", err)
		}
		c.metrics.IncOutcome(workerName, metrics.OutcomeDeadLetter)
		c.metrics.ObserveDuration(workerName, time.Since(start))
		return processResult{ack: true}
	}

	if step, err := c.handle(logCtx, env); err != nil {
		c.logg.Error(c.logg.WithField(logCtx, "step", step), "upload step failed", err)
		c.metrics.IncStepFailure(workerName, step)
		if retryErr := c.queue.Retry(logCtx, env.ObjectKey, env.Attempts); retryErr != nil {
			c.logg.Error(logCtx, "failed to re-enqueue message", retryErr)
		}
		c.metrics.IncOutcome(workerName, metrics.OutcomeRetry)
		c.metrics.ObserveDuration(workerName, time.Since(start))
		return processResult{ack: true}
	}

	c.logg.Info(logCtx, "upload processed")
	c.metrics.IncOutcome(workerName, metrics.OutcomeSuccess)
	c.metrics.ObserveDuration(workerName, time.Since(start))
	return processResult{ack: true}
}

// handle runs the workflow for one envelope and names the step that failed.
func (c *Consumer) handle(ctx context.Context, env Envelope) (string, error) {
	code, position, err := ParseObjectKey(env.ObjectKey)
	if err != nil {
		return stepResolveIdentity, err
	}

	ctx = c.logg.WithFields(ctx, map[string]any{
		"product_code": code,
		"position":     position,
	})

	product, err := c.catalog.GetProductByCode(ctx, code)
	if err != nil {
		return stepFetchProduct, err
	}
	if len(product.Items) == 0 {
		return stepFetchProduct, fmt.Errorf("no product found for code %q", code)
	}
	item := product.Items[0]
	ctx = c.logg.WithSKU(ctx, item.SKU)

	if entry := item.EntryAtPosition(position); entry != nil {
		c.logg.Warn(ctx, "position already occupied; removing existing entry")
		if err := c.catalog.RemoveImage(ctx, item.SKU, entry.ID); err != nil {
			return stepReconcileEntry, err
		}
		c.logg.Info(ctx, "existing entry removed")
	}

	image, err := c.store.Object(ctx, env.ObjectKey, true)
	if err != nil {
		return stepFetchImage, err
	}
	c.warnOnUnexpectedContent(ctx, image)

	if err := c.catalog.UploadImage(ctx, catalog.UploadInput{
		SKU:      item.SKU,
		Name:     item.Name,
		Position: position,
		Image:    string(image),
	}); err != nil {
		return stepUploadImage, err
	}

	if position == principalPosition {
		if err := c.repairPrincipal(ctx, code, string(image)); err != nil {
			return stepPrincipalRepair, err
		}
	}

	c.logg.Info(ctx, "image uploaded")
	return "", nil
}

// repairPrincipal re-validates the multi-role assignment of the principal
// slot. A crash between delete and upload, or an upload that only partially
// applied roles, can leave position 0 under-tagged; the only fix the catalog
// API allows is delete plus re-upload with the full role set. Re-running it
// against a fully tagged entry is a no-op.
func (c *Consumer) repairPrincipal(ctx context.Context, code, image string) error {
	product, err := c.catalog.GetProductByCode(ctx, code)
	if err != nil {
		return err
	}
	if len(product.Items) == 0 {
		return fmt.Errorf("no product found for code %q", code)
	}
	item := product.Items[0]

	entry := item.EntryAtPosition(principalPosition)
	if entry == nil || len(entry.Types) >= principalMinRoles {
		return nil
	}

	c.logg.Warn(ctx, "principal entry is missing display roles; re-uploading")

	if err := c.catalog.RemoveImage(ctx, item.SKU, entry.ID); err != nil {
		return err
	}
	if err := c.catalog.UploadImage(ctx, catalog.UploadInput{
		SKU:      item.SKU,
		Name:     item.Name,
		Position: principalPosition,
		Image:    image,
	}); err != nil {
		return err
	}

	c.logg.Info(ctx, "principal entry re-uploaded with full role set")
	return nil
}

// warnOnUnexpectedContent sniffs the fetched (base64-encoded) object and
// warns when it does not look like JPEG; uploads always label content
// image/jpeg, so a mismatch is worth surfacing in logs.
func (c *Consumer) warnOnUnexpectedContent(ctx context.Context, encoded []byte) {
	prefixLen := len(encoded)
	if prefixLen > 1024 {
		prefixLen = 1024
	}
	prefixLen -= prefixLen % 4

	raw, err := base64.StdEncoding.DecodeString(string(encoded[:prefixLen]))
	if err != nil || len(raw) == 0 {
		return
	}
	if detected := mimetype.Detect(raw); !detected.Is("image/jpeg") {
		c.logg.Warn(c.logg.WithField(ctx, "detected_mime", detected.String()), "object content does not look like jpeg")
	}
}
