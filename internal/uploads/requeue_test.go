package uploads

import (
	"context"
	"testing"
)

func TestRequeuerRetryIncrementsAttempts(t *testing.T) {
	pub := &fakePublisher{}
	requeuer := &Requeuer{processing: pub, deadLetter: &fakePublisher{}, logg: newTestLogger()}

	if err := requeuer.Retry(context.Background(), "incoming/ABC123_2.jpg", 3); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.messages))
	}

	env, err := DecodeEnvelope(pub.messages[0].Data)
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	if env.ObjectKey != "incoming/ABC123_2.jpg" {
		t.Fatalf("ObjectKey = %q, want %q", env.ObjectKey, "incoming/ABC123_2.jpg")
	}
	if env.Attempts != 4 {
		t.Fatalf("Attempts = %d, want 4", env.Attempts)
	}
	if env.Extra != nil {
		t.Fatalf("Extra = %v, want nil", env.Extra)
	}
}

func TestRequeuerRetryPropagatesPublishError(t *testing.T) {
	pub := &fakePublisher{err: context.DeadlineExceeded}
	requeuer := &Requeuer{processing: pub, deadLetter: &fakePublisher{}, logg: newTestLogger()}

	if err := requeuer.Retry(context.Background(), "incoming/ABC123_2.jpg", 0); err == nil {
		t.Fatalf("Retry() expected error")
	}
}

func TestRequeuerDeadLetterCarriesExtra(t *testing.T) {
	processing := &fakePublisher{}
	dlq := &fakePublisher{}
	requeuer := &Requeuer{processing: processing, deadLetter: dlq, logg: newTestLogger()}

	extra := map[string]any{
		"reason":    "Max attempts reached",
		"objectKey": "incoming/ABC123_0.jpg",
		"attempts":  5,
	}
	if err := requeuer.DeadLetter(context.Background(), "incoming/ABC123_0.jpg", 5, extra); err != nil {
		t.Fatalf("DeadLetter() error = %v", err)
	}
	if len(processing.messages) != 0 {
		t.Fatalf("processing queue received %d messages, want 0", len(processing.messages))
	}
	if len(dlq.messages) != 1 {
		t.Fatalf("dead-letter queue received %d messages, want 1", len(dlq.messages))
	}

	env, err := DecodeEnvelope(dlq.messages[0].Data)
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	if env.Attempts != 6 {
		t.Fatalf("Attempts = %d, want 6", env.Attempts)
	}
	if env.Extra["reason"] != "Max attempts reached" {
		t.Fatalf("Extra[reason] = %v, want %q", env.Extra["reason"], "Max attempts reached")
	}
	if env.Extra["objectKey"] != "incoming/ABC123_0.jpg" {
		t.Fatalf("Extra[objectKey] = %v, want %q", env.Extra["objectKey"], "incoming/ABC123_0.jpg")
	}
}
