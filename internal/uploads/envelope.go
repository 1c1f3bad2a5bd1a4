package uploads

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/megaerp/catalog-image-sync/pkg/errors"
)

var validate = validator.New()

// Envelope is the retry-tracking wrapper around one queued unit of work. The
// queue is its only store: a new copy with attempts+1 is published on every
// retry, and the terminal copy carries Extra when it lands on the DLQ.
type Envelope struct {
	ObjectKey string         `json:"objectKey" validate:"required"`
	Attempts  int            `json:"attempts" validate:"gte=0"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Encode serializes the envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding envelope")
	}
	return data, nil
}

// DecodeEnvelope parses and validates a queue message body.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding envelope")
	}
	if err := validate.Struct(env); err != nil {
		return Envelope{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid envelope")
	}
	return env, nil
}
