// Package events provides the CloudEvents envelope, the broker publisher, and
// the inbound event router for the product service.
//
// Every event crossing the broker is wrapped in a CloudEvents 1.0 JSON
// envelope. Outbound event types live in the com.aioutlet namespace and are
// derived from the topic name; the correlation id of the originating request
// or inbound event is propagated on every envelope this service emits.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Envelope validation errors.
var (
	// ErrEnvelopeTypeEmpty indicates an envelope without an event type.
	ErrEnvelopeTypeEmpty = errors.New("envelope type cannot be empty")

	// ErrEnvelopeIDEmpty indicates an envelope without an id.
	ErrEnvelopeIDEmpty = errors.New("envelope id cannot be empty")

	// ErrEnvelopeBadSpecVersion indicates an unsupported CloudEvents version.
	ErrEnvelopeBadSpecVersion = errors.New("envelope specversion must be 1.0")

	// ErrEnvelopeDataInvalid indicates the payload could not be serialized.
	ErrEnvelopeDataInvalid = errors.New("envelope data could not be serialized")
)

const (
	// SpecVersion is the CloudEvents version this service speaks.
	SpecVersion = "1.0"

	// Source identifies this service in every emitted envelope.
	Source = "/product-service"

	// ContentType is the declared encoding of envelope data.
	ContentType = "application/json"

	// typePrefix and typeSuffix frame the versioned event type namespace,
	// e.g. topic product.badge.assigned -> com.aioutlet.product.badge.assigned.v1.
	typePrefix = "com.aioutlet."
	typeSuffix = ".v1"
)

// Envelope is the CloudEvents 1.0 wire shape consumed and produced by this
// service. Data stays raw so the router can defer payload decoding to the
// matched handler.
type Envelope struct {
	SpecVersion     string          `json:"specversion"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	ID              string          `json:"id"`
	Time            string          `json:"time"`
	Subject         string          `json:"subject,omitempty"`
	CorrelationID   string          `json:"correlationid,omitempty"`
	DataContentType string          `json:"datacontenttype,omitempty"`
	Data            json.RawMessage `json:"data"`
}

// TypeForTopic derives the namespaced event type from a broker topic name.
func TypeForTopic(topic string) string {
	return typePrefix + topic + typeSuffix
}

// NewEnvelope wraps a payload for the given topic. The envelope gets a fresh
// uuid and the current UTC instant; subject and correlation id come from opts.
func NewEnvelope(topic string, data any, opts PublishOptions) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnvelopeDataInvalid, err)
	}

	return &Envelope{
		SpecVersion:     SpecVersion,
		Type:            TypeForTopic(topic),
		Source:          Source,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC().Format(time.RFC3339),
		Subject:         opts.Subject,
		CorrelationID:   opts.CorrelationID,
		DataContentType: ContentType,
		Data:            raw,
	}, nil
}

// Validate checks the fields every envelope must carry before it is published
// or dispatched.
func (e *Envelope) Validate() error {
	if e.SpecVersion != SpecVersion {
		return fmt.Errorf("%w: got %q", ErrEnvelopeBadSpecVersion, e.SpecVersion)
	}

	if strings.TrimSpace(e.Type) == "" {
		return ErrEnvelopeTypeEmpty
	}

	if strings.TrimSpace(e.ID) == "" {
		return ErrEnvelopeIDEmpty
	}

	return nil
}

// DecodeData unmarshals the envelope payload into target.
func (e *Envelope) DecodeData(target any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: empty data", ErrEnvelopeDataInvalid)
	}

	if err := json.Unmarshal(e.Data, target); err != nil {
		return fmt.Errorf("%w: %w", ErrEnvelopeDataInvalid, err)
	}

	return nil
}

// ParseEnvelope decodes a raw broker message into an envelope. Messages that
// are not CloudEvents envelopes fail validation here, before any handler runs.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnvelopeDataInvalid, err)
	}

	if err := envelope.Validate(); err != nil {
		return nil, err
	}

	return &envelope, nil
}

// ProductSubject formats the conventional subject for product-scoped events.
func ProductSubject(productID string) string {
	return "product/" + productID
}

// JobSubject formats the conventional subject for import-job events.
func JobSubject(jobID string) string {
	return "import-job/" + jobID
}
