package types

import (
	ierr "github.com/edulane/billing/internal/errors"
	"github.com/samber/lo"
)

type RunMode string

const (
	// ModeLocal runs the payment consumer against the in-process message bus
	ModeLocal RunMode = "local"
	// ModeConsumer runs the payment consumer against the configured broker
	ModeConsumer RunMode = "consumer"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// PubSubDriver selects the transport payment events arrive on
type PubSubDriver string

const (
	PubSubDriverMemory PubSubDriver = "memory"
	PubSubDriverKafka  PubSubDriver = "kafka"
)

func (d PubSubDriver) Validate() error {
	allowed := []PubSubDriver{PubSubDriverMemory, PubSubDriverKafka}
	if !lo.Contains(allowed, d) {
		return ierr.NewError("invalid pubsub driver").
			WithHint("Please provide a valid pubsub driver").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
				"driver":  d,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
