package activity

import (
	"context"
	"encoding/json"
	"log"
)

// Sink receives activity events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// LogSink writes events to the process log as single-line JSON. It is the
// default sink when no external audit store is wired.
type LogSink struct{}

func (LogSink) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	log.Printf("activity: %s %s", event.Kind(), payload)
	return nil
}
