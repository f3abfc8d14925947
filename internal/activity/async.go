package activity

import (
	"context"
	"log"
	"time"
)

// emitTimeout is the max time allowed for a single async record.
const emitTimeout = 5 * time.Second

// EmitAsync records the event in a goroutine with a short timeout so the
// caller is not blocked. Errors are logged, never returned.
//
// sink and event may be nil; EmitAsync returns immediately without starting
// a goroutine. The goroutine uses context.Background() with emitTimeout so
// request cancellation does not abort an in-flight record.
func EmitAsync(sink Sink, ctx context.Context, event Event) {
	if sink == nil || event == nil {
		return
	}
	go func() {
		recordCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := sink.Record(recordCtx, event); err != nil {
			log.Printf("activity: async record failed: %v", err)
		}
	}()
}
