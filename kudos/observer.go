package kudos

import (
	"context"
	"log"
	"time"
)

// Event describes one successful credit.
type Event struct {
	ID    string
	From  Principal
	To    Principal
	Count KudoCount // recipient's count after the credit
	At    time.Time
}

// Observer receives an Event after every committed credit. Observers are
// advisory: they cannot fail or roll back the credit.
type Observer interface {
	KudoGiven(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, e Event)

func (f ObserverFunc) KudoGiven(ctx context.Context, e Event) { f(ctx, e) }

// Observers fans an event out to each observer in order. A panicking
// observer does not stop the ones after it.
type Observers []Observer

func (o Observers) KudoGiven(ctx context.Context, e Event) {
	for _, obs := range o {
		if obs != nil {
			deliver(ctx, obs, e)
		}
	}
}

// deliver calls obs and logs instead of propagating a panic.
func deliver(ctx context.Context, obs Observer, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Warning: kudo observer panicked: %v", r)
		}
	}()
	obs.KudoGiven(ctx, e)
}

// LogObserver writes one line per credit.
type LogObserver struct {
	Logger *log.Logger // nil uses the standard logger
}

func (o LogObserver) KudoGiven(_ context.Context, e Event) {
	if o.Logger == nil {
		log.Printf("Kudo given from %s to %s", e.From, e.To)
		return
	}
	o.Logger.Printf("Kudo given from %s to %s", e.From, e.To)
}

type nopObserver struct{}

func (nopObserver) KudoGiven(context.Context, Event) {}
