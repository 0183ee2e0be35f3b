// Package combus is a durable, in-process message bus.
//
// Independently-registered agents exchange structured envelopes through a
// mediating Broker with at-least-once delivery, retry with exponential
// backoff, dead-lettering, and crash recovery from an append-only journal.
//
// A producer registers recipients and sends payloads; a consumer polls
// Receive and resolves each task envelope with Ack. Failed acknowledgments
// reschedule the envelope with backoff until the retry budget is exhausted,
// at which point it is dead-lettered for inspection.
//
//	bus, err := combus.New("data", combus.WithMaxRetries(2))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer bus.Close()
//
//	bus.Register("codex", worker)
//	bus.Send("codex", map[string]any{"task": "ping"},
//		combus.WithSender("operator"), combus.WithTopic("ping"))
//
//	if delivery, ok := bus.Receive(time.Second); ok {
//		bus.Ack(delivery.Envelope.ID, true, nil)
//	}
//
// Every state transition is journaled before it takes effect in memory, so a
// fresh Broker pointed at the same directory rebuilds its queue and re-offers
// anything that was unacknowledged at the crash.
package combus
