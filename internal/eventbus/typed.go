package eventbus

// Filter subscribes to the bus and forwards only events of type T on the
// returned channel. The forwarding goroutine exits when the bus closes the
// underlying subscription.
func Filter[T any](bus EventBus) <-chan T {
	in := bus.Subscribe()
	out := make(chan T, subscriberBuffer)
	go func() {
		defer close(out)
		for e := range in {
			if ev, ok := e.(T); ok {
				select {
				case out <- ev:
				default:
				}
			}
		}
	}()
	return out
}
