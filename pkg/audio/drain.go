package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to release a provider goroutine when the data of a stream is no
// longer wanted (e.g. the Boundaries channel of a cancelled synthesis).
func Drain[T any](ch <-chan T) {
	if ch == nil {
		return
	}
	for range ch {
	}
}
