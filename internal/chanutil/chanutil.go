// Package chanutil holds small channel helpers shared by components that
// publish a single latest value to a slow or uninterested reader (the
// scanner's ScanResult, the risk manager's KillSignal) rather than a queue of
// every value produced.
package chanutil

// ReplaceLatest sends v on ch without blocking. If ch's buffer is full, the
// stale buffered value is drained first so v — the newest value — is always
// what a reader sees next, instead of a value the producer has already
// superseded.
func ReplaceLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
