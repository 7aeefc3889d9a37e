package tts

// Status is the lifecycle state reported for a keyed task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPlaying   Status = "playing"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further event follows s.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// StatusListener receives status events. It is called synchronously from the
// pipeline. pending and evicted-cancelled events are delivered while a queue
// lock is held, so a listener must return quickly and must not call
// Service.Enqueue, Service.QueueLengths, Service.Close or
// Service.SetStatusListener (or the package-level Enqueue and
// SetStatusListener); each of those deadlocks. Service.Settings and
// Service.UpdateSettings are safe. Listeners that need more should hand the
// event to another goroutine, for example over a buffered channel with a
// non-blocking send.
type StatusListener func(room int64, key string, status Status)
