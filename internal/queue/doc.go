// Package queue provides the bounded two-level priority queue that sits in
// front of both pipeline stages. High-priority items always drain before
// normal ones, and a full queue makes room for high-priority arrivals by
// evicting the oldest normal item (or, failing that, the oldest high one).
package queue
