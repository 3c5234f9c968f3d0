/*
Package bus implements the rift fan-out broadcast bus: one
ordered, bounded-buffer channel per active rift, delivering every
protocol envelope published for a rift to each of its current
subscribers (one per joined WebSocket session).

A rift's channel and subscriber set are created lazily on first
Subscribe and torn down once the last subscriber leaves, so idle rifts
hold no goroutines or memory. Publish never blocks the publisher: a
subscriber too slow to keep up drops messages rather than stalling the
rift for everyone else.
*/
package bus
