// Package dispenser answers "fewest units summing exactly to a request"
// queries over a fixed, strictly descending list of denominations that ends in
// the unit denomination 1. Supply of every denomination is unlimited.
//
// The search tries, at every step, to either use the largest denomination still
// under consideration (keeping it available for reuse) or to drop it for good.
// Sub-results are memoized per query by (remaining request, denomination index),
// so a Dispenser holds no mutable state and may be shared between goroutines.
package dispenser
