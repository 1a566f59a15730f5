// Package orderbook implements the in-memory matching engine for a
// single tradable instrument. It keeps two chains (bid and ask), each
// a red-black tree of price levels holding sequence-ordered resting
// orders, and matches incoming limit and market orders under strict
// price-time priority.
//
// The book is a single-writer structure: all mutations must come from
// one goroutine (see the service package for the serialization point).
// Matching arithmetic is integer only; quantity is conserved exactly
// across every match step.
package orderbook
