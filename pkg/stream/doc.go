// Package stream implements the publisher/subscriber/filter contracts that
// every thingflow pipeline is built from: a topic-scoped dispatch engine
// (Base), the filter combinator (Filter), the fatal-vs-in-band error
// taxonomy, and topology inspection for debugging a wired graph.
//
// Sources (package source) and stream operators (package operator) are
// built on top of Base and Filter; they hold no dispatch logic of their
// own beyond deciding what to dispatch and when.
package stream
