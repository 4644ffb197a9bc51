// Package api exposes a read-only REST surface over the running bot: cycle
// run history, the account roster (addresses only), a health probe and the
// Prometheus metrics endpoint.
package api
