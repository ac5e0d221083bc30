// Package storage persists the operational audit trail: task lifecycle
// events and delivery failures. It deliberately does NOT persist tasks or
// rotations; chorebot state is in-memory and does not survive restarts.
package storage
