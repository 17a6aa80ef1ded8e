// Package store defines the persistence model for signals, pulses, alert
// destinations and alerts. Implementations live in internal/storage; this
// package must not import database drivers.
package store
