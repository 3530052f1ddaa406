package worldmodel

import "github.com/pkg/errors"

// ErrStateUnavailable is returned when the scene is read before any state was ever published.
var ErrStateUnavailable = errors.New("world state unavailable: no state has been observed yet")

// errMonitorClosed is returned when publishing to a closed StateMonitor.
var errMonitorClosed = errors.New("state monitor is closed")
