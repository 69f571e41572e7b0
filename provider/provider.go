// Package provider defines the collaborators the autoscaler depends on and
// their AWS implementations.
package provider

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a named service does not exist in the cluster.
var ErrNotFound = errors.New("not found")

// Notification is a single message received from a NotificationSource.
type Notification struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// NotificationSource delivers alarm notifications at least once.
type NotificationSource interface {
	// Receive waits up to wait for one notification. ok is false when
	// nothing arrived in time.
	Receive(ctx context.Context, wait time.Duration) (n Notification, ok bool, err error)
	Acknowledge(ctx context.Context, n Notification) error
}

// AlarmOracle reports the current state of a named alarm.
type AlarmOracle interface {
	IsBreaching(ctx context.Context, alarmName string) (bool, error)
}

// CapacityProvider reads and writes the desired task count of a service.
type CapacityProvider interface {
	GetDesiredCapacity(ctx context.Context, serviceName string) (int, error)
	SetDesiredCapacity(ctx context.Context, serviceName string, capacity int) error
}

// CooldownStore persists the time of the last successful scaling per key.
type CooldownStore interface {
	// GetLastScalingTime returns the zero time when no record exists for key.
	GetLastScalingTime(ctx context.Context, key string) (time.Time, error)
	SetLastScalingTime(ctx context.Context, key string, t time.Time) error
}
