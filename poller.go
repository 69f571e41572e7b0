package main

import (
	"context"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/yuichiro-h/ecs-alarm-autoscaler/provider"
	"go.uber.org/zap"
)

type Dispatcher interface {
	Handle(ctx context.Context, n provider.Notification) error
}

// Poller receives notifications one at a time and dispatches each before
// receiving the next.
type Poller struct {
	source     provider.NotificationSource
	dispatcher Dispatcher
	wait       time.Duration
	backoff    backoff.BackOff
	clock      clock.Clock
	logger     *zap.Logger
}

// newReceiveBackOff backs off between failed receives. A zero maxElapsed
// retries until shutdown.
func newReceiveBackOff(maxElapsed time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	return b
}

func NewPoller(source provider.NotificationSource, dispatcher Dispatcher, wait time.Duration, b backoff.BackOff, clk clock.Clock, logger *zap.Logger) *Poller {
	return &Poller{
		source:     source,
		dispatcher: dispatcher,
		wait:       wait,
		backoff:    b,
		clock:      clk,
		logger:     logger,
	}
}

// Run polls until ctx is cancelled, which makes it return nil. It returns an
// error only when receive failures outlast the backoff.
func (p *Poller) Run(ctx context.Context) error {
	p.backoff.Reset()
	for {
		if ctx.Err() != nil {
			return nil
		}

		p.logger.Debug("polling for messages", zap.Duration("wait", p.wait))
		n, ok, err := p.source.Receive(ctx, p.wait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d := p.backoff.NextBackOff()
			if d == backoff.Stop {
				return errors.Wrap(err, "gave up receiving messages")
			}
			p.logger.Error("failed to receive message",
				zap.Duration("retry_in", d),
				zap.String("cause", fmt.Sprintf("%+v", err)))
			if !p.sleep(ctx, d) {
				return nil
			}
			continue
		}
		p.backoff.Reset()
		if !ok {
			continue
		}

		// Shutdown interrupts receiving, not a notification already in hand.
		if err := p.dispatcher.Handle(context.WithoutCancel(ctx), n); err != nil {
			p.logger.Error("failed to handle message",
				zap.String("message_id", n.ID),
				zap.String("cause", fmt.Sprintf("%+v", err)))
		}
	}
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) bool {
	timer := p.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C():
		return true
	}
}
