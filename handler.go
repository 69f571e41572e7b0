package main

import (
	"context"

	"code.cloudfoundry.org/clock"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
	"github.com/yuichiro-h/ecs-alarm-autoscaler/metrics"
	"github.com/yuichiro-h/ecs-alarm-autoscaler/provider"
	"github.com/yuichiro-h/ecs-alarm-autoscaler/scaling"
	"go.uber.org/zap"
)

// Notifier reports applied scaling activities.
type Notifier interface {
	Notify(ctx context.Context, e scaling.Event) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, scaling.Event) error { return nil }

type AlarmHandlerConfig struct {
	Source    provider.NotificationSource
	Alarms    provider.AlarmOracle
	Capacity  provider.CapacityProvider
	Cooldowns provider.CooldownStore

	// Optional.
	Notifier Notifier
	Patterns []glob.Glob
	Clock    clock.Clock
	Metrics  *metrics.Recorder
	Logger   *zap.Logger
}

// AlarmHandler turns one alarm notification into at most one scaling activity.
type AlarmHandler struct {
	source    provider.NotificationSource
	alarms    provider.AlarmOracle
	capacity  provider.CapacityProvider
	cooldowns provider.CooldownStore
	notifier  Notifier
	patterns  []glob.Glob
	clock     clock.Clock
	metrics   *metrics.Recorder
	logger    *zap.Logger
}

func NewAlarmHandler(c AlarmHandlerConfig) *AlarmHandler {
	h := &AlarmHandler{
		source:    c.Source,
		alarms:    c.Alarms,
		capacity:  c.Capacity,
		cooldowns: c.Cooldowns,
		notifier:  c.Notifier,
		patterns:  c.Patterns,
		clock:     c.Clock,
		metrics:   c.Metrics,
		logger:    c.Logger,
	}
	if h.notifier == nil {
		h.notifier = nopNotifier{}
	}
	if h.clock == nil {
		h.clock = clock.NewClock()
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

// Handle processes n and acknowledges it unless a collaborator fails, in which
// case the error is returned and n is left for redelivery.
func (h *AlarmHandler) Handle(ctx context.Context, n provider.Notification) error {
	logger := h.logger.With(zap.String("message_id", n.ID))
	h.metrics.Notification()

	alarm, err := decodeAlarm(n.Body)
	if err != nil {
		logger.Warn("invalid notification body", zap.Error(err))
		return h.discard(ctx, logger, n, "invalid_body")
	}
	logger = logger.With(zap.String("alarm_name", alarm.AlarmName))
	logger.Info("received alarm", zap.String("new_state", alarm.NewStateValue))

	if !h.matches(alarm.AlarmName) {
		logger.Info("alarm not matched by patterns")
		return h.discard(ctx, logger, n, "unmatched_alarm")
	}

	policy, err := scaling.ParsePolicy(alarm.AlarmDescription)
	if err != nil {
		logger.Warn("invalid alarm description",
			zap.String("description", alarm.AlarmDescription),
			zap.Error(err))
		return h.discard(ctx, logger, n, "invalid_description")
	}
	logger = logger.With(zap.String("service_name", policy.ServiceName))

	breaching, err := h.alarms.IsBreaching(ctx, alarm.AlarmName)
	if err != nil {
		h.metrics.Failure("alarm_state")
		return errors.Wrapf(err, "check state of alarm %s", alarm.AlarmName)
	}
	if !breaching {
		logger.Info("alarm is no longer alarming")
		return h.discard(ctx, logger, n, "stale_alarm")
	}

	current, err := h.capacity.GetDesiredCapacity(ctx, policy.ServiceName)
	if err != nil {
		h.metrics.Failure("get_capacity")
		return errors.Wrapf(err, "get desired capacity of %s", policy.ServiceName)
	}

	lastScaling, err := h.cooldowns.GetLastScalingTime(ctx, alarm.AlarmName)
	if err != nil {
		h.metrics.Failure("get_cooldown")
		return errors.Wrapf(err, "get last scaling time of %s", alarm.AlarmName)
	}

	now := h.clock.Now()
	event := scaling.Decide(policy, alarm.AlarmName, current, lastScaling, now)
	h.metrics.Decision(event.Decision.String())

	fields := []zap.Field{
		zap.String("policy", policy.String()),
		zap.Int("current_capacity", event.CurrentCapacity),
		zap.Int("proposed_capacity", event.ProposedCapacity),
		zap.String("decision", event.Decision.String()),
	}
	if event.Decision != scaling.Applied {
		if event.Decision == scaling.SkippedCooldown {
			fields = append(fields, zap.Duration("cooldown_remaining", event.CooldownRemaining))
		}
		logger.Info("skipping scaling activity", fields...)
		return h.acknowledge(ctx, logger, n)
	}

	if err := h.capacity.SetDesiredCapacity(ctx, policy.ServiceName, event.ProposedCapacity); err != nil {
		h.metrics.Failure("set_capacity")
		return errors.Wrapf(err, "set desired capacity of %s", policy.ServiceName)
	}
	logger.Info("scaled service", fields...)

	// The service is already scaled; a failed write here shortens the next cooldown.
	if err := h.cooldowns.SetLastScalingTime(ctx, alarm.AlarmName, now); err != nil {
		h.metrics.Failure("set_cooldown")
		logger.Error("failed to record last scaling time", append(fields, zap.Error(err))...)
		return errors.Wrapf(err, "set last scaling time of %s", alarm.AlarmName)
	}

	if err := h.notifier.Notify(ctx, event); err != nil {
		logger.Warn("failed to notify scaling activity", zap.Error(err))
	}

	return h.acknowledge(ctx, logger, n)
}

func (h *AlarmHandler) matches(alarmName string) bool {
	if len(h.patterns) == 0 {
		return true
	}
	for _, p := range h.patterns {
		if p.Match(alarmName) {
			return true
		}
	}
	return false
}

func (h *AlarmHandler) discard(ctx context.Context, logger *zap.Logger, n provider.Notification, reason string) error {
	h.metrics.Discarded(reason)
	return h.acknowledge(ctx, logger, n)
}

func (h *AlarmHandler) acknowledge(ctx context.Context, logger *zap.Logger, n provider.Notification) error {
	if err := h.source.Acknowledge(ctx, n); err != nil {
		h.metrics.Failure("acknowledge")
		return errors.WithStack(err)
	}
	logger.Debug("deleted message")
	return nil
}
