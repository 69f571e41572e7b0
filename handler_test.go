package main

import (
	"context"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuichiro-h/ecs-alarm-autoscaler/metrics"
	"github.com/yuichiro-h/ecs-alarm-autoscaler/provider"
	"github.com/yuichiro-h/ecs-alarm-autoscaler/scaling"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSource struct {
	acked  []provider.Notification
	ackErr error
}

func (f *fakeSource) Receive(context.Context, time.Duration) (provider.Notification, bool, error) {
	return provider.Notification{}, false, nil
}

func (f *fakeSource) Acknowledge(_ context.Context, n provider.Notification) error {
	if f.ackErr != nil {
		return f.ackErr
	}
	f.acked = append(f.acked, n)
	return nil
}

type fakeAlarms struct {
	breaching map[string]bool
	err       error
	calls     int
}

func (f *fakeAlarms) IsBreaching(_ context.Context, alarmName string) (bool, error) {
	f.calls++
	return f.breaching[alarmName], f.err
}

type setCapacityCall struct {
	service  string
	capacity int
}

type fakeCapacity struct {
	desired map[string]int
	getErr  error
	setErr  error
	gets    int
	sets    []setCapacityCall
}

func (f *fakeCapacity) GetDesiredCapacity(_ context.Context, serviceName string) (int, error) {
	f.gets++
	if f.getErr != nil {
		return 0, f.getErr
	}
	return f.desired[serviceName], nil
}

func (f *fakeCapacity) SetDesiredCapacity(_ context.Context, serviceName string, capacity int) error {
	f.sets = append(f.sets, setCapacityCall{serviceName, capacity})
	if f.setErr != nil {
		return f.setErr
	}
	f.desired[serviceName] = capacity
	return nil
}

type fakeCooldowns struct {
	times  map[string]time.Time
	getErr error
	setErr error
	gets   int
	sets   int
}

func (f *fakeCooldowns) GetLastScalingTime(_ context.Context, key string) (time.Time, error) {
	f.gets++
	if f.getErr != nil {
		return time.Time{}, f.getErr
	}
	return f.times[key], nil
}

func (f *fakeCooldowns) SetLastScalingTime(_ context.Context, key string, t time.Time) error {
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.times[key] = t
	return nil
}

type fakeNotifier struct {
	events []scaling.Event
	err    error
}

func (f *fakeNotifier) Notify(_ context.Context, e scaling.Event) error {
	f.events = append(f.events, e)
	return f.err
}

type handlerFixture struct {
	source    *fakeSource
	alarms    *fakeAlarms
	capacity  *fakeCapacity
	cooldowns *fakeCooldowns
	notifier  *fakeNotifier
	clock     *fakeclock.FakeClock
	logs      *observer.ObservedLogs
	handler   *AlarmHandler
}

func newHandlerFixture(t *testing.T, patterns ...string) *handlerFixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)

	f := &handlerFixture{
		source:    &fakeSource{},
		alarms:    &fakeAlarms{breaching: map[string]bool{}},
		capacity:  &fakeCapacity{desired: map[string]int{}},
		cooldowns: &fakeCooldowns{times: map[string]time.Time{}},
		notifier:  &fakeNotifier{},
		clock:     fakeclock.NewFakeClock(time.Unix(1700000000, 250000000)),
		logs:      logs,
	}

	var globs []glob.Glob
	for _, p := range patterns {
		globs = append(globs, glob.MustCompile(p))
	}
	f.handler = f.newHandler(zap.New(core), globs)
	return f
}

// newHandler builds a handler sharing the fixture's collaborators, as a second
// process instance would.
func (f *handlerFixture) newHandler(logger *zap.Logger, patterns []glob.Glob) *AlarmHandler {
	return NewAlarmHandler(AlarmHandlerConfig{
		Source:    f.source,
		Alarms:    f.alarms,
		Capacity:  f.capacity,
		Cooldowns: f.cooldowns,
		Notifier:  f.notifier,
		Patterns:  patterns,
		Clock:     f.clock,
		Metrics:   metrics.NewRecorder(prometheus.NewRegistry()),
		Logger:    logger,
	})
}

func (f *handlerFixture) notification(t *testing.T, alarmName, description string) provider.Notification {
	return provider.Notification{
		ID:            "m-" + alarmName,
		ReceiptHandle: "rh-" + alarmName,
		Body: notificationBody(t, Alarm{
			AlarmName:        alarmName,
			AlarmDescription: description,
			NewStateValue:    "ALARM",
		}),
	}
}

func (f *handlerFixture) decisionLogged(t *testing.T, message string) string {
	t.Helper()
	entries := f.logs.FilterMessage(message).All()
	require.Len(t, entries, 1, "expected one %q log", message)
	decision, _ := entries[0].ContextMap()["decision"].(string)
	return decision
}

func TestAlarmHandlerApplies(t *testing.T) {
	f := newHandlerFixture(t)
	f.alarms.breaching["A"] = true
	f.capacity.desired["svcA"] = 1
	n := f.notification(t, "A", "svcA,1,5,0,100")

	require.NoError(t, f.handler.Handle(context.Background(), n))

	assert.Equal(t, []setCapacityCall{{"svcA", 2}}, f.capacity.sets)
	assert.Equal(t, f.clock.Now(), f.cooldowns.times["A"])
	assert.Equal(t, []provider.Notification{n}, f.source.acked)
	assert.Equal(t, "applied", f.decisionLogged(t, "scaled service"))

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, scaling.Event{
		AlarmName:        "A",
		ServiceName:      "svcA",
		CurrentCapacity:  1,
		ProposedCapacity: 2,
		Decision:         scaling.Applied,
	}, f.notifier.events[0])
}

func TestAlarmHandlerStaleAlarm(t *testing.T) {
	f := newHandlerFixture(t)
	f.capacity.desired["svcA"] = 1
	n := f.notification(t, "A", "svcA,1,5,0,100")

	require.NoError(t, f.handler.Handle(context.Background(), n))

	assert.Equal(t, 1, f.alarms.calls)
	assert.Zero(t, f.capacity.gets)
	assert.Empty(t, f.capacity.sets)
	assert.Zero(t, f.cooldowns.gets)
	assert.Zero(t, f.cooldowns.sets)
	assert.Equal(t, []provider.Notification{n}, f.source.acked)
	assert.Equal(t, 1, f.logs.FilterMessage("alarm is no longer alarming").Len())
}

func TestAlarmHandlerDiscardsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		body    func(f *handlerFixture, t *testing.T) string
		message string
	}{
		{
			name:    "invalid body",
			body:    func(*handlerFixture, *testing.T) string { return "not json" },
			message: "invalid notification body",
		},
		{
			name: "missing descriptor field",
			body: func(f *handlerFixture, t *testing.T) string {
				return f.notification(t, "A", "svcA,1,5,0").Body
			},
			message: "invalid alarm description",
		},
		{
			name: "non numeric descriptor field",
			body: func(f *handlerFixture, t *testing.T) string {
				return f.notification(t, "A", "svcA,x,5,0,100").Body
			},
			message: "invalid alarm description",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t)
			f.alarms.breaching["A"] = true
			n := provider.Notification{ID: "m-1", ReceiptHandle: "rh-1", Body: tt.body(f, t)}

			require.NoError(t, f.handler.Handle(context.Background(), n))

			assert.Zero(t, f.alarms.calls)
			assert.Zero(t, f.capacity.gets)
			assert.Equal(t, []provider.Notification{n}, f.source.acked)
			assert.Equal(t, 1, f.logs.FilterMessage(tt.message).Len())
		})
	}
}

func TestAlarmHandlerPatterns(t *testing.T) {
	f := newHandlerFixture(t, "prod-*")
	f.alarms.breaching["staging-cpu"] = true
	f.alarms.breaching["prod-cpu"] = true
	f.capacity.desired["svcA"] = 1

	require.NoError(t, f.handler.Handle(context.Background(), f.notification(t, "staging-cpu", "svcA,1,5,0,100")))
	assert.Zero(t, f.alarms.calls)
	assert.Equal(t, 1, f.logs.FilterMessage("alarm not matched by patterns").Len())

	require.NoError(t, f.handler.Handle(context.Background(), f.notification(t, "prod-cpu", "svcA,1,5,0,100")))
	assert.Equal(t, []setCapacityCall{{"svcA", 2}}, f.capacity.sets)
	assert.Len(t, f.source.acked, 2)
}

func TestAlarmHandlerSkips(t *testing.T) {
	tests := []struct {
		name        string
		description string
		current     int
		lastScaling time.Duration
		want        string
	}{
		{"cooldown", "svcA,1,10,60,50", 2, 30 * time.Second, "skipped_cooldown"},
		{"no change at max", "svcA,1,100,0,10", 100, 0, "skipped_no_change"},
		{"no change at min", "svcA,5,10,0,-50", 5, 0, "skipped_no_change"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t)
			f.alarms.breaching["A"] = true
			f.capacity.desired["svcA"] = tt.current
			if tt.lastScaling > 0 {
				f.cooldowns.times["A"] = f.clock.Now().Add(-tt.lastScaling)
			}
			n := f.notification(t, "A", tt.description)

			require.NoError(t, f.handler.Handle(context.Background(), n))

			assert.Empty(t, f.capacity.sets)
			assert.Zero(t, f.cooldowns.sets)
			assert.Empty(t, f.notifier.events)
			assert.Equal(t, []provider.Notification{n}, f.source.acked)
			assert.Equal(t, tt.want, f.decisionLogged(t, "skipping scaling activity"))
		})
	}
}

func TestAlarmHandlerCooldownAcrossInstances(t *testing.T) {
	f := newHandlerFixture(t)
	f.alarms.breaching["A"] = true
	f.capacity.desired["svcA"] = 2
	other := f.newHandler(zap.NewNop(), nil)

	require.NoError(t, f.handler.Handle(context.Background(), f.notification(t, "A", "svcA,1,10,60,50")))
	assert.Equal(t, 3, f.capacity.desired["svcA"])

	f.clock.Increment(30 * time.Second)
	require.NoError(t, other.Handle(context.Background(), f.notification(t, "A", "svcA,1,10,60,50")))
	assert.Equal(t, 3, f.capacity.desired["svcA"])

	f.clock.Increment(31 * time.Second)
	require.NoError(t, other.Handle(context.Background(), f.notification(t, "A", "svcA,1,10,60,50")))
	assert.Equal(t, 5, f.capacity.desired["svcA"])
	assert.Equal(t, f.clock.Now(), f.cooldowns.times["A"])
	assert.Len(t, f.source.acked, 3)
}

func TestAlarmHandlerCollaboratorFailures(t *testing.T) {
	boom := errors.New("unreachable")
	tests := []struct {
		name    string
		prepare func(f *handlerFixture)
		sets    int
	}{
		{"alarm state", func(f *handlerFixture) { f.alarms.err = boom }, 0},
		{"get capacity", func(f *handlerFixture) { f.capacity.getErr = boom }, 0},
		{"get cooldown", func(f *handlerFixture) { f.cooldowns.getErr = boom }, 0},
		{"set capacity", func(f *handlerFixture) { f.capacity.setErr = boom }, 1},
		{"set cooldown", func(f *handlerFixture) { f.cooldowns.setErr = boom }, 1},
		{"acknowledge", func(f *handlerFixture) { f.source.ackErr = boom }, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t)
			f.alarms.breaching["A"] = true
			f.capacity.desired["svcA"] = 1
			tt.prepare(f)

			err := f.handler.Handle(context.Background(), f.notification(t, "A", "svcA,1,5,0,100"))

			require.Error(t, err)
			assert.True(t, errors.Is(err, boom))
			assert.Empty(t, f.source.acked)
			assert.Len(t, f.capacity.sets, tt.sets)
		})
	}
}

func TestAlarmHandlerCooldownWriteFailureIsLogged(t *testing.T) {
	f := newHandlerFixture(t)
	f.alarms.breaching["A"] = true
	f.capacity.desired["svcA"] = 1
	f.cooldowns.setErr = errors.New("throttled")

	require.Error(t, f.handler.Handle(context.Background(), f.notification(t, "A", "svcA,1,5,0,100")))

	assert.Equal(t, 2, f.capacity.desired["svcA"])
	entries := f.logs.FilterMessage("failed to record last scaling time").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}

func TestAlarmHandlerNotifierFailureStillAcknowledges(t *testing.T) {
	f := newHandlerFixture(t)
	f.alarms.breaching["A"] = true
	f.capacity.desired["svcA"] = 1
	f.notifier.err = errors.New("slack down")

	require.NoError(t, f.handler.Handle(context.Background(), f.notification(t, "A", "svcA,1,5,0,100")))

	assert.Len(t, f.source.acked, 1)
	assert.Equal(t, 1, f.logs.FilterMessage("failed to notify scaling activity").Len())
}

func TestNewAlarmHandlerDefaults(t *testing.T) {
	f := newHandlerFixture(t)
	f.alarms.breaching["A"] = true
	f.capacity.desired["svcA"] = 1
	h := NewAlarmHandler(AlarmHandlerConfig{
		Source:    f.source,
		Alarms:    f.alarms,
		Capacity:  f.capacity,
		Cooldowns: f.cooldowns,
	})

	require.NoError(t, h.Handle(context.Background(), f.notification(t, "A", "svcA,1,5,0,100")))
	assert.Equal(t, 2, f.capacity.desired["svcA"])
	assert.False(t, f.cooldowns.times["A"].IsZero())
}
