package events

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	got []Event
	err error
}

func (r *recordingPublisher) Publish(_ context.Context, e Event) error {
	r.got = append(r.got, e)
	return r.err
}

func TestBusFansOutInOrder(t *testing.T) {
	bus := NewBus()
	var order []string
	bus.Subscribe(func(e Event) { order = append(order, "a:"+e.SubjectID) })
	bus.Subscribe(func(e Event) { order = append(order, "b:"+e.SubjectID) })

	require.NoError(t, bus.Publish(context.Background(), New(ReportValidated, "r1", "mod-1")))
	assert.Equal(t, []string{"a:r1", "b:r1"}, order)
}

func TestBusWithoutSubscribers(t *testing.T) {
	assert.NoError(t, NewBus().Publish(context.Background(), New(UserRejected, "u1", "")))
}

func TestMultiTriesEveryPublisher(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("broker down")}
	ok := &recordingPublisher{}
	m := NewMulti(zap.NewNop(), failing, nil, ok)

	err := m.Publish(context.Background(), New(ReportRejected, "r9", "mod-2"))
	assert.EqualError(t, err, "broker down")
	require.Len(t, ok.got, 1)
	assert.Equal(t, ReportRejected, ok.got[0].Type)
	assert.Equal(t, "mod-2", ok.got[0].ActorID)
}

func TestNewEventStampsUTC(t *testing.T) {
	e := New(UserValidated, "u1", "admin")
	assert.False(t, e.At.IsZero())
	assert.Equal(t, "UTC", e.At.Location().String())
}

func TestAffectsBadges(t *testing.T) {
	assert.True(t, ReportValidated.AffectsBadges())
	assert.True(t, UserRegistered.AffectsBadges())
	assert.False(t, Type("report.viewed").AffectsBadges())
}

func TestIsConnClosedErr(t *testing.T) {
	assert.False(t, isConnClosedErr(nil))
	assert.True(t, isConnClosedErr(amqp.ErrClosed))
	assert.True(t, isConnClosedErr(fmt.Errorf("publish: %w", amqp.ErrClosed)))
	assert.False(t, isConnClosedErr(errors.New("timeout")))
}

func TestAMQPPublishDoesNotWaitForBroker(t *testing.T) {
	release := make(chan struct{})
	sent := make(chan Event, 4)
	p := newAMQPPublisher("amqp://unused", "reportaciudad", 2, zap.NewNop())
	p.send = func(e Event) error {
		<-release
		sent <- e
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	first := New(ReportValidated, "r1", "mod-1")
	require.NoError(t, p.Publish(context.Background(), first))
	// the worker is stuck on r1, two more fit in the buffer
	require.Eventually(t, func() bool { return len(p.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, p.Publish(context.Background(), New(ReportRejected, "r2", "mod-1")))
	require.NoError(t, p.Publish(context.Background(), New(ReportRejected, "r3", "mod-1")))
	assert.ErrorIs(t, p.Publish(context.Background(), New(ReportRejected, "r4", "mod-1")), ErrQueueFull)

	close(release)
	cancel()
	<-done

	var got []string
	for len(sent) > 0 {
		got = append(got, (<-sent).SubjectID)
	}
	assert.Equal(t, []string{"r1", "r2", "r3"}, got)
}

func TestAMQPSendFailureIsDropped(t *testing.T) {
	p := newAMQPPublisher("amqp://unused", "reportaciudad", 1, zap.NewNop())
	var calls int
	p.send = func(Event) error {
		calls++
		return errors.New("broker down")
	}
	require.NoError(t, p.Publish(context.Background(), New(UserRejected, "u1", "mod-1")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)
	assert.Equal(t, 1, calls)
	assert.Empty(t, p.queue)
}
