package negotiation

import (
	"context"
	"testing"
	"time"

	"telehealth-backend/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestPollerMergeRespectsHeldField(t *testing.T) {
	remote := Record{ProposedFee: 9000, Currency: "PKR", Status: "negotiating"}
	poller := NewPoller(func(ctx context.Context) (Record, error) {
		return remote, nil
	}, time.Hour, 1500*time.Millisecond, nil)

	// Operator is typing a new proposed fee.
	poller.SetLocal(func(r *Record) {
		r.ProposedFee = 4500
		r.Currency = "PKR"
	})
	poller.HoldField("proposedFee")

	poller.tick(context.Background())

	view, ok := poller.View()
	assert.True(t, ok)
	assert.Equal(t, 4500.0, view.ProposedFee, "held field keeps the local edit")
	assert.Equal(t, "negotiating", view.Status, "non-held fields follow the snapshot")
}

func TestPollerQuietPeriodAfterRelease(t *testing.T) {
	remote := Record{ProposedFee: 9000}
	poller := NewPoller(func(ctx context.Context) (Record, error) {
		return remote, nil
	}, time.Hour, 1500*time.Millisecond, nil)

	clock := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	poller.now = func() time.Time { return clock }

	poller.SetLocal(func(r *Record) { r.ProposedFee = 4500 })
	poller.HoldField("proposedFee")
	poller.ReleaseField("proposedFee")

	// Inside the quiet period the local value survives.
	clock = clock.Add(time.Second)
	poller.tick(context.Background())
	view, _ := poller.View()
	assert.Equal(t, 4500.0, view.ProposedFee)

	// After the quiet period the snapshot wins.
	clock = clock.Add(2 * time.Second)
	poller.tick(context.Background())
	view, _ = poller.View()
	assert.Equal(t, 9000.0, view.ProposedFee)
}

func TestPollerTranscriptAlwaysReplaced(t *testing.T) {
	remote := Record{History: nil}
	poller := NewPoller(func(ctx context.Context) (Record, error) {
		return remote, nil
	}, time.Hour, time.Second, nil)

	poller.SetLocal(func(r *Record) { r.ProposedFee = 100 })
	poller.HoldField("proposedFee")

	remote.History = append(remote.History, newMessage("first"), newMessage("second"))
	poller.tick(context.Background())

	view, _ := poller.View()
	assert.Len(t, view.History, 2)
	assert.Equal(t, 100.0, view.ProposedFee)
}

func TestPollerFetchErrorKeepsView(t *testing.T) {
	calls := 0
	poller := NewPoller(func(ctx context.Context) (Record, error) {
		calls++
		if calls == 1 {
			return Record{ProposedFee: 7000}, nil
		}
		return Record{}, context.DeadlineExceeded
	}, time.Hour, time.Second, nil)

	poller.tick(context.Background())
	poller.tick(context.Background())

	view, ok := poller.View()
	assert.True(t, ok)
	assert.Equal(t, 7000.0, view.ProposedFee, "a failed poll does not blank the panel")
}

func TestPollerStartStop(t *testing.T) {
	updates := make(chan Record, 16)
	poller := NewPoller(func(ctx context.Context) (Record, error) {
		return Record{ProposedFee: 1}, nil
	}, 5*time.Millisecond, time.Second, func(r Record) {
		select {
		case updates <- r:
		default:
		}
	})

	poller.Start(context.Background())

	select {
	case r := <-updates:
		assert.Equal(t, 1.0, r.ProposedFee)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}

	poller.Stop()
}

func newMessage(text string) models.NegotiationMessage {
	return models.NegotiationMessage{Message: text}
}
