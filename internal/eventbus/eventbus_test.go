package eventbus

import (
	"testing"
	"time"

	"github.com/capgen-ai/capgen/internal/domain"
)

func recvWithTimeout(t *testing.T, ch <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for an event")
		return domain.Event{}
	}
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("job-1", 0)
	defer sub.Close()

	b.Publish("job-1", domain.EventProgressOverall, 50)
	ev := recvWithTimeout(t, sub.Events)
	if ev.Tag != domain.EventProgressOverall || ev.JobID != "job-1" {
		t.Errorf("got event %+v, want progress.overall for job-1", ev)
	}
	if ev.Seq != 1 {
		t.Errorf("first event Seq = %d, want 1", ev.Seq)
	}
}

func TestSubscribeReplaysRetainedEvents(t *testing.T) {
	b := New()
	defer b.Close()

	b.Publish("job-1", domain.EventProgressOverall, 10)
	b.Publish("job-1", domain.EventProgressOverall, 20)
	b.Publish("job-1", domain.EventProgressOverall, 30)

	sub := b.Subscribe("job-1", 1)
	defer sub.Close()

	if len(sub.Replay) != 2 {
		t.Fatalf("Replay has %d events, want 2 (seq 2 and 3)", len(sub.Replay))
	}
	if sub.Replay[0].Seq != 2 || sub.Replay[1].Seq != 3 {
		t.Errorf("Replay = %+v, want seq 2 then 3", sub.Replay)
	}
	if sub.Gap {
		t.Error("Gap should be false when nothing fell out of the ring")
	}
}

func TestSignalAndOverallEventsMirrorToGlobalLane(t *testing.T) {
	b := New()
	defer b.Close()

	global := b.SubscribeGlobal(0)
	defer global.Close()

	b.Publish("job-1", domain.EventSignalJobStart, nil)
	ev := recvWithTimeout(t, global.Events)
	if ev.Tag != domain.EventSignalJobStart || ev.JobID != "job-1" {
		t.Errorf("global lane got %+v, want job-1's signal.job_start", ev)
	}
}

func TestSubtitleEventsDoNotMirrorToGlobalLane(t *testing.T) {
	b := New()
	defer b.Close()

	global := b.SubscribeGlobal(0)
	defer global.Close()

	b.Publish("job-1", domain.EventSubtitlePrimary, "hello")
	b.Publish("job-1", domain.EventSignalJobComplete, nil)

	ev := recvWithTimeout(t, global.Events)
	if ev.Tag != domain.EventSignalJobComplete {
		t.Errorf("first event on global lane = %v, want the signal event (subtitle events should not mirror)", ev.Tag)
	}
}

func TestCloseUnsubscribesCleanly(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("job-1", 0)
	sub.Close()

	if _, ok := <-sub.Events; ok {
		t.Error("Events channel should be closed after Close()")
	}
}
