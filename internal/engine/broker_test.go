package engine_test

import (
	"testing"

	"github.com/seantiz/relay/internal/engine"
	"github.com/seantiz/relay/internal/model"
)

func stepEvent(execID, stepID string) model.Event {
	return model.Event{Kind: model.EventStepCompleted, ExecutionID: execID, StepID: stepID}
}

func TestBrokerSingleSubscriber(t *testing.T) {
	b := engine.NewBroker()
	ch, unsub := b.Subscribe("e1")
	defer unsub()

	steps := []string{"a", "b", "c"}
	for _, s := range steps {
		b.Publish(stepEvent("e1", s))
	}
	b.Close("e1")

	var got []string
	for ev := range ch {
		got = append(got, ev.StepID)
	}

	if len(got) != len(steps) {
		t.Fatalf("got %d events, want %d", len(got), len(steps))
	}
	for i, s := range got {
		if s != steps[i] {
			t.Errorf("event[%d] step = %q, want %q", i, s, steps[i])
		}
	}
}

func TestBrokerMultipleSubscribers(t *testing.T) {
	b := engine.NewBroker()
	ch1, unsub1 := b.Subscribe("e1")
	defer unsub1()
	ch2, unsub2 := b.Subscribe("e1")
	defer unsub2()

	b.Publish(stepEvent("e1", "a"))
	b.Close("e1")

	for i, ch := range []<-chan model.Event{ch1, ch2} {
		var got []string
		for ev := range ch {
			got = append(got, ev.StepID)
		}
		if len(got) != 1 || got[0] != "a" {
			t.Errorf("subscriber %d got %v, want [a]", i+1, got)
		}
	}
}

func TestBrokerTopicsAreIsolated(t *testing.T) {
	b := engine.NewBroker()
	ch, unsub := b.Subscribe("e1")
	defer unsub()

	b.Publish(stepEvent("e2", "other"))
	b.Publish(stepEvent("e1", "mine"))
	b.Close("e1")

	var got []string
	for ev := range ch {
		got = append(got, ev.StepID)
	}
	if len(got) != 1 || got[0] != "mine" {
		t.Errorf("got %v, want [mine]", got)
	}
}

func TestBrokerLateSubscriberGetsClosed(t *testing.T) {
	b := engine.NewBroker()
	b.Publish(stepEvent("e1", "early"))
	b.Close("e1")

	ch, unsub := b.Subscribe("e1")
	defer unsub()

	if _, ok := <-ch; ok {
		t.Error("late subscriber should get a closed channel")
	}
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := engine.NewBroker()
	ch, unsub := b.Subscribe("e1")
	unsub()

	b.Publish(stepEvent("e1", "after"))
	b.Close("e1")

	if ev, ok := <-ch; ok {
		t.Errorf("got unexpected event %+v after unsubscribe", ev)
	}
}

func TestBrokerRemoveForgetsClosedTopic(t *testing.T) {
	b := engine.NewBroker()
	ch, _ := b.Subscribe("e1")
	b.Close("e1")
	b.Remove("e1")

	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}

	// A removed topic starts fresh, so a new subscriber is open.
	ch2, unsub := b.Subscribe("e1")
	b.Publish(stepEvent("e1", "again"))
	if ev := <-ch2; ev.StepID != "again" {
		t.Errorf("got %+v, want step again", ev)
	}
	unsub()
}

func TestBrokerPublishToUnknownExecutionIsNoop(t *testing.T) {
	b := engine.NewBroker()
	b.Publish(stepEvent("nonexistent", "a"))
	b.Close("nonexistent")
	b.Remove("nonexistent")
}
