package simulation

import "testing"

type stubEvent struct {
	baseEvent
	prio      int
	triggered *[]int64
}

func (e *stubEvent) priority() int { return e.prio }

func (e *stubEvent) trigger() (Event, error) {
	*e.triggered = append(*e.triggered, e.id)
	return nil, nil
}

func TestEventQueueOrdersByTime(t *testing.T) {
	q := newEventQueue()
	var order []int64

	q.Add(&stubEvent{baseEvent: baseEvent{id: 1, time: 30}, prio: agentPriority, triggered: &order})
	q.Add(&stubEvent{baseEvent: baseEvent{id: 2, time: 10}, prio: agentPriority, triggered: &order})
	q.Add(&stubEvent{baseEvent: baseEvent{id: 3, time: 20}, prio: agentPriority, triggered: &order})

	var popped []int64
	for q.Len() > 0 {
		popped = append(popped, q.Pop().ID())
	}
	want := []int64{2, 3, 1}
	for i := range want {
		if popped[i] != want[i] {
			t.Fatalf("pop order = %v, want %v", popped, want)
		}
	}
}

func TestEventQueueAgentBeforeResourceOnTie(t *testing.T) {
	q := newEventQueue()
	var order []int64

	resource := &stubEvent{baseEvent: baseEvent{id: 1, time: 100}, prio: resourcePriority, triggered: &order}
	agent := &stubEvent{baseEvent: baseEvent{id: 2, time: 100}, prio: agentPriority, triggered: &order}
	q.Add(resource)
	q.Add(agent)

	if first := q.Pop(); first != Event(agent) {
		t.Fatalf("expected the agent event to pop first on a time tie, got id %d", first.ID())
	}
	if second := q.Pop(); second != Event(resource) {
		t.Fatalf("expected the resource event second, got id %d", second.ID())
	}
}

func TestEventQueueSmallerIDFirstWithinKind(t *testing.T) {
	q := newEventQueue()
	var order []int64

	q.Add(&stubEvent{baseEvent: baseEvent{id: 7, time: 100}, prio: agentPriority, triggered: &order})
	q.Add(&stubEvent{baseEvent: baseEvent{id: 3, time: 100}, prio: agentPriority, triggered: &order})

	if first := q.Pop(); first.ID() != 3 {
		t.Fatalf("expected id 3 first, got %d", first.ID())
	}
}

func TestEventQueueRemove(t *testing.T) {
	q := newEventQueue()
	var order []int64

	keep := &stubEvent{baseEvent: baseEvent{id: 1, time: 10}, prio: agentPriority, triggered: &order}
	drop := &stubEvent{baseEvent: baseEvent{id: 2, time: 5}, prio: agentPriority, triggered: &order}
	q.Add(keep)
	q.Add(drop)

	if !q.Has(drop) {
		t.Fatal("expected queue to contain the event before removal")
	}
	if err := q.Remove(drop); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if q.Has(drop) {
		t.Fatal("expected queue to no longer contain the removed event")
	}
	if q.Len() != 1 || q.Peek() != Event(keep) {
		t.Fatal("expected the remaining event to survive removal")
	}
	if err := q.Remove(drop); err == nil {
		t.Fatal("expected an error removing an event that is not queued")
	}
}

func TestEventQueueMonotonePops(t *testing.T) {
	q := newEventQueue()
	var order []int64

	times := []int64{50, 10, 40, 10, 30, 20}
	for i, tm := range times {
		q.Add(&stubEvent{baseEvent: baseEvent{id: int64(i), time: tm}, prio: agentPriority, triggered: &order})
	}

	last := int64(-1)
	for q.Len() > 0 {
		e := q.Pop()
		if e.Time() < last {
			t.Fatalf("pop times not monotone: %d after %d", e.Time(), last)
		}
		last = e.Time()
	}
}
