package pubsub

import "testing"

func TestTopicFansOutInSubscriptionOrder(t *testing.T) {
	topic := NewTopic[int]()
	var order []string
	topic.Subscribe(func(v int) { order = append(order, "a") })
	topic.Subscribe(func(v int) { order = append(order, "b") })

	topic.Publish(1)

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("delivery order = %v, want [a b]", order)
	}
}

func TestClosedSubscriptionReceivesNothing(t *testing.T) {
	topic := NewTopic[int]()
	got := 0
	sub := topic.Subscribe(func(v int) { got += v })

	topic.Publish(1)
	sub.Close()
	topic.Publish(2)

	if got != 1 {
		t.Fatalf("got %d, want 1 (no delivery after close)", got)
	}
	if topic.Len() != 0 {
		t.Fatalf("len = %d, want 0", topic.Len())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	topic := NewTopic[string]()
	a := topic.Subscribe(func(string) {})
	b := topic.Subscribe(func(string) {})

	a.Close()
	a.Close()

	if topic.Len() != 1 {
		t.Fatalf("len = %d, want 1", topic.Len())
	}
	b.Close()
	if topic.Len() != 0 {
		t.Fatalf("len = %d, want 0", topic.Len())
	}
}

func TestSubscriberMayCloseItselfDuringPublish(t *testing.T) {
	topic := NewTopic[int]()
	calls := 0
	var sub *Subscription[int]
	sub = topic.Subscribe(func(int) {
		calls++
		sub.Close()
	})
	other := 0
	topic.Subscribe(func(int) { other++ })

	topic.Publish(1)
	topic.Publish(2)

	if calls != 1 {
		t.Fatalf("self-closing subscriber called %d times, want 1", calls)
	}
	if other != 2 {
		t.Fatalf("remaining subscriber called %d times, want 2", other)
	}
}

func TestNilCallbackIsIgnored(t *testing.T) {
	topic := NewTopic[int]()
	topic.Subscribe(nil)
	topic.Publish(1)
}

func TestCloseNilSubscriptionIsSafe(t *testing.T) {
	var sub *Subscription[int]
	sub.Close()
}
