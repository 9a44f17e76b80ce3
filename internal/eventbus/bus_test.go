package eventbus

import "testing"

func TestPublishFansOutAndDropsWhenFull(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: SubmissionRecorded})
	b.Publish(Event{Type: SubmissionUpdated}) // a is full; dropped for a only

	if e := <-a; e.Type != SubmissionRecorded || e.Time.IsZero() {
		t.Fatalf("unexpected event for a: %+v", e)
	}
	if len(c) != 2 {
		t.Fatalf("c buffered %d events, want 2", len(c))
	}

	unsubA()
	unsubA()
	if _, ok := <-a; ok {
		t.Fatalf("expected closed channel after unsubscribe")
	}
	b.Publish(Event{Type: BroadcastFinished})
	if len(c) != 3 {
		t.Fatalf("c buffered %d events, want 3", len(c))
	}
}
