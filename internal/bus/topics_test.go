package bus

import (
	"strings"
	"testing"
	"time"
)

func TestProcessTopics_SharePrefix(t *testing.T) {
	topics := []string{
		TopicProcessLaunched,
		TopicProcessTerminated,
		TopicProcessExited,
		TopicProcessReconciled,
	}
	seen := make(map[string]bool)
	for _, topic := range topics {
		if !strings.HasPrefix(topic, "process.") {
			t.Fatalf("topic %q does not start with process.", topic)
		}
		if seen[topic] {
			t.Fatalf("duplicate topic %q", topic)
		}
		seen[topic] = true
	}
	if strings.HasPrefix(TopicScriptsChanged, "process.") {
		t.Fatalf("scripts topic must not match process subscribers")
	}
}

func TestProcessEvent_RoundTripThroughBus(t *testing.T) {
	b := New()
	sub := b.Subscribe("process.")
	defer b.Unsubscribe(sub)

	want := ProcessEvent{PID: 1001, ScriptName: "a.py", OperatorID: 42, At: time.Now()}
	b.Publish(TopicProcessLaunched, want)

	select {
	case ev := <-sub.Ch():
		got, ok := ev.Payload.(ProcessEvent)
		if !ok {
			t.Fatalf("payload type = %T, want ProcessEvent", ev.Payload)
		}
		if got.PID != want.PID || got.ScriptName != want.ScriptName || got.OperatorID != want.OperatorID {
			t.Fatalf("payload = %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for process event")
	}
}

func TestPublish_NilBusIsNoop(t *testing.T) {
	var b *Bus
	b.Publish(TopicProcessExited, ProcessEvent{PID: 1})
}
