package events

import "testing"

type namedEvent string

func (n namedEvent) EventType() string { return string(n) }

type recorder struct{ seen []string }

func (r *recorder) Emit(evt Event) { r.seen = append(r.seen, evt.EventType()) }

func TestBufferTruncateAndFlush(t *testing.T) {
	var buf Buffer
	buf.Emit(namedEvent("a"))
	mark := buf.Len()
	buf.Emit(namedEvent("b"))
	buf.Emit(namedEvent("c"))
	buf.Truncate(mark)
	if buf.Len() != 1 {
		t.Fatalf("expected 1 event after truncate, got %d", buf.Len())
	}
	buf.Emit(namedEvent("d"))

	rec := &recorder{}
	buf.Flush(rec)
	if len(rec.seen) != 2 || rec.seen[0] != "a" || rec.seen[1] != "d" {
		t.Fatalf("unexpected flushed events %v", rec.seen)
	}
	if buf.Len() != 0 {
		t.Fatalf("buffer not emptied")
	}
}

func TestMultiEmitter(t *testing.T) {
	first, second := &recorder{}, &recorder{}
	Multi{first, nil, second}.Emit(namedEvent("x"))
	if len(first.seen) != 1 || len(second.seen) != 1 {
		t.Fatalf("expected both emitters to receive event")
	}
}
