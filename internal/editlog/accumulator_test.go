package editlog

import (
	"math/rand"
	"testing"
	"time"
)

func TestAccumulator_FlushNowEmptyReturnsNil(t *testing.T) {
	a := NewAccumulator(ThresholdsForMode(ModeRealtime), nil)
	if b := a.FlushNow(); b != nil {
		t.Fatalf("FlushNow() = %+v, want nil", b)
	}
}

func TestAccumulator_RealtimeCountThreshold(t *testing.T) {
	a := NewAccumulator(ThresholdsForMode(ModeRealtime), nil)

	if b := a.Offer(Event{Timestamp: 1}); b != nil {
		t.Fatalf("first offer flushed early: %+v", b)
	}
	b := a.Offer(Event{Timestamp: 2})
	if b == nil {
		t.Fatal("second offer should flush in REALTIME")
	}
	if len(b.Events) != 2 {
		t.Fatalf("len(Events) = %d, want 2", len(b.Events))
	}
	if b.StartTime != 1 || b.EndTime != 2 {
		t.Fatalf("span = [%d, %d], want [1, 2]", b.StartTime, b.EndTime)
	}
	if a.Pending() != 0 {
		t.Fatalf("Pending() = %d after flush, want 0", a.Pending())
	}
}

func TestAccumulator_SignificantForcesFlush(t *testing.T) {
	// ARCHIVE 阈值很宽，显著事件也必须立刻出批
	a := NewAccumulator(ThresholdsForMode(ModeArchive), nil)
	b := a.Offer(Event{Timestamp: 1, Significant: true})
	if b == nil {
		t.Fatal("significant event must flush immediately")
	}
	if len(b.Events) != 1 {
		t.Fatalf("len(Events) = %d, want 1", len(b.Events))
	}
}

func TestAccumulator_TimePredicate(t *testing.T) {
	a := NewAccumulator(BatchThresholds{Count: 100, TimeMS: 16}, nil)
	clock := time.Now()
	a.now = func() time.Time { return clock }
	a.lastFlush = clock

	if b := a.Offer(Event{Timestamp: 1}); b != nil {
		t.Fatalf("offer within window flushed: %+v", b)
	}
	// 时钟往前拨 20ms，超过 16ms 窗口
	clock = clock.Add(20 * time.Millisecond)
	b := a.Offer(Event{Timestamp: 2})
	if b == nil {
		t.Fatal("offer past time window should flush")
	}
	if len(b.Events) != 2 {
		t.Fatalf("len(Events) = %d, want 2", len(b.Events))
	}
}

func TestAccumulator_DeferredTimerFlush(t *testing.T) {
	flushed := make(chan Batch, 1)
	a := NewAccumulator(BatchThresholds{Count: 100, TimeMS: 30}, func(b Batch) {
		flushed <- b
	})

	if b := a.Offer(Event{Timestamp: 1}); b != nil {
		t.Fatalf("offer flushed early: %+v", b)
	}

	select {
	case b := <-flushed:
		if len(b.Events) != 1 {
			t.Fatalf("len(Events) = %d, want 1", len(b.Events))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("deferred flush never fired")
	}
	if a.Pending() != 0 {
		t.Fatalf("Pending() = %d after timer flush, want 0", a.Pending())
	}
}

func TestAccumulator_TimerDebounceSingleBatch(t *testing.T) {
	// 第二个 offer 替换定时器而不是再挂一个：最终只出一个批，包含两个事件
	flushed := make(chan Batch, 4)
	a := NewAccumulator(BatchThresholds{Count: 100, TimeMS: 60}, func(b Batch) {
		flushed <- b
	})

	a.Offer(Event{Timestamp: 1})
	time.Sleep(20 * time.Millisecond)
	a.Offer(Event{Timestamp: 2})

	var batches []Batch
	deadline := time.After(2 * time.Second)
collect:
	for {
		select {
		case b := <-flushed:
			batches = append(batches, b)
			// 再等一小段，确认没有第二个批
			select {
			case b2 := <-flushed:
				batches = append(batches, b2)
			case <-time.After(200 * time.Millisecond):
				break collect
			}
		case <-deadline:
			break collect
		}
	}

	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	if len(batches[0].Events) != 2 {
		t.Fatalf("len(Events) = %d, want 2", len(batches[0].Events))
	}
}

func TestAccumulator_ModeSwitchAppliesToSubsequentOffers(t *testing.T) {
	a := NewAccumulator(ThresholdsForMode(ModePlayback), nil)

	// PLAYBACK 下攒一条不 flush
	if b := a.Offer(Event{Timestamp: 1}); b != nil {
		t.Fatalf("offer under PLAYBACK flushed: %+v", b)
	}
	// 切到 REALTIME：不回头重估 pending，下一个 offer 按新阈值走
	a.SetThresholds(ThresholdsForMode(ModeRealtime))
	if a.Pending() != 1 {
		t.Fatalf("Pending() = %d after switch, want 1", a.Pending())
	}
	b := a.Offer(Event{Timestamp: 2})
	if b == nil {
		t.Fatal("offer after switch to REALTIME should flush at 2 events")
	}
	if len(b.Events) != 2 {
		t.Fatalf("len(Events) = %d, want 2", len(b.Events))
	}
}

func TestAccumulator_RealtimeNeverExceedsCountThreshold(t *testing.T) {
	// 随机事件流性质：REALTIME 下非显著事件 pending 永远不超过 2
	a := NewAccumulator(ThresholdsForMode(ModeRealtime), nil)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		ev := Event{Timestamp: int64(i), ChangeMagnitude: rng.Intn(5)}
		b := a.Offer(ev)
		if b != nil && len(b.Events) > 2 {
			t.Fatalf("batch with %d events under REALTIME", len(b.Events))
		}
		if a.Pending() >= 2 {
			t.Fatalf("pending = %d after offer %d, threshold should have fired", a.Pending(), i)
		}
	}
}
