// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/chanterm/internal/model"
)

func confirmedMsg(channel string, ts model.TS, author, body string) model.Message {
	return model.Message{ChannelID: channel, TS: ts, Author: author, Body: body}
}

// timeAt builds distinct wall-clock times for generated timestamps.
func timeAt(offset int64) time.Time {
	return time.Unix(1700000000+offset, 0)
}

// =============================================================================
// CHANNEL TESTS
// =============================================================================

func TestStore_UpsertChannel(t *testing.T) {
	s := New()
	s.UpsertChannel(model.Channel{ID: "C1", Name: "general", LastActivity: model.TS("100.000000")})
	s.UpsertChannel(model.Channel{ID: "C1", IsMember: true, LastActivity: model.TS("50.000000")})

	ch, ok := s.Channel("C1")
	if !ok {
		t.Fatal("channel should exist")
	}
	if ch.Name != "general" {
		t.Errorf("Name = %q", ch.Name)
	}
	if !ch.IsMember {
		t.Error("IsMember should merge in")
	}
	if ch.LastActivity != model.TS("100.000000") {
		t.Errorf("LastActivity regressed: %q", ch.LastActivity)
	}
}

func TestStore_ChannelsSorted(t *testing.T) {
	s := New()
	s.UpsertChannel(model.Channel{ID: "C2", Name: "zeta"})
	s.UpsertChannel(model.Channel{ID: "C1", Name: "alpha"})
	s.UpsertChannel(model.Channel{ID: "C3", Name: "mid"})

	chans := s.Channels()
	if len(chans) != 3 {
		t.Fatalf("len = %d", len(chans))
	}
	if chans[0].Name != "alpha" || chans[2].Name != "zeta" {
		t.Errorf("channels not sorted by name: %v", chans)
	}
}

// =============================================================================
// INGEST TESTS
// =============================================================================

func TestStore_IngestIdempotent(t *testing.T) {
	s := New()
	m := confirmedMsg("C1", model.TS("100.000001"), "U1", "hi")

	// Delivered via stream, then again via history fetch, then redelivered.
	s.IngestMessage(m)
	s.IngestMessage(m)
	s.IngestMessage(m)

	msgs, _, ok := s.Snapshot("C1")
	if !ok {
		t.Fatal("snapshot should exist after ingest")
	}
	if len(msgs) != 1 {
		t.Fatalf("want exactly one entry, got %d", len(msgs))
	}
	if msgs[0].Body != "hi" || msgs[0].Provenance != model.Confirmed {
		t.Errorf("unexpected entry: %+v", msgs[0])
	}
}

func TestStore_IngestOrdering(t *testing.T) {
	s := New()
	// Out-of-order arrival: history pages land after live stream events.
	s.IngestMessage(confirmedMsg("C1", model.TS("300.000000"), "U1", "third"))
	s.IngestMessage(confirmedMsg("C1", model.TS("100.000000"), "U1", "first"))
	s.IngestMessage(confirmedMsg("C1", model.TS("200.000000"), "U2", "second"))

	msgs, _, _ := s.Snapshot("C1")
	if len(msgs) != 3 {
		t.Fatalf("len = %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].TS.Before(msgs[i-1].TS) {
			t.Errorf("snapshot out of order at %d: %q then %q", i, msgs[i-1].TS, msgs[i].TS)
		}
	}
	if msgs[0].Body != "first" || msgs[2].Body != "third" {
		t.Errorf("unexpected order: %v", msgs)
	}
}

func TestStore_IngestCreatesChannel(t *testing.T) {
	s := New()
	s.IngestMessage(confirmedMsg("C9", model.TS("100.000000"), "U1", "hello"))

	ch, ok := s.Channel("C9")
	if !ok {
		t.Fatal("ingest should create the channel record")
	}
	if ch.LastActivity != model.TS("100.000000") {
		t.Errorf("LastActivity = %q", ch.LastActivity)
	}
}

// =============================================================================
// LOCAL ECHO TESTS
// =============================================================================

func TestStore_LocalEchoConfirm(t *testing.T) {
	s := New()
	s.UpsertChannel(model.Channel{ID: "C1", Name: "general"})

	handle := s.AppendLocalEcho("C1", "UBOT", "hello")

	msgs, _, _ := s.Snapshot("C1")
	if len(msgs) != 1 || msgs[0].Provenance != model.Pending {
		t.Fatalf("echo should be visible as pending: %+v", msgs)
	}

	confirmed := confirmedMsg("C1", model.TS("500.000100"), "UBOT", "hello")
	s.ResolveLocalEcho(handle, &confirmed, "")

	msgs, _, _ = s.Snapshot("C1")
	if len(msgs) != 1 {
		t.Fatalf("confirm should replace, not duplicate: %d entries", len(msgs))
	}
	if msgs[0].Provenance != model.Confirmed || msgs[0].TS != model.TS("500.000100") {
		t.Errorf("echo not replaced by authoritative copy: %+v", msgs[0])
	}

	// Stream redelivery of the confirmed copy must still be a no-op.
	s.IngestMessage(confirmed)
	msgs, _, _ = s.Snapshot("C1")
	if len(msgs) != 1 {
		t.Errorf("redelivery duplicated the confirmed echo: %d entries", len(msgs))
	}
}

func TestStore_LocalEchoFail(t *testing.T) {
	s := New()
	s.UpsertChannel(model.Channel{ID: "C1"})

	handle := s.AppendLocalEcho("C1", "UBOT", "doomed")
	s.ResolveLocalEcho(handle, nil, "post timed out")

	msgs, _, _ := s.Snapshot("C1")
	if len(msgs) != 1 {
		t.Fatalf("failed echo must stay visible, got %d entries", len(msgs))
	}
	if msgs[0].Provenance != model.Failed || msgs[0].FailReason != "post timed out" {
		t.Errorf("echo not marked failed: %+v", msgs[0])
	}

	// Resolving twice is a no-op.
	s.ResolveLocalEcho(handle, nil, "again")
	msgs, _, _ = s.Snapshot("C1")
	if msgs[0].FailReason != "post timed out" {
		t.Error("second resolve should be ignored")
	}
}

func TestStore_StreamResolvesEcho(t *testing.T) {
	s := New()
	s.UpsertChannel(model.Channel{ID: "C1"})

	s.AppendLocalEcho("C1", "UBOT", "hello")

	// The stream delivers the server copy before the REST response lands.
	s.IngestMessage(confirmedMsg("C1", model.TS("700.000001"), "UBOT", "hello"))

	msgs, _, _ := s.Snapshot("C1")
	if len(msgs) != 1 {
		t.Fatalf("stream copy should resolve the echo, got %d entries", len(msgs))
	}
	if msgs[0].Provenance != model.Confirmed {
		t.Errorf("provenance = %v", msgs[0].Provenance)
	}
}

// =============================================================================
// SUBSCRIPTION TESTS
// =============================================================================

func TestStore_SubscribeNotifies(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()
	defer cancel()

	s.UpsertChannel(model.Channel{ID: "C1", Name: "general"})
	c := <-ch
	if c.Kind != ChannelsChanged || c.ChannelID != "C1" {
		t.Errorf("unexpected change: %+v", c)
	}

	s.IngestMessage(confirmedMsg("C1", model.TS("100.000000"), "U1", "hi"))
	c = <-ch
	if c.Kind != MessagesChanged || c.ChannelID != "C1" {
		t.Errorf("unexpected change: %+v", c)
	}
}

func TestStore_SubscribeCancelCloses(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()
	cancel()

	if _, open := <-ch; open {
		t.Error("cancelled subscription should be closed")
	}

	// Writers must not care that the subscriber went away.
	s.UpsertChannel(model.Channel{ID: "C1"})
}

func TestStore_SlowSubscriberNeverBlocks(t *testing.T) {
	s := New()
	_, cancel := s.Subscribe() // never drained
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subBufferSize*4; i++ {
			s.IngestMessage(confirmedMsg("C1", model.TSFromTime(timeAt(int64(i))), "U1", "spam"))
		}
		close(done)
	}()

	<-done // deadlocks here if a full subscriber queue blocks writers
}

func TestStore_ConcurrentWritersAndReaders(t *testing.T) {
	s := New()
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.IngestMessage(confirmedMsg("C1", model.TSFromTime(timeAt(int64(w*1000+i))), "U1", "m"))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				msgs, _, ok := s.Snapshot("C1")
				if ok {
					for j := 1; j < len(msgs); j++ {
						if msgs[j].TS.Before(msgs[j-1].TS) {
							t.Error("snapshot out of order under concurrency")
							return
						}
					}
				}
			}
		}()
	}
	wg.Wait()
}

func TestStore_SubscribeCancelChurnUnderWrites(t *testing.T) {
	s := New()
	defer s.Close()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			s.UpsertChannel(model.Channel{ID: "C1", Name: "general"})
			s.IngestMessage(confirmedMsg("C1", model.TSFromTime(timeAt(int64(i))), "U1", "m"))
		}
	}()

	// Cancelling while the writer is mid-notify must never close a
	// channel out from under an in-flight send.
	for i := 0; i < 500; i++ {
		ch, cancel := s.Subscribe()
		select {
		case <-ch:
		default:
		}
		cancel()
	}

	close(stop)
	wg.Wait()
}

func TestStore_EchoVisibleWithoutPriorListing(t *testing.T) {
	s := New()

	// A send into a channel no listing has reported yet must still be
	// snapshot-able, pending and after failure alike.
	handle := s.AppendLocalEcho("C9", "UBOT", "first contact")
	msgs, ch, ok := s.Snapshot("C9")
	if !ok || len(msgs) != 1 {
		t.Fatalf("pending echo not visible: ok=%v msgs=%v", ok, msgs)
	}
	if ch.ID != "C9" {
		t.Errorf("channel record not created: %+v", ch)
	}

	s.ResolveLocalEcho(handle, nil, "offline")
	msgs, _, ok = s.Snapshot("C9")
	if !ok || len(msgs) != 1 || msgs[0].Provenance != model.Failed {
		t.Errorf("failed echo not visible: ok=%v msgs=%+v", ok, msgs)
	}
}
