package requests

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"helprelay/protocol"
)

func req(id string, dev int) protocol.Req {
	return protocol.Req{ReqID: id, DeviceID: dev, Timestamp: "100", Color: "red"}
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusPending, StatusOpen, true},
		{StatusPending, StatusClaimed, false},
		{StatusPending, StatusCanceled, true},
		{StatusOpen, StatusClaimed, true},
		{StatusOpen, StatusResolved, false},
		{StatusClaimed, StatusResolved, true},
		{StatusClaimed, StatusCanceled, true},
		{StatusResolved, StatusCanceled, false},
		{StatusCanceled, StatusOpen, false},
	}
	for _, tt := range tests {
		if got := IsValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("IsValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCreateDedup(t *testing.T) {
	tbl := NewTable(false)

	r, fresh := tbl.Create(req("abc", 7))
	if !fresh {
		t.Fatal("first create must be fresh")
	}
	if r.Status != StatusPending || r.Color != "red" || r.DeviceID != 7 {
		t.Errorf("unexpected request: %+v", r)
	}

	r2, fresh := tbl.Create(protocol.Req{ReqID: "abc", DeviceID: 9, Color: "blue"})
	if fresh {
		t.Error("second create with same id must be deduped")
	}
	if r2.DeviceID != 7 || r2.Color != "red" {
		t.Errorf("duplicate create must not change the record: %+v", r2)
	}
	if n := len(tbl.List("")); n != 1 {
		t.Errorf("table has %d requests, want 1", n)
	}
}

func TestCreateSkipDetails(t *testing.T) {
	tbl := NewTable(true)
	r, _ := tbl.Create(req("abc", 1))
	if r.Status != StatusOpen {
		t.Errorf("status = %s, want open", r.Status)
	}
	if _, err := tbl.Claim("abc", "42"); err != nil {
		t.Errorf("claim without details: %v", err)
	}
}

func TestSubmitDetails(t *testing.T) {
	tbl := NewTable(false)
	tbl.Create(req("abc", 7))

	if _, err := tbl.SubmitDetails("abc", "   "); !errors.Is(err, ErrEmptyReason) {
		t.Fatalf("err = %v, want ErrEmptyReason", err)
	}
	if r, _ := tbl.Get("abc"); r.Status != StatusPending {
		t.Errorf("rejected details changed status to %s", r.Status)
	}

	r, err := tbl.SubmitDetails("abc", " fire | smoke ")
	if err != nil {
		t.Fatalf("submit details: %v", err)
	}
	if r.Status != StatusOpen || r.Reason != "fire / smoke" {
		t.Errorf("unexpected request: %+v", r)
	}

	if _, err := tbl.SubmitDetails("abc", "again"); !errors.Is(err, ErrAlreadyHasDetails) {
		t.Errorf("err = %v, want ErrAlreadyHasDetails", err)
	}
	if r, _ := tbl.Get("abc"); r.Reason != "fire / smoke" {
		t.Errorf("reason overwritten: %q", r.Reason)
	}
	if _, err := tbl.SubmitDetails("nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestClaimPreconditions(t *testing.T) {
	tbl := NewTable(false)
	tbl.Create(req("abc", 7))

	if _, err := tbl.Claim("abc", "42"); !errors.Is(err, ErrNeedsDetails) {
		t.Fatalf("err = %v, want ErrNeedsDetails", err)
	}
	tbl.SubmitDetails("abc", "fire")

	r, err := tbl.Claim("abc", "42")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if r.Status != StatusClaimed || r.ClaimedBy != "42" {
		t.Errorf("unexpected request: %+v", r)
	}

	if _, err := tbl.Claim("abc", "43"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("err = %v, want ErrAlreadyClaimed", err)
	}
	if r, _ := tbl.Get("abc"); r.ClaimedBy != "42" {
		t.Errorf("claimer changed to %q", r.ClaimedBy)
	}
	if _, err := tbl.Claim("nope", "42"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestResolvePreconditions(t *testing.T) {
	tbl := NewTable(false)
	tbl.Create(req("abc", 7))
	tbl.SubmitDetails("abc", "fire")

	if _, err := tbl.Resolve("abc", "42"); !errors.Is(err, ErrNotClaimed) {
		t.Fatalf("err = %v, want ErrNotClaimed", err)
	}
	tbl.Claim("abc", "42")

	if _, err := tbl.Resolve("abc", "43"); !errors.Is(err, ErrNotClaimer) {
		t.Fatalf("err = %v, want ErrNotClaimer", err)
	}
	r, err := tbl.Resolve("abc", "42")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if r.Status != StatusResolved || r.ClaimedBy != "42" {
		t.Errorf("unexpected request: %+v", r)
	}
	if _, err := tbl.Resolve("abc", "42"); !errors.Is(err, ErrNotClaimed) {
		t.Errorf("second resolve err = %v, want ErrNotClaimed", err)
	}
}

func TestCancel(t *testing.T) {
	tbl := NewTable(false)
	if _, _, fresh := tbl.Cancel("unknown"); fresh {
		t.Error("cancel of unknown id must be deduped")
	}

	for _, status := range []string{StatusPending, StatusOpen, StatusClaimed} {
		tbl := NewTable(false)
		tbl.Create(req("abc", 7))
		if status != StatusPending {
			tbl.SubmitDetails("abc", "fire")
		}
		if status == StatusClaimed {
			tbl.Claim("abc", "42")
		}
		r, from, fresh := tbl.Cancel("abc")
		if !fresh || r.Status != StatusCanceled || from != status {
			t.Errorf("cancel from %s: fresh=%v status=%s from=%s", status, fresh, r.Status, from)
		}
		if _, _, fresh := tbl.Cancel("abc"); fresh {
			t.Errorf("second cancel from %s must be deduped", status)
		}
	}

	tbl = NewTable(true)
	tbl.Create(req("abc", 7))
	tbl.Claim("abc", "42")
	tbl.Resolve("abc", "42")
	r, _, fresh := tbl.Cancel("abc")
	if fresh || r.Status != StatusResolved {
		t.Errorf("cancel after resolve: fresh=%v status=%s", fresh, r.Status)
	}
}

func TestCanceledRejectsOperatorActions(t *testing.T) {
	tbl := NewTable(false)
	tbl.Create(req("abc", 7))
	tbl.Cancel("abc")

	if _, err := tbl.SubmitDetails("abc", "fire"); !errors.Is(err, ErrAlreadyHasDetails) {
		t.Errorf("details err = %v", err)
	}
	if _, err := tbl.Claim("abc", "42"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("claim err = %v", err)
	}
	if _, err := tbl.Resolve("abc", "42"); !errors.Is(err, ErrNotClaimed) {
		t.Errorf("resolve err = %v", err)
	}
}

func TestAttachRefAndList(t *testing.T) {
	tbl := NewTable(false)
	tbl.Create(req("a", 1))
	tbl.Create(req("b", 2))
	tbl.SubmitDetails("b", "x")
	if _, ok := tbl.AttachRef("a", "", "msg-1"); !ok {
		t.Error("first attach should succeed")
	}
	if _, ok := tbl.AttachRef("a", "msg-1", ""); ok {
		t.Error("empty ref must not be attached")
	}
	// A render that started before msg-1 was attached loses.
	cur, ok := tbl.AttachRef("a", "", "msg-0")
	if ok || cur.PresentationRef != "msg-1" {
		t.Errorf("stale attach = %+v, %v", cur, ok)
	}
	if _, ok := tbl.AttachRef("a", "msg-1", "msg-2"); !ok {
		t.Error("attach over the current ref should succeed")
	}
	if _, ok := tbl.AttachRef("zzz", "", "msg-9"); ok {
		t.Error("attach to unknown id should fail")
	}

	if r, _ := tbl.Get("a"); r.PresentationRef != "msg-2" {
		t.Errorf("ref = %q, want msg-2", r.PresentationRef)
	}
	if got := tbl.List(StatusOpen); len(got) != 1 || got[0].ID != "b" {
		t.Errorf("open list = %+v", got)
	}
	if got := tbl.List(""); len(got) != 2 {
		t.Errorf("full list has %d entries", len(got))
	}
	counts := tbl.Counts()
	if counts[StatusPending] != 1 || counts[StatusOpen] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestPingWaits(t *testing.T) {
	tbl := NewTable(false)

	if tbl.MarkPong("p1", 3) {
		t.Error("pong without a wait must be deduped")
	}
	tbl.OpenWait("p1")
	if !tbl.MarkPong("p1", 3) {
		t.Error("first pong must be fresh")
	}
	if tbl.MarkPong("p1", 3) {
		t.Error("repeat pong must be deduped")
	}
	tbl.MarkPong("p1", 1)

	got := tbl.CloseWait("p1")
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("responders = %v, want [1 3]", got)
	}
	if tbl.MarkPong("p1", 5) {
		t.Error("pong after close must be deduped")
	}
	if got := tbl.CloseWait("p1"); len(got) != 0 {
		t.Errorf("second close returned %v", got)
	}
}

func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	tbl := NewTable(true)
	tbl.Create(req("abc", 7))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(actor string) {
			defer wg.Done()
			if _, err := tbl.Claim("abc", actor); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(fmt.Sprint(i))
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("%d claims succeeded, want 1", wins)
	}
}
