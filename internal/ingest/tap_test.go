package ingest

import (
	"encoding/json"
	"testing"

	"github.com/example/ride-sync/internal/models"
	"github.com/example/ride-sync/internal/storage"
)

func TestRecordSubjects(t *testing.T) {
	n := models.Notification{UserID: "u1", Kind: models.KindRideStartedForDriver, Payload: json.RawMessage(`{"ride_id":"r1"}`)}
	got := NewRecord(n, "d1").Subjects()
	want := []storage.Subject{{Type: storage.SubjectRide, ID: "r1"}, {Type: storage.SubjectDriver, ID: "d1"}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %+v want %+v", got, want)
	}

	rider := NewRecord(models.Notification{Kind: models.KindRideAccepted, Payload: json.RawMessage(`{}`)}, "")
	if s := rider.Subjects(); len(s) != 0 {
		t.Fatalf("expected no subjects, got %+v", s)
	}
}

func TestRecordSubjectsFromAssignedRide(t *testing.T) {
	n := models.Notification{Kind: models.KindRideAssignedToDriver, Payload: json.RawMessage(`{"ride":{"id":"r2","status":"assigned"}}`)}
	got := NewRecord(n, "d1").Subjects()
	if len(got) != 2 || got[0] != (storage.Subject{Type: storage.SubjectRide, ID: "r2"}) {
		t.Fatalf("assignment not filed under its ride: %+v", got)
	}
}

func TestRecordKeyAndEvent(t *testing.T) {
	r := NewRecord(models.Notification{UserID: "u9", Kind: models.KindRideAssigned}, "")
	if string(r.Key()) != "u9" {
		t.Fatalf("expected user key, got %q", r.Key())
	}
	anon := NewRecord(models.Notification{Kind: models.KindRideAssigned}, "")
	if string(anon.Key()) != anon.ID || anon.ID == "" {
		t.Fatalf("expected id key, got %q", anon.Key())
	}

	ev := r.Event()
	if ev.ID != r.ID || ev.Kind != models.KindRideAssigned || ev.CreatedAt == nil || !ev.CreatedAt.Equal(r.ReceivedAt) {
		t.Fatalf("unexpected event %+v", ev)
	}

	b, _ := json.Marshal(r)
	var back Record
	if err := json.Unmarshal(b, &back); err != nil || back.ID != r.ID || back.Notification.UserID != "u9" {
		t.Fatalf("record did not survive the wire: %+v %v", back, err)
	}
}
