package natsadapter

import (
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/geodash/internal/core/domain"
)

func TestRecordSubject(t *testing.T) {
	tests := []struct {
		typ  domain.RecordEventType
		want string
	}{
		{domain.RecordCreated, "geodash.records.created.r1"},
		{domain.RecordUpdated, "geodash.records.updated.r1"},
		{domain.RecordDeleted, "geodash.records.deleted.r1"},
	}
	for _, tt := range tests {
		got := RecordSubject(&domain.RecordEvent{Type: tt.typ, RecordID: "r1"})
		if got != tt.want {
			t.Errorf("RecordSubject(%s) = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestStreamsCoverSubjects(t *testing.T) {
	byName := map[string]nats.StreamConfig{}
	for _, s := range Streams() {
		byName[s.Name] = s
	}
	if s, ok := byName[MediaStream]; !ok || s.Retention != nats.WorkQueuePolicy || s.Subjects[0] != MediaJobSubject {
		t.Errorf("media stream misconfigured: %+v", s)
	}
	if s, ok := byName[RecordsStream]; !ok || s.Subjects[0] != RecordSubjectAll {
		t.Errorf("records stream misconfigured: %+v", s)
	}
}
