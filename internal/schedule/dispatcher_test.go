package schedule_test

import (
	"testing"

	"github.com/scrapeq/scrapeq/internal/schedule"
)

func TestParseTargets(t *testing.T) {
	targets, err := schedule.ParseTargets([]string{"MLU107:1", " MLU1055:3 ", "MLA200"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []schedule.Target{
		{Category: "MLU107", Page: 1},
		{Category: "MLU1055", Page: 3},
		{Category: "MLA200", Page: 1},
	}
	if len(targets) != len(want) {
		t.Fatalf("parsed %d targets, want %d", len(targets), len(want))
	}
	for i := range want {
		if targets[i] != want[i] {
			t.Errorf("targets[%d] = %+v, want %+v", i, targets[i], want[i])
		}
	}
}

func TestParseTargets_SkipsEmptyEntries(t *testing.T) {
	targets, err := schedule.ParseTargets([]string{"", "MLU107", "  "})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("parsed %d targets, want 1", len(targets))
	}
}

func TestParseTargets_RejectsBadPages(t *testing.T) {
	for _, entry := range []string{"MLU107:zero", "MLU107:0", "MLU107:-1"} {
		if _, err := schedule.ParseTargets([]string{entry}); err == nil {
			t.Errorf("ParseTargets(%q) succeeded, want error", entry)
		}
	}
}
