package model

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestDisqualificationReasonJSON(t *testing.T) {
	cases := []struct {
		reason DisqualificationReason
		want   string
	}{
		{DisqualifiedNone, "null"},
		{DisqualifiedFrequencyExceeded, `"frequency_exceeded"`},
		{DisqualifiedPhysicsExplosion, `"physics_explosion"`},
		{DisqualifiedNaNPosition, `"nan_position"`},
	}
	for _, tc := range cases {
		data, err := json.Marshal(tc.reason)
		if err != nil {
			t.Fatalf("marshal %q: %v", tc.reason, err)
		}
		if string(data) != tc.want {
			t.Fatalf("marshal %q: got=%s want=%s", tc.reason, data, tc.want)
		}
		var decoded DisqualificationReason
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if decoded != tc.reason {
			t.Fatalf("round trip: got=%q want=%q", decoded, tc.reason)
		}
	}
}

func TestDisqualificationReasonRejectsUnknown(t *testing.T) {
	var reason DisqualificationReason
	if err := json.Unmarshal([]byte(`"too_fast"`), &reason); err == nil {
		t.Fatal("expected unknown reason to be rejected")
	}
}

func TestDisqualificationReasonString(t *testing.T) {
	if DisqualifiedNone.String() != "none" || DisqualifiedNone.IsDisqualified() {
		t.Fatalf("unexpected zero reason: %s", DisqualifiedNone)
	}
	if !DisqualifiedNaNPosition.IsDisqualified() {
		t.Fatal("nan_position should disqualify")
	}
}

func TestCreatureSimulationResultLogValue(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("done", "result", CreatureSimulationResult{
		Genome:       CreatureGenome{ID: "g1"},
		FinalFitness: 12.5,
		Disqualified: DisqualifiedPhysicsExplosion,
	})
	out := buf.String()
	for _, want := range []string{"result.genome=g1", "result.fitness=12.5", "result.disqualified=physics_explosion"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}
