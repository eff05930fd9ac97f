package core

import (
	"errors"
	"testing"

	"stepseq/pkg/domain"
)

func TestDefaultRulesAcceptConsistentTracks(t *testing.T) {
	tracks := []Track{BindTrack(Track{ID: "t", Sections: []Section{
		{ID: "a", Index: 0, StepCount: 4, Steps: []Step{{ID: "x", Index: 1, Trigger: c4}, {ID: "y", Index: 1, Trigger: e4}}},
		{ID: "b", Index: 3, StepCount: 2},
	}})}
	if res, err := NewDefaultRulesEngine().Check(tracks); err != nil {
		t.Fatalf("unexpected violations %+v", res.Violations)
	}
}

func TestDefaultRulesFlagEachInvariant(t *testing.T) {
	cases := map[string]Track{
		"positive_step_count":  {ID: "t", Sections: []Section{{ID: "a", TrackID: "t", StepCount: 0}}},
		"unique_section_index": {ID: "t", Sections: []Section{{ID: "a", TrackID: "t", StepCount: 1}, {ID: "b", TrackID: "t", StepCount: 1}}},
		"steps_in_range":       {ID: "t", Sections: []Section{{ID: "a", TrackID: "t", StepCount: 2, Steps: []Step{{ID: "x", SectionID: "a", Index: 2, Trigger: c4}}}}},
		"unique_step_trigger": {ID: "t", Sections: []Section{{ID: "a", TrackID: "t", StepCount: 2, Steps: []Step{
			{ID: "x", SectionID: "a", Index: 1, Trigger: c4}, {ID: "y", SectionID: "a", Index: 1, Trigger: c4},
		}}}},
		"parent_references": {ID: "t", Sections: []Section{{ID: "a", TrackID: "other", StepCount: 2}}},
	}
	engine := NewDefaultRulesEngine()
	for rule, track := range cases {
		res, err := engine.Check([]Track{track})
		var rve RuleViolationError
		if !errors.As(err, &rve) {
			t.Fatalf("%s: expected violation error, got %v", rule, err)
		}
		found := false
		for _, v := range res.Violations {
			if v.Rule == rule && v.Severity == domain.SeverityBlock {
				found = true
			}
		}
		if !found {
			t.Fatalf("%s: not reported in %+v", rule, res.Violations)
		}
	}
}

func TestRuleFuncWarnings(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(RuleFunc{RuleName: "long_track", Fn: func(tracks []Track) []Violation {
		return []Violation{{Severity: domain.SeverityWarn, Message: "long"}}
	}})
	res, err := engine.Check(nil)
	if err != nil || len(res.Violations) != 1 || res.Violations[0].Rule != "long_track" {
		t.Fatalf("warnings must not block: %+v %v", res, err)
	}
}
