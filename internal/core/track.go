package core

import (
	"sort"

	"stepseq/pkg/domain"
)

// AbsoluteTrigger is one entry of a track's flattened timeline.
type AbsoluteTrigger struct {
	Step      int
	Trigger   Trigger
	FileID    ID
	SectionID ID
}

// FlattenTriggers emits every stored step of the track at its absolute step
// index, sections in index order. Steps outside their section's domain are
// skipped. The result is ordered by absolute step, then section order, then
// insertion order.
func FlattenTriggers(track Track) []AbsoluteTrigger {
	var out []AbsoluteTrigger
	start := 0
	for _, section := range SortSections(track.Sections) {
		for _, step := range section.Steps {
			if !section.InRange(step.Index) {
				continue
			}
			out = append(out, AbsoluteTrigger{
				Step:      start + step.Index,
				Trigger:   step.Trigger,
				FileID:    step.FileID,
				SectionID: section.ID,
			})
		}
		start += section.StepCount
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out
}

// EffectiveAudibility resolves mute and solo across tracks. A track is audible
// when it is not muted and either no track is soloed or it is soloed itself.
func EffectiveAudibility(tracks []Track) map[ID]bool {
	anySolo := false
	for _, t := range tracks {
		if t.Solo {
			anySolo = true
			break
		}
	}
	out := make(map[ID]bool, len(tracks))
	for _, t := range tracks {
		out[t.ID] = !t.Mute && (!anySolo || t.Solo)
	}
	return out
}

// NewTrack returns an empty track with a temporary id.
func NewTrack(name string) Track {
	return Track{ID: domain.NewTemporaryID(), Name: name}
}

// NewSection returns an empty section with a temporary id. The position is
// assigned when it is inserted into a timeline.
func NewSection(stepCount int) Section {
	return Section{ID: domain.NewTemporaryID(), StepCount: stepCount}
}
