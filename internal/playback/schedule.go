// Package playback turns tracks into per-tick trigger schedules and renders
// them as MIDI messages or Standard MIDI Files.
package playback

import (
	"sort"

	"stepseq/internal/core"
	"stepseq/pkg/domain"
)

// Event is one trigger fired by an audible track at a loop position.
type Event struct {
	TrackID domain.ID
	Channel uint8
	core.AbsoluteTrigger
}

// Schedule holds the flattened events of every audible track. Length is the
// loop length in steps, the longest track's total.
type Schedule struct {
	Length int
	events map[int][]Event
}

// DrumChannel is the General MIDI percussion channel, zero based.
const DrumChannel = 9

// TrackChannel returns the MIDI channel of the track at position i. Channels
// cycle through the fifteen melodic channels, skipping DrumChannel.
func TrackChannel(i int) uint8 {
	c := i % 15
	if c < 0 {
		c += 15
	}
	if c >= DrumChannel {
		c++
	}
	return uint8(c)
}

// BuildSchedule flattens audible tracks. Muted tracks, and unsoloed tracks
// while any track is soloed, contribute nothing. Channels follow the track
// position so muting never shifts another track's channel.
func BuildSchedule(tracks []domain.Track) Schedule {
	audible := core.EffectiveAudibility(tracks)
	s := Schedule{events: map[int][]Event{}}
	for i, t := range tracks {
		if total := core.TotalSteps(t.Sections); total > s.Length {
			s.Length = total
		}
		if !audible[t.ID] {
			continue
		}
		for _, trig := range core.FlattenTriggers(t) {
			s.events[trig.Step] = append(s.events[trig.Step], Event{
				TrackID:         t.ID,
				Channel:         TrackChannel(i),
				AbsoluteTrigger: trig,
			})
		}
	}
	return s
}

// At returns the events at tick, wrapping around the loop.
func (s Schedule) At(tick int) []Event {
	if s.Length == 0 {
		return nil
	}
	tick %= s.Length
	if tick < 0 {
		tick += s.Length
	}
	return s.events[tick]
}

// Steps lists the loop positions carrying events, ascending.
func (s Schedule) Steps() []int {
	out := make([]int, 0, len(s.events))
	for step := range s.events {
		out = append(out, step)
	}
	sort.Ints(out)
	return out
}

// Count is the number of scheduled events.
func (s Schedule) Count() int {
	n := 0
	for _, evs := range s.events {
		n += len(evs)
	}
	return n
}
