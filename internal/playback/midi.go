package playback

import (
	"fmt"
	"io"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"stepseq/internal/core"
	"stepseq/pkg/domain"
)

// FirstSampleKey is the key assigned to the first sample file.
const FirstSampleKey uint8 = 60

// SampleKeyMap assigns MIDI keys to sample files in first-seen order.
type SampleKeyMap struct {
	keys map[domain.ID]uint8
	next uint8
}

// NewSampleKeyMap returns an empty map starting at FirstSampleKey.
func NewSampleKeyMap() *SampleKeyMap {
	return &SampleKeyMap{keys: map[domain.ID]uint8{}, next: FirstSampleKey}
}

// Key returns the key for fileID, assigning the next free one on first use.
// Keys saturate at MaxPitch.
func (m *SampleKeyMap) Key(fileID domain.ID) uint8 {
	if k, ok := m.keys[fileID]; ok {
		return k
	}
	k := m.next
	if m.next < uint8(domain.MaxPitch) {
		m.next++
	}
	m.keys[fileID] = k
	return k
}

// Len reports how many files have keys.
func (m *SampleKeyMap) Len() int { return len(m.keys) }

func (m *SampleKeyMap) key(t domain.Trigger) uint8 {
	if t.Kind == domain.TriggerNote {
		return t.Pitch.Key()
	}
	return m.Key(t.FileID)
}

// Messages returns the note-on messages for the events at tick. Each event
// is paired with the note-off that releases it.
func (s Schedule) Messages(tick int, velocity uint8, keys *SampleKeyMap) (on, off []midi.Message) {
	for _, ev := range s.At(tick) {
		k := keys.key(ev.Trigger)
		on = append(on, midi.NoteOn(ev.Channel, k, velocity))
		off = append(off, midi.NoteOff(ev.Channel, k))
	}
	return on, off
}

// SMFOptions configures file export.
type SMFOptions struct {
	BPM          float64
	Resolution   uint16
	StepsPerBeat int
	Velocity     uint8
}

func (o SMFOptions) withDefaults() SMFOptions {
	if o.BPM <= 0 {
		o.BPM = 120
	}
	if o.Resolution == 0 {
		o.Resolution = 960
	}
	if o.StepsPerBeat <= 0 {
		o.StepsPerBeat = 4
	}
	if o.Velocity == 0 {
		o.Velocity = 100
	}
	return o
}

type timedMessage struct {
	tick uint32
	off  bool
	msg  midi.Message
}

// WriteSMF writes tracks as a format 1 file: a tempo track followed by one
// track per audible track, in input order.
func WriteSMF(w io.Writer, tracks []domain.Track, opts SMFOptions) (*SampleKeyMap, error) {
	opts = opts.withDefaults()
	perStep := uint32(opts.Resolution) / uint32(opts.StepsPerBeat)
	if perStep == 0 {
		return nil, fmt.Errorf("resolution %d too small for %d steps per beat", opts.Resolution, opts.StepsPerBeat)
	}
	sched := BuildSchedule(tracks)
	keys := NewSampleKeyMap()

	file := smf.New()
	file.TimeFormat = smf.MetricTicks(opts.Resolution)

	var tempo smf.Track
	tempo.Add(0, smf.MetaMeter(4, 4))
	tempo.Add(0, smf.MetaTempo(opts.BPM))
	tempo.Close(0)
	if err := file.Add(tempo); err != nil {
		return nil, fmt.Errorf("add tempo track: %w", err)
	}

	perTrack := make(map[domain.ID][]timedMessage, len(tracks))
	for _, step := range sched.Steps() {
		start := uint32(step) * perStep
		for _, ev := range sched.At(step) {
			k := keys.key(ev.Trigger)
			perTrack[ev.TrackID] = append(perTrack[ev.TrackID],
				timedMessage{tick: start, msg: midi.NoteOn(ev.Channel, k, opts.Velocity)},
				timedMessage{tick: start + perStep - 1, off: true, msg: midi.NoteOff(ev.Channel, k)},
			)
		}
	}

	audible := core.EffectiveAudibility(tracks)
	end := uint32(sched.Length) * perStep
	for i, t := range tracks {
		if !audible[t.ID] {
			continue
		}
		msgs := perTrack[t.ID]
		sort.SliceStable(msgs, func(a, b int) bool {
			if msgs[a].tick != msgs[b].tick {
				return msgs[a].tick < msgs[b].tick
			}
			return msgs[a].off && !msgs[b].off
		})
		var tr smf.Track
		var last uint32
		for _, m := range msgs {
			tr.Add(m.tick-last, m.msg)
			last = m.tick
		}
		if end > last {
			tr.Close(end - last)
		} else {
			tr.Close(0)
		}
		if err := file.Add(tr); err != nil {
			return nil, fmt.Errorf("add track %d: %w", i, err)
		}
	}
	if _, err := file.WriteTo(w); err != nil {
		return nil, fmt.Errorf("write smf: %w", err)
	}
	return keys, nil
}
