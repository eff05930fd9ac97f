package playback

import (
	"bytes"
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepseq/pkg/domain"
)

func note(s string) domain.Trigger { return domain.NoteTrigger(domain.MustPitch(s)) }

func fixture() []domain.Track {
	lead := domain.Track{ID: "lead", Sections: []domain.Section{
		{ID: "s1", Index: 0, StepCount: 4, Steps: []domain.Step{{Index: 0, Trigger: note("C4")}, {Index: 2, Trigger: note("E4")}}},
		{ID: "s2", Index: 1, StepCount: 4, Steps: []domain.Step{{Index: 1, Trigger: note("G4")}}},
	}}
	drums := domain.Track{ID: "drums", Sections: []domain.Section{
		{ID: "d1", Index: 0, StepCount: 4, Steps: []domain.Step{
			{Index: 0, Trigger: domain.SampleTrigger("kick")},
			{Index: 2, Trigger: domain.SampleTrigger("snare")},
		}},
	}}
	return []domain.Track{lead, drums}
}

func TestBuildScheduleLoopsLongestTrack(t *testing.T) {
	s := BuildSchedule(fixture())
	require.Equal(t, 8, s.Length)
	assert.Equal(t, 5, s.Count())
	assert.Len(t, s.At(0), 2)
	assert.Len(t, s.At(8), 2, "tick wraps to loop start")
	assert.Len(t, s.At(-8), 2)
	require.Len(t, s.At(5), 1)
	assert.Equal(t, note("G4"), s.At(5)[0].Trigger)
	assert.Equal(t, []int{0, 2, 5}, s.Steps())
	assert.Empty(t, Schedule{}.At(3))
}

func TestBuildScheduleHonoursMuteAndSolo(t *testing.T) {
	tracks := fixture()
	tracks[0].Mute = true
	s := BuildSchedule(tracks)
	assert.Equal(t, 2, s.Count())
	assert.Equal(t, 8, s.Length, "muted tracks still define the loop")

	tracks = fixture()
	tracks[1].Solo = true
	s = BuildSchedule(tracks)
	require.Len(t, s.At(0), 1)
	assert.Equal(t, domain.ID("drums"), s.At(0)[0].TrackID)
	assert.Equal(t, uint8(1), s.At(0)[0].Channel)
}

func TestTrackChannelSkipsDrums(t *testing.T) {
	seen := map[uint8]bool{}
	for i := 0; i < 15; i++ {
		c := TrackChannel(i)
		assert.NotEqual(t, uint8(DrumChannel), c, "track %d", i)
		assert.Less(t, c, uint8(16))
		seen[c] = true
	}
	assert.Len(t, seen, 15)
	assert.Equal(t, uint8(8), TrackChannel(8))
	assert.Equal(t, uint8(10), TrackChannel(9))
	assert.Equal(t, uint8(0), TrackChannel(15))

	tracks := make([]domain.Track, 10)
	for i := range tracks {
		tracks[i] = domain.Track{ID: domain.ID(string(rune('a' + i))), Sections: []domain.Section{
			{ID: domain.ID(string(rune('a' + i))), StepCount: 1, Steps: []domain.Step{{Index: 0, Trigger: note("C4")}}},
		}}
	}
	for _, ev := range BuildSchedule(tracks).At(0) {
		assert.NotEqual(t, uint8(DrumChannel), ev.Channel, "track %s", ev.TrackID)
	}
}

func TestSampleKeyMap(t *testing.T) {
	keys := NewSampleKeyMap()
	assert.Equal(t, uint8(60), keys.Key("kick"))
	assert.Equal(t, uint8(61), keys.Key("snare"))
	assert.Equal(t, uint8(60), keys.Key("kick"))
	assert.Equal(t, 2, keys.Len())
}

func TestMessages(t *testing.T) {
	keys := NewSampleKeyMap()
	on, off := BuildSchedule(fixture()).Messages(0, 90, keys)
	require.Len(t, on, 2)
	require.Len(t, off, 2)
	var ch, key, vel uint8
	found := map[uint8]bool{}
	for _, m := range on {
		require.True(t, m.GetNoteOn(&ch, &key, &vel))
		assert.Equal(t, uint8(90), vel)
		found[key] = true
	}
	assert.True(t, found[60], "C4 and the kick share key 60 on different channels")
	assert.Equal(t, 1, keys.Len())
}

func TestWriteSMFRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	keys, err := WriteSMF(&buf, fixture(), SMFOptions{BPM: 90})
	require.NoError(t, err)
	assert.Equal(t, 2, keys.Len())

	file, err := smf.ReadFrom(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, file.Tracks, 3)
	assert.Equal(t, smf.MetricTicks(960), file.TimeFormat)

	type hit struct {
		tick uint32
		key  uint8
	}
	var hits []hit
	var tick uint32
	for _, ev := range file.Tracks[1] {
		tick += ev.Delta
		var ch, key, vel uint8
		if midi.Message(ev.Message).GetNoteOn(&ch, &key, &vel) {
			hits = append(hits, hit{tick, key})
		}
	}
	assert.Equal(t, []hit{{0, 60}, {480, 64}, {1200, 67}}, hits)
}

func TestWriteSMFRejectsTinyResolution(t *testing.T) {
	_, err := WriteSMF(&bytes.Buffer{}, fixture(), SMFOptions{Resolution: 2, StepsPerBeat: 4})
	require.Error(t, err)
}

func TestWriteSMFSkipsSilentTracks(t *testing.T) {
	tracks := fixture()
	tracks[1].Mute = true
	var buf bytes.Buffer
	keys, err := WriteSMF(&buf, tracks, SMFOptions{})
	require.NoError(t, err)
	assert.Zero(t, keys.Len())
	file, err := smf.ReadFrom(&buf)
	require.NoError(t, err)
	assert.Len(t, file.Tracks, 2)
}
