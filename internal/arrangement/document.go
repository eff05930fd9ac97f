// Package arrangement reads and writes projects as YAML documents.
//
// A document uses the logical field names of the persisted records:
//
//	project: demo
//	tracks:
//	  - id: lead
//	    name: Lead
//	    sections:
//	      - index: 0
//	        step_count: 16
//	        steps:
//	          - {index: 0, note: C4}
//	          - {index: 4, file_id: kick}
//
// Missing ids decode as temporary ids. A step with both note and file_id
// fires the note; the file id is kept as the step's sample reference.
package arrangement

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"stepseq/internal/core"
	"stepseq/pkg/domain"
)

// Document is the serialized form of a project.
type Document struct {
	Project string     `yaml:"project,omitempty"`
	Tracks  []TrackDoc `yaml:"tracks"`
}

// TrackDoc is one track.
type TrackDoc struct {
	ID       string       `yaml:"id,omitempty"`
	Name     string       `yaml:"name"`
	Mute     bool         `yaml:"mute,omitempty"`
	Solo     bool         `yaml:"solo,omitempty"`
	Sections []SectionDoc `yaml:"sections,omitempty"`
}

// SectionDoc is one section.
type SectionDoc struct {
	ID        string    `yaml:"id,omitempty"`
	Index     int       `yaml:"index"`
	StepCount int       `yaml:"step_count"`
	Steps     []StepDoc `yaml:"steps,omitempty"`
}

// StepDoc is one step, written inline.
type StepDoc struct {
	ID     string `yaml:"id,omitempty"`
	Index  int    `yaml:"index"`
	Note   string `yaml:"note,omitempty"`
	FileID string `yaml:"file_id,omitempty"`
}

// MarshalYAML writes steps in flow style so each step stays on one line.
func (s StepDoc) MarshalYAML() (any, error) {
	type plain StepDoc
	var node yaml.Node
	if err := node.Encode(plain(s)); err != nil {
		return nil, err
	}
	node.Style = yaml.FlowStyle
	return &node, nil
}

// FromTracks builds a document from tracks.
func FromTracks(projectID domain.ID, tracks []domain.Track) Document {
	doc := Document{Project: projectID.String(), Tracks: make([]TrackDoc, 0, len(tracks))}
	for _, t := range tracks {
		td := TrackDoc{ID: t.ID.String(), Name: t.Name, Mute: t.Mute, Solo: t.Solo}
		for _, sec := range core.SortSections(t.Sections) {
			sd := SectionDoc{ID: sec.ID.String(), Index: sec.Index, StepCount: sec.StepCount}
			for _, st := range sec.Steps {
				note, fileID := st.Columns()
				sd.Steps = append(sd.Steps, StepDoc{ID: st.ID.String(), Index: st.Index, Note: note, FileID: fileID.String()})
			}
			td.Sections = append(td.Sections, sd)
		}
		doc.Tracks = append(doc.Tracks, td)
	}
	return doc
}

// ToTracks converts the document back into bound tracks. Steps that cannot be
// decoded are reported with their position.
func (d Document) ToTracks() ([]domain.Track, error) {
	out := make([]domain.Track, 0, len(d.Tracks))
	for ti, td := range d.Tracks {
		t := domain.Track{ID: domain.ID(td.ID), ProjectID: domain.ID(d.Project), Name: td.Name, Mute: td.Mute, Solo: td.Solo}
		for si, sd := range td.Sections {
			sec := domain.Section{ID: domain.ID(sd.ID), Index: sd.Index, StepCount: sd.StepCount}
			for pi, sp := range sd.Steps {
				st, err := domain.StepFromColumns(domain.ID(sp.ID), sec.ID, sp.Index, sp.Note, domain.ID(sp.FileID))
				if err != nil {
					return nil, fmt.Errorf("tracks[%d].sections[%d].steps[%d]: %w", ti, si, pi, err)
				}
				sec.Steps = append(sec.Steps, st)
			}
			t.Sections = append(t.Sections, sec)
		}
		out = append(out, core.BindTrack(t))
	}
	return out, nil
}

// Encode writes tracks as a YAML document.
func Encode(w io.Writer, projectID domain.ID, tracks []domain.Track) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(FromTracks(projectID, tracks)); err != nil {
		return fmt.Errorf("encode arrangement: %w", err)
	}
	return enc.Close()
}

// Decode reads a document and validates it against the default rules.
// Warnings are returned alongside the tracks; blocking violations fail.
func Decode(r io.Reader) (domain.ID, []domain.Track, core.Result, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return "", nil, core.Result{}, fmt.Errorf("decode arrangement: %w", err)
	}
	tracks, err := doc.ToTracks()
	if err != nil {
		return "", nil, core.Result{}, err
	}
	res, err := core.NewDefaultRulesEngine().Check(tracks)
	if err != nil {
		return "", nil, res, err
	}
	return domain.ID(doc.Project), tracks, res, nil
}

// ReadFile decodes the document at path.
func ReadFile(path string) (domain.ID, []domain.Track, core.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, core.Result{}, fmt.Errorf("read arrangement: %w", err)
	}
	return Decode(bytes.NewReader(data))
}

// WriteFile encodes tracks to path, creating parent directories.
func WriteFile(path string, projectID domain.ID, tracks []domain.Track) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create arrangement dir: %w", err)
		}
	}
	var buf bytes.Buffer
	if err := Encode(&buf, projectID, tracks); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write arrangement: %w", err)
	}
	return nil
}
