package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"stepseq/internal/arrangement"
	"stepseq/internal/core"
	"stepseq/internal/grid"
	"stepseq/internal/playback"
	"stepseq/internal/tui"
	"stepseq/pkg/domain"
)

func newTriggersCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "triggers",
		Short: "List the triggers fired by audible tracks, by absolute step",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			tracks := a.svc.Tracks()
			names := make(map[domain.ID]string, len(tracks))
			for _, t := range tracks {
				names[t.ID] = t.Name
			}
			sched := playback.BuildSchedule(tracks)
			tw := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STEP\tTRACK\tCHANNEL\tTRIGGER\tFILE")
			for _, step := range sched.Steps() {
				for _, ev := range sched.At(step) {
					fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", ev.Step, names[ev.TrackID], ev.Channel+1, ev.Trigger, ev.FileID)
				}
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "%d triggers over %d steps\n", sched.Count(), sched.Length)
			return nil
		}),
	}
}

// sampleIDs returns the sample files referenced by tracks in first-seen order.
func sampleIDs(tracks []domain.Track) []domain.ID {
	seen := map[domain.ID]bool{}
	var ids []domain.ID
	for _, t := range tracks {
		for _, trig := range core.FlattenTriggers(t) {
			if trig.Trigger.Kind == domain.TriggerSample && !seen[trig.Trigger.FileID] {
				seen[trig.Trigger.FileID] = true
				ids = append(ids, trig.Trigger.FileID)
			}
		}
	}
	return ids
}

func newGridCmd(withApp appRunner) *cobra.Command {
	var (
		trackPos, sectionPos int
		high, low            string
		sampleGrid           bool
	)
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Print the piano roll or sample grid of a section",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			tracks := a.svc.Tracks()
			if trackPos < 0 || trackPos >= len(tracks) {
				return fmt.Errorf("track %d out of range (%d tracks)", trackPos, len(tracks))
			}
			sections := core.SortSections(tracks[trackPos].Sections)
			if sectionPos < 0 || sectionPos >= len(sections) {
				return fmt.Errorf("section %d out of range (%d sections)", sectionPos, len(sections))
			}
			var rows []domain.Trigger
			if sampleGrid {
				rows = grid.SampleRows(sampleIDs(tracks))
			} else {
				hi, err := domain.ParsePitch(high)
				if err != nil {
					return err
				}
				lo, err := domain.ParsePitch(low)
				if err != nil {
					return err
				}
				rows = grid.NoteRows(hi, lo)
			}
			sec := sections[sectionPos]
			m := grid.Project(sec.Steps, grid.SectionWindow(sec, 0, len(rows)), rows, nil)
			printMatrix(cmd, m)
			return nil
		}),
	}
	cmd.Flags().IntVar(&trackPos, "track", 0, "track position")
	cmd.Flags().IntVar(&sectionPos, "section", 0, "section position within the track")
	cmd.Flags().StringVar(&high, "high", "C5", "highest piano-roll row")
	cmd.Flags().StringVar(&low, "low", "C3", "lowest piano-roll row")
	cmd.Flags().BoolVar(&sampleGrid, "samples", false, "show the sample grid instead of the piano roll")
	return cmd
}

func printMatrix(cmd *cobra.Command, m grid.Matrix) {
	w := bufio.NewWriter(out(cmd))
	defer w.Flush()
	width := 4
	for _, r := range m.Rows {
		width = max(width, len(r.Label))
	}
	for _, r := range m.Rows {
		fmt.Fprintf(w, "%-*s ", width, r.Label)
		for _, c := range r.Cells {
			if c.Index > 0 && c.Index%4 == 0 {
				w.WriteByte('|')
			}
			if c.Selected {
				w.WriteByte('x')
			} else {
				w.WriteByte('.')
			}
		}
		w.WriteByte('\n')
	}
}

func newExportMIDICmd(withApp appRunner) *cobra.Command {
	var opts playback.SMFOptions
	cmd := &cobra.Command{
		Use:   "export-midi FILE",
		Short: "Write the audible tracks as a Standard MIDI File",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			keys, err := playback.WriteSMF(f, a.svc.Tracks(), opts)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("export %s: %w", args[0], err)
			}
			fmt.Fprintf(out(cmd), "wrote %s (%d sample keys)\n", args[0], keys.Len())
			return nil
		}),
	}
	cmd.Flags().Float64Var(&opts.BPM, "bpm", 120, "tempo in beats per minute")
	cmd.Flags().Uint16Var(&opts.Resolution, "resolution", 960, "ticks per quarter note")
	cmd.Flags().IntVar(&opts.StepsPerBeat, "steps-per-beat", 4, "steps per quarter note")
	cmd.Flags().Uint8Var(&opts.Velocity, "velocity", 100, "note-on velocity")
	return cmd
}

func newImportCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Add the tracks of a YAML arrangement to the project",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			_, tracks, res, err := arrangement.ReadFile(args[0])
			if err != nil {
				return err
			}
			for _, v := range res.Violations {
				a.logger.Warn("arrangement rule", "rule", v.Rule, "id", v.EntityID.String(), "message", v.Message)
			}
			added, err := a.svc.Import(tracks)
			if err != nil {
				return err
			}
			if err := a.svc.Sync(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "imported %d tracks into %s\n", len(added), a.svc.ProjectID())
			return nil
		}),
	}
}

func newDumpCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "dump [FILE]",
		Short: "Write the project as a YAML arrangement",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			if len(args) == 0 {
				return arrangement.Encode(out(cmd), a.svc.ProjectID(), a.svc.Tracks())
			}
			return arrangement.WriteFile(args[0], a.svc.ProjectID(), a.svc.Tracks())
		}),
	}
}

func newRmProjectCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "rm-project [PROJECT]",
		Short: "Delete a project with all of its tracks, sections and steps",
		Long:  "Delete a project with all of its tracks, sections and steps. Defaults to the loaded project.",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			project := a.svc.ProjectID()
			if len(args) == 1 {
				project = domain.ID(args[0])
			}
			removed, err := a.svc.DeleteProject(cmd.Context(), project)
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "deleted %d tracks from %s\n", removed, project)
			return nil
		}),
	}
}

func newSamplesCmd(withApp appRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "samples",
		Short: "Manage sample files",
	}
	ls := &cobra.Command{
		Use:   "ls [OWNER]",
		Short: "List sample files",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			owner := ""
			if len(args) == 1 {
				owner = args[0]
			}
			refs, err := a.files.List(cmd.Context(), owner)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tTYPE\tID")
			for _, ref := range refs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ref.Name, humanize.Bytes(uint64(max(ref.Size, 0))), ref.ContentType, ref.ID)
			}
			return tw.Flush()
		}),
	}
	var name string
	add := &cobra.Command{
		Use:   "add OWNER FILE",
		Short: "Upload a sample file",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			display := name
			if display == "" {
				display = filepath.Base(args[1])
			}
			ref, err := a.files.Upload(cmd.Context(), args[0], display, f, mime.TypeByExtension(strings.ToLower(filepath.Ext(args[1]))))
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "%s\t%s\n", ref.ID, humanize.Bytes(uint64(max(ref.Size, 0))))
			return nil
		}),
	}
	add.Flags().StringVar(&name, "name", "", "display name (defaults to the file name)")
	rm := &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a sample file",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ok, err := a.files.Delete(cmd.Context(), domain.ID(args[0]))
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityFile, ID: domain.ID(args[0])}
			}
			return nil
		}),
	}
	cmd.AddCommand(ls, add, rm)
	return cmd
}

func newEditCmd(withApp appRunner) *cobra.Command {
	var (
		sampleOwner string
		instrument  string
	)
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Open the terminal grid editor",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			opts := []tui.Option{tui.WithInstrument(domain.ID(instrument))}
			if cmd.Flags().Changed("samples") {
				refs, err := a.files.List(cmd.Context(), sampleOwner)
				if err != nil {
					return err
				}
				ids := make([]domain.ID, len(refs))
				for i, ref := range refs {
					ids[i] = ref.ID
				}
				opts = append(opts, tui.WithRows(grid.SampleRows(ids)))
			}
			a.serveMetrics()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- a.svc.Run(ctx) }()

			prog := tea.NewProgram(tui.New(a.svc, opts...), tea.WithAltScreen(), tea.WithContext(ctx))
			_, err := prog.Run()
			cancel()
			if runErr := <-done; runErr != nil && !errors.Is(runErr, context.Canceled) {
				a.logger.Warn("sync loop stopped", "error", runErr)
			}
			if errors.Is(err, tea.ErrProgramKilled) && cmd.Context().Err() != nil {
				return nil
			}
			return err
		}),
	}
	cmd.Flags().StringVar(&sampleOwner, "samples", "", "edit the sample grid with files owned by this owner")
	cmd.Flags().StringVar(&instrument, "instrument", "", "sample file recorded on new note steps")
	return cmd
}
