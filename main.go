package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var scoreExtensions = []string{".xml", ".musicxml", ".mxl"}

// options holds the command line flags
type options struct {
	Separate   bool
	Midi       bool
	Instrument string
	Lyrics     bool
	Mappings   string
	Verbose    bool
}

func main() {
	log.SetHandler(cli.New(os.Stderr))

	if err := newRootCommand().Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	for _, hint := range errors.GetAllHints(err) {
		fmt.Fprintf(w, "  hint: %s\n", hint)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "satb [file]",
		Short: "Split a combined SATB choral score into one part per voice",
		Long: `Split a two-staff SATB MusicXML score into Soprano, Alto, Tenor and Bass.

By default a single 4-part score is written next to the input as
<name>-4part.<ext>. With --separate every voice is written to its own
file, <name>-<Voice>.<ext>. Lyrics from the first voice are copied down
to the other voices wherever they have none.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.Verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return run(opts, args[0], cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&opts.Separate, "separate", "s", false, "write each voice to its own file")
	flags.BoolVar(&opts.Midi, "midi", false, "also write a rehearsal MIDI file next to each output")
	flags.StringVar(&opts.Instrument, "instrument", "choir", "rehearsal MIDI instrument (piano|choir|oohs|synth|oboe)")
	flags.BoolVar(&opts.Lyrics, "lyrics", false, "print the lyrics of each extracted voice")
	flags.StringVar(&opts.Mappings, "mappings", "", "YAML file describing the voices to extract")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	return cmd
}

func run(opts *options, path string, out io.Writer) error {
	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(err, "file not found: %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	known := false
	for _, e := range scoreExtensions {
		known = known || ext == e
	}
	if !known {
		log.Warnf("%s does not look like a MusicXML file, trying anyway", path)
	}

	mappings := DefaultVoiceMappings
	if opts.Mappings != "" {
		loaded, err := LoadVoiceMappings(opts.Mappings)
		if err != nil {
			return err
		}
		mappings = loaded
	}

	program, err := parseProgram(opts.Instrument)
	if err != nil {
		return err
	}

	log.Infof("Processing file: %s", path)

	score, err := OpenScore(path)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"title":  score.Title,
		"parts":  len(score.Parts),
		"notes":  score.NoteCount(),
		"voices": len(mappings),
	}).Debug("Score loaded")

	timeline := NewTimeline(score.Parts[0], score.Divisions)
	log.WithFields(log.Fields{
		"measures":          len(timeline.Measures),
		"ticks":             timeline.GetTotalDuration(),
		"ticks_per_quarter": timeline.TicksPerQuart,
	}).Debug("Score timeline")
	for _, line := range strings.Split(strings.TrimSpace(timeline.String()), "\n") {
		log.Debug(line)
	}

	var outputs []*ExtractedVoice
	if opts.Separate {
		log.Info("Creating separate files for each voice...")

		voices, err := ExtractAllVoicesSeparately(score, mappings)
		if err != nil {
			return err
		}

		for _, v := range voices {
			outPath := OutputPath(path, v.Mapping.VoiceName)
			if err := WriteScoreFile(v.Score, outPath); err != nil {
				log.WithError(err).WithField("voice", v.Mapping.VoiceName).Error("Skipping voice")
				continue
			}
			log.Infof("Filtered score (Part %d, Voice %s) saved to: %s", v.Mapping.Staff, v.Mapping.VoiceID, outPath)
			outputs = append(outputs, v)

			if opts.Midi {
				if err := writeMidiFile(v.Score, outPath, program); err != nil {
					log.WithError(err).WithField("voice", v.Mapping.VoiceName).Error("Skipping rehearsal MIDI")
				}
			}
		}
	} else {
		if len(mappings) != 4 {
			return errors.WithHint(
				errors.Newf("a 4-part score needs exactly four voices, got %d", len(mappings)),
				"use --separate to extract a different number of voices")
		}

		combined, err := CreateFourPartScore(score, mappings)
		if err != nil {
			return err
		}

		outPath := OutputPath(path, "4part")
		if err := WriteScoreFile(combined, outPath); err != nil {
			return err
		}
		log.Infof("4-part score saved to: %s", outPath)

		for i, p := range combined.Parts {
			outputs = append(outputs, &ExtractedVoice{
				Mapping: mappings[i],
				Score:   &Score{Title: combined.Title, Divisions: combined.Divisions, Parts: []*Part{p}},
			})
		}

		if opts.Midi {
			if err := writeMidiFile(combined, outPath, program); err != nil {
				return err
			}
		}
	}

	if opts.Lyrics {
		printLyrics(out, outputs)
	}

	return nil
}

func writeMidiFile(score *Score, scorePath string, program uint8) error {
	path := midiOutputPath(scorePath)

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating MIDI file")
	}

	err = exportRehearsalMidi(score, file, program)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}

	log.Infof("Rehearsal MIDI saved to: %s", path)
	return nil
}

func printLyrics(w io.Writer, voices []*ExtractedVoice) {
	for _, v := range voices {
		text := v.Score.Parts[0].LyricText()
		if text == "" {
			text = "(no lyrics)"
		}
		fmt.Fprintf(w, "%s: %s\n", v.Mapping.VoiceName, text)
	}
}
