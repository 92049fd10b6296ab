package main

import (
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

type mappingFile struct {
	Voices []VoiceMapping `yaml:"voices"`
}

// LoadVoiceMappings reads a voice mapping table from a YAML file:
//
//	voices:
//	  - {staff: 1, voice: "1", name: Soprano}
//	  - {staff: 1, voice: "2", name: Alto}
func LoadVoiceMappings(path string) ([]VoiceMapping, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening voice mappings")
	}
	defer file.Close()

	mappings, err := ParseVoiceMappings(file)
	if err != nil {
		return nil, errors.Wrapf(err, "reading voice mappings from %s", path)
	}
	return mappings, nil
}

// ParseVoiceMappings decodes and validates a YAML voice mapping table
func ParseVoiceMappings(r io.Reader) ([]VoiceMapping, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var doc mappingFile
	if err := decoder.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decoding YAML")
	}

	if err := validateMappings(doc.Voices); err != nil {
		return nil, err
	}
	return doc.Voices, nil
}

func validateMappings(mappings []VoiceMapping) error {
	if len(mappings) == 0 {
		return errors.New("no voices defined")
	}

	seen := make(map[string]bool)
	for i, m := range mappings {
		if m.Staff < 1 {
			return errors.Newf("voice %d: staff must be 1 or greater, got %d", i+1, m.Staff)
		}
		if m.VoiceID == "" {
			return errors.Newf("voice %d: missing voice id", i+1)
		}
		if m.VoiceName == "" {
			return errors.Newf("voice %d: missing name", i+1)
		}
		if strings.ContainsAny(m.VoiceName, `/\`) {
			return errors.WithHint(
				errors.Newf("voice %d: name %q contains a path separator", i+1, m.VoiceName),
				"voice names become part of the output file name")
		}
		if seen[m.VoiceName] {
			return errors.Newf("voice %d: duplicate name %q", i+1, m.VoiceName)
		}
		seen[m.VoiceName] = true
	}
	return nil
}
