package policyfile

import (
	"bytes"
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"mercator-hq/keel/pkg/gate"
	"mercator-hq/keel/pkg/pm"
)

// File is a parsed policy file. Nil sections are absent from the file.
type File struct {
	Path        string            `yaml:"-"`
	Charter     *string           `yaml:"charter"`
	Constraints *gate.Constraints `yaml:"constraints"`
	Preferences *pm.Preferences   `yaml:"preferences"`
}

// Load reads and validates the policy file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Cause: err}
	}
	f, err := Parse(data)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			verr.Path = path
			return nil, verr
		}
		return nil, &LoadError{Path: path, Cause: err}
	}
	f.Path = path
	return f, nil
}

// Parse decodes and validates policy YAML. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, err
	}
	if f.Charter == nil && f.Constraints == nil && f.Preferences == nil {
		return nil, ErrEmptyFile
	}

	if f.Constraints != nil {
		c := f.Constraints.Clone()
		f.Constraints = &c
		if errs := gate.ValidatePatterns(c); len(errs) > 0 {
			return nil, &ValidationError{Errors: errs}
		}
	}
	return &f, nil
}

// Update converts the file into a partial PM update.
func (f *File) Update() *pm.Update {
	u := &pm.Update{}
	if f.Charter != nil {
		charter := *f.Charter
		u.Charter = &charter
	}
	if f.Constraints != nil {
		c := f.Constraints.Clone()
		u.Constraints = &c
	}
	if f.Preferences != nil {
		p := *f.Preferences
		u.Preferences = &p
	}
	return u
}
