package domain

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfidenceThreshold is the confidence a candidate needs before it is confirmed.
const DefaultConfidenceThreshold = 0.80

// SourceAccuracy describes how precise the input to a module calculation was.
type SourceAccuracy string

const (
	SourceProbabilistic SourceAccuracy = "probabilistic"
	SourcePartial       SourceAccuracy = "partial"
	SourceSolar         SourceAccuracy = "solar"
)

func ValidSourceAccuracy(s string) bool {
	switch SourceAccuracy(s) {
	case SourceProbabilistic, SourcePartial, SourceSolar:
		return true
	}
	return false
}

// UncertaintyField is one field a module could not determine, with its candidate values.
type UncertaintyField struct {
	Field                string             `json:"field" yaml:"field"`
	Module               string             `json:"module" yaml:"module"`
	Candidates           map[string]float64 `json:"candidates" yaml:"candidates"`
	ConfidenceThreshold  float64            `json:"confidence_threshold" yaml:"confidence_threshold"`
	RefinementStrategies []string           `json:"refinement_strategies,omitempty" yaml:"refinement_strategies"`
}

// IsUncertain reports whether the field still has candidates to choose between.
func (f UncertaintyField) IsUncertain() bool {
	return len(f.Candidates) > 0
}

// Threshold returns the configured threshold, or the default when unset.
func (f UncertaintyField) Threshold() float64 {
	if f.ConfidenceThreshold <= 0 || f.ConfidenceThreshold > 1 {
		return DefaultConfidenceThreshold
	}
	return f.ConfidenceThreshold
}

// Candidate is a single value/probability pair of an UncertaintyField.
type Candidate struct {
	Value       string
	Probability float64
}

// SortedCandidates returns the candidates by descending probability, ties broken by value.
func (f UncertaintyField) SortedCandidates() []Candidate {
	out := make([]Candidate, 0, len(f.Candidates))
	for v, p := range f.Candidates {
		out = append(out, Candidate{Value: v, Probability: p})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Probability != out[j].Probability {
			return out[i].Probability > out[j].Probability
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// UncertaintyDeclaration is a module's statement that some of its output fields are uncertain.
// It is created once per calculation and only changed through UpdateFieldConfidence.
type UncertaintyDeclaration struct {
	Module         string             `json:"module" yaml:"module"`
	UserID         string             `json:"user_id" yaml:"user_id"`
	SessionID      string             `json:"session_id,omitempty" yaml:"session_id"`
	Fields         []UncertaintyField `json:"fields" yaml:"fields"`
	SourceAccuracy SourceAccuracy     `json:"source_accuracy" yaml:"source_accuracy"`
	CreatedAt      time.Time          `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" yaml:"updated_at"`
}

var (
	ErrDeclarationUserMissing   = errors.New("declaration user_id is required")
	ErrDeclarationModuleMissing = errors.New("declaration module is required")
)

// Validate checks the identity fields. An empty Fields list is valid and yields no hypotheses.
func (d *UncertaintyDeclaration) Validate() error {
	if d.UserID == "" {
		return ErrDeclarationUserMissing
	}
	if d.Module == "" {
		return ErrDeclarationModuleMissing
	}
	if d.SourceAccuracy != "" && !ValidSourceAccuracy(string(d.SourceAccuracy)) {
		return fmt.Errorf("invalid source_accuracy %q", d.SourceAccuracy)
	}
	for _, f := range d.Fields {
		if f.Field == "" {
			return fmt.Errorf("field name is required in module %s", d.Module)
		}
		for v, p := range f.Candidates {
			if p < 0 || p > 1 {
				return fmt.Errorf("candidate %s of %s has probability %.3f outside [0,1]", v, f.Field, p)
			}
		}
	}
	return nil
}

// Field returns the named field, if declared.
func (d *UncertaintyDeclaration) Field(name string) (*UncertaintyField, bool) {
	for i := range d.Fields {
		if d.Fields[i].Field == name {
			return &d.Fields[i], true
		}
	}
	return nil, false
}

// FieldNames lists the names of fields that still carry candidates.
func (d *UncertaintyDeclaration) FieldNames() []string {
	names := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		if f.IsUncertain() {
			names = append(names, f.Field)
		}
	}
	return names
}

// UpdateFieldConfidence shifts one candidate's probability by delta, clamped to [0,1].
// The candidate map is not renormalised. Returns false if the field or value is unknown.
func (d *UncertaintyDeclaration) UpdateFieldConfidence(field, value string, delta float64) bool {
	f, ok := d.Field(field)
	if !ok {
		return false
	}
	p, ok := f.Candidates[value]
	if !ok {
		return false
	}
	f.Candidates[value] = ClampConfidence(p + delta)
	d.UpdatedAt = time.Now().UTC()
	return true
}

// Normalize fills defaults that come from the declaration itself.
func (d *UncertaintyDeclaration) Normalize() {
	if d.SourceAccuracy == "" {
		d.SourceAccuracy = SourceProbabilistic
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	for i := range d.Fields {
		if d.Fields[i].Module == "" {
			d.Fields[i].Module = d.Module
		}
		if d.Fields[i].ConfidenceThreshold <= 0 {
			d.Fields[i].ConfidenceThreshold = DefaultConfidenceThreshold
		}
	}
}

type declarationFile struct {
	Declarations []UncertaintyDeclaration `yaml:"declarations"`
}

// LoadDeclarationsYAML reads a YAML document holding a top-level "declarations" list.
func LoadDeclarationsYAML(r io.Reader) ([]UncertaintyDeclaration, error) {
	var file declarationFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode declarations: %w", err)
	}
	for i := range file.Declarations {
		file.Declarations[i].Normalize()
		if err := file.Declarations[i].Validate(); err != nil {
			return nil, fmt.Errorf("declaration %d: %w", i, err)
		}
	}
	return file.Declarations, nil
}
