package evidence

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Keyword is a term that suggests a document is evidence for an element.
// Higher weights are listed first in match reasons.
type Keyword struct {
	Word   string `yaml:"word"`
	Weight int    `yaml:"weight"`
}

// Tables are the lookup tables that drive evidence detection and coverage
// reports. They are treated as immutable once built.
type Tables struct {
	// ElementNames maps element numbers to display names.
	ElementNames map[string]string `yaml:"element_names"`

	// TypeElements maps a document type code to the elements it evidences.
	TypeElements map[string][]string `yaml:"type_elements"`

	// Keywords maps an element number to its keywords.
	Keywords map[string][]Keyword `yaml:"keywords"`

	// CrossReferenceElements accept documents that reference other
	// controlled documents as weak evidence.
	CrossReferenceElements []string `yaml:"cross_reference_elements"`

	// RequiredTypes maps an element to the document types needed for full
	// coverage. Elements without an entry require the types that map to
	// them in TypeElements.
	RequiredTypes map[string][]string `yaml:"required_types"`

	patterns map[string]*regexp.Regexp
}

// DefaultTables returns the built-in tables for the 14-element safety
// management audit.
func DefaultTables() *Tables {
	t := &Tables{
		ElementNames: map[string]string{
			"1":  "Management Leadership and Organizational Commitment",
			"2":  "Hazard Identification and Assessment",
			"3":  "Safe Work Practices",
			"4":  "Safe Job Procedures",
			"5":  "Company Safety Rules",
			"6":  "Personal Protective Equipment",
			"7":  "Preventative Maintenance",
			"8":  "Training and Communication",
			"9":  "Inspections",
			"10": "Incident Investigation",
			"11": "Emergency Preparedness",
			"12": "Statistics and Records",
			"13": "Legislation",
			"14": "Management Review",
		},
		TypeElements: map[string][]string{
			"POL": {"1"},
			"HAZ": {"2"},
			"SWP": {"3"},
			"SJP": {"4"},
			"RUL": {"5"},
			"PPE": {"6"},
			"MNT": {"7"},
			"TRN": {"8"},
			"INS": {"9"},
			"INC": {"10"},
			"ERP": {"11"},
			"FRM": {"12"},
			"MRV": {"14"},
		},
		Keywords: map[string][]Keyword{
			"1": {
				{"policy", 3}, {"commitment", 3}, {"responsibilities", 2},
				{"accountability", 2}, {"leadership", 2}, {"objectives", 1},
			},
			"2": {
				{"hazard", 3}, {"risk assessment", 3}, {"flha", 2},
				{"control measures", 2}, {"risk", 1}, {"likelihood", 1},
			},
			"3": {
				{"safe work practice", 3}, {"practice", 2}, {"guideline", 1},
				{"best practice", 1},
			},
			"4": {
				{"procedure", 3}, {"step-by-step", 2}, {"lockout", 2},
				{"confined space", 2}, {"isolation", 1},
			},
			"5": {
				{"rules", 3}, {"discipline", 2}, {"enforcement", 2},
				{"violation", 1},
			},
			"6": {
				{"ppe", 3}, {"personal protective", 3}, {"respirator", 2},
				{"hard hat", 1}, {"safety glasses", 1}, {"gloves", 1},
			},
			"7": {
				{"maintenance", 3}, {"preventative", 2}, {"preventive", 2},
				{"equipment", 1}, {"service", 1},
			},
			"8": {
				{"training", 3}, {"orientation", 2}, {"competency", 2},
				{"communication", 1}, {"toolbox", 1},
			},
			"9": {
				{"inspection", 3}, {"checklist", 2}, {"audit", 1},
				{"walkthrough", 1},
			},
			"10": {
				{"incident", 3}, {"investigation", 3}, {"root cause", 2},
				{"near miss", 2}, {"corrective action", 1},
			},
			"11": {
				{"emergency", 3}, {"evacuation", 2}, {"first aid", 2},
				{"fire", 1}, {"drill", 1},
			},
			"12": {
				{"statistics", 3}, {"records", 2}, {"log", 1},
				{"form", 1}, {"template", 1},
			},
			"13": {
				{"legislation", 3}, {"regulation", 3}, {"act", 1},
				{"compliance", 1},
			},
			"14": {
				{"management review", 3}, {"annual review", 2}, {"summary", 1},
				{"action plan", 1},
			},
		},
		CrossReferenceElements: []string{"14"},
	}
	t.compile()
	return t
}

// LoadTables reads YAML overrides from r and merges them over the defaults.
// Each top-level table present in the file replaces the built-in entries
// it names.
func LoadTables(r io.Reader) (*Tables, error) {
	var override Tables
	if err := yaml.NewDecoder(r).Decode(&override); err != nil && err != io.EOF {
		return nil, fmt.Errorf("error decoding evidence tables: %w", err)
	}

	t := DefaultTables()
	for k, v := range override.ElementNames {
		t.ElementNames[k] = v
	}
	for k, v := range override.TypeElements {
		t.TypeElements[strings.ToUpper(k)] = v
	}
	for k, v := range override.Keywords {
		t.Keywords[k] = v
	}
	if override.CrossReferenceElements != nil {
		t.CrossReferenceElements = override.CrossReferenceElements
	}
	if len(override.RequiredTypes) > 0 {
		t.RequiredTypes = make(map[string][]string, len(override.RequiredTypes))
		for k, v := range override.RequiredTypes {
			t.RequiredTypes[k] = upper(v)
		}
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	t.compile()
	return t, nil
}

// LoadTablesFile reads YAML overrides from path on fs.
func LoadTablesFile(fs afero.Fs, path string) (*Tables, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening evidence tables %q: %w", path, err)
	}
	defer f.Close()
	return LoadTables(f)
}

func (t *Tables) validate() error {
	for el, kws := range t.Keywords {
		for _, kw := range kws {
			if strings.TrimSpace(kw.Word) == "" {
				return fmt.Errorf("element %s has an empty keyword", el)
			}
		}
	}
	return nil
}

func (t *Tables) compile() {
	t.patterns = make(map[string]*regexp.Regexp)
	for _, kws := range t.Keywords {
		for _, kw := range kws {
			w := strings.ToLower(kw.Word)
			if _, ok := t.patterns[w]; !ok {
				t.patterns[w] = regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`)
			}
		}
	}
}

// Elements returns every element number known to the tables in numeric
// order.
func (t *Tables) Elements() []string {
	set := map[string]bool{}
	for el := range t.ElementNames {
		set[el] = true
	}
	for el := range t.Keywords {
		set[el] = true
	}
	for _, els := range t.TypeElements {
		for _, el := range els {
			set[el] = true
		}
	}
	out := make([]string, 0, len(set))
	for el := range set {
		out = append(out, el)
	}
	SortElements(out)
	return out
}

// TypesForElement returns the type codes that map to element, sorted.
func (t *Tables) TypesForElement(element string) []string {
	var out []string
	for code, els := range t.TypeElements {
		for _, el := range els {
			if el == element {
				out = append(out, code)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Required returns the document types an element needs for full coverage.
func (t *Tables) Required(element string) []string {
	if req, ok := t.RequiredTypes[element]; ok {
		return append([]string(nil), req...)
	}
	return t.TypesForElement(element)
}

// matchKeywords returns the element's keywords found in lowered text,
// heaviest first.
func (t *Tables) matchKeywords(element, lowered string) []Keyword {
	if lowered == "" {
		return nil
	}
	var hits []Keyword
	for _, kw := range t.Keywords[element] {
		re := t.patterns[strings.ToLower(kw.Word)]
		if re != nil && re.MatchString(lowered) {
			hits = append(hits, kw)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Weight != hits[j].Weight {
			return hits[i].Weight > hits[j].Weight
		}
		return hits[i].Word < hits[j].Word
	})
	return hits
}

// MatchingKeywords returns every keyword, across all elements, that occurs
// as a whole word in text. The result is lower-case, deduplicated and
// sorted.
func (t *Tables) MatchingKeywords(text string) []string {
	lowered := strings.ToLower(text)
	if lowered == "" {
		return nil
	}
	var out []string
	for w, re := range t.patterns {
		if re.MatchString(lowered) {
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out
}

// SortElements orders element numbers numerically, with non-numeric
// elements last in lexical order.
func SortElements(els []string) {
	sort.SliceStable(els, func(i, j int) bool {
		return elementLess(els[i], els[j])
	})
}

func elementLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	}
	return a < b
}

func upper(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return out
}
