package domain

// FilterMode selects the keyword filter behavior.
type FilterMode string

const (
	FilterAll     FilterMode = "all"
	FilterInclude FilterMode = "include"
	FilterExclude FilterMode = "exclude"
)

// FilterSpec is a pure-value keyword filter configuration.
type FilterSpec struct {
	Mode          FilterMode `yaml:"mode" json:"mode"`
	Keywords      []string   `yaml:"keywords" json:"keywords"`
	Fields        []string   `yaml:"fields" json:"fields"`
	MinMatches    int        `yaml:"min_matches" json:"min_matches"`
	CaseSensitive bool       `yaml:"case_sensitive" json:"case_sensitive"`
}

// Normalized returns a copy with defaults applied: mode all when unset,
// title+description when no fields are given, min_matches of 1.
func (s FilterSpec) Normalized() FilterSpec {
	if s.Mode == "" {
		s.Mode = FilterAll
	}
	if len(s.Fields) == 0 {
		s.Fields = []string{"title", "description"}
	}
	if s.MinMatches <= 0 {
		s.MinMatches = 1
	}
	return s
}
