package profile

import (
	"errors"
	"strings"
)

// ErrEmptyProfile is returned when a profile has nothing to match against.
var ErrEmptyProfile = errors.New("profile has no skills and no preferred keywords")

// Config is the profile section of the configuration file.
type Config struct {
	Skills            []string `mapstructure:"skills" json:"skills"`
	PreferredKeywords []string `mapstructure:"preferred-keywords" json:"preferred_keywords"`
	ExcludedKeywords  []string `mapstructure:"excluded-keywords" json:"excluded_keywords"`
}

// Profile is the user's skill profile. All terms are kept lowercased in their
// configured order, so comparisons against it are case-insensitive. A Profile
// is not modified after New.
type Profile struct {
	skills    []string
	preferred []string
	excluded  []string
}

// New normalises cfg into a Profile: terms are trimmed and lowercased, blanks
// are dropped and duplicates removed keeping the first occurrence.
func New(cfg Config) (*Profile, error) {
	p := &Profile{
		skills:    normalize(cfg.Skills),
		preferred: normalize(cfg.PreferredKeywords),
		excluded:  normalize(cfg.ExcludedKeywords),
	}

	if len(p.skills) == 0 && len(p.preferred) == 0 {
		return nil, ErrEmptyProfile
	}

	return p, nil
}

func (p *Profile) Skills() []string { return clone(p.skills) }

func (p *Profile) PreferredKeywords() []string { return clone(p.preferred) }

func (p *Profile) ExcludedKeywords() []string { return clone(p.excluded) }

// HasSkill reports whether term equals one of the skills, ignoring case.
func (p *Profile) HasSkill(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	for _, s := range p.skills {
		if s == term {
			return true
		}
	}
	return false
}

func normalize(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}

func clone(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
