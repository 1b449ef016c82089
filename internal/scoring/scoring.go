// Package scoring turns a (project, profile) pair into a relevance score and
// the trace explaining it.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/spigell/project-matcher/internal/profile"
	"github.com/spigell/project-matcher/internal/project"
)

const day = 24 * time.Hour

// Result is the outcome of scoring one project.
type Result struct {
	Score       float64
	Explanation []string
	// Excluded is set when an excluded keyword zeroed the score.
	Excluded  bool
	Breakdown Breakdown
}

// Breakdown keeps each sub-score. All fields are zero for excluded projects.
type Breakdown struct {
	ExactKeyword         float64
	PartialKeyword       float64
	DescriptionSkills    float64
	DescriptionPreferred float64
	Description          float64
	Recency              float64
	// DaysOld is -1 when the creation time is unknown.
	DaysOld int
}

// Scorer applies a Policy.
type Scorer struct {
	policy Policy
}

func NewScorer(policy Policy) (*Scorer, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{policy: policy}, nil
}

func (s *Scorer) Policy() Policy { return s.policy }

// Score scores p against prof with the default policy.
func Score(p project.Project, prof *profile.Profile, now time.Time) Result {
	policy, _ := PolicyByName(DefaultPolicy)
	return (&Scorer{policy: policy}).Score(p, prof, now)
}

// Score is deterministic: the same project, profile and now give the same result.
func (s *Scorer) Score(p project.Project, prof *profile.Profile, now time.Time) Result {
	if prof == nil {
		prof = &profile.Profile{}
	}
	trace := &explanation{}

	if excluded := excludedTerms(p, prof.ExcludedKeywords()); len(excluded) > 0 {
		trace.add("excluded by: %s", formatTerms(excluded))
		return Result{Explanation: trace.lines, Excluded: true, Breakdown: Breakdown{DaysOld: -1}}
	}

	var b Breakdown
	s.scoreKeywords(p.Keywords, prof, &b, trace)
	s.scoreDescription(p.Description, prof, &b, trace)
	s.scoreRecency(p, now, &b, trace)

	total := b.ExactKeyword + b.PartialKeyword + b.Description + b.Recency
	trace.add("total score: %.2f", total)

	return Result{Score: total, Explanation: trace.lines, Breakdown: b}
}

func (s *Scorer) scoreKeywords(raw string, prof *profile.Profile, b *Breakdown, trace *explanation) {
	if project.IsNotAvailable(raw) {
		trace.add("keywords: not available")
		return
	}

	keywords := splitKeywords(raw)
	if len(keywords) == 0 {
		trace.add("keywords: not available")
		return
	}

	skills := prof.Skills()
	exact := make([]string, 0)
	partial := make([]string, 0)
	for _, kw := range keywords {
		if prof.HasSkill(kw) {
			exact = append(exact, kw)
			continue
		}
		for _, skill := range skills {
			if strings.Contains(skill, kw) || strings.Contains(kw, skill) {
				partial = append(partial, kw)
				break
			}
		}
	}

	total := float64(len(keywords))
	b.ExactKeyword = float64(len(exact)) / total * s.policy.ExactWeight
	b.PartialKeyword = float64(len(partial)) / total * s.policy.PartialWeight

	trace.add("exact keyword score: %.2f", b.ExactKeyword)
	trace.add("partial keyword score: %.2f", b.PartialKeyword)
	trace.add("exact matches: %s", formatTerms(exact))
	trace.add("partial matches: %s", formatTerms(partial))
}

func (s *Scorer) scoreDescription(description string, prof *profile.Profile, b *Breakdown, trace *explanation) {
	if project.IsNotAvailable(description) {
		trace.add("description: not available")
		return
	}

	text := strings.ToLower(description)
	skills := containedTerms(text, prof.Skills())
	preferred := containedTerms(text, prof.PreferredKeywords())

	b.DescriptionSkills = math.Min(float64(len(skills))*s.policy.SkillWeight, s.policy.SkillCap)
	b.DescriptionPreferred = math.Min(float64(len(preferred))*s.policy.PreferredWeight, s.policy.PreferredCap)
	b.Description = math.Min(b.DescriptionSkills+b.DescriptionPreferred, s.policy.DescriptionCap)

	trace.add("description skills score: %.2f", b.DescriptionSkills)
	trace.add("description preferred score: %.2f", b.DescriptionPreferred)
	trace.add("skills in description: %s", formatTerms(skills))
	trace.add("preferred in description: %s", formatTerms(preferred))
}

func (s *Scorer) scoreRecency(p project.Project, now time.Time, b *Breakdown, trace *explanation) {
	if !p.HasCreated() {
		b.DaysOld = -1
		trace.add("creation date: not available")
		trace.add("time score: %.2f", 0.0)
		return
	}

	b.DaysOld = DaysOld(p.CreatedAt, now)
	b.Recency = s.recency(b.DaysOld)

	trace.add("days old: %d", b.DaysOld)
	trace.add("time score: %.2f", b.Recency)
}

func (s *Scorer) recency(daysOld int) float64 {
	days := float64(daysOld)
	switch s.policy.Decay {
	case DecayLinear:
		return math.Max(0, s.policy.RecencyMax*(1-days/s.policy.HorizonDays))
	default:
		return s.policy.RecencyMax * math.Exp(-days/s.policy.DecayDays)
	}
}

// DaysOld returns the whole days between created and now. Future dates count as 0.
func DaysOld(created, now time.Time) int {
	d := int(now.Sub(created) / day)
	if d < 0 {
		return 0
	}
	return d
}

// excludedTerms returns the excluded terms found in the title, description or
// keywords, in profile order.
func excludedTerms(p project.Project, excluded []string) []string {
	if len(excluded) == 0 {
		return nil
	}

	haystack := strings.ToLower(strings.Join([]string{p.Title, p.Description, p.Keywords}, "\n"))
	return containedTerms(haystack, excluded)
}

func containedTerms(text string, terms []string) []string {
	found := make([]string, 0)
	for _, term := range terms {
		if strings.Contains(text, term) {
			found = append(found, term)
		}
	}
	return found
}

// splitKeywords splits a comma-joined keyword field into a lowercased set,
// sorted for a stable trace.
func splitKeywords(raw string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, kw := range strings.Split(raw, ",") {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || kw == strings.ToLower(project.NotAvailable) {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}

func formatTerms(terms []string) string {
	return "[" + strings.Join(terms, ", ") + "]"
}

type explanation struct {
	lines []string
}

func (e *explanation) add(format string, args ...any) {
	e.lines = append(e.lines, fmt.Sprintf(format, args...))
}
