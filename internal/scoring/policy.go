package scoring

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Decay selects how the recency sub-score falls off with project age.
type Decay string

const (
	// DecayExponential never reaches zero: RecencyMax * e^(-days/DecayDays).
	DecayExponential Decay = "exponential"
	// DecayLinear reaches zero at HorizonDays: RecencyMax * (1 - days/HorizonDays).
	DecayLinear Decay = "linear"
)

const (
	PolicyExponential = "exponential"
	PolicyLinear      = "linear"

	DefaultPolicy = PolicyExponential
)

var ErrUnknownPolicy = errors.New("unknown scoring policy")

// Policy holds every weight, cap and decay constant used by the scorer.
type Policy struct {
	Name string `mapstructure:"name"`

	// Keyword section: ratio of matching project keywords times weight.
	ExactWeight   float64 `mapstructure:"exact-weight"`
	PartialWeight float64 `mapstructure:"partial-weight"`

	// Description section: per-term points, capped per kind and in total.
	SkillWeight     float64 `mapstructure:"skill-weight"`
	SkillCap        float64 `mapstructure:"skill-cap"`
	PreferredWeight float64 `mapstructure:"preferred-weight"`
	PreferredCap    float64 `mapstructure:"preferred-cap"`
	DescriptionCap  float64 `mapstructure:"description-cap"`

	// Recency section.
	RecencyMax  float64 `mapstructure:"recency-max"`
	Decay       Decay   `mapstructure:"decay"`
	DecayDays   float64 `mapstructure:"decay-days"`
	HorizonDays float64 `mapstructure:"horizon-days"`
}

var policies = map[string]Policy{
	PolicyExponential: {
		Name:            PolicyExponential,
		ExactWeight:     30,
		PartialWeight:   20,
		SkillWeight:     4,
		SkillCap:        20,
		PreferredWeight: 2,
		PreferredCap:    10,
		DescriptionCap:  30,
		RecencyMax:      20,
		Decay:           DecayExponential,
		DecayDays:       15,
		HorizonDays:     30,
	},
	// Exact and partial matches share one 50 point keyword ratio.
	PolicyLinear: {
		Name:            PolicyLinear,
		ExactWeight:     50,
		PartialWeight:   50,
		SkillWeight:     3,
		SkillCap:        20,
		PreferredWeight: 2,
		PreferredCap:    30,
		DescriptionCap:  30,
		RecencyMax:      20,
		Decay:           DecayLinear,
		DecayDays:       15,
		HorizonDays:     30,
	},
}

// PolicyByName returns a copy of the named policy. An empty name selects DefaultPolicy.
func PolicyByName(name string) (Policy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultPolicy
	}

	p, ok := policies[name]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownPolicy, name, strings.Join(PolicyNames(), ", "))
	}
	return p, nil
}

// PolicyNames lists the built-in policies.
func PolicyNames() []string {
	names := make([]string, 0, len(policies))
	for name := range policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithOverrides returns p with the fields present in overrides replaced.
// Keys use the mapstructure names (exact-weight, decay-days, ...).
func (p Policy) WithOverrides(overrides map[string]any) (Policy, error) {
	if len(overrides) == 0 {
		return p, nil
	}

	out := p
	cfg := &mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &out,
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return p, err
	}
	if err := decoder.Decode(overrides); err != nil {
		return p, fmt.Errorf("decode policy overrides: %w", err)
	}

	if err := out.Validate(); err != nil {
		return p, err
	}
	return out, nil
}

func (p Policy) Validate() error {
	weights := map[string]float64{
		"exact-weight":     p.ExactWeight,
		"partial-weight":   p.PartialWeight,
		"skill-weight":     p.SkillWeight,
		"skill-cap":        p.SkillCap,
		"preferred-weight": p.PreferredWeight,
		"preferred-cap":    p.PreferredCap,
		"description-cap":  p.DescriptionCap,
		"recency-max":      p.RecencyMax,
	}
	for key, value := range weights {
		if value < 0 {
			return fmt.Errorf("policy %s: %s must not be negative", p.Name, key)
		}
	}

	switch p.Decay {
	case DecayExponential:
		if p.DecayDays <= 0 {
			return fmt.Errorf("policy %s: decay-days must be positive", p.Name)
		}
	case DecayLinear:
		if p.HorizonDays <= 0 {
			return fmt.Errorf("policy %s: horizon-days must be positive", p.Name)
		}
	default:
		return fmt.Errorf("policy %s: unknown decay %q", p.Name, p.Decay)
	}

	return nil
}
