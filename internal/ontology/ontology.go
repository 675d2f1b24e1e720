// Package ontology holds the static per-atom-type rules that govern decay
// rate, predicate admission, and graph-transition behavior. The table is a
// fixed literal: a small package-level lookup table populated once and
// never mutated.
package ontology

import "github.com/pltm/engine/internal/model"

// TypeDef is the ruleset for one atom_type.
type TypeDef struct {
	Name      string
	DecayRate float64
	// AllowedPredicates restricts which predicates may be used with this
	// type. Nil means no restriction (used by the deprecated RELATION bucket).
	AllowedPredicates []string
	// Exclusive means a subject may hold at most one atom of this type; a
	// newly substantiated atom supersedes the prior one outright.
	Exclusive bool
	// Contextual means atoms of this type coexist rather than conflict when
	// their Contexts differ (e.g. a preference that differs by situation).
	Contextual bool
	// Progressive means later atoms refine rather than contradict earlier
	// ones of strictly increasing specificity (e.g. a skill getting better).
	Progressive bool
	// Temporal means the atom describes a point-in-time occurrence rather
	// than a standing fact; it is never reconsolidated back to full strength.
	Temporal bool
	// Immutable means the atom never decays and is never reconciled away.
	Immutable bool
}

// Canonical atom types.
const (
	TypeEntity      = "ENTITY"
	TypeAffiliation = "AFFILIATION"
	TypeSocial      = "SOCIAL"
	TypeSkill       = "SKILL"
	TypePreference  = "PREFERENCE"
	TypeBelief      = "BELIEF"
	TypeEvent       = "EVENT"
	TypeState       = "STATE"
	TypeHypothesis  = "HYPOTHESIS"
	TypeInvariant   = "INVARIANT"
	// TypeRelation is a deprecated catch-all bucket. It admits any predicate
	// (AllowedPredicates is nil) so free-form extraction never hard-fails
	// when it can't classify an atom into one of the ten canonical types.
	// See DESIGN.md Open Question 2.
	TypeRelation = "RELATION"
)

var table = map[string]TypeDef{
	TypeEntity: {
		Name: TypeEntity, DecayRate: 0.01,
		AllowedPredicates: []string{"is_a", "named", "located_in", "works_at", "owns"},
	},
	TypeAffiliation: {
		Name: TypeAffiliation, DecayRate: 0.03, Exclusive: true,
		AllowedPredicates: []string{"works_at", "member_of", "employed_by", "affiliated_with", "enrolled_at"},
	},
	TypeSocial: {
		Name: TypeSocial, DecayRate: 0.05,
		AllowedPredicates: []string{"knows", "reports_to", "friend_of", "married_to", "parent_of", "child_of", "colleague_of"},
	},
	TypeSkill: {
		Name: TypeSkill, DecayRate: 0.02, Progressive: true,
		AllowedPredicates: []string{"skilled_in", "learning", "certified_in", "expert_in"},
	},
	TypePreference: {
		Name: TypePreference, DecayRate: 0.08, Contextual: true,
		AllowedPredicates: []string{"likes", "dislikes", "prefers", "avoids", "enjoys"},
	},
	TypeBelief: {
		Name: TypeBelief, DecayRate: 0.10,
		AllowedPredicates: []string{"trusts", "distrusts", "supports", "opposes"},
	},
	TypeEvent: {
		Name: TypeEvent, DecayRate: 0.06, Temporal: true,
		AllowedPredicates: []string{"occurred_on", "attended", "completed", "scheduled_for"},
	},
	TypeState: {
		Name: TypeState, DecayRate: 0.50, Exclusive: true,
		AllowedPredicates: []string{"is_currently", "status_is", "located_at"},
	},
	TypeHypothesis: {
		Name: TypeHypothesis, DecayRate: 0.15,
		AllowedPredicates: []string{"hypothesizes", "suspects", "predicts"},
	},
	TypeInvariant: {
		Name: TypeInvariant, DecayRate: 0.00, Immutable: true,
		AllowedPredicates: []string{"always", "never", "must", "must_not"},
	},
	TypeRelation: {
		Name: TypeRelation, DecayRate: 0.05,
	},
}

// Lookup returns the TypeDef for atomType, falling back to the deprecated
// RELATION bucket for any unrecognized type string so extraction from
// free-form text never hard-fails on an unfamiliar type (DESIGN.md Open
// Question 2).
func Lookup(atomType string) TypeDef {
	if def, ok := table[atomType]; ok {
		return def
	}
	return table[TypeRelation]
}

// ValidatePredicate reports whether predicate is allowed for atomType.
// A nil AllowedPredicates list (TypeRelation) admits anything.
func ValidatePredicate(atomType, predicate string) bool {
	def := Lookup(atomType)
	if def.AllowedPredicates == nil {
		return true
	}
	for _, p := range def.AllowedPredicates {
		if p == predicate {
			return true
		}
	}
	return false
}

// Validate checks an atom against its type's ontology rules, returning an
// OntologyViolation error when the predicate is not admitted.
func Validate(a model.Atom) error {
	if !ValidatePredicate(a.AtomType, a.Predicate) {
		return &model.Error{
			Kind: model.OntologyViolation,
			Op:   "ontology.Validate",
			Err:  errPredicateNotAllowed(a.AtomType, a.Predicate),
		}
	}
	return nil
}

type predicateError struct {
	atomType, predicate string
}

func (e predicateError) Error() string {
	return "predicate " + e.predicate + " is not allowed for atom_type " + e.atomType
}

func errPredicateNotAllowed(atomType, predicate string) error {
	return predicateError{atomType: atomType, predicate: predicate}
}
