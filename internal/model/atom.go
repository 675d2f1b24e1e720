// Package model holds the domain types shared across every package: the
// Atom itself, RPC request/response DTOs, and the error-kind taxonomy.
package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Field length bounds enforced by Validate.
const (
	MaxSubjectLen   = 200
	MaxPredicateLen = 100
	MaxObjectLen    = 500
)

// Provenance records how an atom's truth came to be known.
type Provenance string

const (
	ProvenanceUserStated Provenance = "USER_STATED"
	ProvenanceInferred   Provenance = "INFERRED"
	ProvenanceExtracted  Provenance = "EXTRACTED"
	ProvenanceExternal   Provenance = "EXTERNAL"
)

// provenanceRank orders provenance by trustworthiness, highest first, for
// use as the second tie-break key during reconciliation.
var provenanceRank = map[Provenance]int{
	ProvenanceUserStated: 3,
	ProvenanceExtracted:  2,
	ProvenanceInferred:   1,
	ProvenanceExternal:   0,
}

// Rank returns the provenance's trust ordering. Higher wins ties.
func (p Provenance) Rank() int {
	return provenanceRank[p]
}

// GraphState is the lifecycle bucket an atom currently occupies.
type GraphState string

const (
	GraphUnsubstantiated GraphState = "UNSUBSTANTIATED"
	GraphSubstantiated   GraphState = "SUBSTANTIATED"
	GraphHistorical      GraphState = "HISTORICAL"
)

// Atom is a single fine-grained factual claim: subject-predicate-object
// with the bookkeeping needed for decay, reconciliation, and retrieval.
type Atom struct {
	ID        uuid.UUID `json:"id"`
	Subject   string    `json:"subject"`
	Predicate string    `json:"predicate"`
	Object    string    `json:"object"`
	AtomType  string    `json:"atom_type"`

	Provenance Provenance `json:"provenance"`
	Graph      GraphState `json:"graph"`

	Confidence float64 `json:"confidence"`
	// Strength is tracked and persisted but deliberately not read by the
	// attention retrieval formula — see DESIGN.md Open Question 1.
	Strength float64 `json:"strength"`

	FirstObserved time.Time `json:"first_observed"`
	LastAccessed  time.Time `json:"last_accessed"`

	AssertionCount int `json:"assertion_count"`
	AccessCount    int `json:"access_count"`

	Contexts   []string       `json:"contexts,omitempty"`
	SourceUser string         `json:"source_user"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	// Embedding is the vector representation of "subject predicate object"
	// used for similarity-based candidate lookup. Nil when the store's
	// vector backend is disabled or embedding failed.
	Embedding *pgvector.Vector `json:"-"`

	// SupersededBy links a HISTORICAL atom to the atom that replaced it.
	SupersededBy *uuid.UUID `json:"superseded_by,omitempty"`
}

// Validate checks field bounds and required fields. It does not check
// ontology membership — use ontology.Validate for that.
func (a Atom) Validate() error {
	switch {
	case a.Subject == "":
		return &Error{Kind: InvalidArgument, Op: "Atom.Validate", Err: errors.New("subject is required")}
	case len(a.Subject) > MaxSubjectLen:
		return &Error{Kind: InvalidArgument, Op: "Atom.Validate", Err: errors.New("subject exceeds max length")}
	case a.Predicate == "":
		return &Error{Kind: InvalidArgument, Op: "Atom.Validate", Err: errors.New("predicate is required")}
	case len(a.Predicate) > MaxPredicateLen:
		return &Error{Kind: InvalidArgument, Op: "Atom.Validate", Err: errors.New("predicate exceeds max length")}
	case a.Object == "":
		return &Error{Kind: InvalidArgument, Op: "Atom.Validate", Err: errors.New("object is required")}
	case len(a.Object) > MaxObjectLen:
		return &Error{Kind: InvalidArgument, Op: "Atom.Validate", Err: errors.New("object exceeds max length")}
	case a.Confidence < 0 || a.Confidence > 1:
		return &Error{Kind: InvalidArgument, Op: "Atom.Validate", Err: errors.New("confidence out of [0,1]")}
	case a.Strength < 0 || a.Strength > 1:
		return &Error{Kind: InvalidArgument, Op: "Atom.Validate", Err: errors.New("strength out of [0,1]")}
	case a.SourceUser == "":
		return &Error{Kind: InvalidArgument, Op: "Atom.Validate", Err: errors.New("source_user is required")}
	}
	return nil
}

// Triple returns the (subject, predicate, object) identity of the atom.
func (a Atom) Triple() (subject, predicate, object string) {
	return a.Subject, a.Predicate, a.Object
}

