package extractor

import (
	"regexp"
	"strings"

	"github.com/pltm/engine/internal/ontology"
)

// rule matches a first-person surface form and maps it to a predicate and
// atom type. pattern must capture exactly one group: the object.
type rule struct {
	pattern   *regexp.Regexp
	predicate string
	atomType  string
}

// rules covers the common first-person surface forms — "I like X",
// "I work at X", "I used to X" — plus the other canonical-type predicates
// extraction realistically needs to reach without an LLM call. Ordered most
// specific first: a rule list is tried top to bottom, and the first match
// wins per sentence.
var rules = []rule{
	{regexp.MustCompile(`(?i)^i (?:really )?like(?:d)? (.+)$`), "likes", ontology.TypePreference},
	{regexp.MustCompile(`(?i)^i (?:really )?dislike(?:d)? (.+)$`), "dislikes", ontology.TypePreference},
	{regexp.MustCompile(`(?i)^i love (.+)$`), "likes", ontology.TypePreference},
	{regexp.MustCompile(`(?i)^i hate (.+)$`), "dislikes", ontology.TypePreference},
	{regexp.MustCompile(`(?i)^i work(?:ed)? at (.+)$`), "works_at", ontology.TypeAffiliation},
	{regexp.MustCompile(`(?i)^i(?:'m| am) (?:a member of|affiliated with) (.+)$`), "member_of", ontology.TypeAffiliation},
	{regexp.MustCompile(`(?i)^i used to (.+)$`), "completed", ontology.TypeEvent},
	{regexp.MustCompile(`(?i)^i(?:'m| am) (?:currently )?learning (.+)$`), "learning", ontology.TypeSkill},
	{regexp.MustCompile(`(?i)^i(?:'m| am) skilled in (.+)$`), "skilled_in", ontology.TypeSkill},
	{regexp.MustCompile(`(?i)^i trust (.+)$`), "trusts", ontology.TypeBelief},
	{regexp.MustCompile(`(?i)^i (?:don't|do not) trust (.+)$`), "distrusts", ontology.TypeBelief},
	{regexp.MustCompile(`(?i)^i distrust (.+)$`), "distrusts", ontology.TypeBelief},
	{regexp.MustCompile(`(?i)^i(?:'m| am) currently (.+)$`), "is_currently", ontology.TypeState},
}

// matchRules applies every rule to each line of text (one candidate per
// matching line), so a multi-sentence utterance can yield several atoms.
// Deterministic and exhaustively testable, unlike the LLM fallback stage.
func matchRules(text string) []Candidate {
	var out []Candidate
	for _, line := range splitStatements(text) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, r := range rules {
			m := r.pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			object := strings.TrimRight(strings.TrimSpace(m[1]), ".!?")
			if object == "" {
				continue
			}
			out = append(out, Candidate{
				Subject:   "user",
				Predicate: r.predicate,
				Object:    object,
				AtomType:  r.atomType,
			})
			break // first matching rule wins for this line
		}
	}
	return out
}

// splitStatements breaks an utterance into individual sentences on
// terminal punctuation or newlines, so "I like Python. I work at Acme."
// produces two rule-matchable lines.
func splitStatements(text string) []string {
	replacer := strings.NewReplacer("\n", ".", "!", ".", "?", ".")
	return strings.Split(replacer.Replace(text), ".")
}
