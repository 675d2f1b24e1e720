package ontology

// opposites maps a predicate to the predicate that directly contradicts it
// when both hold for the same (subject, object) pair. The map is its own
// involution: looking up either side returns the other.
var opposites = map[string]string{
	"likes":     "dislikes",
	"dislikes":  "likes",
	"trusts":    "distrusts",
	"distrusts": "trusts",
	"supports":  "opposes",
	"opposes":   "supports",
	"always":    "never",
	"never":     "always",
	"must":      "must_not",
	"must_not":  "must",
}

// Opposite returns the contradicting predicate for p, if one is defined.
func Opposite(p string) (string, bool) {
	o, ok := opposites[p]
	return o, ok
}

// AreOpposite reports whether a and b are a defined opposite pair.
func AreOpposite(a, b string) bool {
	o, ok := opposites[a]
	return ok && o == b
}
