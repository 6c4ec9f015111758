package domain

// CategoryRule maps a lowercase keyword to a spending category. Rules are
// kept as an ordered slice, not a map: the first matching keyword wins.
type CategoryRule struct {
	Keyword  string `json:"keyword" yaml:"keyword"`
	Category string `json:"category" yaml:"category"`
}

// Ruleset is one immutable snapshot of the classifier configuration. An
// update replaces the whole snapshot; in-flight classifications keep reading
// the snapshot they started with.
type Ruleset struct {
	Allowed  map[string]struct{}
	Excluded map[string]struct{}
	Rules    []CategoryRule
}

// NewRuleset builds a snapshot from plain slices, as carried in config files
// and rule-update requests.
func NewRuleset(allowed, excluded []string, rules []CategoryRule) Ruleset {
	rs := Ruleset{
		Allowed:  make(map[string]struct{}, len(allowed)),
		Excluded: make(map[string]struct{}, len(excluded)),
		Rules:    rules,
	}
	for _, s := range allowed {
		rs.Allowed[s] = struct{}{}
	}
	for _, s := range excluded {
		rs.Excluded[s] = struct{}{}
	}
	return rs
}
