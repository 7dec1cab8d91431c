package match

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"skiptrace/internal/skiptrace"
)

const (
	businessExactConfidence   = 0.9
	businessOverlapConfidence = 0.8
	businessOverlapThreshold  = 0.6
	personScoreThreshold      = 0.7
	personExactThreshold      = 0.9
	fallbackConfidence        = 0.3
	shortTokenSimilarity      = 0.8
)

// Name scores a candidate name against the target name. The kind hint selects
// business or person heuristics.
func Name(target, candidate string, kind skiptrace.OwnerKind) skiptrace.MatchResult {
	if kind == skiptrace.OwnerBusiness {
		return matchBusiness(target, candidate)
	}
	return matchPerson(target, candidate)
}

func matchBusiness(target, candidate string) skiptrace.MatchResult {
	t := NormalizeBusinessName(target)
	c := NormalizeBusinessName(candidate)
	if t == "" || c == "" {
		return fallbackResult()
	}
	if t == c {
		return skiptrace.MatchResult{Confidence: businessExactConfidence, Type: skiptrace.MatchCompany}
	}

	tWords := nameParts(t, 2)
	cWords := nameParts(c, 2)
	if len(tWords) == 0 || len(cWords) == 0 {
		return fallbackResult()
	}

	matched := 0
	for _, tw := range tWords {
		for _, cw := range cWords {
			if strings.Contains(tw, cw) || strings.Contains(cw, tw) {
				matched++
				break
			}
		}
	}

	smaller := len(tWords)
	if len(cWords) < smaller {
		smaller = len(cWords)
	}
	if float64(matched)/float64(smaller) >= businessOverlapThreshold {
		return skiptrace.MatchResult{Confidence: businessOverlapConfidence, Type: skiptrace.MatchCompany}
	}
	return fallbackResult()
}

func matchPerson(target, candidate string) skiptrace.MatchResult {
	t := NormalizeName(target)
	c := NormalizeName(candidate)
	if t == "" || c == "" {
		return fallbackResult()
	}
	if t == c {
		return skiptrace.MatchResult{Confidence: 1.0, Type: skiptrace.MatchExact}
	}

	// Single-character tokens stay in: an initial still identifies a part.
	tParts := nameParts(t, 0)
	cParts := nameParts(c, 0)
	if len(tParts) == 0 || len(cParts) == 0 {
		return fallbackResult()
	}

	matched := 0
	for _, tp := range tParts {
		for _, cp := range cParts {
			if partsMatch(tp, cp) {
				matched++
				break
			}
		}
	}

	larger := len(tParts)
	if len(cParts) > larger {
		larger = len(cParts)
	}
	score := float64(matched) / float64(larger)
	if score <= personScoreThreshold {
		return fallbackResult()
	}
	matchType := skiptrace.MatchFuzzy
	if score > personExactThreshold {
		matchType = skiptrace.MatchExact
	}
	return skiptrace.MatchResult{Confidence: score, Type: matchType}
}

// partsMatch reports whether two name parts refer to the same component:
// identical, a single initial prefixing the other, a shared 3-character lead,
// or near-identical short tokens by edit distance.
func partsMatch(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) == 1 && strings.HasPrefix(b, a) {
		return true
	}
	if len(b) == 1 && strings.HasPrefix(a, b) {
		return true
	}
	if len(a) >= 3 && len(b) >= 3 && a[:3] == b[:3] {
		return true
	}
	return similarity(a, b) > shortTokenSimilarity
}

// similarity is normalized edit-distance similarity in [0,1].
func similarity(a, b string) float64 {
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	if longer == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longer)
}

func fallbackResult() skiptrace.MatchResult {
	return skiptrace.MatchResult{Confidence: fallbackConfidence, Type: skiptrace.MatchFallback}
}

// IsGood reports whether a candidate cleared the matching threshold rather
// than arriving through the fallback policy.
func IsGood(c skiptrace.OwnerCandidate) bool {
	return c.Match.Type != skiptrace.MatchFallback
}

// FindMatchesInProperty scores every owner on a property against the target
// name and returns the matches ordered by descending confidence (stable).
// When no owner clears the threshold and the list is non-empty, the
// last-listed owner is returned as a single fallback candidate: the most
// recent recorded owner is the best guess absent a name match.
func FindMatchesInProperty(targetName string, owners []skiptrace.OwnerCandidate) []skiptrace.OwnerCandidate {
	if len(owners) == 0 {
		return nil
	}

	matches := make([]skiptrace.OwnerCandidate, 0, len(owners))
	for _, owner := range owners {
		owner.Match = Name(targetName, owner.Name, owner.Kind)
		if IsGood(owner) {
			matches = append(matches, owner)
		}
	}

	if len(matches) == 0 {
		last := owners[len(owners)-1]
		last.Match = fallbackResult()
		return []skiptrace.OwnerCandidate{last}
	}

	SortByConfidence(matches)
	return matches
}

// SortByConfidence orders candidates by descending confidence; ties keep
// input order.
func SortByConfidence(candidates []skiptrace.OwnerCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Match.Confidence > candidates[j].Match.Confidence
	})
}
