package cluster

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"

	"github.com/yhwang-dev/tradeshield/pkg/models"
)

const topKeywords = 10

// stopWords are dropped before frequency counting. English function words
// plus common Korean particles that survive whitespace tokenization.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "any": {}, "can": {}, "had": {}, "her": {},
	"was": {}, "one": {}, "our": {}, "out": {}, "has": {}, "have": {},
	"this": {}, "that": {}, "with": {}, "from": {}, "they": {}, "will": {},
	"would": {}, "there": {}, "their": {}, "what": {}, "about": {},
	"which": {}, "when": {}, "into": {}, "more": {}, "after": {},
	"been": {}, "over": {}, "than": {}, "its": {}, "his": {}, "she": {},
	"said": {}, "says": {}, "also": {}, "were": {}, "who": {}, "how": {},
	"은": {}, "는": {}, "이": {}, "가": {}, "을": {}, "를": {}, "의": {},
	"에": {}, "에서": {}, "으로": {}, "그리고": {}, "하지만": {}, "대한": {},
}

// Fingerprint derives the cluster key and the ranked theme keywords for
// an article. The key is stable: identical content always lands in the
// same cluster regardless of arrival order.
func Fingerprint(a *models.Article) (string, []string) {
	tokens := tokenize(a.Text())

	freq := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		freq[tok]++
	}

	ranked := make([]string, 0, len(freq))
	for tok := range freq {
		ranked = append(ranked, tok)
	}
	// Order by frequency, ties broken lexically so the cut at ten is stable
	sort.Slice(ranked, func(i, j int) bool {
		if freq[ranked[i]] != freq[ranked[j]] {
			return freq[ranked[i]] > freq[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	if len(ranked) > topKeywords {
		ranked = ranked[:topKeywords]
	}

	parts := make([]string, 0, len(ranked)+1)
	if len(a.Tickers) > 0 {
		parts = append(parts, strings.ToLower(a.Tickers[0]))
	}
	parts = append(parts, ranked...)
	sort.Strings(parts)

	sum := md5.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:]), ranked
}

// tokenize lowercases, splits on whitespace, trims edge punctuation and
// keeps tokens of three or more characters that are not stop words
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		tok := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len([]rune(tok)) < 3 {
			continue
		}
		if _, ok := stopWords[tok]; ok {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// tokenSet returns the distinct tokens of an article for overlap scoring
func tokenSet(a *models.Article) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range tokenize(a.Text()) {
		set[tok] = struct{}{}
	}
	return set
}
