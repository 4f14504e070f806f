package search

import (
	"regexp"
	"strings"
)

var legalKeywords = []string{
	"case", "court", "legal", "law", "statute", "plaintiff", "defendant",
	"litigation", "judgment", "opinion", "docket", "appeal", "hearing",
	"attorney", "counsel", "legislation", "regulation", "precedent", "suit",
	"act", "bill", "ordinance", "compliance", "subpoena", "testimony",
}

var cryptoKeywords = []string{
	"bitcoin", "ethereum", "crypto", "cryptocurrency", "blockchain", "usdc",
	"xrp", "ripple", "stablecoin", "digital asset", "ledger", "coin", "token",
}

var stopWords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(
		"a about above after again against all am an and any are as at be " +
			"because been before being below between both but by can did do does " +
			"doing down during each few for from further had has have having he " +
			"her here hers herself him himself his how i if in into is it its " +
			"itself just me more most my myself no nor not now of off on once " +
			"only or other our ours ourselves out over own s same she should so " +
			"some such t than that the their theirs them themselves then there " +
			"these they this those through to too under until up very was we " +
			"were what when where which while who whom why will with you your " +
			"yours yourself yourselves") {
		stopWords[w] = true
	}
}

var nonWordRe = regexp.MustCompile(`[^\w\s]`)

// SimplifyQuery reduces a natural-language query to up to maxKeywords
// non-stop-word keywords, for providers with keyword-oriented APIs
// (Wikipedia, OpenAlex, CourtListener). Falls back to the first words of the
// query when everything is a stop word.
func SimplifyQuery(query string, maxKeywords int) string {
	if query == "" {
		return ""
	}
	clean := nonWordRe.ReplaceAllString(strings.ToLower(query), "")
	words := strings.Fields(clean)
	if len(words) == 0 {
		return ""
	}

	var keywords []string
	for _, w := range words {
		if !stopWords[w] {
			keywords = append(keywords, w)
		}
	}
	if len(keywords) == 0 {
		keywords = words
	}
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	return strings.Join(keywords, " ")
}

// IsLegalQuery reports whether a query looks like a legal research question:
// it mentions legal terminology and is not dominated by cryptocurrency terms.
// Gates the CourtListener provider.
func IsLegalQuery(query string) bool {
	if query == "" {
		return false
	}
	lower := strings.ToLower(query)

	hasLegal := false
	for _, kw := range legalKeywords {
		if strings.Contains(lower, kw) {
			hasLegal = true
			break
		}
	}
	if !hasLegal {
		return false
	}
	for _, kw := range cryptoKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	return true
}
