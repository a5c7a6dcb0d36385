package serp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultMaxQueries = 12
	maxQueriesCeiling = 15
	maxTermQueries    = 3
)

// AuthorityDomains are the publishers searched with site-scoped queries.
var AuthorityDomains = []string{
	"gartner.com",
	"forrester.com",
	"idc.com",
	"mckinsey.com",
	"hbr.org",
	"techtarget.com",
}

// GenerateQueries expands q into the ordered query strings issued for one
// subject. maxQueries is clamped to [1, 15]; 0 selects DefaultMaxQueries.
func GenerateQueries(q Query, maxQueries int, now time.Time) []string {
	if maxQueries == 0 {
		maxQueries = DefaultMaxQueries
	}
	maxQueries = min(max(maxQueries, 1), maxQueriesCeiling)

	name := strings.TrimSpace(q.Subject)
	if name == "" {
		return nil
	}
	quoted := strconv.Quote(name)
	affiliation := strings.TrimSpace(q.Affiliation)

	candidates := []string{fmt.Sprintf("%s research report %d", quoted, now.Year())}
	if affiliation != "" {
		candidates = append(candidates, fmt.Sprintf("%s %s analysis", quoted, affiliation))
	}
	candidates = append(candidates, quoted+" magic quadrant OR forrester wave")

	terms := 0
	for _, term := range q.Terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		candidates = append(candidates, quoted+" "+term)
		if terms++; terms == maxTermQueries {
			break
		}
	}

	candidates = append(candidates, quoted+" whitepaper", quoted+" interview")
	if affiliation != "" {
		candidates = append(candidates, fmt.Sprintf("%s %s survey", quoted, affiliation))
	}
	for _, domain := range AuthorityDomains {
		candidates = append(candidates, fmt.Sprintf("site:%s %s", domain, quoted))
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, maxQueries)
	for _, c := range candidates {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
		if len(out) == maxQueries {
			break
		}
	}
	return out
}
