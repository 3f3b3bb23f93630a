package search

import (
	"sort"

	"github.com/swasthyasetu/corpus-engine/engine/domain"
)

// Merge fuses semantic and keyword results into one ranked list.
//
// Each semantic result at position i earns rank_score (N_sem-i)*2; a semantic
// hit outweighs a keyword hit at the same rank 2:1, a tunable constant
// encoding that semantic relevance is the stronger signal for natural
// language queries. A keyword result whose document is already present boosts
// that entry by (N_kw-j) and retags it hybrid; otherwise it enters with
// (N_kw-j) tagged keyword. Documents found by both signals are therefore
// promoted above documents found by one. Equal rank scores order by document
// id so output is reproducible.
func Merge(semanticHits, keywordHits []domain.SearchResult, limit int) []domain.SearchResult {
	byDoc := make(map[string]*domain.SearchResult, len(semanticHits)+len(keywordHits))

	nSem := len(semanticHits)
	for i, r := range semanticHits {
		// Several chunks of one document may rank; the best-placed chunk
		// represents the document.
		if _, seen := byDoc[r.DocumentID]; seen {
			continue
		}
		r.RankScore = (nSem - i) * 2
		r.SearchType = domain.SearchTypeSemantic
		byDoc[r.DocumentID] = &r
	}

	nKw := len(keywordHits)
	for j, r := range keywordHits {
		if existing, seen := byDoc[r.DocumentID]; seen {
			existing.RankScore += nKw - j
			existing.SearchType = domain.SearchTypeHybrid
			continue
		}
		r.RankScore = nKw - j
		r.SearchType = domain.SearchTypeKeyword
		byDoc[r.DocumentID] = &r
	}

	merged := make([]domain.SearchResult, 0, len(byDoc))
	for _, r := range byDoc {
		merged = append(merged, *r)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].RankScore != merged[j].RankScore {
			return merged[i].RankScore > merged[j].RankScore
		}
		return merged[i].DocumentID < merged[j].DocumentID
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
