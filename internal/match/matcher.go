// Package match pairs source list entries with target service titles.
package match

import (
	"unicode/utf8"

	"github.com/Another0Noob/mangadex-sync/internal/models"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// DefaultThreshold is the minimum fuzzy similarity accepted when none is configured.
const DefaultThreshold = 0.85

// Confidence is the tier a match was found in.
type Confidence int

const (
	None Confidence = iota
	Fuzzy
	AlternateTitle
	Exact
)

func (c Confidence) String() string {
	switch c {
	case Exact:
		return "exact"
	case AlternateTitle:
		return "alternate-title"
	case Fuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// MarshalText lets reports carry the tier name.
func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Result is the outcome of matching one source entry.
type Result struct {
	Source     models.SourceEntry
	Target     *models.TargetEntry
	Confidence Confidence
	Score      float64 // fuzzy similarity, 1 for the exact tiers
}

// Matched reports whether a target was found.
func (r Result) Matched() bool {
	return r.Confidence != None && r.Target != nil
}

// Matcher matches titles. It holds no state besides its threshold.
type Matcher struct {
	threshold float64
}

// New returns a Matcher accepting fuzzy scores >= threshold. Out of range thresholds use DefaultThreshold.
func New(threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold}
}

// Threshold returns the fuzzy acceptance threshold.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Match finds the best candidate for src.
func (m *Matcher) Match(src models.SourceEntry, candidates []models.TargetEntry) Result {
	return m.Index(candidates).Match(src)
}

// Index precomputes the title keys of candidates so a whole list can be matched against them.
func (m *Matcher) Index(candidates []models.TargetEntry) *Index {
	idx := &Index{
		threshold:  m.threshold,
		candidates: candidates,
		folded:     make(map[string][]int),
		normalized: make([][]string, len(candidates)),
	}
	for i, c := range candidates {
		seenFold := make(map[string]struct{})
		seenNorm := make(map[string]struct{})
		for _, t := range c.Titles() {
			if f := foldTitle(t); f != "" {
				if _, ok := seenFold[f]; !ok {
					seenFold[f] = struct{}{}
					idx.folded[f] = append(idx.folded[f], i)
				}
			}
			if n := normalizeTitle(t); n != "" {
				if _, ok := seenNorm[n]; !ok {
					seenNorm[n] = struct{}{}
					idx.normalized[i] = append(idx.normalized[i], n)
				}
			}
		}
	}
	return idx
}

// Index is a read-only view over one candidate list. Safe for concurrent use.
type Index struct {
	threshold  float64
	candidates []models.TargetEntry
	folded     map[string][]int // folded title -> candidate positions
	normalized [][]string       // candidate position -> normalized titles
}

// Len returns the number of candidates.
func (idx *Index) Len() int { return len(idx.candidates) }

// Match runs the tiers in order: canonical title, alternate titles, fuzzy.
func (idx *Index) Match(src models.SourceEntry) Result {
	res := Result{Source: src}
	if len(idx.candidates) == 0 {
		return res
	}

	if i, ok := idx.exact([]string{src.Title}); ok {
		return idx.hit(res, i, Exact, 1)
	}
	if i, ok := idx.exact(src.AltTitles); ok {
		return idx.hit(res, i, AlternateTitle, 1)
	}
	if i, score, ok := idx.fuzzy(src.Titles()); ok {
		return idx.hit(res, i, Fuzzy, score)
	}
	return res
}

func (idx *Index) hit(res Result, i int, c Confidence, score float64) Result {
	t := idx.candidates[i]
	res.Target = &t
	res.Confidence = c
	res.Score = score
	return res
}

func (idx *Index) exact(titles []string) (int, bool) {
	best := -1
	for _, t := range titles {
		f := foldTitle(t)
		if f == "" {
			continue
		}
		for _, i := range idx.folded[f] {
			if best < 0 || idx.prefer(i, best) {
				best = i
			}
		}
	}
	return best, best >= 0
}

func (idx *Index) fuzzy(titles []string) (int, float64, bool) {
	srcNorm := make([]string, 0, len(titles))
	for _, t := range titles {
		if n := normalizeTitle(t); n != "" {
			srcNorm = append(srcNorm, n)
		}
	}
	if len(srcNorm) == 0 {
		return 0, 0, false
	}

	best, bestScore := -1, 0.0
	for i, candTitles := range idx.normalized {
		score := 0.0
		for _, s := range srcNorm {
			for _, c := range candTitles {
				if sc := similarity(s, c, idx.threshold); sc > score {
					score = sc
				}
			}
		}
		if score < idx.threshold {
			continue
		}
		if best < 0 || score > bestScore || (score == bestScore && idx.prefer(i, best)) {
			best, bestScore = i, score
		}
	}
	return best, bestScore, best >= 0
}

// prefer reports whether candidate a wins a tie against b: shorter canonical title, then lower id.
func (idx *Index) prefer(a, b int) bool {
	ca, cb := idx.candidates[a], idx.candidates[b]
	la, lb := utf8.RuneCountInString(ca.Title), utf8.RuneCountInString(cb.Title)
	if la != lb {
		return la < lb
	}
	return ca.ID < cb.ID
}

// similarity is 1 - levenshtein/maxLen. Pairs whose length difference alone rules out
// reaching floor score 0 without computing the distance.
func similarity(a, b string, floor float64) float64 {
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 0
	}
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	if 1-float64(diff)/float64(longest) < floor {
		return 0
	}
	d := fuzzy.LevenshteinDistance(a, b)
	return 1 - float64(d)/float64(longest)
}
