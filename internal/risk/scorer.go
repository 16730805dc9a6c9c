package risk

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
)

var (
	ErrNoIndicators    = errors.New("risk: corpus has no indicator terms")
	ErrNoExemplars     = errors.New("risk: corpus has no exemplars")
	ErrEmptyVocabulary = errors.New("risk: empty vocabulary")
)

// Two or more word characters, the same tokens a default TF-IDF vectorizer keeps.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

const (
	lexicalWeight  = 0.5
	semanticWeight = 0.5
)

// Breakdown explains how a score was reached. Err is set when scoring
// failed and Score fell back to zero.
type Breakdown struct {
	Score    float64
	Lexical  float64
	Semantic float64
	Matched  []string
	Err      error
}

// Scorer is immutable after construction and safe for concurrent use.
type Scorer struct {
	corpus Corpus
}

func NewScorer(corpus Corpus) *Scorer {
	return &Scorer{corpus: corpus.normalized()}
}

func (s *Scorer) Corpus() Corpus {
	return Corpus{
		Indicators: append([]string(nil), s.corpus.Indicators...),
		Exemplars:  append([]string(nil), s.corpus.Exemplars...),
	}
}

// Score returns a fraud risk value in [0, 100] rounded to two decimals.
func (s *Scorer) Score(claimText, analysisText string) float64 {
	return s.Explain(claimText, analysisText).Score
}

func (s *Scorer) Explain(claimText, analysisText string) (b Breakdown) {
	defer func() {
		if r := recover(); r != nil {
			b = Breakdown{Err: errors.New("risk: scoring panicked")}
		}
	}()

	combined := strings.ToLower(claimText) + " " + strings.ToLower(analysisText)

	if len(s.corpus.Indicators) == 0 {
		return Breakdown{Err: ErrNoIndicators}
	}
	for _, term := range s.corpus.Indicators {
		if strings.Contains(combined, term) {
			b.Matched = append(b.Matched, term)
		}
	}
	b.Lexical = math.Min(float64(len(b.Matched))/float64(len(s.corpus.Indicators)), 1) * lexicalWeight

	similarity, err := s.meanSimilarity(combined)
	if err != nil {
		return Breakdown{Err: err}
	}
	b.Semantic = clamp01(similarity) * semanticWeight

	b.Score = math.Round(clamp01(b.Lexical+b.Semantic)*100*100) / 100
	return b
}

// meanSimilarity fits TF-IDF over the exemplars plus the text and returns
// the average cosine similarity of the text to each exemplar.
func (s *Scorer) meanSimilarity(text string) (float64, error) {
	if len(s.corpus.Exemplars) == 0 {
		return 0, ErrNoExemplars
	}
	counts := make([]map[string]float64, 0, len(s.corpus.Exemplars)+1)
	for _, ex := range s.corpus.Exemplars {
		counts = append(counts, termCounts(ex))
	}
	counts = append(counts, termCounts(text))

	df := make(map[string]int)
	for _, doc := range counts {
		for term := range doc {
			df[term]++
		}
	}
	if len(df) == 0 {
		return 0, ErrEmptyVocabulary
	}
	vocab := make([]string, 0, len(df))
	for term := range df {
		vocab = append(vocab, term)
	}
	sort.Strings(vocab)

	n := float64(len(counts))
	vectors := make([][]float64, len(counts))
	for i, doc := range counts {
		vec := make([]float64, len(vocab))
		var norm float64
		for j, term := range vocab {
			tf := doc[term]
			if tf == 0 {
				continue
			}
			vec[j] = tf * (math.Log((1+n)/(1+float64(df[term]))) + 1)
			norm += vec[j] * vec[j]
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for j := range vec {
				vec[j] /= norm
			}
		}
		vectors[i] = vec
	}

	target := vectors[len(vectors)-1]
	var total float64
	for _, vec := range vectors[:len(vectors)-1] {
		total += dot(target, vec)
	}
	return total / float64(len(vectors)-1), nil
}

func termCounts(text string) map[string]float64 {
	counts := make(map[string]float64)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		counts[tok]++
	}
	return counts
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(v, 1))
}
