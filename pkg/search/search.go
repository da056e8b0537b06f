// Package search provides text normalization and fuzzy scoring for
// matching free-form queries against track metadata.
package search

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"chorus/internal/core"
)

var (
	punctRegex      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// MinScore is the lowest similarity still considered a match.
const MinScore = 0.5

// Matcher scores tracks against normalized queries.
type Matcher struct{}

// NewMatcher creates a matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Normalize folds text for comparison: decomposed accents stripped,
// punctuation replaced by spaces, lowercased, whitespace collapsed.
func (m *Matcher) Normalize(text string) string {
	text = norm.NFKD.String(text)

	var result strings.Builder
	for _, r := range text {
		if !unicode.IsMark(r) {
			result.WriteRune(r)
		}
	}
	text = result.String()

	text = punctRegex.ReplaceAllString(text, " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	text = strings.ToLower(text)
	return strings.TrimSpace(text)
}

// Similarity returns the longest-common-subsequence ratio of two
// normalized strings, in [0, 1].
func (m *Matcher) Similarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	if len(s1) == 0 || len(s2) == 0 {
		return 0.0
	}

	return float64(m.longestCommonSubsequence(s1, s2)) / float64(max(len(s1), len(s2)))
}

// Score rates how well a track matches the query: the best of the
// title, artist, album, and combined artist-title similarity, with a
// substring match always counting as a hit.
func (m *Matcher) Score(track core.Track, query string) float64 {
	query = m.Normalize(query)
	if query == "" {
		return 0.0
	}

	title := m.Normalize(track.Title)
	artist := m.Normalize(track.Artist)
	album := m.Normalize(track.Album)

	score := 0.0
	for _, candidate := range []string{title, artist, album, artist + " " + title} {
		if candidate == "" {
			continue
		}
		if strings.Contains(candidate, query) {
			return 1.0
		}
		if s := m.Similarity(query, candidate); s > score {
			score = s
		}
	}
	return score
}

// Match reports whether the track matches the query well enough to be
// listed in search results.
func (m *Matcher) Match(track core.Track, query string) bool {
	return m.Score(track, query) >= MinScore
}

func (m *Matcher) longestCommonSubsequence(s1, s2 string) int {
	rows, cols := len(s1), len(s2)
	dp := make([][]int, rows+1)
	for i := range dp {
		dp[i] = make([]int, cols+1)
	}

	for i := 1; i <= rows; i++ {
		for j := 1; j <= cols; j++ {
			if s1[i-1] == s2[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else {
				dp[i][j] = max(dp[i-1][j], dp[i][j-1])
			}
		}
	}

	return dp[rows][cols]
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
