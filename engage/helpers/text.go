package helpers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/purell"
	"github.com/spaolacci/murmur3"
)

// Number of whitespace-delimited tokens in the text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// returns a fast, compact hash of a string
//
// current implementation uses murmur3, default seed, and hex encoding
func HashOfString(s string) string {
	val := murmur3.Sum64([]byte(s))
	return fmt.Sprintf("%016x", val)
}

// based on: https://stackoverflow.com/a/48769624, with no trailing period allowed
var urlRegex = regexp.MustCompile(`(?:(?:https?|ftp):\/\/)?[\w/\-?=%.]+\.[\w/\-&?=%.]*[\w/\-&?=%]+`)

func ExtractTextURLs(raw string) []string {
	return urlRegex.FindAllString(raw, -1)
}

// Normalizes a URL for matching: lower-case scheme and host, no "www.", no fragment, sorted query. The result may not be directly functional.
func NormalizeURL(raw string) string {
	clean, err := purell.NormalizeURLString(raw, purell.FlagsUsuallySafeGreedy|purell.FlagRemoveFragment|purell.FlagRemoveDuplicateSlashes|purell.FlagRemoveWWW|purell.FlagSortQuery)
	if err != nil {
		return raw
	}
	return clean
}

// Reports whether any of the texts contains a link matching the pattern, either verbatim or after URL normalization.
func ContainsLink(pattern *regexp.Regexp, texts ...string) bool {
	if pattern == nil {
		return false
	}
	for _, txt := range texts {
		if txt == "" {
			continue
		}
		if pattern.MatchString(txt) {
			return true
		}
		for _, u := range ExtractTextURLs(txt) {
			if pattern.MatchString(NormalizeURL(u)) {
				return true
			}
		}
	}
	return false
}
