package service

import (
	"strings"

	goahocorasick "github.com/anknown/ahocorasick"

	"github.com/hancat/sora2api/common"
)

func TruncateString(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// AcSearch runs a case-insensitive Aho-Corasick scan of content for the
// keywords. With returnImmediately the scan stops at the first hit.
func AcSearch(content string, keywords []string, returnImmediately bool) (bool, []string) {
	if content == "" || len(keywords) == 0 {
		return false, nil
	}
	dict := make([][]rune, 0, len(keywords))
	for _, k := range keywords {
		if k == "" {
			continue
		}
		dict = append(dict, []rune(strings.ToLower(k)))
	}
	if len(dict) == 0 {
		return false, nil
	}
	m := new(goahocorasick.Machine)
	if err := m.Build(dict); err != nil {
		common.SysError("failed to build ac machine: " + err.Error())
		return false, nil
	}
	terms := m.MultiPatternSearch([]rune(strings.ToLower(content)), returnImmediately)
	if len(terms) == 0 {
		return false, nil
	}
	words := make([]string, 0, len(terms))
	for _, t := range terms {
		words = append(words, string(t.Word))
	}
	return true, words
}
