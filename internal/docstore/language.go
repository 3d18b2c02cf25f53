package docstore

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Languages seen in the Gutenberg catalogue, by English name.
var knownLanguages = []language.Tag{
	language.English, language.French, language.German, language.Spanish,
	language.Italian, language.Portuguese, language.Dutch, language.Finnish,
	language.Swedish, language.Danish, language.Norwegian, language.Polish,
	language.Hungarian, language.Greek, language.Russian, language.Chinese,
	language.Japanese, language.Catalan, language.Czech, language.MustParse("la"),
	language.MustParse("eo"), language.MustParse("tl"), language.MustParse("cy"),
}

var languageByName = func() map[string]string {
	names := display.English.Languages()
	m := make(map[string]string, len(knownLanguages))
	for _, tag := range knownLanguages {
		base, _ := tag.Base()
		m[strings.ToLower(names.Name(tag))] = base.String()
	}
	return m
}()

// NormalizeLanguage maps a header language ("English", "en", "EN-GB") to its
// ISO 639 base code. Values it cannot place are returned lower-cased.
func NormalizeLanguage(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	if code, ok := languageByName[lower]; ok {
		return code
	}
	if tag, err := language.Parse(s); err == nil {
		if base, conf := tag.Base(); conf == language.Exact {
			return base.String()
		}
	}
	return lower
}
