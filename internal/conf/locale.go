// conf/locale.go contains all locales the label files are published in
package conf

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// LabelConfig describes where label files for a model version live.
type LabelConfig struct {
	FilePattern string // pattern for label files, e.g. "BirdNET_GLOBAL_6K_V2.4_Labels_%s.txt"
	BasePath    string // base path for the label files, e.g. "V2.4/"
}

// ModelLabelMapping maps model versions to their corresponding label configurations
var ModelLabelMapping = map[string]LabelConfig{
	"BirdNET_GLOBAL_6K_V2.4": {
		FilePattern: "BirdNET_GLOBAL_6K_V2.4_Labels_%s.txt",
		BasePath:    "V2.4/",
	},
}

// LocaleCodeMapping maps normalized locale codes to label file identifiers
var LocaleCodeMapping = map[string]string{
	"af":    "af",
	"ar":    "ar",
	"bg":    "bg",
	"ca":    "ca",
	"cs":    "cs",
	"da":    "da",
	"de":    "de",
	"el":    "el",
	"en":    "en_us",
	"en-uk": "en_uk",
	"en-us": "en_us",
	"es":    "es",
	"et":    "et",
	"fi":    "fi",
	"fr":    "fr",
	"he":    "he",
	"hr":    "hr",
	"hu":    "hu",
	"id":    "id",
	"is":    "is",
	"it":    "it",
	"ja":    "ja",
	"ko":    "ko",
	"lt":    "lt",
	"lv":    "lv",
	"ml":    "ml",
	"nl":    "nl",
	"no":    "no",
	"pl":    "pl",
	"pt":    "pt_PT",
	"pt-br": "pt_BR",
	"pt-pt": "pt_PT",
	"ro":    "ro",
	"ru":    "ru",
	"sk":    "sk",
	"sl":    "sl",
	"sr":    "sr",
	"sv":    "sv",
	"th":    "th",
	"tr":    "tr",
	"uk":    "uk",
	"zh":    "zh",
}

// LocaleCodes holds human-readable names for locale codes
var LocaleCodes = map[string]string{
	"af":    "Afrikaans",
	"ar":    "Arabic",
	"bg":    "Bulgarian",
	"pt-br": "Brazilian Portuguese",
	"ca":    "Catalan",
	"cs":    "Czech",
	"zh":    "Chinese",
	"hr":    "Croatian",
	"da":    "Danish",
	"nl":    "Dutch",
	"el":    "Greek",
	"en":    "English",
	"en-uk": "English (UK)",
	"en-us": "English (US)",
	"et":    "Estonian",
	"fi":    "Finnish",
	"fr":    "French",
	"de":    "German",
	"he":    "Hebrew",
	"hu":    "Hungarian",
	"is":    "Icelandic",
	"id":    "Indonesian",
	"it":    "Italian",
	"ja":    "Japanese",
	"ko":    "Korean",
	"lv":    "Latvian",
	"lt":    "Lithuanian",
	"ml":    "Malayalam",
	"no":    "Norwegian",
	"pl":    "Polish",
	"pt":    "Portuguese",
	"pt-pt": "Portuguese (Portugal)",
	"ro":    "Romanian",
	"ru":    "Russian",
	"sr":    "Serbian",
	"sk":    "Slovak",
	"sl":    "Slovenian",
	"es":    "Spanish",
	"sv":    "Swedish",
	"th":    "Thai",
	"tr":    "Turkish",
	"uk":    "Ukrainian",
}

// GetLabelFilename returns the label filename for the given model version and locale code
func GetLabelFilename(modelVersion, localeCode string) (string, error) {
	config, exists := ModelLabelMapping[modelVersion]
	if !exists {
		return "", fmt.Errorf("unsupported model version: %s", modelVersion)
	}

	fileLocale, exists := LocaleCodeMapping[localeCode]
	if !exists {
		return "", fmt.Errorf("unsupported locale code for model %s: %s", modelVersion, localeCode)
	}

	return config.BasePath + fmt.Sprintf(config.FilePattern, fileLocale), nil
}

// NormalizeLocale canonicalizes the input locale and matches it to a known
// locale code or full language name. BCP 47 variants like "en_US" or "EN-us"
// resolve to the same code. Unsupported locales fall back to "en-us".
func NormalizeLocale(inputLocale string) (string, error) {
	candidate := strings.ToLower(strings.TrimSpace(inputLocale))

	if _, exists := LocaleCodes[candidate]; exists {
		return candidate, nil
	}

	// Parse as a BCP 47 tag so region and underscore variants collapse to
	// our canonical dashed form.
	if tag, err := language.Parse(strings.ReplaceAll(candidate, "_", "-")); err == nil {
		tagCode := strings.ToLower(tag.String())
		if tagCode == "en-gb" {
			tagCode = "en-uk"
		}
		if _, exists := LocaleCodes[tagCode]; exists {
			return tagCode, nil
		}
		if base, conf := tag.Base(); conf != language.No {
			baseCode := strings.ToLower(base.String())
			if _, exists := LocaleCodes[baseCode]; exists {
				return baseCode, nil
			}
		}
	}

	// Match by full language name as a last resort.
	for code, fullName := range LocaleCodes {
		if strings.EqualFold(fullName, candidate) {
			return code, nil
		}
	}

	return "en-us", fmt.Errorf("locale %s not supported, falling back to English (US)", inputLocale)
}
