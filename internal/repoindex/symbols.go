package repoindex

import (
	"regexp"
	"sort"
	"strings"
)

var languagePatterns = map[string][]*regexp.Regexp{
	"go": {
		regexp.MustCompile(`func\s+(\w+)`),
		regexp.MustCompile(`type\s+(\w+)\s+(?:struct|interface)`),
		regexp.MustCompile(`const\s+(\w+)`),
		regexp.MustCompile(`var\s+(\w+)`),
	},
	"py": {
		regexp.MustCompile(`(?m)^\s*def\s+(\w+)`),
		regexp.MustCompile(`(?m)^\s*class\s+(\w+)`),
	},
	"java": {
		regexp.MustCompile(`class\s+(\w+)`),
		regexp.MustCompile(`interface\s+(\w+)`),
		regexp.MustCompile(`enum\s+(\w+)`),
		regexp.MustCompile(`(?:public|protected|private|static|\s) +[\w\<\>\[\]]+\s+(\w+) *\(`), // Method
	},
	"js": {
		regexp.MustCompile(`function\s+(\w+)`),
		regexp.MustCompile(`class\s+(\w+)`),
		regexp.MustCompile(`const\s+(\w+)\s*=`),
		regexp.MustCompile(`let\s+(\w+)\s*=`),
		regexp.MustCompile(`var\s+(\w+)\s*=`),
	},
	"ts": {
		regexp.MustCompile(`function\s+(\w+)`),
		regexp.MustCompile(`class\s+(\w+)`),
		regexp.MustCompile(`interface\s+(\w+)`),
		regexp.MustCompile(`type\s+(\w+)\s*=`),
		regexp.MustCompile(`const\s+(\w+)\s*=`),
		regexp.MustCompile(`let\s+(\w+)\s*=`),
	},
	"rs": {
		regexp.MustCompile(`fn\s+(\w+)`),
		regexp.MustCompile(`struct\s+(\w+)`),
		regexp.MustCompile(`enum\s+(\w+)`),
		regexp.MustCompile(`trait\s+(\w+)`),
		regexp.MustCompile(`mod\s+(\w+)`),
	},
	"c": {
		regexp.MustCompile(`(?m)^\s*\w+\s+(\w+)\s*\(.*\)\s*\{`), // Function definition
		regexp.MustCompile(`struct\s+(\w+)`),
		regexp.MustCompile(`enum\s+(\w+)`),
		regexp.MustCompile(`#define\s+(\w+)`),
	},
	"cpp": {
		regexp.MustCompile(`class\s+(\w+)`),
		regexp.MustCompile(`struct\s+(\w+)`),
		regexp.MustCompile(`enum\s+(\w+)`),
		regexp.MustCompile(`(?m)^\s*\w+\s+(\w+)\s*\(.*\)\s*\{`), // Function definition (simplified)
	},
}

// extensionAliases maps alternate extensions to the canonical pattern key.
var extensionAliases = map[string]string{
	"python":     "py",
	"javascript": "js",
	"jsx":        "js",
	"typescript": "ts",
	"tsx":        "ts",
	"golang":     "go",
	"rust":       "rs",
	"h":          "c",
	"hpp":        "cpp",
	"cc":         "cpp",
	"cxx":        "cpp",
}

// ExtractSymbols extracts declared identifiers (functions, types, classes)
// from content based on file extension. The result is sorted and
// deduplicated; unknown extensions yield nil.
func ExtractSymbols(ext, content string) []string {
	normalizedExt := strings.ToLower(strings.TrimPrefix(ext, "."))
	if alias, ok := extensionAliases[normalizedExt]; ok {
		normalizedExt = alias
	}

	patterns, ok := languagePatterns[normalizedExt]
	if !ok {
		return nil
	}

	uniqueSymbols := make(map[string]struct{})
	for _, regex := range patterns {
		matches := regex.FindAllStringSubmatch(content, -1)
		for _, match := range matches {
			if len(match) > 1 {
				symbol := strings.TrimSpace(match[1])
				// Basic validation to ensure it looks like an identifier
				if symbol != "" && len(symbol) < 100 {
					uniqueSymbols[symbol] = struct{}{}
				}
			}
		}
	}

	if len(uniqueSymbols) == 0 {
		return nil
	}

	symbols := make([]string, 0, len(uniqueSymbols))
	for s := range uniqueSymbols {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}
