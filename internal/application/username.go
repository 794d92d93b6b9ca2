package application

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxUsernameSuffix = 10000

var (
	usernameSeparators = regexp.MustCompile(`[\s_]+`)
	usernameInvalid    = regexp.MustCompile(`[^a-z0-9-]`)
	usernameHyphens    = regexp.MustCompile(`-+`)
)

// SlugifyUsername folds accents and reduces name to lowercase ASCII letters,
// digits and single hyphens, so "José García" becomes "jose-garcia".
func SlugifyUsername(name string) string {
	folder := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, name)
	if err != nil {
		folded = name
	}

	slug := strings.ToLower(folded)
	slug = usernameSeparators.ReplaceAllString(slug, "-")
	slug = usernameInvalid.ReplaceAllString(slug, "")
	slug = usernameHyphens.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// uniqueUsername returns base when free, otherwise the first free base1, base2, ...
func uniqueUsername(ctx context.Context, exists func(context.Context, string) (bool, error), base string) (string, error) {
	taken, err := exists(ctx, base)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}
	for counter := 1; counter < maxUsernameSuffix; counter++ {
		candidate := base + strconv.Itoa(counter)
		taken, err = exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrAlreadyExists
}
