package contact

import (
	"regexp"
	"strings"

	"github.com/jonathan/job-catalog/internal/catalog"
)

// maxBlockChars caps how much text after the heading belongs to the contact section.
const maxBlockChars = 500

var startHeadings = []string{"kontaktdaten", "ansprechpartnerin", "ansprechpartner", "ansprechperson", "kontakt"}

var endHeadings = []string{
	"arbeitgeber", "stellenbeschreibung", "bewerbung", "über uns", "weitere informationen",
	"arbeitsort", "arbeitszeit", "fertigkeiten", "vergütung", "ähnliche", "hinweis",
}

var salutations = []string{"frau", "herr", "herrn", "frau dr.", "herr dr.", "dr."}

// noise marks lines of the challenge or page chrome inside the block.
var noise = []string{"sicherheitsabfrage", "zeichen", "captcha", "absenden", "anzeigen", "e-mail", "telefon", "adresse", "kontaktdaten"}

var (
	postalCity     = regexp.MustCompile(`^(?:D-)?(\d{5})\s+(\p{L}[\p{L}\p{M} .'\-/()]*)$`)
	streetLine     = regexp.MustCompile(`^\p{L}[\p{L}\p{M} .'\-]*\s+\d+\s*[a-zA-Z]?(?:\s*[-/]\s*\d+\s*[a-zA-Z]?)?$`)
	streetPostal   = regexp.MustCompile(`^(\p{L}[\p{L}\p{M} .'\-]*\s+\d+\s*[a-zA-Z]?)\s*,\s*(?:D-)?(\d{5})\s+(\p{L}[\p{L}\p{M} .'\-/()]*)$`)
	phoneSignature = regexp.MustCompile(`\d[\d ()/\-.]{5,}\d`)
)

func isHeading(line string, headings []string) (rest string, ok bool) {
	line = strings.TrimSpace(line)
	lower := strings.ToLower(line)
	// byte offsets are shared between line and lower below
	if len(lower) > 60 || len(lower) != len(line) {
		return "", false
	}
	for _, h := range headings {
		if !strings.HasPrefix(lower, h) {
			continue
		}
		tail := strings.TrimSpace(line[len(h):])
		switch {
		case tail == "":
			return "", true
		case strings.HasPrefix(tail, ":"):
			return strings.TrimSpace(tail[1:]), true
		}
	}
	return "", false
}

// contactBlock returns the lines between the first contact heading and the
// next section heading, capped at maxBlockChars.
func contactBlock(lines []string) []string {
	// specific headings win over a bare "Kontakt" that may be navigation
	start := -1
	var lead string
	for _, h := range startHeadings {
		for i, line := range lines {
			if rest, ok := isHeading(line, []string{h}); ok {
				start, lead = i, rest
				break
			}
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return nil
	}

	var block []string
	size := 0
	if lead != "" {
		block = append(block, lead)
		size += len(lead)
	}
	for _, line := range lines[start+1:] {
		if _, ok := isHeading(line, endHeadings); ok {
			break
		}
		if _, ok := isHeading(line, startHeadings); ok {
			continue
		}
		if size+len(line) > maxBlockChars {
			break
		}
		block = append(block, line)
		size += len(line)
	}
	return block
}

func looksLikeContactData(line string) bool {
	lower := strings.ToLower(line)
	if strings.Contains(line, "@") || strings.Contains(lower, "http") || strings.Contains(lower, "www.") {
		return true
	}
	if phoneSignature.MatchString(line) {
		return true
	}
	if postalCity.MatchString(line) || streetLine.MatchString(line) || streetPostal.MatchString(line) {
		return true
	}
	for _, n := range noise {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

func isSalutation(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	for _, s := range salutations {
		if lower == s {
			return true
		}
	}
	return false
}

func plausibleName(line string) bool {
	if len(line) < 2 || len(line) > 80 {
		return false
	}
	return len(strings.Fields(line)) <= 6 && strings.IndexFunc(line, func(r rune) bool { return r >= '0' && r <= '9' }) < 0
}

// BlockName takes the first non-contact line of the contact section, joined
// with the next one when the first is a bare salutation.
func BlockName(p *Page) (string, bool) {
	var candidates []string
	for _, line := range p.Block {
		if looksLikeContactData(line) {
			continue
		}
		candidates = append(candidates, line)
		if len(candidates) == 2 {
			break
		}
	}
	if len(candidates) == 0 {
		return "", false
	}

	name := candidates[0]
	if isSalutation(name) {
		if len(candidates) < 2 {
			return "", false
		}
		name = name + " " + candidates[1]
	}
	if !plausibleName(name) {
		return "", false
	}
	return name, true
}

// BlockAddress finds a postal code and city in the contact section and the
// street line right before it. Returns nil when no postal code is found.
func BlockAddress(p *Page) *catalog.Address {
	for i, line := range p.Block {
		if m := streetPostal.FindStringSubmatch(line); m != nil {
			return &catalog.Address{
				Street:     strings.TrimSpace(m[1]),
				PostalCode: m[2],
				City:       strings.TrimSpace(m[3]),
			}
		}
		m := postalCity.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		addr := &catalog.Address{PostalCode: m[1], City: strings.TrimSpace(m[2])}
		if i > 0 && streetLine.MatchString(p.Block[i-1]) {
			addr.Street = strings.TrimSpace(p.Block[i-1])
		}
		return addr
	}
	return nil
}
