// Package contact extracts best-effort employer contact details from a rendered
// job detail page. Every field is filled by its own ordered list of rules; the
// first rule that yields a plausible value wins and a miss is never an error.
package contact

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/job-catalog/internal/catalog"
	"github.com/jonathan/job-catalog/internal/fetch"
)

// Source is the page content handed to the rules.
type Source struct {
	HTML  string
	Text  string // rendered text; derived from HTML when empty
	RefNr string
}

// Page is a parsed Source.
type Page struct {
	Doc   *goquery.Document // nil when the HTML could not be parsed
	Text  string
	Lines []string
	RefNr string
	Block []string // lines of the contact section, if one was found
}

// Rule returns a field value and whether it matched.
type Rule func(p *Page) (string, bool)

// Rules holds the ordered rules per field.
type Rules struct {
	Email []Rule
	Phone []Rule
	Name  []Rule
}

// DefaultRules returns the rule chains used on job detail pages.
func DefaultRules() Rules {
	return Rules{
		Email: []Rule{MailtoLink, LabeledEmail, AnyEmail},
		Phone: []Rule{TelLink, LabeledPhone, CountryCodePhone},
		Name:  []Rule{BlockName},
	}
}

// Extractor applies rule chains to pages.
type Extractor struct {
	rules Rules
}

// NewExtractor creates an Extractor with the default rules.
func NewExtractor() *Extractor {
	return &Extractor{rules: DefaultRules()}
}

// NewExtractorWithRules creates an Extractor with custom rule chains.
func NewExtractorWithRules(rules Rules) *Extractor {
	return &Extractor{rules: rules}
}

// Parse prepares a Source for the rules.
func Parse(src Source) *Page {
	p := &Page{RefNr: strings.TrimSpace(src.RefNr)}

	if strings.TrimSpace(src.HTML) != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(src.HTML)); err == nil {
			p.Doc = doc
		}
	}

	text := src.Text
	if strings.TrimSpace(text) == "" && p.Doc != nil {
		text = fetch.DocumentText(p.Doc)
	}
	p.Text = fetch.CleanWhitespace(text)
	if p.Text != "" {
		p.Lines = strings.Split(p.Text, "\n")
	}
	p.Block = contactBlock(p.Lines)
	return p
}

// Extract returns the contact details found in src. The result is never nil.
func (e *Extractor) Extract(src Source) *catalog.ContactInfo {
	p := Parse(src)

	info := &catalog.ContactInfo{
		Email: first(p, e.rules.Email),
		Phone: first(p, e.rules.Phone),
		Name:  first(p, e.rules.Name),
	}
	if addr := BlockAddress(p); addr != nil {
		info.Address = addr
	}
	return info
}

func first(p *Page, rules []Rule) string {
	for _, rule := range rules {
		if v, ok := rule(p); ok {
			return v
		}
	}
	return ""
}
