package contact

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	emailShape   = regexp.MustCompile(`(?i)^[a-z0-9._%+\-]+@[a-z0-9\-]+(?:\.[a-z0-9\-]+)*\.[a-z]{2,24}$`)
	emailToken   = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9\-]+(?:\.[a-z0-9\-]+)*\.[a-z]{2,24}`)
	labeledEmail = regexp.MustCompile(`(?i)\be-?mail(?:-adresse)?\s*:\s*([a-z0-9._%+\-]+@[a-z0-9\-]+(?:\.[a-z0-9\-]+)*\.[a-z]{2,24})`)
)

// deniedDomains never belong to an employer contact.
var deniedDomains = []string{
	"example.com", "example.org", "example.net", "example.de",
	"test.com", "test.de", "domain.com", "domain.de", "email.com",
	"sentry.io", "wixpress.com", "arbeitsagentur.de",
}

var deniedLocalParts = []string{"noreply", "no-reply", "donotreply", "do-not-reply", "mailer-daemon"}

var fileSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}

func sanitizeEmail(raw string) string {
	v := strings.TrimSpace(raw)
	if i := strings.IndexAny(v, "?#"); i >= 0 {
		v = v[:i]
	}
	if unescaped, err := url.QueryUnescape(v); err == nil {
		v = unescaped
	}
	v = strings.Trim(strings.TrimSpace(v), ".,;:<>()[]\"'")
	if !emailShape.MatchString(v) {
		return ""
	}
	return v
}

func deniedEmail(addr string) bool {
	lower := strings.ToLower(addr)
	at := strings.LastIndex(lower, "@")
	if at < 0 {
		return true
	}
	local, domain := lower[:at], lower[at+1:]

	for _, d := range deniedDomains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	for _, l := range deniedLocalParts {
		if local == l || strings.HasPrefix(local, l+"+") || strings.HasPrefix(local, l+".") {
			return true
		}
	}
	for _, s := range fileSuffixes {
		if strings.HasSuffix(domain, s) {
			return true
		}
	}
	return false
}

// MailtoLink takes the address of the first mailto: link.
func MailtoLink(p *Page) (string, bool) {
	if p.Doc == nil {
		return "", false
	}
	var found string
	p.Doc.Find(`a[href]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if len(href) < 7 || !strings.EqualFold(href[:7], "mailto:") {
			return true
		}
		// mailto:a@b.de,c@d.de keeps the first recipient
		target := strings.SplitN(href[7:], ",", 2)[0]
		if v := sanitizeEmail(target); v != "" {
			found = v
			return false
		}
		return true
	})
	return found, found != ""
}

// LabeledEmail takes the address following an "E-Mail:" label.
func LabeledEmail(p *Page) (string, bool) {
	for _, m := range labeledEmail.FindAllStringSubmatch(p.Text, -1) {
		if v := sanitizeEmail(m[1]); v != "" && !deniedEmail(v) {
			return v, true
		}
	}
	return "", false
}

// AnyEmail takes the first address-shaped token outside the denylist,
// preferring the contact section.
func AnyEmail(p *Page) (string, bool) {
	for _, text := range []string{strings.Join(p.Block, "\n"), p.Text} {
		for _, tok := range emailToken.FindAllString(text, -1) {
			if v := sanitizeEmail(tok); v != "" && !deniedEmail(v) {
				return v, true
			}
		}
	}
	return "", false
}
