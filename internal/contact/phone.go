package contact

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	minPhoneDigits = 6
	maxPhoneDigits = 15
	minIntlDigits  = 8
)

var (
	nonDigit     = regexp.MustCompile(`\D`)
	labeledPhone = regexp.MustCompile(`(?i)\b(?:Mobil|Telefon|Tel\.?|Fon|Phone)\s*:\s*([+(0-9][0-9 ()/\-.]{4,24}[0-9])`)
	intlPhone    = regexp.MustCompile(`(?:\+|\b00)[1-9][0-9 ()/\-.]{6,22}[0-9]`)
)

func digits(s string) string {
	return nonDigit.ReplaceAllString(s, "")
}

func normalizePhone(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// plausiblePhone rejects too short or too long numbers and the page's own
// reference number.
func plausiblePhone(p *Page, v string, minDigits int) bool {
	d := digits(v)
	if len(d) < minDigits || len(d) > maxPhoneDigits {
		return false
	}
	if ref := digits(p.RefNr); ref != "" && d == ref {
		return false
	}
	return true
}

// TelLink takes the number of the first tel: link that is not the reference number.
func TelLink(p *Page) (string, bool) {
	if p.Doc == nil {
		return "", false
	}
	var found string
	p.Doc.Find(`a[href]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if len(href) < 4 || !strings.EqualFold(href[:4], "tel:") {
			return true
		}
		v := href[4:]
		if unescaped, err := url.PathUnescape(v); err == nil {
			v = unescaped
		}
		v = normalizePhone(v)
		if plausiblePhone(p, v, minPhoneDigits) {
			found = v
			return false
		}
		return true
	})
	return found, found != ""
}

// LabeledPhone takes the number following a Telefon/Tel/Mobil/Fon/Phone label.
func LabeledPhone(p *Page) (string, bool) {
	for _, m := range labeledPhone.FindAllStringSubmatch(p.Text, -1) {
		v := normalizePhone(m[1])
		if plausiblePhone(p, v, minPhoneDigits) {
			return v, true
		}
	}
	return "", false
}

// CountryCodePhone takes the first +CC or 00CC prefixed digit run of plausible length.
func CountryCodePhone(p *Page) (string, bool) {
	for _, m := range intlPhone.FindAllString(p.Text, -1) {
		v := normalizePhone(m)
		if plausiblePhone(p, v, minIntlDigits) {
			return v, true
		}
	}
	return "", false
}
