package jobsapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonathan/job-catalog/internal/catalog"
)

// flexInt accepts both JSON numbers and numeric strings.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("invalid count %q: %w", s, err)
		}
		*n = flexInt(v)
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = flexInt(v)
	return nil
}

type searchListing struct {
	RefNr      string           `json:"refnr"`
	Title      string           `json:"titel"`
	Occupation string           `json:"beruf"`
	Employer   string           `json:"arbeitgeber"`
	Location   catalog.Location `json:"arbeitsort"`
}

type searchResponse struct {
	Total    flexInt         `json:"maxErgebnisse"`
	Listings []searchListing `json:"stellenangebote"`
}

// skill is either a plain tag or an object carrying the tag name.
type skill string

func (s *skill) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = skill(v)
		return nil
	}
	var obj struct {
		Name string `json:"hierarchieName"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*s = skill(obj.Name)
	return nil
}

type placeAddress struct {
	City       string `json:"ort"`
	PostalCode string `json:"plz"`
}

type place struct {
	Address placeAddress `json:"adresse"`
	Lat     *float64     `json:"breite"`
	Lon     *float64     `json:"laenge"`
}

type detailResponse struct {
	RefNr            string           `json:"refnr"`
	AltRefNr         string           `json:"referenznummer"`
	Title            string           `json:"titel"`
	AltTitle         string           `json:"stellenangebotsTitel"`
	Employer         string           `json:"arbeitgeber"`
	Location         catalog.Location `json:"arbeitsort"`
	Places           []place          `json:"stellenlokationen"`
	Description      string           `json:"stellenbeschreibung"`
	AltDescription   string           `json:"stellenangebotsBeschreibung"`
	Skills           []skill          `json:"fertigkeiten"`
	Compensation     string           `json:"verguetung"`
	ContractDuration string           `json:"vertragsdauer"`
	PublishedAt      string           `json:"veroeffentlichungsdatum"`
	StartDate        string           `json:"eintrittsdatum"`
	LogoURL          string           `json:"arbeitgeberLogo"`
}

func (d detailResponse) record() *catalog.JobDetailRecord {
	rec := &catalog.JobDetailRecord{
		RefNr:            firstNonEmpty(d.RefNr, d.AltRefNr),
		Title:            firstNonEmpty(d.Title, d.AltTitle),
		Employer:         d.Employer,
		Location:         d.Location,
		Description:      firstNonEmpty(d.Description, d.AltDescription),
		Compensation:     d.Compensation,
		ContractDuration: d.ContractDuration,
		PublishedAt:      d.PublishedAt,
		StartDate:        d.StartDate,
		LogoURL:          d.LogoURL,
	}
	if rec.Location.IsZero() && len(d.Places) > 0 {
		p := d.Places[0]
		rec.Location = catalog.Location{City: p.Address.City, PostalCode: p.Address.PostalCode}
		if p.Lat != nil && p.Lon != nil {
			rec.Location.Coordinates = &catalog.Coordinates{Lat: *p.Lat, Lon: *p.Lon}
		}
	}
	for _, s := range d.Skills {
		if v := strings.TrimSpace(string(s)); v != "" {
			rec.Skills = append(rec.Skills, v)
		}
	}
	return rec
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
