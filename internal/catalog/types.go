// Package catalog defines the job catalog records and the upsert rules that keep
// the persisted catalog consistent across repeated sync runs.
package catalog

import "time"

// Coordinates is an optional geo position of a work location.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Location is where the job is performed.
type Location struct {
	City        string       `json:"ort,omitempty"`
	PostalCode  string       `json:"plz,omitempty"`
	Coordinates *Coordinates `json:"koordinaten,omitempty"`
}

// IsZero reports whether no location field is set.
func (l Location) IsZero() bool {
	return l.City == "" && l.PostalCode == "" && l.Coordinates == nil
}

// ListingStub is the minimal record returned by the search endpoint.
// It only lives for the duration of one sync pass.
type ListingStub struct {
	RefNr    string   `json:"refnr"`
	Title    string   `json:"titel,omitempty"`
	Employer string   `json:"arbeitgeber,omitempty"`
	Location Location `json:"arbeitsort"`
}

// JobDetailRecord is a stub enriched with the per-job detail endpoint.
// Empty fields mean "not known", never "known to be empty".
type JobDetailRecord struct {
	RefNr            string   `json:"refnr"`
	Title            string   `json:"titel,omitempty"`
	Employer         string   `json:"arbeitgeber,omitempty"`
	Location         Location `json:"arbeitsort"`
	Description      string   `json:"stellenbeschreibung,omitempty"`
	Skills           []string `json:"fertigkeiten,omitempty"`
	Compensation     string   `json:"verguetung,omitempty"`
	ContractDuration string   `json:"vertragsdauer,omitempty"`
	PublishedAt      string   `json:"veroeffentlichungsdatum,omitempty"`
	StartDate        string   `json:"eintrittsdatum,omitempty"`
	LogoURL          string   `json:"arbeitgeberLogo,omitempty"`
}

// FromStub synthesizes a detail record carrying only the stub's fields.
func FromStub(stub ListingStub) *JobDetailRecord {
	return &JobDetailRecord{
		RefNr:    stub.RefNr,
		Title:    stub.Title,
		Employer: stub.Employer,
		Location: stub.Location,
	}
}

// Address is a structured postal address.
type Address struct {
	Street     string `json:"strasse,omitempty"`
	PostalCode string `json:"plz,omitempty"`
	City       string `json:"ort,omitempty"`
}

// IsZero reports whether no address field is set.
func (a Address) IsZero() bool {
	return a.Street == "" && a.PostalCode == "" && a.City == ""
}

// ContactInfo holds best-effort employer contact details.
// Every field is optional; partial results are the common case.
type ContactInfo struct {
	Name    string   `json:"name,omitempty"`
	Phone   string   `json:"telefon,omitempty"`
	Email   string   `json:"email,omitempty"`
	Address *Address `json:"adresse,omitempty"`
}

// IsEmpty reports whether the extraction produced nothing.
func (c *ContactInfo) IsEmpty() bool {
	if c == nil {
		return true
	}
	return c.Name == "" && c.Phone == "" && c.Email == "" && (c.Address == nil || c.Address.IsZero())
}

// ContactStatus distinguishes "never looked up" from "looked up, nothing found".
type ContactStatus string

const (
	// ContactUnknown means no on-demand lookup has run for the entry yet.
	ContactUnknown ContactStatus = "unknown"
	// ContactNone means a lookup ran and extracted nothing.
	ContactNone ContactStatus = "none"
	// ContactFound means a lookup extracted at least one field.
	ContactFound ContactStatus = "found"
)

// StatusFor returns the status matching an extraction result.
func StatusFor(c *ContactInfo) ContactStatus {
	if c.IsEmpty() {
		return ContactNone
	}
	return ContactFound
}

// CatalogEntry is the persisted unit, keyed by reference number.
type CatalogEntry struct {
	RefNr            string          `json:"refnr"`
	Detail           JobDetailRecord `json:"detail"`
	Contact          ContactInfo     `json:"kontakt"`
	ContactStatus    ContactStatus   `json:"kontaktStatus"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	LastSyncedAt     time.Time       `json:"lastSyncedAt"`
	LastContactFetch *time.Time      `json:"lastContactFetch,omitempty"`
}
