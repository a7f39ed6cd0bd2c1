package catalog

// MergeDetail overlays next onto prev field by field.
// A field that is empty in next keeps the value from prev.
func MergeDetail(prev, next JobDetailRecord) JobDetailRecord {
	out := prev
	out.RefNr = pick(prev.RefNr, next.RefNr)
	out.Title = pick(prev.Title, next.Title)
	out.Employer = pick(prev.Employer, next.Employer)
	out.Description = pick(prev.Description, next.Description)
	out.Compensation = pick(prev.Compensation, next.Compensation)
	out.ContractDuration = pick(prev.ContractDuration, next.ContractDuration)
	out.PublishedAt = pick(prev.PublishedAt, next.PublishedAt)
	out.StartDate = pick(prev.StartDate, next.StartDate)
	out.LogoURL = pick(prev.LogoURL, next.LogoURL)

	if len(next.Skills) > 0 {
		out.Skills = append([]string(nil), next.Skills...)
	}

	out.Location.City = pick(prev.Location.City, next.Location.City)
	out.Location.PostalCode = pick(prev.Location.PostalCode, next.Location.PostalCode)
	if next.Location.Coordinates != nil {
		c := *next.Location.Coordinates
		out.Location.Coordinates = &c
	}

	return out
}

func pick(prev, next string) string {
	if next != "" {
		return next
	}
	return prev
}
