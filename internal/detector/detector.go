// Package detector maps a meeting record to an organization label using
// prioritized signal matching: calendar guest emails first, then title
// keywords, then company metadata from the people list. The first matching
// signal source wins; later sources are not consulted.
package detector

import (
	"strings"

	"github.com/kalambet/meetsync/internal/payload"
)

// Organization describes one configured organization and the signals that
// identify it.
type Organization struct {
	Name           string   `json:"name"`
	TitleKeywords  []string `json:"titleKeywords,omitempty"`
	EmailDomains   []string `json:"emailDomains,omitempty"`
	EmailAddresses []string `json:"emailAddresses,omitempty"`
	CompanyNames   []string `json:"companyNames,omitempty"`
}

// Config holds the organization definitions and the label returned when no
// signal matches.
type Config struct {
	Organizations []Organization `json:"definitions"`
	DefaultLabel  string         `json:"defaultLabel"`
}

// Confidence scores per signal source. Calendar data is the strongest signal
// because guest emails are machine-populated; title keywords and company
// names are typed by humans.
const (
	calendarConfidence = 0.9
	titleConfidence    = 0.7
	companyConfidence  = 0.6
)

// Detect returns the organization info for a meeting. It is deterministic
// given the document and config, performs no I/O, and never fails: when no
// signal matches it returns cfg.DefaultLabel with zero confidence.
func Detect(doc *payload.Document, cfg Config) payload.OrganizationInfo {
	if info, ok := detectByCalendar(doc, cfg); ok {
		return info
	}
	if info, ok := detectByTitle(doc.Title, cfg); ok {
		return info
	}
	if info, ok := detectByCompany(doc, cfg); ok {
		return info
	}
	return payload.OrganizationInfo{Name: cfg.DefaultLabel}
}

// detectByCalendar matches creator and attendee emails from the calendar
// event against each organization's domains and exact addresses. Ties are
// broken by the highest matching-guest count; on equal counts the earlier
// configured organization wins.
func detectByCalendar(doc *payload.Document, cfg Config) (payload.OrganizationInfo, bool) {
	if doc.CalendarEvent == nil {
		return payload.OrganizationInfo{}, false
	}

	var emails []string
	if doc.CalendarEvent.Creator != nil && doc.CalendarEvent.Creator.Email != "" {
		emails = append(emails, doc.CalendarEvent.Creator.Email)
	}
	for _, a := range doc.CalendarEvent.Attendees {
		if a.Email != "" {
			emails = append(emails, a.Email)
		}
	}
	if len(emails) == 0 {
		return payload.OrganizationInfo{}, false
	}

	bestIdx := -1
	bestCount := 0
	for i, org := range cfg.Organizations {
		count := 0
		for _, email := range emails {
			if emailMatchesOrg(email, org) {
				count++
			}
		}
		if count > bestCount {
			bestIdx = i
			bestCount = count
		}
	}
	if bestIdx < 0 {
		return payload.OrganizationInfo{}, false
	}

	return payload.OrganizationInfo{
		Name:       cfg.Organizations[bestIdx].Name,
		Confidence: calendarConfidence,
		Signals:    payload.SignalFlags{CalendarMatch: true},
	}, true
}

func emailMatchesOrg(email string, org Organization) bool {
	lower := strings.ToLower(email)
	for _, addr := range org.EmailAddresses {
		if lower == strings.ToLower(addr) {
			return true
		}
	}
	at := strings.LastIndex(lower, "@")
	if at < 0 {
		return false
	}
	domain := lower[at+1:]
	for _, d := range org.EmailDomains {
		if domain == strings.ToLower(d) {
			return true
		}
	}
	return false
}

func detectByTitle(title string, cfg Config) (payload.OrganizationInfo, bool) {
	lower := strings.ToLower(title)
	for _, org := range cfg.Organizations {
		for _, kw := range org.TitleKeywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return payload.OrganizationInfo{
					Name:       org.Name,
					Confidence: titleConfidence,
					Signals:    payload.SignalFlags{TitleMatch: true},
				}, true
			}
		}
	}
	return payload.OrganizationInfo{}, false
}

func detectByCompany(doc *payload.Document, cfg Config) (payload.OrganizationInfo, bool) {
	if doc.People == nil {
		return payload.OrganizationInfo{}, false
	}

	var companies []string
	if doc.People.Creator != nil && doc.People.Creator.CompanyName != "" {
		companies = append(companies, doc.People.Creator.CompanyName)
	}
	for _, p := range doc.People.Attendees {
		if p.CompanyName != "" {
			companies = append(companies, p.CompanyName)
		}
	}

	for _, org := range cfg.Organizations {
		for _, want := range org.CompanyNames {
			for _, have := range companies {
				if strings.EqualFold(want, have) {
					return payload.OrganizationInfo{
						Name:       org.Name,
						Confidence: companyConfidence,
						Signals:    payload.SignalFlags{CompanyMatch: true},
					}, true
				}
			}
		}
	}
	return payload.OrganizationInfo{}, false
}
