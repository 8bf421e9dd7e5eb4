package payload

import (
	"strings"
	"time"
)

// DetectFunc computes the organization info for a document. Injected so the
// builder stays free of detector configuration.
type DetectFunc func(*Document) OrganizationInfo

// Builder assembles normalized MeetingPayloads from raw meeting data.
type Builder struct {
	detect DetectFunc
	now    func() time.Time
}

// NewBuilder creates a Builder using detect for organization lookup.
func NewBuilder(detect DetectFunc) *Builder {
	return &Builder{detect: detect, now: time.Now}
}

// Build produces the delivery payload for one meeting. The transform is
// deterministic given its inputs: participants are extracted creator-first
// and de-duplicated by email, the organization is computed from the document,
// template content is normalized to the six-section shape, and duration is
// derived from the transcript when one is present. The document's creation
// timestamp is copied through verbatim.
func (b *Builder) Build(doc *Document, matched *Panel, segments []Segment) *MeetingPayload {
	p := &MeetingPayload{
		MeetingID:    doc.ID,
		Title:        doc.Title,
		Date:         doc.CreatedAt,
		Participants: extractParticipants(doc),
		Organization: b.detect(doc),
		Template:     normalizeTemplate(matched),
		ProcessedAt:  b.now().UTC().Format(time.RFC3339),
	}

	if len(segments) > 0 {
		p.Transcript = &Transcript{Segments: segments}
		minutes := (segments[len(segments)-1].End - segments[0].Start) / 60
		p.DurationMinutes = &minutes
	}

	return p
}

// extractParticipants returns the creator first, then attendees, with
// duplicates removed by lowercased email. An attendee sharing the creator's
// email keeps the creator role.
func extractParticipants(doc *Document) []Participant {
	var out []Participant
	seen := make(map[string]bool)

	if doc.People == nil {
		return out
	}

	if c := doc.People.Creator; c != nil && c.Email != "" {
		out = append(out, Participant{
			Name:    c.Name,
			Email:   c.Email,
			Role:    RoleCreator,
			Company: c.CompanyName,
		})
		seen[strings.ToLower(c.Email)] = true
	}

	for _, a := range doc.People.Attendees {
		if a.Email == "" || seen[strings.ToLower(a.Email)] {
			continue
		}
		seen[strings.ToLower(a.Email)] = true
		out = append(out, Participant{
			Name:    a.Name,
			Email:   a.Email,
			Role:    RoleAttendee,
			Company: a.CompanyName,
		})
	}

	return out
}

// Panel section keys recognized by the normalizer.
const (
	sectionSummary       = "summary"
	sectionKeyPoints     = "key_points"
	sectionDecisions     = "decisions"
	sectionActionItems   = "action_items"
	sectionOpenQuestions = "open_questions"
	sectionNotes         = "notes"
)

func normalizeTemplate(matched *Panel) TemplateContent {
	var t TemplateContent
	if matched == nil {
		return t
	}
	t.Summary = matched.Sections[sectionSummary]
	t.KeyPoints = matched.Sections[sectionKeyPoints]
	t.Decisions = matched.Sections[sectionDecisions]
	t.ActionItems = matched.Sections[sectionActionItems]
	t.OpenQuestions = matched.Sections[sectionOpenQuestions]
	t.Notes = matched.Sections[sectionNotes]
	return t
}
