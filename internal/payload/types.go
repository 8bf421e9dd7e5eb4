package payload

// Document is one meeting record as returned by the upstream notes service.
// CreatedAt is kept as the raw string from the API; re-parsing and
// re-formatting it caused timezone drift in delivered payloads once, so it
// travels verbatim from fetch to sink.
type Document struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	CreatedAt     string         `json:"created_at"`
	People        *People        `json:"people,omitempty"`
	CalendarEvent *CalendarEvent `json:"google_calendar_event,omitempty"`
}

// People holds the meeting participants as reported by the notes service.
type People struct {
	Creator   *Person  `json:"creator,omitempty"`
	Attendees []Person `json:"attendees,omitempty"`
}

// Person is a single meeting participant.
type Person struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	CompanyName string `json:"company_name,omitempty"`
}

// CalendarEvent carries the calendar metadata attached to a meeting.
type CalendarEvent struct {
	Creator   *CalendarPerson  `json:"creator,omitempty"`
	Attendees []CalendarPerson `json:"attendees,omitempty"`
}

// CalendarPerson is an entry on the calendar event's guest list.
type CalendarPerson struct {
	Email string `json:"email"`
}

// Panel is one structured-content panel attached to a meeting, keyed by the
// template it was generated from.
type Panel struct {
	ID         string            `json:"id"`
	TemplateID string            `json:"template_id"`
	Title      string            `json:"title"`
	Sections   map[string]string `json:"sections,omitempty"`
}

// Segment is one ordered speech segment of a meeting transcript.
// Start and End are offsets in seconds from the beginning of the recording.
type Segment struct {
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// MeetingPayload is the normalized, sink-agnostic representation of one
// processed meeting. MeetingID and ProcessedAt are always set; Template
// fields default to empty strings so sinks never branch on optionality.
type MeetingPayload struct {
	MeetingID       string           `json:"meetingId"`
	Title           string           `json:"title"`
	Date            string           `json:"date"`
	Participants    []Participant    `json:"participants"`
	Organization    OrganizationInfo `json:"organization"`
	Template        TemplateContent  `json:"joshTemplate"`
	Transcript      *Transcript      `json:"transcript,omitempty"`
	DurationMinutes *float64         `json:"durationMinutes,omitempty"`
	ProcessedAt     string           `json:"processedAt"`
}

// Participant is a normalized meeting participant.
type Participant struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	Company string `json:"company,omitempty"`
}

// Participant roles.
const (
	RoleCreator  = "creator"
	RoleAttendee = "attendee"
)

// OrganizationInfo is the detected organization for a meeting.
type OrganizationInfo struct {
	Name       string      `json:"name"`
	Confidence float64     `json:"confidence"`
	Signals    SignalFlags `json:"signals"`
}

// SignalFlags records which detection signal produced the match.
type SignalFlags struct {
	CalendarMatch bool `json:"calendarMatch"`
	TitleMatch    bool `json:"titleMatch"`
	CompanyMatch  bool `json:"companyMatch"`
}

// TemplateContent is the normalized six-section template shape. Sections the
// source panel does not carry stay empty strings, never null.
type TemplateContent struct {
	Summary       string `json:"summary"`
	KeyPoints     string `json:"keyPoints"`
	Decisions     string `json:"decisions"`
	ActionItems   string `json:"actionItems"`
	OpenQuestions string `json:"openQuestions"`
	Notes         string `json:"notes"`
}

// Transcript is the delivered transcript artifact.
type Transcript struct {
	Segments []Segment `json:"segments"`
}

// WithoutTranscript returns a shallow copy of the payload with the transcript
// removed. Sinks configured without transcript delivery use this to keep
// request bodies small; the derived duration is kept.
func (p *MeetingPayload) WithoutTranscript() *MeetingPayload {
	cp := *p
	cp.Transcript = nil
	return &cp
}
