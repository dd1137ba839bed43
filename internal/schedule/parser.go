// Package schedule extracts appointments from Practice Fusion
// "Schedule Confirmation view" PDF exports. The PDF has no table
// structure worth trusting, so parsing is line-oriented: find the column
// header, then greedily group each appointment row with its continuation
// lines (phone, date of birth, confirmation audit notes).
package schedule

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/confirmline/confirmline/internal/appointment"
	"github.com/confirmline/confirmline/pkg/logging"
)

// requiredColumns must all appear (case-insensitive) on a line for it to
// count as the schedule table header.
var requiredColumns = []string{"PATIENT", "TIME", "PROVIDER", "TYPE", "CONFIRMATION"}

// knownProviders anchors both appointment-start detection and provider
// extraction. Names outside this list fall back to "Unknown".
var knownProviders = []string{"Victor Prisk", "Elizabeth Headlee"}

// knownTypes is checked in order; first match wins.
var knownTypes = []string{
	"Surgery", "New Patient", "Follow-Up Visit", "Established Patient",
	"WC/Auto Follow Up", "Video Visit", "Wellness Exam",
}

var (
	timeRe       = regexp.MustCompile(`(?i)(\d{1,2}:\d{2}\s*[AP]M)`)
	phoneRe      = regexp.MustCompile(`\((\d{3})\)\s*(\d{3})-(\d{4})`)
	dobRe        = regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)
	confirmRe    = regexp.MustCompile(`(?i)(Not confirmed|Confirmed)`)
	auditNoteRe  = regexp.MustCompile(`(?i)(Phone|Email):\s*(Automated|Manual)`)
	timestampRe  = regexp.MustCompile(`(?i)\d{2}/\d{2}/\d{4}\s*-\s*\d{1,2}:\d{2}\s*[AP]M`)
	dateHeaderRe = regexp.MustCompile(`Schedule Confirmation view - (.+)`)
	nameBeforeRe = regexp.MustCompile(`^([A-Za-z\s\.\-']+?)(?:\s+\d{1,2}:\d{2}|\s+\()`)
	nameLooseRe  = regexp.MustCompile(`^([A-Za-z\s\.\-']+)`)
	spacesRe     = regexp.MustCompile(`\s+`)
)

// Parser turns schedule PDFs into appointments. Only rows whose
// confirmation column reads "Not confirmed" are returned; everything
// else needs no call.
type Parser struct {
	logger *logging.Logger
}

func NewParser(logger *logging.Logger) *Parser {
	if logger == nil {
		logger = logging.Default()
	}
	return &Parser{logger: logger.With("component", "schedule")}
}

// ParseFile extracts the unconfirmed appointments from the PDF at path.
func (p *Parser) ParseFile(path string) ([]*appointment.Appointment, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schedule PDF: %w", err)
	}
	defer f.Close()

	var lines []string
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", pageIndex, err)
		}
		for _, row := range rows {
			var b strings.Builder
			for _, word := range row.Content {
				b.WriteString(word.S)
			}
			lines = append(lines, b.String())
		}
		// Page boundary doubles as an appointment-block boundary.
		lines = append(lines, "")
	}

	return p.ParseLines(lines), nil
}

// ParseLines runs the line-oriented extraction over already-split text.
// Split out from ParseFile so the heuristics are testable without PDF
// fixtures.
func (p *Parser) ParseLines(lines []string) []*appointment.Appointment {
	date := extractDate(lines)
	if date == "" {
		p.logger.Warn("no schedule date found in header")
	}

	var appointments []*appointment.Appointment

	headerIdx := -1
	for i, line := range lines {
		if isHeaderLine(line) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		p.logger.Warn("no schedule table header found", "lines", len(lines))
		return appointments
	}

	i := headerIdx + 1
	for i < len(lines) {
		line := lines[i]

		if strings.TrimSpace(line) == "" || strings.TrimSpace(line) == "NOTES" || strings.Contains(line, "https://") {
			i++
			continue
		}

		if !couldBeAppointmentStart(line) {
			i++
			continue
		}

		block := []string{line}
		j := i + 1
		for j < len(lines) {
			next := lines[j]
			if strings.TrimSpace(next) == "" || strings.Contains(next, "https://") {
				break
			}
			if couldBeAppointmentStart(next) && hasTime(next) {
				break
			}
			if !isContinuationLine(next) {
				break
			}
			block = append(block, next)
			j++
		}

		if apt := parseBlock(block); apt != nil {
			apt.AppointmentDate = date
			if strings.EqualFold(apt.OriginalConfirmation, "not confirmed") {
				p.logger.Info("found unconfirmed appointment",
					"patient", apt.PatientName, "time", apt.AppointmentTime)
				appointments = append(appointments, apt)
			}
		}

		i = j
	}

	return appointments
}

// extractDate pulls the schedule date ("Monday, August, 11, 2025") from
// the first few lines of the document header.
func extractDate(lines []string) string {
	limit := len(lines)
	if limit > 3 {
		limit = 3
	}
	for _, line := range lines[:limit] {
		if m := dateHeaderRe.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func isHeaderLine(line string) bool {
	upper := strings.ToUpper(line)
	for _, col := range requiredColumns {
		if !strings.Contains(upper, col) {
			return false
		}
	}
	return true
}

func hasTime(line string) bool {
	return timeRe.MatchString(line)
}

func couldBeAppointmentStart(line string) bool {
	if hasTime(line) {
		return true
	}
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	first := trimmed[0]
	startsWithLetter := (first >= 'A' && first <= 'Z') || (first >= 'a' && first <= 'z')
	if !startsWithLetter {
		return false
	}
	return hasProvider(line) || len(line) > 20
}

func hasProvider(line string) bool {
	for _, provider := range knownProviders {
		if strings.Contains(line, provider) {
			return true
		}
	}
	return false
}

// isContinuationLine recognizes the wrapped remainder of an appointment
// row: a phone number, a date of birth, or the confirmation audit trail.
func isContinuationLine(line string) bool {
	return phoneRe.MatchString(line) ||
		dobRe.MatchString(line) ||
		auditNoteRe.MatchString(line) ||
		timestampRe.MatchString(line)
}

// parseBlock assembles one appointment from its grouped lines. Time and
// phone are the two hard requirements; everything else degrades to a
// sensible default.
func parseBlock(lines []string) *appointment.Appointment {
	fullText := strings.Join(lines, " ")

	timeMatch := timeRe.FindStringSubmatch(fullText)
	if timeMatch == nil {
		return nil
	}
	apptTime := timeMatch[1]

	phoneMatch := phoneRe.FindStringSubmatch(fullText)
	if phoneMatch == nil {
		return nil
	}
	phone := fmt.Sprintf("(%s) %s-%s", phoneMatch[1], phoneMatch[2], phoneMatch[3])

	confirmation := "Not confirmed"
	if m := confirmRe.FindStringSubmatch(fullText); m != nil {
		confirmation = m[1]
	}

	provider := "Unknown"
	for _, candidate := range knownProviders {
		if strings.Contains(fullText, candidate) {
			provider = candidate
			break
		}
	}

	apptType := "Unknown"
	lowerText := strings.ToLower(fullText)
	for _, candidate := range knownTypes {
		if strings.Contains(lowerText, strings.ToLower(candidate)) {
			apptType = candidate
			break
		}
	}

	name := extractPatientName(lines[0], apptTime)
	if name == "" {
		return nil
	}

	return appointment.New(name, phone, apptTime, provider, apptType, confirmation)
}

// extractPatientName takes everything on the first line before the time
// column; when the time wrapped to a later line it falls back to the
// leading run of name-ish characters.
func extractPatientName(firstLine, apptTime string) string {
	var name string
	if pos := strings.Index(firstLine, apptTime); pos > 0 {
		name = firstLine[:pos]
	} else if m := nameBeforeRe.FindStringSubmatch(firstLine); m != nil {
		name = m[1]
	} else if m := nameLooseRe.FindStringSubmatch(firstLine); m != nil {
		name = m[1]
	}

	name = spacesRe.ReplaceAllString(name, " ")
	name = strings.ReplaceAll(name, "NOTES", "")
	return strings.TrimSpace(name)
}
