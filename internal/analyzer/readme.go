package analyzer

import "strings"

// readmeDoc is a navigable view of a readme: heading sections with their
// body text.
type readmeDoc struct {
	sections []readmeSection
}

type readmeSection struct {
	heading string // lower-cased heading text without markers
	body    string
}

// parseReadme splits markdown into heading-delimited sections. Content
// before the first heading lands in an unnamed section.
func parseReadme(content string) *readmeDoc {
	doc := &readmeDoc{}
	current := readmeSection{}
	var body strings.Builder

	flush := func() {
		current.body = body.String()
		doc.sections = append(doc.sections, current)
		body.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			flush()
			heading := strings.TrimLeft(trimmed, "# ")
			current = readmeSection{heading: strings.ToLower(heading)}
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	return doc
}

// HasSection reports whether any heading contains one of the given names.
func (d *readmeDoc) HasSection(names ...string) bool {
	for _, s := range d.sections {
		for _, name := range names {
			if strings.Contains(s.heading, name) {
				return true
			}
		}
	}
	return false
}

// MentionsAnywhere reports whether any section body mentions the term.
func (d *readmeDoc) MentionsAnywhere(term string) bool {
	term = strings.ToLower(term)
	for _, s := range d.sections {
		if strings.Contains(strings.ToLower(s.body), term) {
			return true
		}
	}
	return false
}
