package service

import (
	"regexp"
	"strings"

	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
)

var (
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i:my name is)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`),
		regexp.MustCompile(`(?i:\bi am|\bi'm)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`),
		regexp.MustCompile(`(?i:this is)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`),
	}
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+91[0-9]{10}|\b[6-9][0-9]{9}\b`)
)

// Words that follow "I am" without being a name.
var nameStopwords = map[string]struct{}{
	"Interested": {}, "Looking": {}, "Planning": {}, "Not": {}, "Ready": {}, "Here": {},
	"From": {}, "Trying": {}, "Sure": {}, "Done": {}, "Going": {}, "The": {},
}

// ExtractContact pulls name, email and phone out of free text. Everything it finds is unverified.
func ExtractContact(text string) models.ContactInfo {
	var info models.ContactInfo

	for _, p := range namePatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		first := strings.Fields(m[1])[0]
		if _, stop := nameStopwords[first]; stop {
			continue
		}
		info.Name = models.ContactField{Value: m[1]}
		break
	}
	if email := emailPattern.FindString(text); email != "" {
		info.Email = models.ContactField{Value: models.NormalizeEmail(email)}
	}
	if phone := phonePattern.FindString(text); phone != "" {
		info.Phone = models.ContactField{Value: models.NormalizePhone(phone)}
	}
	return info
}

// MergeContact fills c from extracted without ever replacing a verified field.
// Unverified fields are refreshed by newer extractions. It reports whether c changed.
func MergeContact(c *models.ContactInfo, extracted models.ContactInfo) bool {
	changed := false
	for _, pair := range []struct {
		dst *models.ContactField
		src models.ContactField
	}{
		{&c.Name, extracted.Name},
		{&c.Email, extracted.Email},
		{&c.Phone, extracted.Phone},
	} {
		if pair.src.Empty() || pair.dst.Verified || pair.dst.Value == pair.src.Value {
			continue
		}
		*pair.dst = pair.src
		changed = true
	}
	return changed
}
