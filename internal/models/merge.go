package models

import (
	"sort"
	"time"
)

// ChooseCanonical picks the surviving record of a merge: the user with more history wins,
// then the earlier-created one, then the lower id.
func ChooseCanonical(a *User, aHistory int, b *User, bHistory int) (target, loser *User) {
	switch {
	case aHistory != bHistory:
		if aHistory > bHistory {
			return a, b
		}
		return b, a
	case !a.CreatedAt.Equal(b.CreatedAt):
		if a.CreatedAt.Before(b.CreatedAt) {
			return a, b
		}
		return b, a
	case a.ID.String() <= b.ID.String():
		return a, b
	default:
		return b, a
	}
}

// MergeUsers folds loser into target and returns a new snapshot carrying target's id.
// Neither input is modified. Merging the same loser twice yields the same result as once.
func MergeUsers(target, loser *User) *User {
	merged := target.Clone()
	if loser == nil || loser.ID == target.ID {
		return merged
	}

	for _, s := range loser.Sessions {
		merged.AddIdentifier(Identifier{Kind: IdentifierSession, Value: s})
	}
	if merged.CookieID == "" {
		merged.CookieID = loser.CookieID
	}
	if merged.DeviceID == "" {
		merged.DeviceID = loser.DeviceID
	}
	merged.Contact = ContactInfo{
		Name:  mergeContactField(target.Contact.Name, loser.Contact.Name),
		Email: mergeContactField(target.Contact.Email, loser.Contact.Email),
		Phone: mergeContactField(target.Contact.Phone, loser.Contact.Phone),
	}

	merged.Conversation = mergeConversation(target.Conversation, loser.Conversation)
	merged.Document = latestDocument(target.Document, loser.Document)
	merged.Documents = mergeDocumentRefs(target.Documents, loser.Documents)
	merged.PaymentHistory = mergePaymentHistory(target.PaymentHistory, loser.PaymentHistory)
	merged.Payment = currentPayment(target.Payment, loser.Payment)

	if merged.Summary == "" {
		merged.Summary = loser.Summary
		merged.ShortSummary = loser.ShortSummary
	}
	merged.Outcome = mergeOutcome(target.Outcome, loser.Outcome)

	if loser.CreatedAt.Before(merged.CreatedAt) {
		merged.CreatedAt = loser.CreatedAt
	}
	if loser.LastActive.After(merged.LastActive) {
		merged.LastActive = loser.LastActive
	}
	merged.Provisional = !merged.Identifiers().HasAuthoritative()
	return merged
}

func mergeContactField(a, b ContactField) ContactField {
	switch {
	case a.Empty():
		return b
	case b.Empty():
		return a
	case b.Verified && !a.Verified:
		return b
	default:
		return a
	}
}

type messageKey struct {
	role    Role
	at      int64
	content string
}

func mergeConversation(a, b []Message) []Message {
	out := make([]Message, 0, len(a)+len(b))
	seen := make(map[messageKey]struct{}, len(a)+len(b))
	for _, src := range [][]Message{a, b} {
		for _, m := range src {
			key := messageKey{role: m.Role, at: m.Timestamp.UnixNano(), content: m.Content}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, m.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func documentActivity(d *DocumentRecord) time.Time {
	if d.UploadedAt != nil {
		return *d.UploadedAt
	}
	return d.RequestedAt
}

func latestDocument(a, b *DocumentRecord) *DocumentRecord {
	var pick *DocumentRecord
	switch {
	case a == nil:
		pick = b
	case b == nil:
		pick = a
	case documentActivity(b).After(documentActivity(a)):
		pick = b
	default:
		pick = a
	}
	if pick == nil {
		return nil
	}
	d := *pick
	return &d
}

func mergeDocumentRefs(a, b []DocumentRef) []DocumentRef {
	out := append([]DocumentRef(nil), a...)
	for _, ref := range b {
		found := false
		for _, existing := range out {
			if existing.DocumentID == ref.DocumentID {
				found = true
				break
			}
		}
		if !found {
			out = append(out, ref)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UploadedAt.Before(out[j].UploadedAt)
	})
	return out
}

func mergePaymentHistory(a, b []PaymentRecord) []PaymentRecord {
	out := append([]PaymentRecord(nil), a...)
	for _, p := range b {
		idx := -1
		for i := range out {
			if out[i].ID == p.ID {
				idx = i
				break
			}
		}
		switch {
		case idx < 0:
			out = append(out, p)
		case p.Completed() && !out[idx].Completed():
			out[idx] = p
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func currentPayment(a, b *PaymentRecord) *PaymentRecord {
	var pick *PaymentRecord
	switch {
	case a == nil:
		pick = b
	case b == nil:
		pick = a
	case a.Completed() != b.Completed():
		if a.Completed() {
			pick = a
		} else {
			pick = b
		}
	case b.CreatedAt.After(a.CreatedAt):
		pick = b
	default:
		pick = a
	}
	if pick == nil {
		return nil
	}
	p := *pick
	return &p
}

func mergeOutcome(a, b *CaseOutcome) *CaseOutcome {
	var pick *CaseOutcome
	switch {
	case a == nil:
		pick = b
	case b == nil:
		pick = a
	case b.IsWin && !a.IsWin:
		pick = b
	default:
		pick = a
	}
	if pick == nil {
		return nil
	}
	o := *pick
	return &o
}
