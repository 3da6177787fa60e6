package question

import "strings"

// IntakeScreen decides the initial status of a new submission: approved
// goes straight into the live pool, pending waits for a moderator.
type IntakeScreen interface {
	Screen(text string) Status
}

// approveAll is the default screen when none is configured.
type approveAll struct{}

func (approveAll) Screen(string) Status { return StatusApproved }

// TermScreen holds submissions that mention any configured term for manual
// review. Matching is a case-insensitive substring check; the term list is
// operator-curated, so no stemming or tokenization is attempted.
type TermScreen struct {
	terms []string
}

// NewTermScreen builds a screen over the given term list. Empty terms are
// dropped; an empty list approves everything.
func NewTermScreen(terms []string) *TermScreen {
	s := &TermScreen{}
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			s.terms = append(s.terms, term)
		}
	}
	return s
}

// Screen returns pending when the text contains a held term.
func (s *TermScreen) Screen(text string) Status {
	lower := strings.ToLower(text)
	for _, term := range s.terms {
		if strings.Contains(lower, term) {
			return StatusPending
		}
	}
	return StatusApproved
}
