package vouch

import (
	"path/filepath"
	"strings"

	"vouchbank/core/types"
)

// Candidate is the validator's view of an inbound action. Upstream mention
// resolution is not reliable, so three role signals arrive separately and are
// checked in order; the redundancy is intentional.
type Candidate struct {
	EvidencePresent bool

	// MentionedRoles are role names the platform resolved as structured
	// mentions.
	MentionedRoles []string

	// MentionedUserRoles are the role names held by any mentioned user,
	// flattened.
	MentionedUserRoles []string

	// Text is the raw message body, scanned for textual @role tokens the
	// platform failed to resolve.
	Text string
}

// Result is the validator's verdict. MatchedRole keeps the casing of
// whichever side supplied the winning name.
type Result struct {
	Qualifies   bool
	MatchedRole string
}

// Validate decides whether a candidate action qualifies for a vouch. Rules
// run in order, first match wins:
//
//  1. evidence must be present, otherwise nothing else matters;
//  2. a structured role mention matching a valid role;
//  3. a textual @role token in the body matching a valid role;
//  4. a role held by a mentioned user matching a valid role.
//
// All role comparison is case-insensitive.
func Validate(c Candidate, validRoles []string) Result {
	if !c.EvidencePresent {
		return Result{}
	}

	for _, mentioned := range c.MentionedRoles {
		for _, valid := range validRoles {
			if types.SameName(mentioned, valid) {
				return Result{Qualifies: true, MatchedRole: types.CleanName(mentioned)}
			}
		}
	}

	folded := types.FoldName(c.Text)
	for _, valid := range validRoles {
		if token := "@" + types.FoldName(valid); strings.Contains(folded, token) {
			return Result{Qualifies: true, MatchedRole: types.CleanName(valid)}
		}
	}

	for _, held := range c.MentionedUserRoles {
		for _, valid := range validRoles {
			if types.SameName(held, valid) {
				return Result{Qualifies: true, MatchedRole: types.CleanName(held)}
			}
		}
	}

	return Result{}
}

// imageExtensions is the attachment allowlist that counts as vouch evidence.
var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".webp": {},
}

// HasImageEvidence reports whether any attachment filename carries an image
// extension.
func HasImageEvidence(filenames []string) bool {
	for _, name := range filenames {
		ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
		if _, ok := imageExtensions[ext]; ok {
			return true
		}
	}
	return false
}
