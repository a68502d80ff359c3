package nurture

import (
	"strings"

	"github.com/jordanlanch/salespilot/pkg/domain"
)

// Render substitutes contact tokens into a step's subject or body.
// Supported tokens: {{name}}, {{first_name}}, {{company}}, {{source}}.
// Unknown tokens are left as-is.
func Render(text string, contact *domain.Contact) string {
	firstName := contact.Name
	if i := strings.IndexByte(firstName, ' '); i > 0 {
		firstName = firstName[:i]
	}

	replacer := strings.NewReplacer(
		"{{name}}", contact.Name,
		"{{first_name}}", firstName,
		"{{company}}", contact.Company,
		"{{source}}", contact.Source,
	)
	return replacer.Replace(text)
}
