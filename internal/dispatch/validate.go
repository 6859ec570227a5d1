package dispatch

import (
	"strings"

	"github.com/BTreeMap/ShopAssist/internal/lang"
	"github.com/BTreeMap/ShopAssist/internal/models"
)

// ValidateOrderIdentity returns the trimmed order identity carried by params
// and whether both the order number and email are present.
func ValidateOrderIdentity(params models.Parameters) (models.OrderIdentity, bool) {
	id := models.IdentityOf(params)
	id.OrderNumber = strings.TrimSpace(id.OrderNumber)
	id.Email = strings.TrimSpace(id.Email)
	return id, id.Complete()
}

// CredentialMessage maps a typed lookup failure to its reply. Unknown codes
// get the generic error text.
func CredentialMessage(code models.OrderErrorCode, language models.Language) string {
	switch code {
	case models.OrderErrorInvalidOrderNumber:
		return lang.InvalidOrderNumber.For(language)
	case models.OrderErrorEmailMismatch:
		return lang.EmailMismatch.For(language)
	default:
		return lang.GenericError.For(language)
	}
}
