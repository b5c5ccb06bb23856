package credential

import "fmt"

// User-facing texts for credential outcomes. Provider error payloads never
// reach users; only these messages do.
const (
	MsgAuthorizationRequired = "Please authorize access first by opening this link: %s"
	MsgReauthorize           = "Your authorization is no longer valid. Please authorize again."
	MsgTryAgainLater         = "Something went wrong talking to the provider. Please try again later."
	MsgAlreadyAuthorized     = "You are already authorized."
	MsgRevoked               = "Your authorization has been removed."
)

// UserMessage maps an error from the credential lifecycle to the text shown
// to an end user.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindExchangeFailed, KindRefreshRejected:
		return MsgReauthorize
	default:
		return MsgTryAgainLater
	}
}

// AuthorizeMessage renders the user-facing text for an AuthorizeResult.
func AuthorizeMessage(res AuthorizeResult) string {
	if res.AlreadyAuthorized {
		return MsgAlreadyAuthorized
	}
	return fmt.Sprintf(MsgAuthorizationRequired, res.AuthURL)
}
