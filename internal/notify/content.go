package notify

import (
	"fmt"

	"octobayNotifier/internal/model"
)

const (
	appHost    = "octobay.uber.space"
	appURL     = "https://" + appHost
	appTwitter = "@OctoBayApp"
)

// Subject returns the mail subject for a transfer.
func Subject(t model.Transfer) string {
	return fmt.Sprintf("OctoBay: You received %s ETH.", t.Amount)
}

// MailFields returns the template fields for a transfer, varying on whether
// the recipient still has to register.
func MailFields(t model.Transfer) TemplateFields {
	fields := TemplateFields{
		Title:    Subject(t),
		Headline: fmt.Sprintf("You received %s ETH.", t.Amount),
	}

	if t.IsUnregisteredDeposit() {
		fields.PreviewText = fmt.Sprintf("Visit %s to register and withdraw.", appHost)
		fields.Text = fmt.Sprintf("<h3>Welcome to OctoBay!</h3>"+
			"OctoBay is an Ethereum payment service for GitHub and you just received %s ETH from this address:<br>%s<br><br>"+
			"You need to connect an Ethereum address with your GitHub account before you can withdraw the deposit. "+
			"Future transfers via OctoBay will then arrive directly in your wallet.<br>"+
			"<b>Note: As long as you did not withdraw this deposit, the sender can take it back at any time.</b>",
			t.Amount, t.Sender)
		return fields
	}

	fields.PreviewText = "Check your Ethereum account. The ETH should be there already."
	fields.Text = "Since you've already connected an Ethereum address with your GitHub account, " +
		"you don't need to do anything. Just check your Ethereum account for the transfer."
	return fields
}

// TweetStatus returns the public mention text for a transfer.
func TweetStatus(handle string, t model.Transfer) string {
	hint := "The amount should already be in your wallet."
	if t.IsUnregisteredDeposit() {
		hint = fmt.Sprintf("Go to %s, register and withdraw the deposit.", appURL)
	}
	return fmt.Sprintf("@%s You received %s ETH via %s. %s", handle, t.Amount, appTwitter, hint)
}
