package bot

import (
	"fmt"
	"html"
	"strings"

	"github.com/Belogorec/marsu-bot2/internal/model"
	"github.com/Belogorec/marsu-bot2/internal/services/registration"
)

const addressPlaceholder = "not provided"

var menuButtons = [][]Button{
	{{Label: "📊 My status", Data: ButtonStatus}, {Label: "❓ Help", Data: ButtonHelp}},
}

func registeredReply() *Reply {
	return &Reply{
		Text: "<b>You are registered in the airdrop!</b>\n" +
			fmt.Sprintf("Now send your Solana payout address. It can be submitted only once. (%d-%d base58 characters)",
				model.PayoutAddressMinLength, model.PayoutAddressMaxLength),
		Buttons: menuButtons,
	}
}

func (d *Dispatcher) ineligibleReply() *Reply {
	channel := html.EscapeString(d.channel)
	reply := &Reply{
		Text: fmt.Sprintf("Please subscribe to %s first, then press \"Check again\" or send /start.", channel),
	}
	row := []Button{}
	if link := channelLink(d.channel); link != "" {
		row = append(row, Button{Label: "📢 Open channel", URL: link})
	}
	row = append(row, Button{Label: "🔄 Check again", Data: ButtonCheckSubscription})
	reply.Buttons = [][]Button{row}
	return reply
}

func (d *Dispatcher) statusReply(report *registration.StatusReport, heading string) *Reply {
	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")

	address := addressPlaceholder
	if report.Participant.HasPayoutAddress() {
		address = "<code>" + html.EscapeString(report.Participant.PayoutAddress) + "</code>"
	}
	fmt.Fprintf(&b, "Payout address: %s\n", address)
	fmt.Fprintf(&b, "Invited friends: %d", report.Referrals)

	if link := d.inviteLink(report.Participant.ID); link != "" {
		fmt.Fprintf(&b, "\nYour invite link: %s", html.EscapeString(link))
	}
	if !report.Participant.HasPayoutAddress() {
		b.WriteString("\n\nSend your payout address to complete registration.")
	}
	return &Reply{Text: b.String(), Buttons: menuButtons}
}

func notRegisteredReply() *Reply {
	return &Reply{Text: "You are not participating yet. Send /start to register."}
}

func addressSavedReply(p *model.Participant) *Reply {
	return &Reply{
		Text:    "✅ Payout address saved: <code>" + html.EscapeString(p.PayoutAddress) + "</code>\nThank you for participating!",
		Buttons: menuButtons,
	}
}

func alreadySubmittedReply(p *model.Participant) *Reply {
	text := "Your payout address was already saved and cannot be changed."
	if p != nil && p.HasPayoutAddress() {
		text += "\nSaved address: <code>" + html.EscapeString(p.PayoutAddress) + "</code>"
	}
	return &Reply{Text: text, Buttons: menuButtons}
}

func invalidAddressReply() *Reply {
	return &Reply{
		Text: fmt.Sprintf(
			"That does not look like a Solana address. It must be %d-%d base58 characters (no 0, O, I or l).",
			model.PayoutAddressMinLength, model.PayoutAddressMaxLength,
		),
	}
}

func accessDeniedReply() *Reply {
	return &Reply{Text: "⛔ Access denied."}
}

func summaryReply(summary *model.Summary) *Reply {
	return &Reply{Text: fmt.Sprintf(
		"<b>Airdrop summary</b>\nParticipants: %d\nWith payout address: %d\nWithout payout address: %d\nReferred: %d",
		summary.Participants, summary.WithAddress, summary.WithoutAddress, summary.Referred,
	)}
}

func (d *Dispatcher) helpReply() *Reply {
	return &Reply{
		Text: "<b>How to take part</b>\n" +
			"1. Subscribe to " + html.EscapeString(d.channel) + "\n" +
			"2. Send /start to register\n" +
			"3. Send your Solana payout address (once)\n\n" +
			"/status shows your registration and invited friends.",
		Buttons: menuButtons,
	}
}

func failureReply() *Reply {
	return &Reply{Text: "Something went wrong. Please try again later."}
}

// inviteLink builds the personal deep link, empty when the bot name is unknown
func (d *Dispatcher) inviteLink(id model.ParticipantID) string {
	if d.botUsername == "" {
		return ""
	}
	return fmt.Sprintf("https://t.me/%s?start=%s", d.botUsername, model.ReferralToken(id))
}

// channelLink turns an @handle into a public link; numeric chat ids have none
func channelLink(channel string) string {
	handle := strings.TrimPrefix(strings.TrimSpace(channel), "@")
	if handle == "" || strings.HasPrefix(handle, "-") || channel == handle {
		return ""
	}
	return "https://t.me/" + handle
}
