package dialogue

import (
	"fmt"

	"github.com/washdeskhq/washdesk/internal/identity"
)

const menuText = `How can I help?
1. Report a fault
2. Report damage
3. Request a quote
4. Request training
5. Office / billing inquiry

Reply with a number. Type "menu" at any point to start over.`

const identifyPrompt = `Hi! I'm the WashDesk support assistant.
To get started, please tell me your site name, or send the phone number registered with us.`

const identifyRetryPrompt = `I couldn't match that to a site on file. Please send your site name or registered phone number.
If you're not a registered customer, reply "guest".`

const guestPrompt = `No problem. Please describe your inquiry in one message and include a way to reach you (name and phone or email). Our office will get back to you.`

const guestTooShort = `Could you add a bit more detail, including a way to reach you?`

const guestThanks = `Thanks! I've passed your details to our office and someone will be in touch.`

const problemPrompt = `Please describe the fault: what's not working, and what happens when you try to use it.`

const problemTooShort = `Could you describe the fault in a bit more detail? A sentence or two helps us pinpoint it.`

const processingText = `Got it, looking into this now...`

const stillProcessingText = `Still working on it, one moment...`

const feedbackPrompt = `Did this solve the problem? (yes / no)`

const feedbackRetryPrompt = `Just to be sure I log this correctly: did the steps solve the problem? (yes / no)`

const resolvedText = `Great, glad it's sorted! Type "menu" if you need anything else.`

const damagePrompt = `Sorry to hear that. Please send photos of the damage (up to 4) and a short description of what happened.`

const damageNeedText = `Photos received. Please add a short description of what happened.`

const attachmentLimitText = `I can accept up to 4 photos per report. Please pick the clearest ones and resend.`

const orderPrompt = `What would you like a quote for? Include product or part names and quantities if you know them.`

const trainingPrompt = `What would you like training on? Tell me which machine or procedure and who the training is for.`

const officePrompt = `What can our office help you with? (invoices, billing, account details...)`

const requestTooShort = `Could you add a bit more detail so I can pass this on properly?`

const trainingMaterialText = `Here's our quick-start guide to get you going: washdesk.example/guides/quick-start
Does this cover what you needed? (yes / no)`

const trainingExpandedText = `Here's the full training pack with step-by-step videos: washdesk.example/guides/full-pack
Our trainer will also reach out to schedule an on-site session.`

const trainingFeedbackRetry = `Does the guide cover what you needed? (yes / no)`

const techFollowupText = `A technician has your ticket and will contact you directly.`

const backToMenuText = `No response received, so I've returned you to the main menu.`

func greetingText(c *identity.Customer) string {
	return fmt.Sprintf("Hello %s! Good to hear from %s.", c.Name, c.Site)
}

func confirmIdentityText(c *identity.Customer) string {
	return fmt.Sprintf("Are you %s from %s? (yes / no)", c.Name, c.Site)
}

func confirmPendingText(label, pending string) string {
	return fmt.Sprintf("%s:\n%s\n\nReply \"yes\" to submit, keep typing to add detail, or \"menu\" to cancel.", label, pending)
}

func ticketAckText(ticketID string) string {
	return fmt.Sprintf("Done! Your request has been submitted as ticket %s. We'll confirm by email.", ticketID)
}

func technicianText(ticketID string) string {
	return fmt.Sprintf("I've escalated this to a technician as ticket %s. Someone will contact you shortly.", ticketID)
}

func salvagedText(ticketID string) string {
	return fmt.Sprintf("I didn't hear back, so I've submitted what you sent so far as ticket %s. Our team will follow up.", ticketID)
}
