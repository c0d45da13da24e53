package callflow

import "fmt"

// Spoken prompt catalog. Message text changes here change what callers hear;
// the timeline alert texts live in the alerting package.
const (
	msgMissingConfig    = "There is a missing configuration value. Please contact your administrator to fix the problem."
	msgGreeting         = "Welcome to Splunk Lyve Call Routing."
	msgMenu             = "Please press 1 to reach an on-call representative or press 2 to leave a message."
	msgNoVMMenu         = "Please press 1 to reach an on-call representative or press 2 to request a callback from the team."
	msgZeroToRepeat     = "Press zero to repeat this menu."
	msgNoResponse       = "We did not receive a response."
	msgInvalidResponse  = "We did not receive a valid response."
	msgGoodbye          = "Goodbye."
	msgNoTeamsError     = "There was an error retrieving the list of teams for your organization."
	msgDisconnect       = "The other party has disconnected."
	msgTranscribeNotice = "Twilio will attempt to transcribe your message and create an incident in Splunk On-Call."
	msgPressKey         = "This is Splunk Lyve Call Routing. Press any number to connect."
	msgPhoneNumbersErr  = "There was an error retrieving the on-call phone numbers. Please try again."
	msgProcessingErr    = "There was an error processing your call. Please try again."
	msgNextOnCall       = "Trying next on-call representative."
	msgConnected        = "You are now connected."
)

func msgNoAnswer(noCall bool) string {
	if noCall {
		return ""
	}
	return "We were unable to reach an on-call representative."
}

func msgVoicemail(team string) string {
	return fmt.Sprintf("Please leave a message for the %s team and hang up when you are finished.", team)
}

func msgNoVoicemail(team string) string {
	return fmt.Sprintf("We are creating an incident for the %s team. Someone will call you back shortly.", team)
}

func msgConnecting(team string, noCall bool) string {
	if noCall {
		return ""
	}
	return fmt.Sprintf("We are connecting you to the representative on-call for the %s team - Please hold.", team)
}

func msgNoTeam(team string) string {
	return fmt.Sprintf("Team %s does not exist. Please contact your administrator to fix the problem.", team)
}
