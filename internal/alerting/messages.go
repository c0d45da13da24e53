package alerting

import "fmt"

// Timeline message templates. These are the texts that show up in incident
// timeline alerts, not the spoken prompts.

func msgMessageLeftDirect(team string) string {
	return fmt.Sprintf("Twilio: message left for the %s team", team)
}

func msgMessageLeftAfter(team string, noCall bool) string {
	if noCall {
		return "Twilio: New Voicemail"
	}
	return fmt.Sprintf("Twilio: unable to reach on-call for the %s team", team)
}

func msgTranscription(text, log string) string {
	return fmt.Sprintf("Transcribed message from Twilio:\n%s%s", text, log)
}

func msgTranscriptionFail(log string) string {
	return fmt.Sprintf("Twilio was unable to transcribe message.%s", log)
}

func msgCallAnswered(user, caller, log string) string {
	return fmt.Sprintf("%s answered a call from %s.%s", user, caller, log)
}

func msgCallCompleted(user, caller, log string) string {
	return fmt.Sprintf("%s answered a call from %s. %s", user, caller, log)
}

func msgCallNotAnswered(caller string) string {
	return fmt.Sprintf("Missed call from %s.", caller)
}
