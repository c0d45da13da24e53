package callflow

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ehharris/twilio-live-call-routing/internal/alerting"
	"github.com/ehharris/twilio-live-call-routing/internal/mailer"
	"github.com/ehharris/twilio-live-call-routing/internal/protocol"
	"github.com/ehharris/twilio-live-call-routing/internal/session"
	"github.com/ehharris/twilio-live-call-routing/internal/twiml"
)

// alertPost computes the incident-alert transition for a concluded leg and
// posts it. A failed post is logged and swallowed, never retried: a retry
// risks a duplicate incident with no correlation key to deduplicate on.
func (m *Machine) alertPost(ctx context.Context, ev protocol.Event, st session.State) (*twiml.Response, error) {
	if ev.TranscriptionStatus != "" {
		outcome := "completed"
		if ev.TranscriptionStatus == protocol.TranscriptionFailed {
			outcome = "failed"
		}
		m.metrics.Transcriptions.WithLabelValues(outcome).Inc()
	}

	decision := alerting.Decide(ev, st, alerting.Options{
		NoVoicemail: m.cfg.NoVoicemail,
		NoCall:      m.cfg.NoCall,
	})
	if !decision.Post {
		// Intermediate leg; nothing terminal happened yet.
		return twiml.New(), nil
	}

	team, _ := st.Team0()
	if err := m.alerts.Post(ctx, decision.Alert, team.Slug); err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"team":         team.Slug,
			"message_type": decision.Alert.MessageType,
		}).Error("alert post failed")
		m.metrics.AlertPosts.WithLabelValues(string(decision.Alert.MessageType), "error").Inc()
		return twiml.New(), nil
	}
	m.metrics.AlertPosts.WithLabelValues(string(decision.Alert.MessageType), "ok").Inc()

	if decision.Email != alerting.EmailNone && m.mail != nil {
		notice := mailer.VoicemailNotice{
			Caller:       ev.From,
			RecordingURL: ev.RecordingURL,
		}
		if decision.Email == alerting.EmailTranscribed {
			notice.Transcription = ev.TranscriptionText
		}
		if err := m.mail.SendVoicemailNotice(ctx, notice); err != nil {
			m.logger.WithError(err).Error("voicemail notification email failed")
		}
	}

	if decision.SpeakClosing {
		return twiml.New().Say(m.cfg.Voice, msgDisconnect+" "+msgGoodbye), nil
	}
	return twiml.New(), nil
}
