package agent

import (
	"strings"
)

// emergencyKeywords triggers the safety escalation path. The list tracks
// the clinical safety review; additions go through that review, not code
// review alone.
var emergencyKeywords = []string{
	"chest pain",
	"difficulty breathing",
	"severe bleeding",
	"unconscious",
	"heart attack",
	"stroke",
	"seizure",
	"severe allergic reaction",
	"suicidal thoughts",
	"overdose",
	"can't breathe",
	"choking",
	"severe headache",
	"loss of consciousness",
	"severe abdominal pain",
	"severe burns",
	"poisoning",
	"drug overdose",
	"suicide",
	"kill myself",
}

const (
	patientDisclaimer = "This information is for educational purposes only and is not a substitute " +
		"for professional medical advice, diagnosis, or treatment. Always consult a qualified " +
		"healthcare provider about your specific situation."

	clinicianDisclaimer = "Decision-support output. Verify against primary literature and apply " +
		"clinical judgment before acting on any recommendation."

	emergencyNotice = "Your message mentions symptoms that can indicate a medical emergency. " +
		"If you or someone near you is in danger, call your local emergency number now."
)

// DetectEmergency reports whether the query contains any emergency keyword.
func DetectEmergency(query string) (bool, []string) {
	lowered := strings.ToLower(query)
	var hits []string
	for _, kw := range emergencyKeywords {
		if strings.Contains(lowered, kw) {
			hits = append(hits, kw)
		}
	}
	return len(hits) > 0, hits
}

// disclaimerFor picks the patient-facing text unless the profile marks the
// caller as a clinician.
func disclaimerFor(profile *UserProfile) string {
	if profile != nil && strings.EqualFold(profile.Role, "clinician") {
		return clinicianDisclaimer
	}
	return patientDisclaimer
}

func followUpQuestions(emergency bool) []string {
	if emergency {
		return []string{
			"Are you or the affected person safe right now?",
			"Has emergency care already been contacted?",
		}
	}
	return []string{
		"How long have the symptoms been present?",
		"Are you currently taking any medication for this?",
		"Have you discussed this with a healthcare provider before?",
	}
}

// Consult assembles the structured consultation reply around an answer
// produced by the chat engine.
func (s *Service) Consult(req ConsultationRequest, answer ChatResponse) ConsultationResponse {
	emergency, _ := DetectEmergency(req.Query)

	var profile *UserProfile
	if req.Context != nil {
		profile = req.Context.UserProfile
	}

	text := answer.Response
	if emergency {
		text = emergencyNotice + "\n\n" + text
	}

	confidence := 0.5
	if len(answer.Sources) > 0 {
		confidence = 0.6 + 0.08*float64(len(answer.Sources))
		if confidence > 0.92 {
			confidence = 0.92
		}
	}

	action := "review_information"
	if emergency {
		action = "seek_emergency_care"
	} else if profile == nil || profile.Role == "" {
		action = "consult_healthcare_provider"
	}

	agentID := req.PreferredAgent
	if agentID == "" {
		agentID = AgentTxAgent
	}

	return ConsultationResponse{
		Response: ConsultationAnswer{
			Text:            text,
			Sources:         answer.Sources,
			ConfidenceScore: confidence,
		},
		Safety: ConsultationSafety{
			EmergencyDetected:     emergency,
			Disclaimer:            disclaimerFor(profile),
			UrgentCareRecommended: emergency,
		},
		Recommendations: ConsultationRecommendations{
			SuggestedAction:   action,
			FollowUpQuestions: followUpQuestions(emergency),
		},
		SessionID: req.SessionID,
		AgentID:   agentID,
	}
}
