package crisis

import "strings"

// Confidence bands. Boundaries are inclusive at the lower edge: exactly 0.8
// is immediate, exactly 0.6 is high, exactly 0.4 is moderate.
const (
	BandImmediate = "immediate"
	BandHigh      = "high"
	BandModerate  = "moderate"
	BandGeneral   = "general"
)

// Band maps a confidence value to its response band.
func Band(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return BandImmediate
	case confidence >= 0.6:
		return BandHigh
	case confidence >= 0.4:
		return BandModerate
	default:
		return BandGeneral
	}
}

// NeedsIntervention reports whether a confidence value is high enough to
// prepend the crisis template and proactively send hotline resources.
func NeedsIntervention(confidence float64) bool {
	switch Band(confidence) {
	case BandImmediate, BandHigh:
		return true
	}
	return false
}

// SelectResources returns the resource list for a confidence value. Pure
// lookup, same input always yields the same list.
func SelectResources(confidence float64) []string {
	switch Band(confidence) {
	case BandImmediate:
		return []string{
			"🆘 IMMEDIATE HELP NEEDED 🆘",
			"Kenya Red Cross Crisis Line: 1199 (24/7)",
			"Befrienders Kenya: +254 722 178 177",
			"Emergency Services: 999 or 112",
			"If you're in immediate danger, call 999",
		}
	case BandHigh:
		return []string{
			"🚨 Crisis Support Available",
			"Kenya Red Cross: 1199 (24/7 crisis line)",
			"Befrienders Kenya: +254 722 178 177",
			"Mathari Hospital Emergency: +254 20 2723841",
			"You don't have to face this alone",
		}
	case BandModerate:
		return []string{
			"💛 Support Resources",
			"Befrienders Kenya: +254 722 178 177",
			"Mental Health Kenya: mentalhealthkenya.org",
			"Kenya Association of Professional Counsellors",
			"Consider talking to a counselor or trusted person",
		}
	default:
		return []string{
			"💚 Mental Health Resources",
			"Mental Health Kenya: mentalhealthkenya.org",
			"Kenya Association of Professional Counsellors",
			"Remember: It's okay to seek help when you need it",
		}
	}
}

// SelectTemplate returns the bilingual response template for a confidence
// value. Higher bands use more urgent language and name specific hotlines.
func SelectTemplate(confidence float64, language string) string {
	sw := isSwahili(language)

	switch Band(confidence) {
	case BandImmediate:
		if sw {
			return "Nimehuzunishwa sana na unachoongea. Hii ni hali ya haraka - tafadhali " +
				"wasiliana na msaada wa haraka sasa: Kenya Red Cross 1199. " +
				"Huwezi kukabiliana na hili peke yako na msaada unapatikana."
		}
		return "I'm very concerned about what you've shared. This sounds like an emergency - " +
			"please contact immediate help now: Kenya Red Cross 1199. " +
			"You don't have to face this alone and help is available."

	case BandHigh:
		if sw {
			return "Nasikia kwamba unapitia wakati mgumu sana. Hisia zako ni za kweli. " +
				"Tafadhali jua kwamba msaada unapatikana na una thamani kubwa. " +
				"Je, unaweza kuwasiliana na Befrienders Kenya +254 722 178 177?"
		}
		return "I hear that you're going through an incredibly difficult time. Your feelings are valid. " +
			"Please know that help is available and you have immense value. " +
			"Would you consider contacting Befrienders Kenya +254 722 178 177?"

	case BandModerate:
		if sw {
			return "Nimesikia kwamba una matatizo. Ni muhimu ujue kwamba huko peke yako katika hili. " +
				"Kuongea na mtu wa kitaalamu kunaweza kusaidia. " +
				"Kuna rasilimali nyingi za msaada zinazopatikana."
		}
		return "I hear that you're struggling. It's important to know that you're not alone in this. " +
			"Talking to a professional can help. " +
			"There are many support resources available."

	default:
		if sw {
			return "Nashukuru kwa kuongea nami. Kumbuka kwamba ni sawa kutafuta msaada " +
				"unapohitaji na kuna watu wengi wanaotaka kukusaidia."
		}
		return "Thank you for sharing with me. Remember that it's okay to seek help " +
			"when you need it and there are many people who want to support you."
	}
}

func isSwahili(language string) bool {
	switch strings.ToLower(language) {
	case "sw", "swahili":
		return true
	}
	return false
}
