package crisis

import "regexp"

// Score weights. Keyword tiers carry their own weight; these cover the
// contextual and pattern checks.
const (
	lateNightWeight    = 0.5
	isolationWeight    = 1.0
	hopelessnessWeight = 1.5
	methodWeight       = 2.5
	firstPersonWeight  = 2.0
	finalityWeight     = 2.5
	burdenWeight       = 1.5
	questionWeight     = 1.0
)

// tier is one severity bucket of the keyword lexicon. multiplier is the
// floor a match in this tier imposes on the severity multiplier; 1.0 means
// no effect.
type tier struct {
	name       string
	weight     float64
	multiplier float64
	keywords   []string
}

// severityTiers holds the bilingual keyword lexicon, highest severity first.
// Every tier is always evaluated; a message matching several tiers collects
// all of their weights, and the same phrase may be counted once per tier it
// appears in.
var severityTiers = []tier{
	{
		name:       "immediate_crisis",
		weight:     3.0,
		multiplier: 2.0,
		keywords:   []string{"suicide", "kill myself", "end it all", "kujiua", "ninataka kufa"},
	},
	{
		name:       "high_risk",
		weight:     2.0,
		multiplier: 1.5,
		keywords:   []string{"harm myself", "cut myself", "overdose", "kujikatia", "sijaweza tena"},
	},
	{
		name:       "moderate_risk",
		weight:     1.0,
		multiplier: 1.0,
		keywords:   []string{"hopeless", "worthless", "no point", "hakuna maana", "sina maana"},
	},
	{
		name:       "low_risk",
		weight:     0.5,
		multiplier: 1.0,
		keywords:   []string{"sad", "tired", "stressed", "huzuni", "uchovu"},
	},
}

var isolationPhrases = []string{
	"nobody cares", "no one understands", "all alone", "hakuna mtu",
	"peke yangu", "sina mtu", "nobody loves me",
}

var hopelessnessPhrases = []string{
	"nothing will change", "no hope", "can't get better", "hakuna tumaini",
	"haitabadilika", "no way out", "trapped",
}

var methodPhrases = []string{
	"have a plan", "know how", "pills", "rope", "bridge", "knife",
	"mpango", "njia", "dawa", "kisu",
}

// First person + negative action patterns.
var firstPersonPatterns = compilePatterns(
	`i (want to|will|am going to|plan to) (die|kill|hurt|end)`,
	`mimi (nataka|nitafanya|nina mpango wa) (kufa|kujiua|kujikatia)`,
	`i (can't|cannot|won't) (go on|continue|live|take it)`,
	`(sijui|siwezi|sitaweza) (kuendelea|kuishi|kuvumilia)`,
)

// Finality patterns.
var finalityPatterns = compilePatterns(
	`(this is|it's|hii ni) (the end|over|goodbye|mwisho|aya)`,
	`(tell everyone|waambie wote|say goodbye|waga)`,
	`(final|last|mwisho) (time|message|ujumbe)`,
)

// Burden/relief patterns.
var burdenPatterns = compilePatterns(
	`(everyone|wote) (would be|better|bora) (without me|bila mimi)`,
	`(burden|mzigo|tatizo) (to everyone|kwa wote)`,
	`(relief|faraja|pumziko) (if i|kama)`,
)

// Question fragments that signal a cry for help. Only counted when the
// message contains a question mark.
var concerningQuestions = []string{
	"what's the point", "why bother", "should i", "una maana gani",
	"kwa nini", "je ni", "what if i",
}

func compilePatterns(exprs ...string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(exprs))
	for i, expr := range exprs {
		patterns[i] = regexp.MustCompile("(?i)" + expr)
	}
	return patterns
}
