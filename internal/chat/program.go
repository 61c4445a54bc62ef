package chat

import "strings"

type ProgramDay string

const (
	ProgramNone ProgramDay = ""
	ProgramDay1 ProgramDay = "day1"
	ProgramDay2 ProgramDay = "day2"
	ProgramBoth ProgramDay = "both"
)

// Kinds of program answer. A day-specific program answers the turn directly; a
// two-day summary is only context for the model.
const (
	ProgramKindDay     = "program"
	ProgramKindSummary = "summary"
)

var (
	summitKeywords = []string{
		"summit",
		"digital engineering summit",
		"ades",
		"conference program",
		"summit program",
		"summit agenda",
	}
	programKeywords = []string{
		"program",
		"agenda",
		"schedule",
		"what is on",
		"what is happening",
		"line up",
		"sessions on",
		"workshop",
		"session",
	}
	recommendationKeywords = []string{
		"which ",
		"recommend",
		"should i",
		"good for me",
		"suitable",
		"best",
		"what should i attend",
	}
	day1Tokens = []string{"day 1", "day one", "monday", "24"}
	day2Tokens = []string{"day 2", "day two", "tuesday", "25"}
)

func normalizeQuery(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// LooksLikeSummitQuestion reports whether the text mentions the Summit.
func LooksLikeSummitQuestion(q string) bool {
	return containsAny(strings.ToLower(q), summitKeywords)
}

func IsRecommendation(q string) bool {
	return containsAny(normalizeQuery(q), recommendationKeywords)
}

// ClassifyProgramRequest decides which program day a schedule question is about.
// It does not decide whether the question concerns the Summit.
func ClassifyProgramRequest(q string) ProgramDay {
	q = normalizeQuery(q)
	if !containsAny(q, programKeywords) {
		return ProgramNone
	}
	// Braden McGrath's workshops all run on day 2.
	if strings.Contains(q, "braden") && strings.Contains(q, "workshop") {
		return ProgramDay2
	}
	d1 := containsAny(q, day1Tokens)
	d2 := containsAny(q, day2Tokens)
	switch {
	case d1 && !d2:
		return ProgramDay1
	case d2 && !d1:
		return ProgramDay2
	default:
		return ProgramBoth
	}
}

// ProgramAnswer returns the program text for a Summit schedule question and its
// kind, or "" when the question is not a Summit program question.
func ProgramAnswer(userText string, inSummitContext bool) (string, string) {
	day := ClassifyProgramRequest(userText)
	if day == ProgramNone {
		return "", ""
	}
	if !inSummitContext && !LooksLikeSummitQuestion(normalizeQuery(userText)) {
		return "", ""
	}
	switch day {
	case ProgramDay1:
		return day1Program, ProgramKindDay
	case ProgramDay2:
		return day2Program, ProgramKindDay
	default:
		return bothDaysProgram, ProgramKindSummary
	}
}

const day1Program = `Here is the program for Day 1 of the 2nd Australian Digital Engineering Summit (Monday 24 November 2025, National Convention Centre Canberra):

8:00 - 9:00
  Registration opens

9:00 - 10:30  Summit Opening and SESSION 1: Engineering Digital Transformation
  - Welcome to Country and Welcome to the Summit: Prof Sondoss Elsawah
  - Welcome to UNSW Canberra and Opening: Prof Emma Sparks
  - Speakers: Mr Terry Saunder, Dr Stephen Craig, Ms Kerry Lunney
  - Panel: Transformation Through Digital Engineering: How Will We Get There?
    Facilitator: Ms Rachel Hatton

10:30 - 11:00
  Morning tea and networking

11:05 - 12:30  SESSION 2: Driving Innovations Across the Digital Engineering Ecosystem
  - Speakers: Dr Barclay Brown, Mr Thomas A. McDermott, Dr Sam Davey, BRIG GEN (ret) Steve Bleymaier
  - Panel: Building the Digital Engineering Ecosystem - Prioritising Technological and Innovation Investments
    Facilitator: Mr Allan Dundas

12:30 - 13:30
  Lunch and networking

13:35 - 14:50  SESSION 3: Driving the Adoption of Digital Engineering - Recruitment, Skillsets and Career Pathways
  - Speakers: Ms Lucy Poole, Prof Sondoss Elsawah, BRIG Jennifer Harris
  - Panel: Creating the Digital Workforce: What Are Opportunities and Challenges?
    Facilitator: Ms Heather Nicoll

14:55 - 15:30
  Afternoon tea and networking

15:35 - 17:00  SESSION 4: Digital Engineering - Creating and Realizing New Value and Summit Closing
  - Speakers: Mr Jawahar Bhalla, Mr Adrian Piani, CDRE Andrew Macalister
  - Panel: How Can Organisations Use Digital Engineering to Drive Value Across the Whole Lifecycle?
    Facilitator: Ms Kerry Lunney
`

const day2Program = `Here is the program for Day 2 of the 2nd Australian Digital Engineering Summit (Tuesday 25 November 2025):

Online delivery:
  9:00 - 13:00  Applications of Generative AI with Large Language Models (online)
    Facilitator: Dr Barclay Brown

  13:00 - 16:00  Mission Engineering Primer (online)
    Facilitator: Dr Braden McGrath

In person delivery:
  9:00 - 12:00  Mission Engineering Advanced Workshop (in person)
    Facilitator: Dr Braden McGrath

  13:00 - 15:00  Low Cost Digitisation for SMEs: Unlocking Industry 4.0 Benefits (in person)
    Facilitators: Dr Matthew Doolan and Dr Michael Stevens

Summit managers: Consec - Conference and Event Management (adesummit@consec.com.au, +61 2 6252 1200).`

const bothDaysProgram = `Here is a summary of the two day program for the 2nd Australian Digital Engineering Summit:

Day 1 - Monday 24 November 2025 (National Convention Centre Canberra)
  - Registration from 8:00
  - Summit Opening and Session 1: Engineering Digital Transformation
  - Session 2: Driving Innovations Across the Digital Engineering Ecosystem
  - Session 3: Driving the Adoption of Digital Engineering - Recruitment, Skillsets and Career Pathways
  - Session 4: Digital Engineering - Creating and Realizing New Value and Summit closing
  - Morning tea, lunch and afternoon tea with networking

Day 2 - Tuesday 25 November 2025
  Online:
    - Applications of Generative AI with Large Language Models (morning)
    - Mission Engineering Primer (afternoon)
  In person:
    - Mission Engineering Advanced Workshop (morning)
    - Low Cost Digitisation for SMEs: Unlocking Industry 4.0 Benefits (afternoon)

For any last minute updates or room details, please refer to the official Summit website: https://consec.eventsair.com/2nd-australian-digital-engineering-summit`
