package ergast

// SeasonEntry is one row of the season catalog.
type SeasonEntry struct {
	Year int
	URL  string
}

// RaceEntry is one calendar entry. Numeric fields are kept as the text the
// API sends; callers decide how to treat values that do not parse.
type RaceEntry struct {
	Season      string
	Round       string
	RaceName    string
	CircuitURL  string
	CircuitName string
	Date        string
	Time        string
	URL         string
}

// DriverEntry is the driver object embedded in results and standings.
type DriverEntry struct {
	DriverID        string `json:"driverId"`
	PermanentNumber string `json:"permanentNumber"`
	Code            string `json:"code"`
	URL             string `json:"url"`
	GivenName       string `json:"givenName"`
	FamilyName      string `json:"familyName"`
	DateOfBirth     string `json:"dateOfBirth"`
	Nationality     string `json:"nationality"`
}

// RaceResult is the top finisher of one race.
type RaceResult struct {
	Driver        DriverEntry
	ConstructorID string
	Time          string
	Laps          string
	Grid          string
	Points        string
}

// Wire format. Every table is optional; a missing table means no data.

type envelope struct {
	MRData mrData `json:"MRData"`
}

type mrData struct {
	Total          string          `json:"total"`
	SeasonTable    *seasonTable    `json:"SeasonTable"`
	RaceTable      *raceTable      `json:"RaceTable"`
	StandingsTable *standingsTable `json:"StandingsTable"`
}

type seasonTable struct {
	Seasons []wireSeason `json:"Seasons"`
}

type wireSeason struct {
	Season string `json:"season"`
	URL    string `json:"url"`
}

type raceTable struct {
	Season string     `json:"season"`
	Races  []wireRace `json:"Races"`
}

type wireRace struct {
	Season   string       `json:"season"`
	Round    string       `json:"round"`
	URL      string       `json:"url"`
	RaceName string       `json:"raceName"`
	Circuit  wireCircuit  `json:"Circuit"`
	Date     string       `json:"date"`
	Time     string       `json:"time"`
	Results  []wireResult `json:"Results"`
}

type wireCircuit struct {
	CircuitID   string `json:"circuitId"`
	URL         string `json:"url"`
	CircuitName string `json:"circuitName"`
}

type wireResult struct {
	Number      string          `json:"number"`
	Position    string          `json:"position"`
	Points      string          `json:"points"`
	Driver      DriverEntry     `json:"Driver"`
	Constructor wireConstructor `json:"Constructor"`
	Grid        string          `json:"grid"`
	Laps        string          `json:"laps"`
	Status      string          `json:"status"`
	Time        *wireTime       `json:"Time"`
}

type wireConstructor struct {
	ConstructorID string `json:"constructorId"`
	Name          string `json:"name"`
}

type wireTime struct {
	Millis string `json:"millis"`
	Time   string `json:"time"`
}

type standingsTable struct {
	Season         string              `json:"season"`
	StandingsLists []wireStandingsList `json:"StandingsLists"`
}

type wireStandingsList struct {
	Season          string               `json:"season"`
	Round           string               `json:"round"`
	DriverStandings []wireDriverStanding `json:"DriverStandings"`
}

type wireDriverStanding struct {
	Position string      `json:"position"`
	Points   string      `json:"points"`
	Driver   DriverEntry `json:"Driver"`
}

func (r wireRace) entry() RaceEntry {
	return RaceEntry{
		Season:      r.Season,
		Round:       r.Round,
		RaceName:    r.RaceName,
		CircuitURL:  r.Circuit.URL,
		CircuitName: r.Circuit.CircuitName,
		Date:        r.Date,
		Time:        r.Time,
		URL:         r.URL,
	}
}

func (r wireResult) result() *RaceResult {
	out := &RaceResult{
		Driver:        r.Driver,
		ConstructorID: r.Constructor.ConstructorID,
		Laps:          r.Laps,
		Grid:          r.Grid,
		Points:        r.Points,
	}
	if r.Time != nil {
		out.Time = r.Time.Time
	}
	return out
}
