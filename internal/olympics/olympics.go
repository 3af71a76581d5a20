// Package olympics holds the athlete participation record and the two medal
// aggregates computed from it.
package olympics

import (
	"sort"
	"strings"
)

// Participation is one athlete's entry in one event, reduced to the fields
// the aggregates need. An empty Medal means the athlete did not place.
type Participation struct {
	Year   int
	Season string
	NOC    string
	Medal  string
}

// HasMedal reports whether the record carries a medal
func (p Participation) HasMedal() bool {
	return p.Medal != ""
}

// MedalCount is the number of medals a country won in one Games
type MedalCount struct {
	Year   int    `csv:"year" db:"year" json:"year"`
	Season string `csv:"season" db:"season" json:"season"`
	NOC    string `csv:"noc" db:"noc" json:"noc"`
	Count  int    `csv:"Medal_Count" db:"medal_count" json:"medal_count"`
}

// CountryCount is the number of distinct countries that won at least one
// medal in one Games
type CountryCount struct {
	Year      int    `csv:"year" db:"year" json:"year"`
	Season    string `csv:"season" db:"season" json:"season"`
	Countries int    `csv:"Countries_with_Medals" db:"countries_with_medals" json:"countries_with_medals"`
}

// Summary describes what Aggregate did with its input
type Summary struct {
	Records      int
	MedalRecords int
	Skipped      int
}

type gamesKey struct {
	year   int
	season string
}

type medalKey struct {
	gamesKey
	noc string
}

// Aggregate drops records without a medal and groups the rest. Records whose
// season or noc is empty cannot be grouped and are counted as skipped.
// Both results are sorted by key.
func Aggregate(records []Participation) ([]MedalCount, []CountryCount, Summary) {
	summary := Summary{Records: len(records)}

	medals := make(map[medalKey]int)
	for _, r := range records {
		if !r.HasMedal() {
			continue
		}
		if strings.TrimSpace(r.Season) == "" || strings.TrimSpace(r.NOC) == "" {
			summary.Skipped++
			continue
		}
		summary.MedalRecords++
		medals[medalKey{gamesKey{r.Year, r.Season}, r.NOC}]++
	}

	medalCounts := make([]MedalCount, 0, len(medals))
	countries := make(map[gamesKey]int)
	for k, n := range medals {
		medalCounts = append(medalCounts, MedalCount{Year: k.year, Season: k.season, NOC: k.noc, Count: n})
		// keys are unique per noc, so this counts distinct countries
		countries[k.gamesKey]++
	}

	countryCounts := make([]CountryCount, 0, len(countries))
	for k, n := range countries {
		countryCounts = append(countryCounts, CountryCount{Year: k.year, Season: k.season, Countries: n})
	}

	SortMedalCounts(medalCounts)
	SortCountryCounts(countryCounts)

	return medalCounts, countryCounts, summary
}

// SortMedalCounts orders rows by year, season and noc
func SortMedalCounts(rows []MedalCount) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Season != b.Season {
			return a.Season < b.Season
		}
		return a.NOC < b.NOC
	})
}

// SortCountryCounts orders rows by year and season
func SortCountryCounts(rows []CountryCount) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Season < b.Season
	})
}
