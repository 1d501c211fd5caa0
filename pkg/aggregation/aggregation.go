package aggregation

import (
	"cmp"
	"math"
	"slices"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/tally/pkg/entries"
	"github.com/Ramsey-B/tally/pkg/models"
)

// DefaultTopCandidatesLimit applies when a request omits the limit
const DefaultTopCandidatesLimit = 10

// Input is the current state of one election. Aggregation is a pure fold over it.
type Input struct {
	Stations []models.PollingStation
	Sheets   []models.ResultSheet
	// Entries are candidate entries; entries of sheets that are not certified are ignored
	Entries    []models.ResultEntry
	GeoUnits   []models.GeoUnit
	Candidates []models.Candidate
}

type Summary struct {
	TotalStations        int     `json:"total_stations"`
	Completed            int     `json:"completed"`
	InProgress           int     `json:"in_progress"`
	Pending              int     `json:"pending"`
	Returned             int     `json:"returned"`
	CompletionPercentage float64 `json:"completion_percentage"`
}

// StatusBreakdown counts sheets per status. Every status is present.
type StatusBreakdown map[models.SheetStatus]int

// Node is one geographic unit of a breakdown
type Node struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Level             models.GeoLevel `json:"level"`
	TotalStations     int             `json:"total_stations"`
	CompletedStations int             `json:"completed_stations"`
	TotalVotes        int             `json:"total_votes"`
}

type CandidateTally struct {
	CandidateID string  `json:"candidate_id"`
	PositionID  string  `json:"position_id,omitempty"`
	Name        string  `json:"name,omitempty"`
	Party       *string `json:"party,omitempty"`
	Votes       int     `json:"votes"`
}

type TopCandidatesOptions struct {
	RegionID   string
	PositionID string
	Limit      int
}

type Aggregator struct {
	input        Input
	sheetByID    map[string]models.ResultSheet
	stationByID  map[string]models.PollingStation
	sheetByStaID map[string]models.ResultSheet
}

// New indexes input for the aggregation queries
func New(input Input) *Aggregator {
	a := &Aggregator{
		input:        input,
		sheetByID:    make(map[string]models.ResultSheet, len(input.Sheets)),
		stationByID:  make(map[string]models.PollingStation, len(input.Stations)),
		sheetByStaID: make(map[string]models.ResultSheet, len(input.Sheets)),
	}
	for _, station := range input.Stations {
		a.stationByID[station.ID] = station
	}
	for _, sheet := range input.Sheets {
		a.sheetByID[sheet.ID] = sheet
		if _, ok := a.stationByID[sheet.PollingStationID]; ok {
			a.sheetByStaID[sheet.PollingStationID] = sheet
		}
	}
	return a
}

// Summary counts election-wide completion. Stations without a sheet are pending.
func (a *Aggregator) Summary() Summary {
	summary := Summary{TotalStations: len(a.input.Stations)}

	for _, sheet := range a.sheetByStaID {
		switch {
		case sheet.Status == models.SheetStatusCertified:
			summary.Completed++
		case sheet.Status.InReview():
			summary.InProgress++
		case sheet.WasReturned():
			summary.Returned++
		}
	}

	summary.Pending = summary.TotalStations - summary.Completed - summary.InProgress
	summary.CompletionPercentage = Percentage(summary.Completed, summary.TotalStations)
	return summary
}

// StatusBreakdown counts every sheet of the election by its exact status
func (a *Aggregator) StatusBreakdown() StatusBreakdown {
	breakdown := StatusBreakdown{}
	for _, status := range models.SheetStatuses {
		breakdown[status] = 0
	}
	for _, sheet := range a.input.Sheets {
		breakdown[sheet.Status]++
	}
	return breakdown
}

// Breakdown groups stations by the node they belong to at level. When regionID is set only
// stations of that region are considered. Votes come from certified sheets only.
func (a *Aggregator) Breakdown(level models.GeoLevel, regionID string) []Node {
	names := make(map[string]string, len(a.input.GeoUnits))
	for _, unit := range a.input.GeoUnits {
		if unit.Level == level {
			names[unit.ID] = unit.Name
		}
	}

	nodes := map[string]*Node{}
	for _, station := range a.input.Stations {
		if regionID != "" && station.RegionID != regionID {
			continue
		}

		id := station.NodeID(level)
		node, ok := nodes[id]
		if !ok {
			name := names[id]
			if level == models.GeoLevelPollingStation {
				name = station.Name
			}
			node = &Node{ID: id, Name: ectolinq.Ternary(name == "", id, name), Level: level}
			nodes[id] = node
		}

		node.TotalStations++
		sheet, ok := a.sheetByStaID[station.ID]
		if ok && sheet.Status == models.SheetStatusCertified {
			node.CompletedStations++
			node.TotalVotes += sheet.ValidVotes()
		}
	}

	result := make([]Node, 0, len(nodes))
	for _, node := range nodes {
		result = append(result, *node)
	}
	slices.SortFunc(result, func(x, y Node) int {
		return cmp.Or(cmp.Compare(x.Name, y.Name), cmp.Compare(x.ID, y.ID))
	})
	return result
}

// RegionalBreakdown is Breakdown at region level
func (a *Aggregator) RegionalBreakdown(regionID string) []Node {
	return a.Breakdown(models.GeoLevelRegion, regionID)
}

// TopCandidates ranks candidates by votes on certified sheets, ties broken by candidate id.
// A zero limit returns every candidate.
func (a *Aggregator) TopCandidates(opts TopCandidatesOptions) []CandidateTally {
	candidates := make(map[string]models.Candidate, len(a.input.Candidates))
	for _, c := range a.input.Candidates {
		candidates[c.ID] = c
	}

	counted := ectolinq.Filter(entries.Candidates(a.input.Entries), func(entry models.ResultEntry) bool {
		if opts.PositionID != "" && (entry.PositionID == nil || *entry.PositionID != opts.PositionID) {
			return false
		}
		sheet, ok := a.sheetByID[entry.SheetID]
		if !ok || sheet.Status != models.SheetStatusCertified {
			return false
		}
		if opts.RegionID != "" && a.stationByID[sheet.PollingStationID].RegionID != opts.RegionID {
			return false
		}
		return true
	})

	tallies := map[string]*CandidateTally{}
	for _, entry := range counted {
		id := *entry.CandidateID
		tally, ok := tallies[id]
		if !ok {
			tally = &CandidateTally{CandidateID: id}
			if c, known := candidates[id]; known {
				tally.Name = c.Name
				tally.Party = c.Party
				tally.PositionID = c.PositionID
			} else if entry.PositionID != nil {
				tally.PositionID = *entry.PositionID
			}
			tallies[id] = tally
		}
		tally.Votes += entry.Votes
	}

	result := make([]CandidateTally, 0, len(tallies))
	for _, tally := range tallies {
		result = append(result, *tally)
	}
	slices.SortFunc(result, func(x, y CandidateTally) int {
		return cmp.Or(cmp.Compare(y.Votes, x.Votes), cmp.Compare(x.CandidateID, y.CandidateID))
	})

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result
}

// Percentage returns part/total*100 rounded to two decimals, 0 when total is 0
func Percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 100
}
