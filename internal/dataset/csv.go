package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CSVAdapter is the local CSV-backed data source. Files are loaded lazily on
// first use and kept in memory; the adapter itself is read-only afterwards.
type CSVAdapter struct {
	playersPath string
	matchesPath string

	players []PlayerRecord
	matches []MatchRow
	loaded  bool
}

// NewCSVAdapter creates an adapter over a players table and a matches table.
func NewCSVAdapter(playersPath, matchesPath string) *CSVAdapter {
	return &CSVAdapter{playersPath: playersPath, matchesPath: matchesPath}
}

// Snapshot identifies the loaded dataset revision.
func (a *CSVAdapter) Snapshot() string {
	return a.playersPath + "|" + a.matchesPath
}

func (a *CSVAdapter) ensureLoaded() error {
	if a.loaded {
		return nil
	}
	players, err := loadPlayers(a.playersPath)
	if err != nil {
		return err
	}
	matches, err := loadMatches(a.matchesPath)
	if err != nil {
		return err
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Date.Before(matches[j].Date) })
	a.players = players
	a.matches = matches
	a.loaded = true
	return nil
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(name))), " ")
}

// ResolvePlayer accepts a player id, an exact (case-insensitive) name, or a
// unique substring of a name. Unknown references fail with close-match
// suggestions when any exist.
func (a *CSVAdapter) ResolvePlayer(ref string) (PlayerRecord, error) {
	if err := a.ensureLoaded(); err != nil {
		return PlayerRecord{}, err
	}
	for _, p := range a.players {
		if p.PlayerID == ref {
			return p, nil
		}
	}

	normalized := normalizeName(ref)
	for _, p := range a.players {
		if normalizeName(p.Name) == normalized {
			return p, nil
		}
	}

	var contains []PlayerRecord
	for _, p := range a.players {
		if strings.Contains(normalizeName(p.Name), normalized) {
			contains = append(contains, p)
		}
	}
	if len(contains) == 1 {
		return contains[0], nil
	}

	if suggestions := a.closeMatches(ref, 3); len(suggestions) > 0 {
		return PlayerRecord{}, &DataError{Message: fmt.Sprintf("player %q not found. Did you mean: %s?", ref, strings.Join(suggestions, ", "))}
	}
	return PlayerRecord{}, &DataError{Message: fmt.Sprintf("player %q not found in player table", ref)}
}

// closeMatches ranks player names by normalized edit distance to ref.
func (a *CSVAdapter) closeMatches(ref string, n int) []string {
	type scored struct {
		name  string
		score float64
	}
	normalized := normalizeName(ref)
	var candidates []scored
	for _, p := range a.players {
		d := editDistance(normalized, normalizeName(p.Name))
		longest := len(normalized)
		if l := len(p.Name); l > longest {
			longest = l
		}
		if longest == 0 {
			continue
		}
		score := 1.0 - float64(d)/float64(longest)
		if score >= 0.55 {
			candidates = append(candidates, scored{name: p.Name, score: score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	names := make([]string, 0, n)
	for _, c := range candidates {
		names = append(names, c.name)
		if len(names) == n {
			break
		}
	}
	return names
}

func editDistance(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// Matches returns the windowed match table: the most recent window*4 rows,
// optionally cut off at asOf.
func (a *CSVAdapter) Matches(window int, asOf time.Time) ([]MatchRow, error) {
	if err := a.ensureLoaded(); err != nil {
		return nil, err
	}
	rows := a.matches
	if !asOf.IsZero() {
		cut := sort.Search(len(rows), func(i int) bool { return rows[i].Date.After(asOf) })
		rows = rows[:cut]
	}
	keep := window * 4
	if keep < window {
		keep = window
	}
	if len(rows) > keep {
		rows = rows[len(rows)-keep:]
	}
	return rows, nil
}

// PlayerRows returns the player's last `window` matches from that player's
// perspective. A player with zero matches in the window is a data error.
func (a *CSVAdapter) PlayerRows(playerID string, window int, asOf time.Time) ([]PerspectiveRow, error) {
	matches, err := a.Matches(window, asOf)
	if err != nil {
		return nil, err
	}
	var rows []PerspectiveRow
	for _, m := range matches {
		if m.PlayerA == playerID || m.PlayerB == playerID {
			rows = append(rows, Perspective(m, playerID))
		}
	}
	if len(rows) == 0 {
		return nil, &DataError{PlayerID: playerID, Message: "no matches found in window"}
	}
	if len(rows) > window {
		rows = rows[len(rows)-window:]
	}
	return rows, nil
}

// HeadToHeadRows returns the matches between the two players from player A's
// perspective. The lookback is twice the normal window since head-to-head
// pairings are sparse.
func (a *CSVAdapter) HeadToHeadRows(playerAID, playerBID string, window int, asOf time.Time) ([]PerspectiveRow, error) {
	matches, err := a.Matches(window*2, asOf)
	if err != nil {
		return nil, err
	}
	var rows []PerspectiveRow
	for _, m := range matches {
		pair := (m.PlayerA == playerAID && m.PlayerB == playerBID) ||
			(m.PlayerA == playerBID && m.PlayerB == playerAID)
		if pair {
			rows = append(rows, Perspective(m, playerAID))
		}
	}
	return rows, nil
}

func loadPlayers(path string) ([]PlayerRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open players table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read players header: %w", err)
	}
	idx := indexHeader(header)

	var players []PlayerRecord
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read players row: %w", err)
		}
		players = append(players, PlayerRecord{
			PlayerID:   field(record, idx, "player_id"),
			Name:       field(record, idx, "name"),
			Country:    field(record, idx, "country"),
			Handedness: field(record, idx, "handedness"),
		})
	}
	if len(players) == 0 {
		return nil, &DataError{Message: fmt.Sprintf("players table %s is empty", path)}
	}
	return players, nil
}

func loadMatches(path string) ([]MatchRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open matches table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read matches header: %w", err)
	}
	idx := indexHeader(header)

	var matches []MatchRow
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read matches row: %w", err)
		}
		line++
		row, err := parseMatchRow(record, idx)
		if err != nil {
			return nil, fmt.Errorf("matches row %d: %w", line, err)
		}
		matches = append(matches, row)
	}
	return matches, nil
}

func parseMatchRow(record []string, idx map[string]int) (MatchRow, error) {
	date, err := time.Parse("2006-01-02", field(record, idx, "date"))
	if err != nil {
		return MatchRow{}, fmt.Errorf("invalid date: %w", err)
	}

	row := MatchRow{
		Date:     date,
		PlayerA:  field(record, idx, "playerA_id"),
		PlayerB:  field(record, idx, "playerB_id"),
		WinnerID: field(record, idx, "winner_id"),
	}

	ints := map[string]*int{
		"a_serve_rallies": &row.AServeRallies,
		"a_serve_wins":    &row.AServeWins,
		"b_serve_rallies": &row.BServeRallies,
		"b_serve_wins":    &row.BServeWins,
		"a_points":        &row.APoints,
		"b_points":        &row.BPoints,
	}
	for name, dst := range ints {
		v, err := strconv.Atoi(field(record, idx, name))
		if err != nil {
			return MatchRow{}, fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = v
	}

	floats := map[string]*float64{
		"a_short_serve_rate": &row.AShortServeRate,
		"a_flick_serve_rate": &row.AFlickServeRate,
		"a_attack_rate":      &row.AAttackRate,
		"a_neutral_rate":     &row.ANeutralRate,
		"a_safe_rate":        &row.ASafeRate,
		"b_short_serve_rate": &row.BShortServeRate,
		"b_flick_serve_rate": &row.BFlickServeRate,
		"b_attack_rate":      &row.BAttackRate,
		"b_neutral_rate":     &row.BNeutralRate,
		"b_safe_rate":        &row.BSafeRate,
	}
	for name, dst := range floats {
		v, err := strconv.ParseFloat(field(record, idx, name), 64)
		if err != nil {
			return MatchRow{}, fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = v
	}

	return row, nil
}

func indexHeader(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	return idx
}

func field(record []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
