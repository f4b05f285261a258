package reports

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/meritrack/backend/internal/models"
)

// Sheet names of the merit workbook.
const (
	SheetLeaderboard = "Leaderboard"
	SheetByFaculty   = "By Faculty"
)

var (
	leaderboardHeader = []interface{}{"Rank", "Student ID", "Name", "Faculty", "Year",
		"University", "Faculty Merit", "College", "Club", "Total"}
	facultyHeader = []interface{}{"Faculty", "Students", "University", "Faculty Merit",
		"College", "Club", "Total", "Average"}
)

// FacultyTotals aggregates the standings of one faculty.
type FacultyTotals struct {
	Faculty  string
	Students int
	Points   models.CategoryTotals
}

// Average is the mean total per student, rounded to two decimals.
func (f FacultyTotals) Average() float64 {
	if f.Students == 0 {
		return 0
	}
	return float64(int(float64(f.Points.Total())/float64(f.Students)*100+0.5)) / 100
}

// GroupByFaculty sums standings per faculty, highest total first. Ties sort by name.
func GroupByFaculty(entries []models.LeaderboardEntry) []FacultyTotals {
	idx := make(map[string]int)
	var out []FacultyTotals
	for _, e := range entries {
		name := e.Faculty
		if name == "" {
			name = "Unassigned"
		}
		i, ok := idx[name]
		if !ok {
			i = len(out)
			idx[name] = i
			out = append(out, FacultyTotals{Faculty: name})
		}
		out[i].Students++
		out[i].Points.Add(models.CategoryUniversity, e.UniversityMerit)
		out[i].Points.Add(models.CategoryFaculty, e.FacultyMerit)
		out[i].Points.Add(models.CategoryCollege, e.CollegeMerit)
		out[i].Points.Add(models.CategoryClub, e.ClubMerit)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].Points.Total(), out[j].Points.Total()
		if ti != tj {
			return ti > tj
		}
		return out[i].Faculty < out[j].Faculty
	})
	return out
}

// BuildWorkbook renders standings, already in rank order, as an XLSX file.
func BuildWorkbook(entries []models.LeaderboardEntry, generatedAt time.Time) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetLeaderboard); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetByFaculty); err != nil {
		return nil, fmt.Errorf("new sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("style: %w", err)
	}

	rows := make([][]interface{}, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, []interface{}{i + 1, e.StudentID, e.Name, e.Faculty, e.Year,
			e.UniversityMerit, e.FacultyMerit, e.CollegeMerit, e.ClubMerit, e.TotalPoints})
	}
	if err := writeSheet(f, SheetLeaderboard, leaderboardHeader, rows, bold); err != nil {
		return nil, err
	}

	groups := GroupByFaculty(entries)
	rows = rows[:0]
	for _, g := range groups {
		rows = append(rows, []interface{}{g.Faculty, g.Students, g.Points.University, g.Points.Faculty,
			g.Points.College, g.Points.Club, g.Points.Total(), g.Average()})
	}
	if err := writeSheet(f, SheetByFaculty, facultyHeader, rows, bold); err != nil {
		return nil, err
	}

	footer, _ := excelize.CoordinatesToCellName(1, len(entries)+3)
	if err := f.SetCellValue(SheetLeaderboard, footer, "Generated "+generatedAt.UTC().Format(time.RFC3339)); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}

func writeSheet(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}, headerStyle int) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("%s header: %w", sheet, err)
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}
	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+2, err)
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetColWidth(sheet, "A", lastCol, 16); err != nil {
		return err
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}
