package certificates

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// columnAliases maps each Input field to the header spellings accepted in uploads.
var columnAliases = map[string][]string{
	"student_name":       {"studentname", "student name", "student_name", "name"},
	"roll_number":        {"rollnumber", "roll number", "roll_number", "roll no", "roll"},
	"course":             {"course", "program", "programme"},
	"graduation_year":    {"graduationyear", "graduation year", "graduation_year", "year"},
	"marks":              {"marks", "grade", "cgpa"},
	"certificate_number": {"certificatenumber", "certificate number", "certificate_number", "certificate no"},
	"issue_date":         {"issuedate", "issue date", "issue_date"},
}

// ParseCSV reads a header row followed by one certificate per row.
func ParseCSV(r io.Reader) ([]Input, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	index := resolveColumns(header)
	if _, ok := index["student_name"]; !ok {
		return nil, fmt.Errorf("csv header has no student name column")
	}
	if _, ok := index["roll_number"]; !ok {
		return nil, fmt.Errorf("csv header has no roll number column")
	}

	var out []Input
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(out)+2, err)
		}
		if blankRow(row) {
			continue
		}
		cell := func(field string) string {
			i, ok := index[field]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		out = append(out, Input{
			StudentName:       cell("student_name"),
			RollNumber:        cell("roll_number"),
			Course:            cell("course"),
			GraduationYear:    Year(cell("graduation_year")),
			Marks:             cell("marks"),
			CertificateNumber: cell("certificate_number"),
			IssueDate:         cell("issue_date"),
		})
	}
	return out, nil
}

func resolveColumns(header []string) map[string]int {
	index := make(map[string]int)
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for field, aliases := range columnAliases {
			if _, taken := index[field]; taken {
				continue
			}
			for _, a := range aliases {
				if key == a {
					index[field] = i
				}
			}
		}
	}
	return index
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
