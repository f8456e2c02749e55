// Package netstore resolves item lists from the zone file-share drop
// locations the original gateway polled for overnight batch files, rather
// than requiring every ast.run call to supply its item list inline.
//
// Grounded on original_source/gateway/src/networkstorage: file_paths.py's
// static office/zone table and smb_client.py's department-scoped drop-file
// convention. The actual SMB transport is out of scope (spec.md puts
// file-share fetch out of scope as an external data source); this package
// only covers the part a runnable AST needs, reading already-mounted drop
// files from a configured local root.
package netstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Share is one office's drop location, keyed by office code.
type Share struct {
	Zone   string
	Office string
	// ZoneOffices lists every office code sharing this zone's drop path.
	ZoneOffices []string
}

// Roster mirrors file_paths.py's FILE_PATHS table: which offices share a
// zone drop location. The original's UNC path itself isn't reproduced here
// — the local root each office resolves under is operator configuration
// (Config.Netstore.Root), not a hardcoded Windows share.
var Roster = []Share{
	{Zone: "Corporate Headquarters", Office: "00", ZoneOffices: []string{"00"}},
	{Zone: "GREAT LAKES", Office: "01", ZoneOffices: []string{"01", "04", "18"}},
	{Zone: "CALIFORNIA", Office: "02", ZoneOffices: []string{"02", "12", "23"}},
	{Zone: "GREAT LAKES", Office: "04", ZoneOffices: []string{"01", "04", "18"}},
	{Zone: "HEARTLAND", Office: "05", ZoneOffices: []string{"05", "06"}},
	{Zone: "HEARTLAND", Office: "06", ZoneOffices: []string{"05", "06"}},
	{Zone: "MID-ATLANTIC", Office: "07", ZoneOffices: []string{"07", "21"}},
	{Zone: "TEXAS", Office: "08", ZoneOffices: []string{"08", "25"}},
	{Zone: "SOUTHERN", Office: "09", ZoneOffices: []string{"09", "27"}},
	{Zone: "MID-AMERICA", Office: "11", ZoneOffices: []string{"11", "16"}},
	{Zone: "CALIFORNIA", Office: "12", ZoneOffices: []string{"02", "12", "23"}},
	{Zone: "NORTHEAST", Office: "13", ZoneOffices: []string{"13", "17", "28"}},
	{Zone: "CENTRAL", Office: "14", ZoneOffices: []string{"14", "22", "26"}},
	{Zone: "PACIFIC NORTHWEST", Office: "15", ZoneOffices: []string{"15"}},
	{Zone: "MID-AMERICA", Office: "16", ZoneOffices: []string{"11", "16"}},
	{Zone: "NORTHEAST", Office: "17", ZoneOffices: []string{"13", "17", "28"}},
	{Zone: "GREAT LAKES", Office: "18", ZoneOffices: []string{"01", "04", "18"}},
	{Zone: "FLORIDA", Office: "19", ZoneOffices: []string{"19"}},
	{Zone: "GREAT WESTERN", Office: "20", ZoneOffices: []string{"20", "24"}},
	{Zone: "MID-ATLANTIC", Office: "21", ZoneOffices: []string{"07", "21"}},
	{Zone: "CENTRAL", Office: "22", ZoneOffices: []string{"14", "22", "26"}},
	{Zone: "CALIFORNIA", Office: "23", ZoneOffices: []string{"02", "12", "23"}},
	{Zone: "GREAT WESTERN", Office: "24", ZoneOffices: []string{"20", "24"}},
	{Zone: "TEXAS", Office: "25", ZoneOffices: []string{"08", "25"}},
	{Zone: "CENTRAL", Office: "26", ZoneOffices: []string{"14", "22", "26"}},
	{Zone: "SOUTHERN", Office: "27", ZoneOffices: []string{"09", "27"}},
	{Zone: "NORTHEAST", Office: "28", ZoneOffices: []string{"13", "17", "28"}},
}

// ZoneForOffice returns the zone name for an office code, mirroring
// file_paths.py's get_zone_by_office.
func ZoneForOffice(office string) (string, bool) {
	for _, s := range Roster {
		if s.Office == office {
			return s.Zone, true
		}
	}
	return "", false
}

// Department names accepted in drop-file glob patterns, per
// build_file_path's validation.
const (
	DepartmentFire = "FIRE"
	DepartmentAuto = "AUTO"
)

// validDepartment reports whether department is one build_file_path accepts.
func validDepartment(department string) bool {
	switch strings.ToUpper(department) {
	case DepartmentFire, DepartmentAuto:
		return true
	}
	return false
}

// LoadPolicyNumbers glob-matches drop files under root/office/department
// (doublestar pattern, e.g. "*.txt") and returns every non-blank,
// non-comment line across all matches, in match then line order. Each line
// is expected to be one policy number, one per line — the plain-text
// successor to the original's Access-database drop files.
func LoadPolicyNumbers(root, office, department, pattern string) ([]string, error) {
	if _, ok := ZoneForOffice(office); !ok {
		return nil, fmt.Errorf("netstore: unknown office code %q", office)
	}
	if !validDepartment(department) {
		return nil, fmt.Errorf("netstore: invalid department %q, must be FIRE or AUTO", department)
	}

	globPattern := filepath.Join(root, office, strings.ToUpper(department), pattern)
	matches, err := doublestar.FilepathGlob(globPattern)
	if err != nil {
		return nil, fmt.Errorf("netstore: glob %s: %w", globPattern, err)
	}

	var numbers []string
	for _, m := range matches {
		f, err := os.Open(m)
		if err != nil {
			return nil, fmt.Errorf("netstore: open %s: %w", m, err)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			numbers = append(numbers, line)
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("netstore: scan %s: %w", m, err)
		}
	}
	return numbers, nil
}
