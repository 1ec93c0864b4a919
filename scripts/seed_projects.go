// seed_projects.go is a standalone script that imports a decision table into Ranker and calculates it.
//
// Usage:
//
//	go run scripts/seed_projects.go -csv laptops.csv -criteria "Price:cost:1,Quality:benefit:1" -api http://localhost:8700
//
// Without -csv the built-in laptop example is imported.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
)

const laptopCSV = `Laptop,Price,Quality,Performance
A,100,8,7
B,150,9,8
C,80,6,6
`

const laptopCriteria = "Price:cost:1,Quality:benefit:1,Performance:benefit:1"

type criterionSpec struct {
	Name   string  `json:"name"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight"`
}

type importRequest struct {
	ProjectName string          `json:"project_name"`
	CSVData     string          `json:"csv_data"`
	Criteria    []criterionSpec `json:"criteria_config"`
}

func main() {
	csvPath := flag.String("csv", "", "path to CSV file (default: built-in laptop example)")
	criteria := flag.String("criteria", "", "comma-separated name:type:weight criteria")
	name := flag.String("name", "Laptops", "project name")
	apiURL := flag.String("api", "http://localhost:8700", "Ranker API base URL")
	dryRun := flag.Bool("dry-run", false, "print the import request without posting")
	flag.Parse()

	data, spec := laptopCSV, laptopCriteria
	if *csvPath != "" {
		raw, err := os.ReadFile(*csvPath)
		if err != nil {
			log.Fatalf("read csv: %v", err)
		}
		data = string(raw)
		spec = *criteria
	} else if *criteria != "" {
		spec = *criteria
	}

	specs, err := parseCriteria(spec)
	if err != nil {
		log.Fatalf("parse criteria: %v", err)
	}
	req := importRequest{ProjectName: *name, CSVData: data, Criteria: specs}

	if *dryRun {
		for i, c := range specs {
			fmt.Printf("[%d] %s (type=%s, weight=%g)\n", i+1, c.Name, c.Type, c.Weight)
		}
		fmt.Printf("%d bytes of CSV for project %q\n", len(data), *name)
		return
	}

	var project struct {
		ID string `json:"id"`
	}
	if err := post(*apiURL+"/api/v1/csv/import", req, http.StatusCreated, &project); err != nil {
		log.Fatalf("import: %v", err)
	}
	log.Printf("imported project %s", project.ID)

	var calc struct {
		Result struct {
			Ranking []struct {
				Rank      int     `json:"rank"`
				Name      string  `json:"name"`
				Closeness float64 `json:"closeness"`
			} `json:"ranking"`
			LowConfidence bool `json:"low_confidence"`
		} `json:"result"`
	}
	if err := post(*apiURL+"/api/v1/projects/"+project.ID+"/calculate", nil, http.StatusOK, &calc); err != nil {
		log.Fatalf("calculate: %v", err)
	}
	for _, r := range calc.Result.Ranking {
		fmt.Printf("%d. %s (%.4f)\n", r.Rank, r.Name, r.Closeness)
	}
	if calc.Result.LowConfidence {
		log.Printf("warning: result is low confidence")
	}
}

func parseCriteria(s string) ([]criterionSpec, error) {
	if s == "" {
		return nil, fmt.Errorf("no criteria given")
	}
	var out []criterionSpec
	for _, part := range strings.Split(s, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("%q: want name:type:weight", part)
		}
		w, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("%q: weight: %w", part, err)
		}
		out = append(out, criterionSpec{Name: fields[0], Type: fields[1], Weight: w})
	}
	return out, nil
}

func post(url string, body interface{}, want int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	resp, err := http.Post(url, "application/json", reader)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
