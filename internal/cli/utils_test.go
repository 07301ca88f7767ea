package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/miru/internal/indexer"
	"github.com/hyperjump/miru/internal/models"
)

func sampleResponse() *models.SearchResponse {
	explanation := "A small harbor with moored fishing boats at dusk."
	return &models.SearchResponse{
		Query:          "boats at dusk",
		ProcessingTime: 0.42,
		Results: []*models.SearchResult{
			{
				ImageID:     "3",
				Filename:    "harbor.jpg",
				Score:       0.91,
				Explanation: &explanation,
				ImageURL:    "/images/harbor.jpg",
			},
			{
				ImageID:  "7",
				Filename: "pier.png",
				Score:    0.84,
			},
		},
	}
}

func TestWriteSearchResultsJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Query != "boats at dusk" || len(decoded.Results) != 2 {
		t.Errorf("decoded: query=%q results=%d", decoded.Query, len(decoded.Results))
	}
	if decoded.Results[0].Explanation == nil {
		t.Error("first result lost its explanation in JSON round trip")
	}
	if decoded.Results[1].Explanation != nil {
		t.Error("second result gained an explanation")
	}
}

func TestWriteSearchResultsText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatalf("WriteSearchResults(text): %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Found 2 results", "harbor.jpg", "pier.png", "moored fishing boats"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSearchResultsTextEmpty(t *testing.T) {
	var buf bytes.Buffer
	response := &models.SearchResponse{Query: "nothing", Results: []*models.SearchResult{}}
	if err := WriteSearchResults(&buf, response, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Found 0 results") {
		t.Errorf("unexpected empty output: %s", buf.String())
	}
}

func TestWriteIndexReport(t *testing.T) {
	var buf bytes.Buffer
	WriteIndexReport(&buf, &indexer.Report{
		RunID: "run-1", Mode: "rebuild", Total: 10, Indexed: 8, Corrupt: 2,
	})
	out := buf.String()
	for _, want := range []string{"run-1", "rebuild", "indexed:       8", "corrupt:       2"} {
		if !strings.Contains(out, want) {
			t.Errorf("report output missing %q:\n%s", want, out)
		}
	}
}
