package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"penguinapi/ml"
	"penguinapi/penguin"
)

var csvColumns = []string{
	penguin.FieldBillLength,
	penguin.FieldBillDepth,
	penguin.FieldFlipperLength,
	penguin.FieldBodyMass,
	penguin.FieldYear,
	penguin.FieldSex,
	penguin.FieldIsland,
	"species",
}

func main() {
	modelPath := pflag.String("model", "data/model.json", "model artifact path")
	infoPath := pflag.String("info", "data/model_info.json", "model metadata path")
	dataPath := pflag.String("data", "", "labeled CSV to score")
	pflag.Parse()

	model, err := ml.LoadModel(*modelPath, *infoPath)
	if err != nil {
		log.Fatalf("failed to load model: %v", err)
	}
	fmt.Printf("model %s loaded (features=%s)\n", model.Version(), strings.Join(model.Metadata().FeatureColumns, ","))

	if *dataPath == "" {
		return
	}
	file, err := os.Open(*dataPath)
	if err != nil {
		log.Fatalf("failed to open data: %v", err)
	}
	defer file.Close()

	report, err := evaluateModel(model, file)
	if err != nil {
		log.Fatalf("failed to evaluate model: %v", err)
	}
	report.print(os.Stdout)
}

type speciesStats struct {
	truePositive      int
	predictedPositive int
	actualPositive    int
}

func (s speciesStats) precision() float64 {
	if s.predictedPositive == 0 {
		return 0
	}
	return float64(s.truePositive) / float64(s.predictedPositive)
}

func (s speciesStats) recall() float64 {
	if s.actualPositive == 0 {
		return 0
	}
	return float64(s.truePositive) / float64(s.actualPositive)
}

type evaluation struct {
	scored    int
	skipped   int
	correct   int
	bySpecies map[penguin.Species]*speciesStats
}

func (e *evaluation) accuracy() float64 {
	if e.scored == 0 {
		return 0
	}
	return float64(e.correct) / float64(e.scored)
}

func (e *evaluation) print(w io.Writer) {
	fmt.Fprintf(w, "scored=%d skipped=%d accuracy=%.4f\n", e.scored, e.skipped, e.accuracy())
	for _, sp := range penguin.SpeciesPriority() {
		s := e.bySpecies[sp]
		fmt.Fprintf(w, "%-10s precision=%.4f recall=%.4f support=%d\n", sp, s.precision(), s.recall(), s.actualPositive)
	}
}

// evaluateModel scores every labeled row. Rows the validator rejects, or
// whose label is not a known species, are counted as skipped.
func evaluateModel(model *ml.Model, r io.Reader) (*evaluation, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	e := &evaluation{bySpecies: make(map[penguin.Species]*speciesStats)}
	for _, sp := range penguin.SpeciesPriority() {
		e.bySpecies[sp] = &speciesStats{}
	}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		actual, err := penguin.ParseSpecies(row[index["species"]])
		if err != nil {
			e.skipped++
			continue
		}
		features, err := penguin.Validate(rowRecord(row, index))
		if err != nil {
			e.skipped++
			continue
		}
		result, err := model.Predict(features)
		if err != nil {
			return nil, err
		}

		e.scored++
		e.bySpecies[actual].actualPositive++
		e.bySpecies[result.Species].predictedPositive++
		if result.Species == actual {
			e.correct++
			e.bySpecies[actual].truePositive++
		}
	}
	return e, nil
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, col := range csvColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}
	return index, nil
}

// rowRecord converts a CSV row into the same shape the HTTP layer decodes.
// Empty cells are left out so the validator reports them as missing.
func rowRecord(row []string, index map[string]int) penguin.Record {
	rec := make(penguin.Record, len(csvColumns)-1)
	for _, col := range csvColumns[:len(csvColumns)-1] {
		cell := strings.TrimSpace(row[index[col]])
		if cell == "" || cell == "NA" {
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err == nil && col != penguin.FieldSex && col != penguin.FieldIsland {
			rec[col] = json.RawMessage(cell)
			continue
		}
		raw, _ := json.Marshal(cell)
		rec[col] = raw
	}
	return rec
}
