// Command seedtool generates a synthetic master-data CSV and optional sample
// submission files, for local runs and load experiments.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

func main() {
	var (
		out          = flag.String("out", ".", "output directory")
		rows         = flag.Int("rows", 10000, "number of master-data rows")
		positiveRate = flag.Float64("positive-rate", 0.3, "fraction of rows labeled 1")
		publicRate   = flag.Float64("public-rate", 0.5, "fraction of rows in the public partition")
		submissions  = flag.Int("submissions", 0, "number of sample submission CSVs to generate")
		seed         = flag.Int64("seed", 42, "rng seed")
	)
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*out, 0o755); err != nil {
		fatal(err)
	}

	ids, err := writeMasterData(*out, *rows, *positiveRate, *publicRate, rng)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("wrote master_data.csv with %d rows\n", *rows)

	for i := 0; i < *submissions; i++ {
		name := "submission_" + uuid.NewString() + ".csv"
		if err := writeSubmission(filepath.Join(*out, name), ids, rng); err != nil {
			fatal(err)
		}
		fmt.Println("wrote " + name)
	}
}

// writeMasterData emits id,label,partition rows and returns the generated ids.
func writeMasterData(dir string, rows int, positiveRate, publicRate float64, rng *rand.Rand) ([]int64, error) {
	f, err := os.Create(filepath.Join(dir, "master_data.csv"))
	if err != nil {
		return nil, fmt.Errorf("create master data: %w", err)
	}
	defer f.Close() //nolint:errcheck // flushed below

	w := csv.NewWriter(f)
	if err := w.Write([]string{"id", "label", "partition"}); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	ids := make([]int64, 0, rows)
	for i := 0; i < rows; i++ {
		id := int64(i + 1)
		ids = append(ids, id)

		label := "0"
		if rng.Float64() < positiveRate {
			label = "1"
		}
		partition := "private"
		if rng.Float64() < publicRate {
			partition = "public"
		}
		if err := w.Write([]string{strconv.FormatInt(id, 10), label, partition}); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush master data: %w", err)
	}
	return ids, nil
}

// writeSubmission emits a header-less single-column CSV of a random subset of
// ids predicted as positive.
func writeSubmission(path string, ids []int64, rng *rand.Rand) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	defer f.Close() //nolint:errcheck // flushed below

	w := csv.NewWriter(f)
	for _, id := range ids {
		if rng.Float64() < 0.5 {
			continue
		}
		if err := w.Write([]string{strconv.FormatInt(id, 10)}); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush submission: %w", err)
	}
	return nil
}

func fatal(err error) {
	os.Stderr.WriteString(err.Error() + "\n")
	os.Exit(1)
}
