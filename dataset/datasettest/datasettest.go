// Package datasettest generates synthetic churn tables for tests.
package datasettest

import (
	"bytes"
	"encoding/csv"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/ezoic/churn/dataset"
)

var states = []string{"KS", "OH", "NJ", "OK", "AL", "MA", "MO", "LA", "WV", "IN"}

// ExtraColumn is an unused column written after the schema columns.
const ExtraColumn = "Area code"

// Generate returns n rows of churn CSV. Churn follows a fixed rule on customer
// service calls, day minutes and the international plan, so models can learn it.
func Generate(n int, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := append(dataset.ChurnSchema.FeatureNames(), ExtraColumn, dataset.ChurnSchema.Label)
	_ = w.Write(header)

	for i := 0; i < n; i++ {
		intl := rng.Float64() < 0.1
		vmail := rng.Float64() < 0.27
		vmailMsgs := 0
		if vmail {
			vmailMsgs = 10 + rng.Intn(40)
		}
		dayMin := clamp(180+50*rng.NormFloat64(), 0, 350)
		eveMin := clamp(200+50*rng.NormFloat64(), 0, 360)
		nightMin := clamp(200+50*rng.NormFloat64(), 0, 390)
		intlMin := clamp(10+2.8*rng.NormFloat64(), 0, 20)
		csCalls := poisson(rng, 1.5)

		churn := (csCalls >= 4 && dayMin < 250) || dayMin > 260 || (intl && intlMin > 13)

		rec := []string{
			states[rng.Intn(len(states))],
			strconv.Itoa(1 + rng.Intn(240)),
			yesNo(intl),
			yesNo(vmail),
			strconv.Itoa(vmailMsgs),
			fmtFloat(dayMin),
			strconv.Itoa(50 + rng.Intn(110)),
			fmtFloat(dayMin * 0.17),
			fmtFloat(eveMin),
			strconv.Itoa(50 + rng.Intn(110)),
			fmtFloat(nightMin),
			strconv.Itoa(50 + rng.Intn(110)),
			fmtFloat(intlMin),
			strconv.Itoa(1 + rng.Intn(10)),
			strconv.Itoa(csCalls),
			[]string{"408", "415", "510"}[rng.Intn(3)],
			boolString(churn),
		}
		_ = w.Write(rec)
	}
	w.Flush()
	return buf.Bytes()
}

// WriteCSV writes Generate(n, seed) to dir/churn.csv and returns the path.
func WriteCSV(tb testing.TB, dir string, n int, seed int64) string {
	tb.Helper()
	path := filepath.Join(dir, "churn.csv")
	if err := os.WriteFile(path, Generate(n, seed), 0o644); err != nil {
		tb.Fatalf("write dataset: %v", err)
	}
	return path
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func poisson(rng *rand.Rand, lambda float64) int {
	l := math.Exp(-lambda)
	k, p := 0, 1.0
	for {
		p *= rng.Float64()
		if p <= l {
			return k
		}
		k++
	}
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', 2, 64)
}

func yesNo(b bool) string {
	if b {
		return dataset.BinaryPositive
	}
	return dataset.BinaryNegative
}

func boolString(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
