package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"guardian-amm/internal/storage"
)

const defaultExportMaxPoints = 500

// Export renders the decimated observation-sample history as CSV and/or
// a PNG price-deviation chart, reading from the optional Postgres
// mirror — the only place this history survives process restarts.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.MaxPoints <= 0 {
		opts.MaxPoints = defaultExportMaxPoints
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("storage.dsn not configured; cannot export")
	}
	defer store.Close()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	samples, err := store.ListSamplesBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		a.Logger.Info().Msg("no observation samples found for export window")
		return nil
	}

	downsampled := downsampleSamples(samples, opts.MaxPoints)
	a.Logger.Info().Int("total", len(samples)).Int("exported", len(downsampled)).Msg("exporting observation samples")

	if opts.CSVPath != "" {
		if err := writeSamplesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeSamplesPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}
	return nil
}

func downsampleSamples(samples []storage.ObservationSample, max int) []storage.ObservationSample {
	if max <= 0 || len(samples) <= max {
		return samples
	}

	result := make([]storage.ObservationSample, 0, max)
	step := float64(len(samples)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		result = append(result, samples[idx])
	}
	return result
}

func writeSamplesCSV(path string, samples []storage.ObservationSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"bucket_ts", "block_number", "oracle_price", "amm_price", "deviation_pct"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sample := range samples {
		record := []string{
			sample.Bucket.Format(time.RFC3339),
			strconv.FormatInt(sample.BlockNumber, 10),
			sample.OraclePrice.String(),
			sample.AMMPrice.String(),
			sample.DeviationPct.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSamplesPNG(path string, samples []storage.ObservationSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(samples))
	oracle := make([]float64, len(samples))
	amm := make([]float64, len(samples))
	deviation := make([]float64, len(samples))

	for i, sample := range samples {
		x[i] = sample.Bucket
		oracle[i] = sample.OraclePrice.InexactFloat64()
		amm[i] = sample.AMMPrice.InexactFloat64()
		deviation[i] = sample.DeviationPct.InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (USDC/WETH)",
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Deviation (%)",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Oracle",
				XValues: x,
				YValues: oracle,
			},
			chart.TimeSeries{
				Name:    "AMM",
				XValues: x,
				YValues: amm,
			},
			chart.TimeSeries{
				Name:    "Deviation %",
				XValues: x,
				YValues: deviation,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
