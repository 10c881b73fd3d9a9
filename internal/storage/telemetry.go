package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// DecisionRow is the telemetry of one engine decision.
type DecisionRow struct {
	MatchID    string  `parquet:"match_id,dict"`
	Player     string  `parquet:"player,dict"`
	Ply        int32   `parquet:"ply"`
	FEN        string  `parquet:"fen"`
	Move       string  `parquet:"move"`
	Score      float64 `parquet:"score"`
	MaxDepth   int32   `parquet:"max_depth"`
	MaxBreadth int64   `parquet:"max_breadth"`
	Depth      int32   `parquet:"depth"`
	Nodes      int64   `parquet:"nodes"`
	Hits       int64   `parquet:"hits"`
	ElapsedMS  int64   `parquet:"elapsed_ms"`
	RemainMS   int64   `parquet:"remaining_ms"`
	Stopped    bool    `parquet:"stopped"`
}

// WriteDecisions writes rows to a zstd-compressed parquet file, replacing it
// atomically.
func WriteDecisions(outPath string, rows []DecisionRow) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	// Write to a temp file and rename atomically.
	tmpPath := outPath + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", "decision_v1"),
	); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// ReadDecisions reads every row of a decision file.
func ReadDecisions(path string) ([]DecisionRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}

	reader := parquet.NewGenericReader[DecisionRow](pf)
	defer reader.Close()

	rows := make([]DecisionRow, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows[:n], nil
}
