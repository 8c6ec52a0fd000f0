package logger

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mblsha/miniware-mdp-m01/internal/device"
	"github.com/mblsha/miniware-mdp-m01/internal/mdp"
)

// Logger records timestamped channel telemetry to CSV files with automatic
// rotation. One row per channel per sample keeps the files trivially
// greppable by channel.
type Logger struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool

	file   *os.File
	writer *csv.Writer
	lastTs time.Time
	rows   int
}

// Config holds logger configuration.
type Config struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Path       string `yaml:"path" json:"path"`
	IntervalMs int    `yaml:"interval_ms" json:"intervalMs"`
}

const (
	maxRowsPerFile = 100_000 // rotate after 100k rows
)

var csvHeader = []string{
	"timestamp", "channel", "online", "machine", "mode",
	"out_v_mv", "out_i_ma", "out_p_mw",
	"in_v_mv", "in_i_ma", "in_p_mw",
	"set_v_mv", "set_i_ma",
	"temp_c", "output_on", "locked",
}

// New creates a new Logger.
func New(cfg Config) *Logger {
	if cfg.Path == "" {
		cfg.Path = "/var/log/mdpdash"
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval < 50*time.Millisecond {
		interval = time.Second
	}
	return &Logger{
		dir:      cfg.Path,
		interval: interval,
		enabled:  cfg.Enabled,
	}
}

// SetEnabled allows toggling logging at runtime.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on && l.file != nil {
		l.closeFile()
	}
}

// IsEnabled returns whether logging is active.
func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Record writes one row per online channel if the minimum interval has
// elapsed since the previous sample.
func (l *Logger) Record(snap device.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	now := time.Now()
	if now.Sub(l.lastTs) < l.interval {
		return
	}
	l.lastTs = now

	if l.writer == nil || l.rows >= maxRowsPerFile {
		if err := l.rotateFile(now); err != nil {
			log.Printf("[logger] rotate failed: %v", err)
			return
		}
	}

	for i := range snap.Channels {
		c := &snap.Channels[i]
		if !c.Online {
			continue
		}
		if err := l.writer.Write(buildRow(now, i, c)); err != nil {
			log.Printf("[logger] write failed: %v", err)
			return
		}
		l.rows++
	}
	l.writer.Flush()
}

// Close flushes and closes the current log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFile()
}

func (l *Logger) rotateFile(now time.Time) error {
	l.closeFile()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}

	filename := fmt.Sprintf("mdp_%s.csv", now.Format("2006-01-02_150405"))
	path := filepath.Join(l.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.rows = 0

	if err := l.writer.Write(csvHeader); err != nil {
		return err
	}
	l.writer.Flush()

	log.Printf("[logger] opened %s", path)
	return nil
}

func (l *Logger) closeFile() {
	if l.writer != nil {
		l.writer.Flush()
		l.writer = nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

func buildRow(ts time.Time, ch int, c *mdp.Channel) []string {
	return []string{
		ts.Format(time.RFC3339Nano),
		fmt.Sprintf("%d", ch),
		boolStr(c.Online),
		c.Type.String(),
		c.Mode.String(),
		fmt.Sprintf("%.0f", c.OutVoltage),
		fmt.Sprintf("%.0f", c.OutCurrent),
		fmt.Sprintf("%.1f", c.OutPower),
		fmt.Sprintf("%.0f", c.InVoltage),
		fmt.Sprintf("%.0f", c.InCurrent),
		fmt.Sprintf("%.1f", c.InPower),
		fmt.Sprintf("%.0f", c.SetVoltage),
		fmt.Sprintf("%.0f", c.SetCurrent),
		fmt.Sprintf("%.1f", c.Temperature),
		boolStr(c.OutputOn),
		boolStr(c.Locked),
	}
}

func boolStr(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
