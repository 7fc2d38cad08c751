package style_list

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"vectormap/internal/style"
)

// BuiltinID names the style sheet compiled into the binary.
const BuiltinID = "basic"

//go:embed basic.json
var builtinSheet []byte

type StyleInfo struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Filename string   `json:"filename,omitempty"`
	Layers   int      `json:"layers"`
	Sources  []string `json:"sources"`
	// SourceLayers are the tile layers the sheet draws, in first-use order.
	SourceLayers []string `json:"source_layers"`
	Digest       string   `json:"digest"`
	Bytes        int64    `json:"bytes"`
}

type entry struct {
	info  StyleInfo
	sheet *style.Sheet
}

// Scanner keeps the style sheets found in a directory, keyed by file name
// without extension. The builtin sheet is always present unless a file with
// the same id replaces it.
type Scanner struct {
	stylesDir string
	logger    *zap.Logger

	mu     sync.RWMutex
	styles map[string]entry
}

func New(stylesDir string, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		stylesDir: stylesDir,
		logger:    logger,
		styles:    map[string]entry{},
	}
}

// Scan rereads the styles directory. Sheets that fail to parse are skipped
// with a warning; a missing directory leaves only the builtin sheet.
func (s *Scanner) Scan() error {
	styles := map[string]entry{}

	builtin, err := s.parse(BuiltinID, "", builtinSheet)
	if err != nil {
		return fmt.Errorf("failed to parse builtin style: %w", err)
	}
	styles[BuiltinID] = builtin

	var scanErr error
	if s.stylesDir != "" {
		scanErr = s.scanDir(styles)
	}

	s.mu.Lock()
	s.styles = styles
	s.mu.Unlock()

	s.logger.Info("Scanned styles", zap.Int("count", len(styles)), zap.String("dir", s.stylesDir))
	return scanErr
}

func (s *Scanner) scanDir(styles map[string]entry) error {
	entries, err := os.ReadDir(s.stylesDir)
	if err != nil {
		return fmt.Errorf("failed to read styles directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || strings.ToLower(filepath.Ext(e.Name())) != ".json" {
			continue
		}

		path := filepath.Join(s.stylesDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("Failed to read style", zap.String("path", path), zap.Error(err))
			continue
		}

		id := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		parsed, err := s.parse(id, e.Name(), data)
		if err != nil {
			s.logger.Warn("Failed to parse style, skipping", zap.String("path", path), zap.Error(err))
			continue
		}
		styles[id] = parsed
	}
	return nil
}

func (s *Scanner) parse(id, filename string, data []byte) (entry, error) {
	sheet, err := style.Parse(data, style.WithLogger(s.logger.With(zap.String("style", id))))
	if err != nil {
		return entry{}, err
	}

	sources := make([]string, 0, len(sheet.Sources))
	for name := range sheet.Sources {
		sources = append(sources, name)
	}
	sort.Strings(sources)

	name := sheet.Name
	if name == "" {
		name = id
	}
	return entry{
		info: StyleInfo{
			ID:           id,
			Name:         name,
			Filename:     filename,
			Layers:       len(sheet.Layers),
			Sources:      sources,
			SourceLayers: sheet.SourceLayers(),
			Digest:       sheet.Digest,
			Bytes:        int64(len(data)),
		},
		sheet: sheet,
	}, nil
}

// GetStyles lists the known sheets ordered by id.
func (s *Scanner) GetStyles() []StyleInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]StyleInfo, 0, len(s.styles))
	for _, e := range s.styles {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Scanner) GetStyleByID(id string) (*style.Sheet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.styles[id]
	if !ok {
		return nil, false
	}
	return e.sheet, true
}
