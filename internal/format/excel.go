package format

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/storage"
)

const KindExcel = "excel"

// ExcelDescriptor reads one sheet of an .xlsx workbook. An empty Sheet means
// the first sheet.
type ExcelDescriptor struct {
	Sheet      string `mapstructure:"sheet" json:"sheet,omitempty"`
	HasHeader  *bool  `mapstructure:"hasHeader" json:"hasHeader,omitempty"`
	InferTypes bool   `mapstructure:"inferTypes" json:"inferTypes,omitempty"`
	SampleSize int    `mapstructure:"sampleSize" json:"sampleSize,omitempty" validate:"min=0"`
}

func (ExcelDescriptor) FormatKind() string { return KindExcel }

func init() {
	register(KindExcel, func() *ExcelDescriptor { return &ExcelDescriptor{} }, func(d *ExcelDescriptor) (FormatHandler, error) {
		n := d.SampleSize
		if n <= 0 {
			n = defaultSampleSize
		}
		return &ExcelHandler{
			sheet:      d.Sheet,
			hasHeader:  d.HasHeader == nil || *d.HasHeader,
			infer:      d.InferTypes,
			sampleSize: n,
		}, nil
	})
}

type ExcelHandler struct {
	sheet      string
	hasHeader  bool
	infer      bool
	sampleSize int
}

func (h *ExcelHandler) open(ctx context.Context, src storage.BlobSource, blob storage.BlobPath) (*excelize.File, *excelize.Rows, error) {
	data, err := storage.ReadAll(ctx, src, blob)
	if err != nil {
		return nil, nil, err
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to open workbook: %w", blob.URI, err)
	}
	sheet := h.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			f.Close()
			return nil, nil, fmt.Errorf("%s: workbook has no sheets", blob.URI)
		}
		sheet = sheets[0]
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: failed to read sheet %q: %w", blob.URI, sheet, err)
	}
	return f, rows, nil
}

func (h *ExcelHandler) InferSchema(ctx context.Context, src storage.BlobSource, blob storage.BlobPath) (*model.RecordSchema, error) {
	f, rows, err := h.open(ctx, src, blob)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	defer rows.Close()

	var header []string
	var sample [][]string
	limit := 1
	if h.infer {
		limit = h.sampleSize
	}
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", blob.URI, err)
		}
		if h.hasHeader && header == nil {
			header = cols
			continue
		}
		sample = append(sample, cols)
		if len(sample) >= limit {
			break
		}
	}

	width := len(header)
	for _, r := range sample {
		if len(r) > width {
			width = len(r)
		}
	}
	if width == 0 {
		return nil, fmt.Errorf("%s: no columns found", blob.URI)
	}

	fields := make([]model.SchemaField, width)
	for i := range fields {
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		kind := model.KindString
		if h.infer {
			var det columnDetector
			for _, r := range sample {
				if i < len(r) && strings.TrimSpace(r[i]) != "" {
					det.observe(strings.TrimSpace(r[i]))
				}
			}
			kind = det.kind()
		}
		fields[i] = model.SchemaField{Name: name, Type: model.NewType(kind, true)}
	}
	return model.NewSchema(fields...), nil
}

func (h *ExcelHandler) CreateRecordSource(ctx context.Context, src storage.BlobSource, blob storage.BlobPath, schema *model.RecordSchema) (RecordSource, error) {
	if schema == nil {
		var err error
		if schema, err = h.InferSchema(ctx, src, blob); err != nil {
			return nil, err
		}
	}
	f, rows, err := h.open(ctx, src, blob)
	if err != nil {
		return nil, err
	}
	s := &excelSource{f: f, rows: rows, fields: schema.Fields, blob: blob}
	if h.hasHeader && rows.Next() {
		if _, err := rows.Columns(); err != nil {
			s.Close()
			return nil, fmt.Errorf("%s: %w", blob.URI, err)
		}
	}
	return s, nil
}

type excelSource struct {
	f      *excelize.File
	rows   *excelize.Rows
	fields []model.SchemaField
	blob   storage.BlobPath
	cur    model.Record
	err    error
}

func (s *excelSource) Next() bool {
	s.cur = nil
	if s.f == nil || s.err != nil {
		return false
	}
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			s.err = fmt.Errorf("%s: %w", s.blob.URI, err)
		}
		return false
	}
	cols, err := s.rows.Columns()
	if err != nil {
		s.err = fmt.Errorf("%s: %w", s.blob.URI, err)
		return false
	}
	rec := make(model.Record, len(s.fields))
	for i, f := range s.fields {
		if i >= len(cols) || cols[i] == "" {
			rec[f.Name] = nil
			continue
		}
		rec[f.Name] = convertText(cols[i], f.Type)
	}
	s.cur = rec
	return true
}

func (s *excelSource) Record() model.Record { return s.cur }

func (s *excelSource) Err() error { return s.err }

func (s *excelSource) Close() error {
	if s.f == nil {
		return nil
	}
	rowsErr := s.rows.Close()
	err := s.f.Close()
	s.f = nil
	if err == nil {
		err = rowsErr
	}
	return err
}
