package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/college-portal-api/internal/models"
	appErrors "github.com/noah-isme/college-portal-api/pkg/errors"
	"github.com/noah-isme/college-portal-api/pkg/export"
)

// Roster export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type rosterRepository interface {
	ListStudentsByClass(ctx context.Context, className string) ([]models.User, error)
}

type renderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

// ExportFile is a rendered document ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

var rosterColumns = []export.Column{
	{Key: "roll_number", Title: "Roll No.", Width: 1},
	{Key: "registration_number", Title: "GR No.", Width: 1.4},
	{Key: "name", Title: "Name", Width: 3},
	{Key: "email", Title: "Email", Width: 3.2},
	{Key: "mobile_number", Title: "Mobile", Width: 1.8},
}

// ExportService renders class rosters.
type ExportService struct {
	classes   classLookup
	students  rosterRepository
	renderers map[string]renderer
	logger    *zap.Logger
}

// NewExportService constructs an ExportService with CSV and PDF renderers.
func NewExportService(classes classLookup, students rosterRepository, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		classes:  classes,
		students: students,
		renderers: map[string]renderer{
			ExportFormatCSV: export.NewCSVExporter(),
			ExportFormatPDF: export.NewPDFExporter(),
		},
		logger: logger,
	}
}

// ClassRoster renders the students of a class ordered by numeric roll number.
func (s *ExportService) ClassRoster(ctx context.Context, classID, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	r, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	class, err := s.classes.Get(ctx, classID)
	if err != nil {
		return nil, err
	}

	students, err := s.students.ListStudentsByClass(ctx, class.Name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	rows := make([]map[string]string, 0, len(students))
	for _, st := range students {
		rows = append(rows, map[string]string{
			"roll_number":         models.StringValue(st.RollNumber),
			"registration_number": models.StringValue(st.RegistrationNumber),
			"name":                st.Name,
			"email":               st.Email,
			"mobile_number":       st.MobileNumber,
		})
	}

	body, err := r.Render(export.Dataset{
		Title:   fmt.Sprintf("%s - %s", class.Name, class.CourseName),
		Columns: rosterColumns,
		Rows:    rows,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}

	s.logger.Debug("roster exported", zap.String("class", class.Name), zap.String("format", format), zap.Int("students", len(rows)))
	return &ExportFile{
		Filename:    fmt.Sprintf("roster-%s.%s", sanitizeFilename(class.Name), format),
		ContentType: r.ContentType(),
		Body:        body,
	}, nil
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
