package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/civic-workflow-api/internal/models"
	"github.com/noah-isme/civic-workflow-api/pkg/export"
	appErrors "github.com/noah-isme/civic-workflow-api/pkg/errors"
)

const (
	exportPageSize   = 100
	defaultExportCap = 5000
)

var activityExportHeaders = []string{"Time", "User", "Email", "Action", "Entity", "Entity ID", "Description", "IP Address", "Client"}

type activityReader interface {
	List(ctx context.Context, actor *models.Actor, query models.ActivityFilter) ([]models.ActivityLog, *models.Pagination, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
	Truncated   bool
}

// ActivityExportService renders the activity log visible to an actor as CSV or PDF.
type ActivityExportService struct {
	reader    activityReader
	renderers map[string]datasetRenderer
	maxRows   int
	logger    *zap.Logger
	now       func() time.Time
}

// NewActivityExportService constructs the service. maxRows <= 0 uses the default cap.
func NewActivityExportService(reader activityReader, maxRows int, logger *zap.Logger) *ActivityExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRows <= 0 {
		maxRows = defaultExportCap
	}
	csv := export.NewCSVExporter()
	pdf := export.NewPDFExporter()
	return &ActivityExportService{
		reader:    reader,
		renderers: map[string]datasetRenderer{csv.Extension(): csv, pdf.Extension(): pdf},
		maxRows:   maxRows,
		logger:    logger,
		now:       time.Now,
	}
}

// Export renders every matching entry up to the row cap, newest first.
func (s *ActivityExportService) Export(ctx context.Context, actor *models.Actor, query models.ActivityFilter, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	dataset := export.Dataset{Title: "Activity Log", Headers: activityExportHeaders}
	truncated := false
	query.PageSize = exportPageSize
	for page := 1; ; page++ {
		query.Page = page
		entries, pagination, err := s.reader.List(ctx, actor, query)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if len(dataset.Rows) == s.maxRows {
				truncated = true
				break
			}
			dataset.Rows = append(dataset.Rows, activityRow(entry))
		}
		if truncated || len(entries) == 0 || pagination == nil || page >= pagination.TotalPages {
			break
		}
	}

	body, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render export")
	}
	if truncated {
		s.logger.Info("activity export truncated", requestIDField(ctx), zap.Int("rows", len(dataset.Rows)))
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("activity_logs_%s.%s", s.now().UTC().Format("20060102_150405"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
		Rows:        len(dataset.Rows),
		Truncated:   truncated,
	}, nil
}

func activityRow(entry models.ActivityLog) map[string]string {
	client := ""
	if entry.Client != nil {
		client = strings.TrimSpace(fmt.Sprintf("%s %s / %s", entry.Client.Browser, entry.Client.Version, entry.Client.OS))
	}
	return map[string]string{
		"Time":        entry.CreatedAt.UTC().Format(time.RFC3339),
		"User":        entry.UserName,
		"Email":       entry.UserEmail,
		"Action":      string(entry.Action),
		"Entity":      entry.EntityType,
		"Entity ID":   entry.EntityID,
		"Description": entry.Description,
		"IP Address":  entry.IPAddress,
		"Client":      client,
	}
}
