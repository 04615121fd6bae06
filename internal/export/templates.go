package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"

	"captiondesk/api/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var sheetTemplate = template.Must(
	template.New("review_sheet.html").Funcs(template.FuncMap{
		"lower":       strings.ToLower,
		"formatDate":  formatDate,
		"statusLabel": statusLabel,
	}).ParseFS(templateFS, "templates/review_sheet.html"),
)

// SheetData is what the review sheet template renders.
type SheetData struct {
	Filename    string
	FileType    string
	Status      string
	DriveFileID string
	DriveURL    string
	UploadedAt  time.Time
	Captions    []SheetCaption
	ExportedAt  time.Time
	ExportedBy  string
}

type SheetCaption struct {
	Tone       string
	Content    string
	Status     string
	Version    int
	ApprovedAt *time.Time
}

func sheetFromItem(item store.ContentItem, exportedBy string, now time.Time) SheetData {
	data := SheetData{
		Filename:    item.Filename,
		FileType:    item.FileType,
		Status:      string(item.Status),
		DriveFileID: item.DriveFileID,
		DriveURL:    item.DriveURL,
		UploadedAt:  item.UploadedAt,
		Captions:    make([]SheetCaption, 0, len(item.Captions)),
		ExportedAt:  now,
		ExportedBy:  exportedBy,
	}
	for _, c := range item.Captions {
		data.Captions = append(data.Captions, SheetCaption{
			Tone:       string(c.Tone),
			Content:    c.Content,
			Status:     string(c.Status),
			Version:    c.Version,
			ApprovedAt: c.ApprovedAt,
		})
	}
	return data
}

// RenderSheetHTML renders the review sheet template with provided data
func RenderSheetHTML(data SheetData) (string, error) {
	var buf bytes.Buffer
	if err := sheetTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatDate(value any, layout string) string {
	switch t := value.(type) {
	case time.Time:
		return t.Format(layout)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format(layout)
	default:
		return ""
	}
}

func statusLabel(status string) string {
	return strings.ReplaceAll(status, "_", " ")
}
