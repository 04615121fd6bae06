// Command verify-links reports how captions are linked to content items and
// exits non-zero when any caption points at a missing content item.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"captiondesk/api/internal/config"
	"captiondesk/api/internal/logger"
	"captiondesk/api/internal/store"
)

func main() {
	os.Exit(realMain(os.Args[1:]))
}

// realMain owns every deferred cleanup so main can exit with its code.
func realMain(args []string) int {
	flags := flag.NewFlagSet("verify-links", flag.ContinueOnError)
	driveFileID := flags.String("drive-file-id", "", "only report the content item with this drive file id")
	envFile := flags.String("env", ".env", "dotenv file to load before reading the environment")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	config.LoadDotenv(*envFile)
	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolOptions())
	if err != nil {
		log.WithError(err).Error("database connection failed")
		return 2
	}
	defer db.Close()

	return run(ctx, store.NewPostgresStore(db), *driveFileID, log)
}

type linkReader interface {
	LinkSummaries(ctx context.Context, driveFileID string) ([]store.LinkSummary, error)
	OrphanedCaptions(ctx context.Context) ([]store.OrphanCaption, error)
}

// run logs the report and returns the process exit code.
func run(ctx context.Context, links linkReader, driveFileID string, log logrus.FieldLogger) int {
	summaries, err := links.LinkSummaries(ctx, driveFileID)
	if err != nil {
		log.WithError(err).Error("failed to load link summaries")
		return 2
	}
	if driveFileID != "" && len(summaries) == 0 {
		log.WithField("drive_file_id", driveFileID).Warn("no content item for drive file")
	}
	withoutCaptions := 0
	for _, sum := range summaries {
		if sum.CaptionCount == 0 {
			withoutCaptions++
		}
		log.WithFields(logrus.Fields{
			"content_item_id": sum.ContentItemID,
			"drive_file_id":   sum.DriveFileID,
			"filename":        sum.Filename,
			"file_type":       sum.FileType,
			"captions":        sum.CaptionCount,
		}).Info("content item")
	}

	orphans, err := links.OrphanedCaptions(ctx)
	if err != nil {
		log.WithError(err).Error("failed to load orphaned captions")
		return 2
	}
	for _, o := range orphans {
		log.WithFields(logrus.Fields{
			"caption_id":      o.CaptionID,
			"content_item_id": o.ContentItemID,
			"tone":            o.Tone,
			"created_at":      o.CreatedAt.UTC().Format(time.RFC3339),
		}).Warn("orphaned caption")
	}

	log.WithFields(logrus.Fields{
		"content_items":    len(summaries),
		"without_captions": withoutCaptions,
		"orphans":          len(orphans),
	}).Info("link verification finished")
	if len(orphans) > 0 {
		return 1
	}
	return 0
}
