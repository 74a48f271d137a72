package main

import (
	"time"

	"github.com/deutschtag/germanday/config"
	"github.com/deutschtag/germanday/models"
	"github.com/deutschtag/germanday/notify"
	"github.com/deutschtag/germanday/pipeline"
	"github.com/deutschtag/germanday/routes"
	"github.com/deutschtag/germanday/storage"
	"github.com/deutschtag/germanday/store"
	"github.com/deutschtag/germanday/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	event := config.LoadEvent()

	db := config.InitDatabase(&models.Submission{}, &models.OrphanedFile{}, &models.AdminUser{}, &models.PageView{})

	gofile := storage.NewClient(cfg.StorageBaseURL, cfg.StorageAPIToken, cfg.StorageFolderID, time.Duration(cfg.StorageUploadTimeout)*time.Second)

	orphans := store.NewOrphanQueue(db, cfg.OrphanMaxAttempts)
	orphans.StartSweeper(gofile, time.Duration(cfg.OrphanSweepMinutes)*time.Minute)

	notifier := notify.NewLogService(utils.Sugar)
	if cfg.OrganizerMail != "" {
		notifier = notify.NewMailService(notifier, utils.SendMail, cfg.OrganizerMail)
	}

	pipe := &pipeline.Pipeline{
		Uploader:   gofile,
		Recorder:   store.NewSubmissionStore(db),
		Deleter:    gofile,
		Orphans:    orphans,
		Compensate: cfg.CompensateOnFailure,
	}

	r := routes.SetupRouter(routes.Deps{
		DB:       db,
		Event:    event,
		Pipeline: pipe,
		Deleter:  gofile,
		Orphans:  orphans,
		Notifier: notifier,
	})

	// Read/write deadlines must outlast the storage upload budget or large
	// submissions get cut off mid-transfer.
	serverTimeout := utils.UploadServerTimeout(time.Duration(cfg.StorageUploadTimeout) * time.Second)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.NewServer(":"+cfg.AppPort, r, serverTimeout, serverTimeout).ListenAndServe(); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
