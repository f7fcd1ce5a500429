package cronjob

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/datacharted/go-provisioning-backend/internal/provisioning/repository"
)

const stuckCreatingMaxAge = 30 * time.Minute

// Scheduler runs the periodic reaper that flips records stranded in creating
// (e.g. after a process crash mid-pipeline) into error so polling clients are
// not left waiting forever.
type Scheduler struct {
	records *repository.Repo
}

func NewScheduler(records *repository.Repo) *Scheduler {
	return &Scheduler{records: records}
}

// Start initializes cron tasks
func (s *Scheduler) Start() {
	c := cron.New()

	_, err := c.AddFunc("@every 10m", func() {
		s.reapStuckRecords()
	})
	if err != nil {
		log.Printf("Failed to create cron job: %v", err)
		return
	}

	log.Println("Cron scheduler started (reaping stuck provisioning records every 10m)")
	c.Start()
}

func (s *Scheduler) reapStuckRecords() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.records.ExpireStuckCreating(ctx, stuckCreatingMaxAge)
	if err != nil {
		log.Printf("[warn] operation=reap_stuck error=%v", err)
		return
	}
	if n > 0 {
		log.Printf("[info] operation=reap_stuck message=marked %d stuck records as error", n)
	}
}
