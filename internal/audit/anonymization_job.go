package audit

import (
	"context"
	"log/slog"
)

// AnonymizationJobConfig configures the IP anonymization job.
type AnonymizationJobConfig struct {
	Repository Repository   // Audit log repository
	Logger     *slog.Logger // Logger for job execution
	DryRun     bool         // If true, only log what would be anonymized
}

// AnonymizationJob blanks the host part of client IPs on audit records
// older than the retention window.
type AnonymizationJob struct {
	config AnonymizationJobConfig
}

// NewAnonymizationJob creates a new IP anonymization job.
func NewAnonymizationJob(config AnonymizationJobConfig) *AnonymizationJob {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &AnonymizationJob{config: config}
}

// Run executes the IP anonymization process for eligible audit records.
// Returns the number of records anonymized.
func (j *AnonymizationJob) Run(ctx context.Context) (int, error) {
	if j.config.Repository == nil {
		return 0, ErrNilRepository
	}

	cutoff := IPAnonymizationCutoff()
	j.config.Logger.Info("starting IP anonymization",
		"cutoff_date", cutoff,
		"days_retention", IPRetentionDays,
		"dry_run", j.config.DryRun,
	)

	if j.config.DryRun {
		records, err := j.config.Repository.ListAll()
		if err != nil {
			return 0, err
		}
		eligible := 0
		for _, rec := range records {
			if rec.IPAddress != "" && rec.CreatedAt.Before(cutoff) {
				eligible++
			}
		}
		j.config.Logger.Info("dry run complete", "eligible", eligible)
		return 0, nil
	}

	changed, err := j.config.Repository.AnonymizeIPsBefore(cutoff)
	if err != nil {
		return 0, err
	}

	j.config.Logger.Info("IP anonymization complete", "anonymized", changed)
	return changed, nil
}
