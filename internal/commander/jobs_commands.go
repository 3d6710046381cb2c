package commander

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"pertforest/internal/jobs"
)

// trainModelBackground trains on the loaded data in a job. The result
// becomes the current model unless the job was cancelled meanwhile.
func (c *Commander) trainModelBackground(args []string) *jobs.Job {
	if c.loadedData == nil {
		fmt.Fprintln(c.out, c.red("No data loaded. Use 'load <file> <target>' first"))
		return nil
	}

	config, err := parseModelArgs(args)
	if err != nil {
		fmt.Fprintf(c.out, "%s %v\n", c.red("✗"), err)
		return nil
	}

	job := c.jobManager.CreateJob("train", fmt.Sprintf("Training %s model", config.Algorithm))
	ctx := c.jobManager.Start(context.Background(), job)
	fmt.Fprintf(c.out, "Job submitted: %s\n", c.cyan(job.ID))

	ds := c.loadedData
	go func() {
		job.AddLog(fmt.Sprintf("Starting training of %s model", config.Algorithm))
		job.SetProgress(0.2)

		if ctx.Err() != nil {
			job.AddLog("Training cancelled by user")
			return
		}

		result, err := fitAndScore(ds, config)
		if err != nil {
			job.AddLog(fmt.Sprintf("Training failed: %v", err))
			job.SetError(err)
			return
		}

		c.mu.Lock()
		if ctx.Err() != nil {
			c.mu.Unlock()
			job.AddLog("Training cancelled by user, result discarded")
			return
		}
		c.setCurrentModel(ds, result)
		c.mu.Unlock()

		job.SetProgress(1.0)
		job.AddLog(fmt.Sprintf("Training completed. RMSE: %.4f", result.metrics.RMSE))
		job.SetResult(result.metrics)
		job.SetStatus(jobs.JobCompleted)

		logger.WithFields(logrus.Fields{
			"job":  job.ID,
			"rmse": result.metrics.RMSE,
		}).Info("background training finished")
	}()

	return job
}

func (c *Commander) listAllJobs() {
	list := c.jobManager.ListJobs()
	if len(list) == 0 {
		fmt.Fprintln(c.out, "No jobs found")
		return
	}

	fmt.Fprintln(c.out, c.cyan("Background Jobs:"))
	fmt.Fprintln(c.out, strings.Repeat("-", 90))
	fmt.Fprintf(c.out, "%-36s %-8s %-10s %-9s %s\n", "Job ID", "Type", "Status", "Progress", "Description")
	fmt.Fprintln(c.out, strings.Repeat("-", 90))

	for _, job := range list {
		statusColor := c.yellow
		switch job.GetStatus() {
		case jobs.JobCompleted:
			statusColor = c.green
		case jobs.JobFailed:
			statusColor = c.red
		case jobs.JobRunning:
			statusColor = c.cyan
		}

		progress := fmt.Sprintf("%.0f%%", job.GetProgress()*100)
		fmt.Fprintf(c.out, "%-36s %-8s %-10s %-9s %s\n",
			job.ID, job.Type, statusColor(string(job.GetStatus())), progress, job.Description)
	}
}

func (c *Commander) showJobStatus(jobID string) {
	job, exists := c.jobManager.GetJob(jobID)
	if !exists {
		fmt.Fprintf(c.out, "%s Job not found: %s\n", c.red("✗"), jobID)
		return
	}

	fmt.Fprintf(c.out, "\n%s\n", c.cyan("Job Details:"))
	fmt.Fprintf(c.out, "ID:          %s\n", job.ID)
	fmt.Fprintf(c.out, "Type:        %s\n", job.Type)
	fmt.Fprintf(c.out, "Status:      %s\n", job.GetStatus())
	fmt.Fprintf(c.out, "Progress:    %.0f%%\n", job.GetProgress()*100)
	fmt.Fprintf(c.out, "Start Time:  %s\n", job.StartTime.Format("15:04:05"))
}

func (c *Commander) cancelJob(jobID string) {
	if err := c.jobManager.CancelJob(jobID); err != nil {
		fmt.Fprintf(c.out, "%s %v\n", c.red("✗"), err)
		return
	}
	fmt.Fprintf(c.out, "%s Job cancelled: %s\n", c.green("✓"), jobID)
}

func (c *Commander) showJobLogs(jobID string) {
	job, exists := c.jobManager.GetJob(jobID)
	if !exists {
		fmt.Fprintf(c.out, "%s Job not found: %s\n", c.red("✗"), jobID)
		return
	}

	logs := job.GetLogs()
	if len(logs) == 0 {
		fmt.Fprintln(c.out, "No logs available")
		return
	}

	fmt.Fprintf(c.out, "\n%s\n", c.cyan(fmt.Sprintf("Logs for job %s:", jobID)))
	for _, line := range logs {
		fmt.Fprintln(c.out, line)
	}
}
