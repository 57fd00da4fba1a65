package dto

import (
	"time"

	"github.com/cuongbtq/clipjobs/internal/domain"
)

type CreateJobRequest struct {
	Type     string  `json:"type" binding:"required"`
	VideoURL *string `json:"video_url"`
	S3Key    *string `json:"s3_key"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	UserID   string  `json:"user_id"`
	Username string  `json:"username"`
}

// ToNewJob converts the request into store input
func (r CreateJobRequest) ToNewJob() domain.NewJob {
	return domain.NewJob{
		Type:     domain.JobType(r.Type),
		VideoURL: r.VideoURL,
		S3Key:    r.S3Key,
		Start:    r.Start,
		End:      r.End,
		UserID:   r.UserID,
		Username: r.Username,
	}
}

type ListJobsRequest struct {
	UserID   string `form:"user_id"`
	Type     string `form:"type"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID       string  `json:"job_id"`
	Type        string  `json:"type"`
	VideoURL    *string `json:"video_url"`
	S3Key       *string `json:"s3_key"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	UserID      string  `json:"user_id"`
	Username    string  `json:"username"`
	Status      string  `json:"status"`
	Error       *string `json:"error"`
	DownloadURL *string `json:"download_url"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// FromJob renders a job for the API
func FromJob(job *domain.Job) JobDTO {
	return JobDTO{
		JobID:       job.JobID,
		Type:        string(job.Type),
		VideoURL:    job.VideoURL,
		S3Key:       job.S3Key,
		Start:       job.Start,
		End:         job.End,
		UserID:      job.UserID,
		Username:    job.Username,
		Status:      string(job.Status),
		Error:       job.Error,
		DownloadURL: job.DownloadURL,
		CreatedAt:   job.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:   job.UpdatedAt.Format(time.RFC3339Nano),
	}
}

type DeleteBlobResponse struct {
	Key     string `json:"key"`
	Deleted int64  `json:"deleted"`
}
