package models

import (
	"github.com/customeros/mailprobe/internal/enum"
)

// BatchMessage is the queue payload for one batch.
type BatchMessage struct {
	BatchId         string          `json:"batchId" validate:"required"`
	Emails          []string        `json:"emails" validate:"required,min=1"`
	ValidationFlags ValidationFlags `json:"validation_flags"`
}

// BatchProgress is the stored and broadcast snapshot of a batch.
type BatchProgress struct {
	BatchId         string              `json:"batchId"`
	RequestId       string              `json:"requestId,omitempty"`
	Status          enum.BatchStatus    `json:"status"`
	IsComplete      bool                `json:"isComplete"`
	ValidatedEmails []*ValidationResult `json:"validatedEmails"`
	TotalEmails     int                 `json:"totalEmails"`
	ProcessedCount  int                 `json:"processedCount"`
	LastUpdated     string              `json:"lastUpdated"`
	Stalled         bool                `json:"stalled,omitempty"`
}

type BatchSummary struct {
	BatchId         string           `json:"batchId"`
	Status          enum.BatchStatus `json:"status"`
	ProcessedEmails int              `json:"processedEmails"`
	TotalEmails     int              `json:"totalEmails"`
}

type MultiBatchRequest struct {
	RequestId       string           `json:"requestId"`
	BatchIds        []string         `json:"batchIds"`
	TotalEmails     int              `json:"totalEmails"`
	ProcessedEmails int              `json:"processedEmails"`
	Status          enum.BatchStatus `json:"status"`
	CreatedAt       string           `json:"createdAt"`
	LastUpdated     string           `json:"lastUpdated"`
	Batches         []BatchSummary   `json:"batches,omitempty"`
	Progress        string           `json:"progress,omitempty"`
}

// SubmissionHandle is returned to batch callers.
type SubmissionHandle struct {
	BatchId         string              `json:"batchId"`
	Status          enum.BatchStatus    `json:"status"`
	TotalEmails     int                 `json:"totalEmails"`
	ProcessedEmails int                 `json:"processedEmails"`
	EstimatedTime   string              `json:"estimatedTime,omitempty"`
	Results         []*ValidationResult `json:"results,omitempty"`
}

type BatchStatusResponse struct {
	BatchId         string              `json:"batchId"`
	Status          enum.BatchStatus    `json:"status"`
	Message         string              `json:"message,omitempty"`
	TotalEmails     int                 `json:"totalEmails,omitempty"`
	ProcessedEmails int                 `json:"processedEmails"`
	Results         []*ValidationResult `json:"results,omitempty"`
	LastUpdated     string              `json:"lastUpdated,omitempty"`
	Stalled         bool                `json:"stalled,omitempty"`
	MultiBatch      *MultiBatchRequest  `json:"multiBatch,omitempty"`
}
