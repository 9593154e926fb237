package models

import "time"

// IngestionStage is one step of the ingestion state machine. Stages only
// move forward, except for the two off-ramps (failed and cancelled), which
// may be entered from any non-terminal stage.
type IngestionStage string

const (
	StageQueued     IngestionStage = "queued"
	StageExtracting IngestionStage = "extracting"
	StageChunking   IngestionStage = "chunking"
	StageEmbedding  IngestionStage = "embedding"
	StageStoring    IngestionStage = "storing"
	StageFinalizing IngestionStage = "finalizing"
	StageCompleted  IngestionStage = "completed"
	StageFailed     IngestionStage = "failed"
	StageCancelled  IngestionStage = "cancelled"
)

// RetryCounts records the attempt number reached by each retried stage.
// Counters start at 1 (the first attempt) and only grow.
type RetryCounts struct {
	Extraction  int `json:"extraction"`
	Embedding   int `json:"embedding"`
	StoreChunks int `json:"storeChunks"`
}

// IngestionProgress is the snapshot persisted at every stage transition.
// Once CancelRequested is set it is never cleared within a run.
type IngestionProgress struct {
	Stage           IngestionStage `json:"stage"`
	ProgressPercent int            `json:"progressPercent"`
	Message         string         `json:"message,omitempty"`
	CancelRequested bool           `json:"cancelRequested"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	Retries         RetryCounts    `json:"retries"`
}

// CrawlSkipCounts breaks down why crawl candidates were not ingested.
type CrawlSkipCounts struct {
	DisallowedByRobots int `json:"disallowedByRobots"`
	InvalidOrDuplicate int `json:"invalidOrDuplicate"`
	NonHTML            int `json:"nonHtml"`
	FetchFailed        int `json:"fetchFailed"`
	LowValue           int `json:"lowValue"`
	Oversized          int `json:"oversized"`
	PathRule           int `json:"pathRule"`
}

// CrawlSummary is the structured record of one crawl run.
type CrawlSummary struct {
	SourceURL               string          `json:"sourceUrl"`
	AllowedPathPrefixes     []string        `json:"allowedPathPrefixes,omitempty"`
	DisallowedPathPrefixes  []string        `json:"disallowedPathPrefixes,omitempty"`
	PagesCrawled            int             `json:"pagesCrawled"`
	PagesWithContent        int             `json:"pagesWithContent"`
	VisitedURLs             []string        `json:"visitedUrls"`
	Skipped                 CrawlSkipCounts `json:"skipped"`
	CrawlDelayMs            int             `json:"crawlDelayMs"`
	Truncated               bool            `json:"truncated"`
	TotalCharacters         int             `json:"totalCharacters"`
}

// SourceMeta describes the raw input that produced a document.
type SourceMeta struct {
	FileName    string `json:"fileName,omitempty"`
	FileType    string `json:"fileType,omitempty"`
	FileSize    int    `json:"fileSize,omitempty"`
	StorageURL  string `json:"storageUrl,omitempty"`
	SourceURL   string `json:"sourceUrl,omitempty"`
	FAQQuestion string `json:"faqQuestion,omitempty"`
}

// DocumentMetadata is the full typed metadata blob stored on a document.
type DocumentMetadata struct {
	Ingestion           IngestionProgress `json:"ingestion"`
	Source              *SourceMeta       `json:"source,omitempty"`
	Crawl               *CrawlSummary     `json:"crawl,omitempty"`
	ContentTruncated    bool              `json:"contentTruncated,omitempty"`
	ContentCharacters   int               `json:"contentCharacters,omitempty"`
	GeneratedChunkCount int               `json:"generatedChunkCount,omitempty"`
	Error               string            `json:"error,omitempty"`
	Cancelled           bool              `json:"cancelled,omitempty"`
	CancelRequestedAt   *time.Time        `json:"cancelRequestedAt,omitempty"`
	CompletedAt         *time.Time        `json:"ingestionCompletedAt,omitempty"`
	FailedAt            *time.Time        `json:"ingestionFailedAt,omitempty"`
}
