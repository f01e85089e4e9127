package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document statuses.
const (
	DocumentProcessing = "processing"
	DocumentProcessed  = "processed"
)

// Agent statuses.
const (
	AgentActive   = "active"
	AgentIdle     = "idle"
	AgentDisabled = "disabled"
)

// Provider statuses.
const (
	ProviderConnected    = "connected"
	ProviderDisconnected = "disconnected"
)

type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Category   string    `json:"category"`
	Size       string    `json:"size"`
	UploadDate string    `json:"upload_date"`
	Status     string    `json:"status"`
	Content    string    `json:"content"`
	Tags       []string  `json:"tags"`
	Pages      int       `json:"pages,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// DocumentFilter restricts a document listing. Empty fields match all.
type DocumentFilter struct {
	Category string
	Status   string
}

type Agent struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Enabled     bool     `json:"enabled"`
	Specialties []string `json:"specialties"`
	Tools       []string `json:"tools"`
	Status      string   `json:"status"`
}

type Usage struct {
	Requests int     `json:"requests"`
	Tokens   int     `json:"tokens"`
	Cost     float64 `json:"cost"`
}

type Provider struct {
	Name   string   `json:"name"`
	Models []string `json:"models"`
	Status string   `json:"status"`
	APIKey string   `json:"-"`
	Usage  Usage    `json:"usage"`
}

// SystemStats are the dashboard counters.
type SystemStats struct {
	DocumentsProcessed  int     `json:"documents_processed"`
	TotalQueries        int     `json:"total_queries"`
	ActiveAgents        int     `json:"active_agents"`
	SuccessRate         float64 `json:"success_rate"`
	AverageResponseTime string  `json:"average_response_time"`
	KnowledgeBaseSizeMB int     `json:"knowledge_base_size_mb"`
}

// Stat keys in the system_stats table.
const (
	StatDocumentsProcessed  = "documents_processed"
	StatTotalQueries        = "total_queries"
	StatActiveAgents        = "active_agents"
	StatSuccessRate         = "success_rate"
	StatAverageResponseTime = "average_response_time"
	StatKnowledgeBaseSizeMB = "knowledge_base_size_mb"
)

type ChatMessage struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Stage     string    `json:"stage,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	RunID     string    `json:"run_id,omitempty"` // pipeline run the entry belongs to
	CreatedAt time.Time `json:"created_at"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
