// Package seed holds the fixed mock data set the dashboard starts from.
package seed

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

type Document struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Type       string   `yaml:"type"`
	Category   string   `yaml:"category"`
	Size       string   `yaml:"size"`
	UploadDate string   `yaml:"upload_date"`
	Status     string   `yaml:"status"`
	Content    string   `yaml:"content"`
	Tags       []string `yaml:"tags"`
}

type Agent struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Enabled     bool     `yaml:"enabled"`
	Specialties []string `yaml:"specialties"`
	Tools       []string `yaml:"tools"`
	Status      string   `yaml:"status"`
}

type Provider struct {
	Name   string   `yaml:"name"`
	Models []string `yaml:"models"`
	Status string   `yaml:"status"`
}

type Stats struct {
	DocumentsProcessed  int     `yaml:"documents_processed"`
	TotalQueries        int     `yaml:"total_queries"`
	ActiveAgents        int     `yaml:"active_agents"`
	SuccessRate         float64 `yaml:"success_rate"`
	AverageResponseTime string  `yaml:"average_response_time"`
	KnowledgeBaseSizeMB int     `yaml:"knowledge_base_size_mb"`
}

// Chart is a static chart series rendered by the analytics tab.
type Chart struct {
	Type   string   `yaml:"type" json:"type"`
	Label  string   `yaml:"label,omitempty" json:"label,omitempty"`
	Labels []string `yaml:"labels" json:"labels"`
	Values []int    `yaml:"values" json:"values"`
	Colors []string `yaml:"colors" json:"colors"`
}

type Analytics struct {
	QueryDistribution Chart `yaml:"query_distribution" json:"query_distribution"`
	AgentPerformance  Chart `yaml:"agent_performance" json:"agent_performance"`
}

// Data is the complete mock data set.
type Data struct {
	Documents []Document `yaml:"documents"`
	Agents    []Agent    `yaml:"agents"`
	Providers []Provider `yaml:"providers"`
	Stats     Stats      `yaml:"stats"`
	Analytics Analytics  `yaml:"analytics"`
}

// Load parses the embedded data set.
func Load() (Data, error) {
	return Parse(seedYAML)
}

// Parse decodes a data set from YAML and checks chart series are aligned.
func Parse(raw []byte) (Data, error) {
	var d Data
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return Data{}, fmt.Errorf("parsing seed data: %w", err)
	}
	for name, c := range map[string]Chart{
		"query_distribution": d.Analytics.QueryDistribution,
		"agent_performance":  d.Analytics.AgentPerformance,
	} {
		if len(c.Labels) != len(c.Values) {
			return Data{}, fmt.Errorf("chart %s: %d labels but %d values", name, len(c.Labels), len(c.Values))
		}
	}
	return d, nil
}
