package pipeline

import "strings"

// Rule pairs a predicate over the lowercased query with a canned answer.
type Rule struct {
	Name     string
	Match    func(lowerQuery string) bool
	Response string
}

func containsKeyword(keyword string) func(string) bool {
	return func(q string) bool { return strings.Contains(q, keyword) }
}

// DefaultResponse is returned when no rule matches.
const DefaultResponse = "I've analyzed your query against our knowledge base. Based on the available documents including SOPs, vision statements, and process documentation, I can provide comprehensive guidance on your business operations. Would you like me to elaborate on any specific aspect?"

// Rules is evaluated in order; the first match wins.
var Rules = []Rule{
	{
		Name:     "vision",
		Match:    containsKeyword("vision"),
		Response: "Based on our Company Vision 2025 document, our vision is to become the leading provider of innovative business solutions that empower organizations to achieve sustainable growth and digital transformation. Key focus areas include customer-centric innovation, operational excellence, and strategic partnerships.",
	},
	{
		Name:     "onboarding",
		Match:    containsKeyword("onboarding"),
		Response: "According to our Employee Onboarding SOP, the process includes: 1) Pre-boarding preparation, 2) First day orientation, 3) Department-specific training, 4) 30-60-90 day check-ins, and 5) Performance evaluation. The complete process takes approximately 90 days.",
	},
	{
		Name:     "customer",
		Match:    containsKeyword("customer"),
		Response: "Our Customer Service Process emphasizes escalation procedures with three tiers: Level 1 (front-line support), Level 2 (technical specialists), and Level 3 (senior management). Response times are 2 hours for critical, 24 hours for high priority, and 72 hours for standard issues.",
	},
}

// GenerateResponse picks the canned answer for query.
func GenerateResponse(query string) string {
	q := strings.ToLower(query)
	for _, r := range Rules {
		if r.Match(q) {
			return r.Response
		}
	}
	return DefaultResponse
}
