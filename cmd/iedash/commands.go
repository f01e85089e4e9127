package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kalambet/iedash/internal/activity"
	"github.com/kalambet/iedash/internal/api/ws"
	"github.com/kalambet/iedash/internal/config"
	"github.com/kalambet/iedash/internal/dashboard"
	"github.com/kalambet/iedash/internal/events"
	"github.com/kalambet/iedash/internal/pipeline"
	"github.com/kalambet/iedash/internal/storage"
)

// --- ask ---

var errBusy = errors.New("the assistant is busy with another query, try again shortly")

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the knowledge assistant a question",
	Long: `Ask the knowledge assistant a question and wait for its answer.

Examples:
  iedash ask "What is our company vision?"
  iedash ask --timeout 1m "How does onboarding work?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		answer, err := askQuestion(ctx, client, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(dataOut, answer)
		return nil
	},
}

func init() {
	askCmd.Flags().Duration("timeout", 30*time.Second, "how long to wait for the answer")
}

// askQuestion sends question over the websocket and returns the final
// response, reporting intermediate agent messages as steps.
func askQuestion(ctx context.Context, client *apiClient, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("question must not be blank")
	}

	wsURL, err := client.wsURL()
	if err != nil {
		return "", err
	}
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return "", fmt.Errorf("server not reachable, is iedash running? (%w)", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	reqID := uuid.NewString()
	frame, err := ws.NewRequestFrame(reqID, ws.MethodSendMessage, ws.SendMessageParams{Content: question})
	if err != nil {
		return "", err
	}
	data, err := ws.MarshalFrame(frame)
	if err != nil {
		return "", err
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return "", fmt.Errorf("sending question: %w", err)
	}

	w := &answerWatcher{reqID: reqID}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return "", fmt.Errorf("waiting for answer: %w", err)
		}
		f, err := ws.UnmarshalFrame(data)
		if err != nil {
			continue
		}
		answer, done, err := w.handle(f)
		if err != nil {
			return "", err
		}
		if done {
			return answer, nil
		}
	}
}

// answerWatcher follows the frames of one send_message request. Agent
// messages can arrive before the response frame names the run, so they
// are held until then and only the run's own messages are reported.
type answerWatcher struct {
	reqID string
	runID string
	early []storage.ChatMessage
}

func (w *answerWatcher) handle(f ws.Frame) (answer string, done bool, err error) {
	switch f.Type {
	case ws.FrameTypeResponse:
		if f.ID != w.reqID {
			return "", false, nil
		}
		if f.OK == nil || !*f.OK {
			return "", false, fmt.Errorf("server rejected question: %s", f.Error)
		}
		var sub dashboard.Submission
		if err := json.Unmarshal(f.Payload, &sub); err != nil {
			return "", false, fmt.Errorf("decoding response: %w", err)
		}
		switch sub.Status {
		case dashboard.SubmitBusy:
			return "", false, errBusy
		case dashboard.SubmitIgnored:
			return "", false, fmt.Errorf("question must not be blank")
		}
		if sub.RunID == "" {
			return "", false, fmt.Errorf("server accepted question without a run id")
		}
		w.runID = sub.RunID
		early := w.early
		w.early = nil
		for _, msg := range early {
			if answer, done := w.report(msg); done {
				return answer, true, nil
			}
		}

	case ws.FrameTypeEvent:
		if f.Event != string(events.EventChatMessage) {
			return "", false, nil
		}
		var msg storage.ChatMessage
		if err := json.Unmarshal(f.Payload, &msg); err != nil {
			return "", false, nil
		}
		if msg.Author != string(pipeline.AuthorAgent) {
			return "", false, nil
		}
		if w.runID == "" {
			w.early = append(w.early, msg)
			return "", false, nil
		}
		if answer, done := w.report(msg); done {
			return answer, true, nil
		}
	}
	return "", false, nil
}

func (w *answerWatcher) report(msg storage.ChatMessage) (string, bool) {
	if msg.RunID != w.runID {
		return "", false
	}
	return reportAgentMessage(msg)
}

// reportAgentMessage prints an intermediate agent message, or returns the
// final answer with done set.
func reportAgentMessage(msg storage.ChatMessage) (answer string, done bool) {
	if msg.Stage == pipeline.ResponseLabel {
		return msg.Text, true
	}
	printStep("%s: %s", msg.Stage, msg.Text)
	return "", false
}

// --- docs ---

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "List or upload knowledge base documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		status, _ := cmd.Flags().GetString("status")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		if category != "" {
			q.Set("category", category)
		}
		if status != "" {
			q.Set("status", status)
		}
		path := "/api/documents"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var docs []storage.Document
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}

		if len(docs) == 0 {
			printWarning("No documents found")
			return nil
		}
		printTable([]string{"id", "name", "type", "category", "size", "status", "uploaded"}, documentRows(docs))
		return nil
	},
}

func documentRows(docs []storage.Document) [][]string {
	rows := make([][]string, len(docs))
	for i, d := range docs {
		rows[i] = []string{d.ID, d.Name, d.Type, d.Category, d.Size, d.Status, d.UploadDate}
	}
	return rows
}

var docsUploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload one or more files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.upload(cmd.Context(), "/api/documents", args)
		if err != nil {
			return err
		}
		var result struct {
			Documents []storage.Document `json:"documents"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		for _, d := range result.Documents {
			printSuccess("Uploaded %s as %s (%s, %s)", d.Name, d.ID, d.Type, d.Size)
		}
		return nil
	},
}

func init() {
	docsListCmd.Flags().String("category", "", "only documents in this category")
	docsListCmd.Flags().String("status", "", "only documents with this status (processing, processed)")
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsUploadCmd)
}

// --- agents ---

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List or toggle agents",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/agents")
		if err != nil {
			return err
		}
		var agents []storage.Agent
		if err := decodeJSON(resp, &agents); err != nil {
			return err
		}

		rows := make([][]string, len(agents))
		for i, a := range agents {
			rows[i] = []string{a.ID, a.Name, strconv.FormatBool(a.Enabled), a.Status, strings.Join(a.Specialties, ", ")}
		}
		printTable([]string{"id", "name", "enabled", "status", "specialties"}, rows)
		return nil
	},
}

var agentsToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Enable a disabled agent or disable an enabled one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/agents/"+url.PathEscape(args[0])+"/toggle", nil)
		if err != nil {
			return err
		}
		var a storage.Agent
		if err := decodeJSON(resp, &a); err != nil {
			return err
		}

		if a.Enabled {
			printSuccess("Enabled %s", a.Name)
		} else {
			printSuccess("Disabled %s", a.Name)
		}
		return nil
	},
}

func init() {
	agentsCmd.AddCommand(agentsListCmd)
	agentsCmd.AddCommand(agentsToggleCmd)
}

// --- providers ---

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Manage model provider settings",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/providers")
		if err != nil {
			return err
		}
		var providers []dashboard.ProviderView
		if err := decodeJSON(resp, &providers); err != nil {
			return err
		}

		rows := make([][]string, len(providers))
		for i, p := range providers {
			key := "-"
			if p.HasKey {
				key = p.MaskedKey
			}
			rows[i] = []string{p.Name, p.Status, key, strings.Join(p.Models, ", ")}
		}
		printTable([]string{"name", "status", "key", "models"}, rows)
		return nil
	},
}

var providersSetKeyCmd = &cobra.Command{
	Use:   "set-key <name> <key>",
	Short: "Set a provider API key (empty string clears it)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.put(cmd.Context(), "/api/providers/"+url.PathEscape(args[0])+"/key", map[string]string{"api_key": args[1]})
		if err != nil {
			return err
		}
		var p dashboard.ProviderView
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}

		printSuccess("Updated %s API key (%s)", p.Name, p.Status)
		return nil
	},
}

var providersTestCmd = &cobra.Command{
	Use:   "test <name>",
	Short: "Start a provider connection test",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/providers/"+url.PathEscape(args[0])+"/test", nil)
		if err != nil {
			return err
		}
		var result map[string]bool
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if !result["started"] {
			printWarning("%s API key required for connection test", args[0])
			return nil
		}
		printStep("Testing %s connection...", args[0])
		return nil
	},
}

func init() {
	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(providersSetKeyCmd)
	providersCmd.AddCommand(providersTestCmd)
}

// --- activity ---

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show recent activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/activity")
		if err != nil {
			return err
		}
		var items []activity.Item
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}

		for _, it := range items {
			fmt.Fprintf(dataOut, "%s  %-8s %s\n", it.Time.Local().Format("15:04:05"), it.Category, it.Message)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(dataOut, "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		if key == "server.api_token" {
			printSuccess("Stored %s in the secret store", key)
			return nil
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
