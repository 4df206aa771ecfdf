package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config adds app-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	GroqAPIKey            string
	GroqModel             string
	DatabaseURL           string
	KestraEndpoint        string
	KestraTenantID        string
	KestraUsername        string
	KestraPassword        string
	OumiEndpoint          string
	SlackWebhookURL       string
	WebhookToken          string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.GroqAPIKey, "groq-api-key", "", "API key for accessing the Groq LLM provider")
	fs.StringVar(&c.GroqModel, "groq-model", "llama-3.3-70b-versatile", "Groq model to use")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.KestraEndpoint, "kestra-endpoint", "", "Kestra API root URL for remediation dispatch (empty = remediation disabled)")
	fs.StringVar(&c.KestraTenantID, "kestra-tenant-id", "main", "Kestra tenant ID")
	fs.StringVar(&c.KestraUsername, "kestra-username", "", "Kestra basic auth username")
	fs.StringVar(&c.KestraPassword, "kestra-password", "", "Kestra basic auth password")
	fs.StringVar(&c.OumiEndpoint, "oumi-endpoint", "", "Oumi collector URL for analyst feedback (empty = feedback dropped)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for notifications")
	fs.StringVar(&c.WebhookToken, "webhook-token", "", "bearer token guarding the webhook ingestion endpoint (empty = open)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Groq API key is required for LLM access
	if c.GroqAPIKey == "" {
		errs = append(errs, errors.New("GROQ_API_KEY is required"))
	}

	// Groq model is required for LLM access
	if c.GroqModel == "" {
		errs = append(errs, errors.New("GROQ_MODEL is required"))
	}

	// Kestra credentials travel together with the endpoint
	if c.KestraEndpoint != "" && (c.KestraUsername == "" || c.KestraPassword == "") {
		errs = append(errs, errors.New("KESTRA_USERNAME and KESTRA_PASSWORD are required when KESTRA_ENDPOINT is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
