package cfg

import (
	"flag"
	"math"
	"strings"
	"testing"
)

// validBase returns a Config with all required fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
		GroqAPIKey:            "gsk-test-key",
		GroqModel:             "llama-3.3-70b-versatile",
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.GroqModel != "llama-3.3-70b-versatile" {
		t.Errorf("GroqModel = %q, want %q", c.GroqModel, "llama-3.3-70b-versatile")
	}
	if c.KestraTenantID != "main" {
		t.Errorf("KestraTenantID = %q, want %q", c.KestraTenantID, "main")
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-groq-api-key", "gsk-override",
		"-groq-model", "llama-3.1-8b-instant",
		"-database-url", "postgres://aegis:pw@db:5432/aegis",
		"-kestra-endpoint", "http://kestra:8080",
		"-kestra-username", "ops",
		"-kestra-password", "hunter2",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 120 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 120", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.GroqAPIKey != "gsk-override" {
		t.Errorf("GroqAPIKey = %q, want %q", c.GroqAPIKey, "gsk-override")
	}
	if c.GroqModel != "llama-3.1-8b-instant" {
		t.Errorf("GroqModel = %q, want %q", c.GroqModel, "llama-3.1-8b-instant")
	}
	if c.DatabaseURL != "postgres://aegis:pw@db:5432/aegis" {
		t.Errorf("DatabaseURL = %q", c.DatabaseURL)
	}
	if c.KestraEndpoint != "http://kestra:8080" {
		t.Errorf("KestraEndpoint = %q", c.KestraEndpoint)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		errSubstr []string // substrings that must appear in error message
	}{
		{
			name:    "defaults are valid",
			cfg:     validBase(),
			wantErr: false,
		},
		{
			name: "minimum valid values",
			cfg: Config{
				DrainSeconds: 1, ShutdownBudgetSeconds: 2, APIPort: 1,
				GroqAPIKey: "k", GroqModel: "m",
			},
			wantErr: false,
		},
		{
			name: "maximum valid values",
			cfg: Config{
				DrainSeconds: 299, ShutdownBudgetSeconds: 300, APIPort: 65535,
				GroqAPIKey: "k", GroqModel: "m",
			},
			wantErr: false,
		},
		// DrainSeconds boundaries
		{
			name:      "drain zero",
			cfg:       Config{DrainSeconds: 0, ShutdownBudgetSeconds: 90, APIPort: 8080, GroqAPIKey: "k", GroqModel: "m"},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain negative",
			cfg:       Config{DrainSeconds: -1, ShutdownBudgetSeconds: 90, APIPort: 8080, GroqAPIKey: "k", GroqModel: "m"},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain above max",
			cfg:       Config{DrainSeconds: 301, ShutdownBudgetSeconds: 302, APIPort: 8080, GroqAPIKey: "k", GroqModel: "m"},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		// ShutdownBudgetSeconds boundaries
		{
			name:      "budget zero",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 0, APIPort: 8080, GroqAPIKey: "k", GroqModel: "m"},
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		{
			name:      "budget above max",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 301, APIPort: 8080, GroqAPIKey: "k", GroqModel: "m"},
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		// Cross-field: budget vs drain
		{
			name:      "budget equals drain",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 60, APIPort: 8080, GroqAPIKey: "k", GroqModel: "m"},
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:      "budget less than drain",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 30, APIPort: 8080, GroqAPIKey: "k", GroqModel: "m"},
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name: "budget is drain plus one",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 61, APIPort: 8080,
				GroqAPIKey: "k", GroqModel: "m",
			},
			wantErr: false,
		},
		// APIPort boundaries
		{
			name:      "port zero",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 0, GroqAPIKey: "k", GroqModel: "m"},
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "port above max",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 65536, GroqAPIKey: "k", GroqModel: "m"},
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		// Required provider fields
		{
			name: "empty groq api key",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080,
				GroqAPIKey: "", GroqModel: "m",
			},
			wantErr:   true,
			errSubstr: []string{"GROQ_API_KEY"},
		},
		{
			name: "empty groq model",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080,
				GroqAPIKey: "k", GroqModel: "",
			},
			wantErr:   true,
			errSubstr: []string{"GROQ_MODEL"},
		},
		// Kestra credential coupling
		{
			name: "kestra endpoint without credentials",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080,
				GroqAPIKey: "k", GroqModel: "m",
				KestraEndpoint: "http://kestra:8080",
			},
			wantErr:   true,
			errSubstr: []string{"KESTRA_USERNAME", "KESTRA_PASSWORD"},
		},
		{
			name: "kestra endpoint missing password",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080,
				GroqAPIKey: "k", GroqModel: "m",
				KestraEndpoint: "http://kestra:8080", KestraUsername: "ops",
			},
			wantErr:   true,
			errSubstr: []string{"KESTRA_PASSWORD"},
		},
		{
			name: "kestra endpoint with credentials",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080,
				GroqAPIKey: "k", GroqModel: "m",
				KestraEndpoint: "http://kestra:8080", KestraUsername: "ops", KestraPassword: "pw",
			},
			wantErr: false,
		},
		{
			name: "kestra credentials without endpoint are fine",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080,
				GroqAPIKey: "k", GroqModel: "m",
				KestraUsername: "ops", KestraPassword: "pw",
			},
			wantErr: false,
		},
		// Error accumulation: all fields invalid
		{
			name:      "all fields invalid",
			cfg:       Config{DrainSeconds: 0, ShutdownBudgetSeconds: 0, APIPort: 0},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT", "GROQ_API_KEY", "GROQ_MODEL"},
		},
		// Extreme values
		{
			name:      "extreme negative values",
			cfg:       Config{DrainSeconds: math.MinInt32, ShutdownBudgetSeconds: math.MinInt32, APIPort: math.MinInt32},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				errMsg := err.Error()
				for _, sub := range tt.errSubstr {
					if !strings.Contains(errMsg, sub) {
						t.Errorf("error %q does not contain %q", errMsg, sub)
					}
				}
			}
		})
	}
}

func FuzzValidate(f *testing.F) {
	// Seeds: defaults, boundaries, extremes
	seeds := []struct {
		drain, budget, port           int
		key, model, kestra, user, pwd string
	}{
		{60, 90, 8080, "gsk-test", "llama-3.3-70b-versatile", "", "", ""},
		{1, 2, 1, "k", "m", "", "", ""},
		{299, 300, 65535, "k", "m", "", "", ""},
		{0, 0, 0, "", "", "", "", ""},
		{-1, -1, -1, "", "", "", "", ""},
		{301, 302, 65536, "", "", "", "", ""},
		{150, 100, 8080, "k", "m", "", "", ""},
		{60, 90, 8080, "k", "m", "http://kestra:8080", "", ""},
		{60, 90, 8080, "k", "m", "http://kestra:8080", "ops", "pw"},
		{math.MinInt32, math.MinInt32, math.MinInt32, "", "", "", "", ""},
		{math.MaxInt32, math.MaxInt32, math.MaxInt32, "", "", "", "", ""},
	}
	for _, s := range seeds {
		f.Add(s.drain, s.budget, s.port, s.key, s.model, s.kestra, s.user, s.pwd)
	}

	f.Fuzz(func(t *testing.T, drain, budget, port int, key, model, kestra, user, pwd string) {
		c := Config{
			DrainSeconds:          drain,
			ShutdownBudgetSeconds: budget,
			APIPort:               port,
			GroqAPIKey:            key,
			GroqModel:             model,
			KestraEndpoint:        kestra,
			KestraUsername:        user,
			KestraPassword:        pwd,
		}
		err := c.Validate()

		drainOK := drain >= 1 && drain <= 300
		budgetOK := budget >= 1 && budget <= 300
		portOK := port >= 1 && port <= 65535
		crossOK := budget > drain
		keyOK := key != ""
		modelOK := model != ""
		kestraOK := kestra == "" || (user != "" && pwd != "")

		allValid := drainOK && budgetOK && portOK && crossOK && keyOK && modelOK && kestraOK

		if allValid && err != nil {
			t.Errorf("expected no error for valid config %+v, got: %v", c, err)
		}
		if !allValid && err == nil {
			t.Errorf("expected error for invalid config %+v, got nil", c)
		}
	})
}
