// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// DefaultAllowedTables is the ticket schema the proposer is prompted with.
var DefaultAllowedTables = []string{
	"corporate_tickets",
	"corporate_ticket_status_history",
	"corporate_tickets_finance",
	"corporate_ticket_finance_status",
	"corporate_tickets_quotation",
	"corporate_ticket_quotation_status",
	"corporate_tickets_quotation_items",
	"corporate_ticket_payment_details",
	"corporate_ticket_general_service_report",
	"corporate_ticket_general_service_report_items",
	"corporate_tickets_old",
	"corporate_tickets_uploader",
}

// DefaultForbiddenFunctions are time-delay and resource primitives.
var DefaultForbiddenFunctions = []string{
	"sleep",
	"benchmark",
	"get_lock",
	"release_lock",
	"load_file",
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Listen:          ":8000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    64 << 10,
			CORSOrigins:     []string{"*"},
			RateLimitRPM:    120,
		},
		Log: LogConfig{Level: "info"},
		Policy: PolicyConfig{
			AllowedTables:         append([]string(nil), DefaultAllowedTables...),
			ForbiddenFunctions:    append([]string(nil), DefaultForbiddenFunctions...),
			MaxRowLimit:           500,
			MaxRetries:            1,
			MaxClarificationTurns: 1,
		},
		Database: DatabaseConfig{
			Driver:       "mysql",
			Host:         "localhost",
			Port:         3306,
			QueryTimeout: 15 * time.Second,
			MaxOpenConns: 10,
		},
		LLM: LLMConfig{
			Provider:         "openai",
			Model:            "llama-3.3-70b-versatile",
			BaseURL:          "https://api.groq.com/openai/v1",
			Timeout:          30 * time.Second,
			StateExtractor:   "llm",
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
			ClientBudgetRPM:  30,
		},
		Cache: CacheConfig{
			TTL: 10 * time.Minute,
		},
		History: HistoryConfig{
			Retention: 30 * 24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
