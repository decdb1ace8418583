package main

import (
	"github.com/spf13/pflag"

	"github.com/capgen-ai/capgen/internal/env"
)

// serveFlags is the serve subcommand's CLI surface:
// `serve --host H --port P --jobs-dir D --input-dir I`.
type serveFlags struct {
	host     string
	port     string
	jobsDir  string
	inputDir string
	config   string
}

func parseServeFlags(args []string) serveFlags {
	fs := pflag.NewFlagSet("serve", pflag.ExitOnError)
	host := fs.StringP("host", "H", "0.0.0.0", "address to bind")
	port := fs.StringP("port", "p", "8080", "port to listen on")
	jobsDir := fs.String("jobs-dir", "./jobs", "per-job working directory root")
	inputDir := fs.String("input-dir", "./input", "directory batch uploads reference by filename")
	configPath := fs.String("config", "capgen.yaml", "tuning/preset override file")
	fs.Parse(args)

	return serveFlags{
		host:     env.Str("CAPGEN_HOST", *host),
		port:     env.Str("CAPGEN_PORT", *port),
		jobsDir:  env.Str("CAPGEN_JOBS_DIR", *jobsDir),
		inputDir: env.Str("CAPGEN_INPUT_DIR", *inputDir),
		config:   env.Str("CAPGEN_CONFIG", *configPath),
	}
}

// modelEndpoints holds the model-server URLs/keys, each overridable by an
// environment variable for deployment.
type modelEndpoints struct {
	whisperPrimaryURL   string
	whisperSecondaryURL string
	separatorHeavyURL   string
	ollamaURL           string
	ollamaDirect        bool
	openaiAPIKey        string
	anthropicAPIKey     string
	postgresURL         string
}

func loadModelEndpoints() modelEndpoints {
	return modelEndpoints{
		whisperPrimaryURL:   env.Str("WHISPER_PRIMARY_URL", "http://localhost:9000"),
		whisperSecondaryURL: env.Str("WHISPER_SECONDARY_URL", "http://localhost:9001"),
		separatorHeavyURL:   env.Str("SEPARATOR_HEAVY_URL", ""),
		ollamaURL:           env.Str("OLLAMA_URL", "http://localhost:11434"),
		ollamaDirect:        env.Str("OLLAMA_DIRECT", "") != "",
		openaiAPIKey:        env.Str("OPENAI_API_KEY", ""),
		anthropicAPIKey:     env.Str("ANTHROPIC_API_KEY", ""),
		postgresURL:         env.Str("POSTGRES_URL", ""),
	}
}
