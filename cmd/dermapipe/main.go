package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dermapipe/dermapipe/pkg/assistant"
	"github.com/dermapipe/dermapipe/pkg/config"
	"github.com/dermapipe/dermapipe/pkg/disease"
	"github.com/dermapipe/dermapipe/pkg/pipeline"
	"github.com/dermapipe/dermapipe/pkg/provider"
	"github.com/dermapipe/dermapipe/pkg/router"
	"github.com/dermapipe/dermapipe/pkg/store"
)

var (
	routingFile string
	verboseFlag bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dermapipe",
		Short: "Multi-stage AI skin diagnosis pipeline",
		Long: `Dermapipe runs a five-stage skin diagnosis pipeline over a chain of
AI providers with deterministic fallback. Stage 0 is a mandatory
validation gate; later stages classify, categorize, diagnose, and fuse
the results into a final verdict.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logrus.SetLevel(logrus.WarnLevel)
			if verboseFlag {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&routingFile, "config", "", "path to routing config file")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(diagnoseCmd())
	rootCmd.AddCommand(providersCmd())
	rootCmd.AddCommand(routesCmd())
	rootCmd.AddCommand(chatCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func diagnoseCmd() *cobra.Command {
	var patientFile string
	var retryFlag bool
	var noStoreFlag bool

	cmd := &cobra.Command{
		Use:   "diagnose [image]",
		Short: "Run the full diagnosis pipeline on a skin image",
		Long: `Runs the image through the five-stage pipeline and prints the
aggregate result as JSON.

Use --patient to attach a patient context file (JSON object) that the
fusion stage folds into the final verdict.

Use --retry to re-run the whole provider chain with backoff when every
provider fails, instead of falling back to stage defaults after one
pass.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imagePath := args[0]

			imageBytes, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			patient := map[string]any{}
			if patientFile != "" {
				data, err := os.ReadFile(patientFile)
				if err != nil {
					return fmt.Errorf("failed to read patient file: %w", err)
				}
				if err := json.Unmarshal(data, &patient); err != nil {
					return fmt.Errorf("failed to parse patient file: %w", err)
				}
			}

			sink, cleanup, err := openSink(cfg, noStoreFlag)
			if err != nil {
				return err
			}
			defer cleanup()

			table, err := loadDiseases(cfg)
			if err != nil {
				return err
			}

			r := router.New(cfg, sink)
			var caller pipeline.Caller = r
			if retryFlag {
				caller = pipeline.RetryCaller{Router: r}
			}

			p := pipeline.New(caller, sink, table)
			result := p.Execute(context.Background(), pipeline.Request{
				DiagnosisID: uuid.NewString(),
				ImagePath:   imagePath,
				ImageBytes:  imageBytes,
				Patient:     patient,
			})

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))

			if !result.Success {
				return fmt.Errorf("diagnosis failed: %s", result.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&patientFile, "patient", "", "patient context JSON file")
	cmd.Flags().BoolVar(&retryFlag, "retry", false, "retry the whole provider chain with backoff on total failure")
	cmd.Flags().BoolVar(&noStoreFlag, "no-store", false, "skip recording stage snapshots and AI calls")

	return cmd
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured providers and their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			r := router.New(cfg, store.Nop{})

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tPRIORITY\tENABLED\tSTATUS")

			for _, p := range r.Providers() {
				status := "no key"
				if p.Available {
					status = "ready"
				}
				fmt.Fprintf(w, "%s\t%d\t%t\t%s\n", p.Name, p.Priority, p.Enabled, status)
			}

			return w.Flush()
		},
	}
}

func routesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Show the per-stage provider routing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TASK\tPRIMARY\tFALLBACK")

			for _, task := range provider.Tasks {
				route := cfg.Routing.Route(task.String())
				fmt.Fprintf(w, "%s\t%s\t%s\n", task,
					strings.Join(route.Primary, ", "),
					strings.Join(route.Fallback, ", "))
			}

			fmt.Fprintln(w)
			fmt.Fprintf(w, "max retries\t%d\n", cfg.Routing.Fallback.MaxRetries)
			fmt.Fprintf(w, "exponential backoff\t%t\n", cfg.Routing.ExponentialBackoffEnabled())

			return w.Flush()
		},
	}
}

func chatCmd() *cobra.Command {
	var userType string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive assistant session",
		Long: `Starts an interactive chat with the medical assistant. The assistant
answers general questions about skin conditions and always defers to a
dermatologist for definitive diagnoses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			providers, err := chatProviders(cfg)
			if err != nil {
				return err
			}
			if len(providers) == 0 {
				return fmt.Errorf("no chat-capable provider configured (set OPENROUTER_API_KEY, GROQ_API_KEY, or GEMINI_API_KEY)")
			}

			a := assistant.New(providers...)
			convCtx := assistant.Context{UserType: userType}

			var history []provider.Message
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Println("Type your question (empty line to exit).")

			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					break
				}

				reply := a.Generate(cmd.Context(), line, convCtx, history)
				fmt.Println(reply)

				history = append(history,
					provider.Message{Role: "user", Content: line},
					provider.Message{Role: "assistant", Content: reply},
				)
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&userType, "user-type", "patient", "persona to address (patient or doctor)")

	return cmd
}

func loadConfig() (*config.Config, error) {
	if routingFile != "" {
		return config.LoadWithRoutingFile(routingFile)
	}
	return config.Load()
}

// chatProviders builds the assistant chain: every configured external
// provider ordered by routing priority. The internal model has no chat
// capability and is excluded.
func chatProviders(cfg *config.Config) ([]provider.Provider, error) {
	factory := router.DefaultFactory(cfg)

	names := make([]string, 0, len(cfg.Routing.Providers))
	for name := range cfg.Routing.Providers {
		if name == "internal" || name == "mock" {
			continue
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return cfg.Routing.Providers[names[i]].Priority < cfg.Routing.Providers[names[j]].Priority
	})

	var out []provider.Provider
	for _, name := range names {
		if !cfg.Routing.ProviderEnabled(name) || !cfg.HasProvider(name) {
			continue
		}
		p, err := factory(name)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func openSink(cfg *config.Config, disabled bool) (store.Sink, func(), error) {
	if disabled {
		return store.Nop{}, func() {}, nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := store.OpenSQLite(filepath.Join(cfg.DataDir, "dermapipe.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	logs := store.NewLogWriter(filepath.Join(cfg.DataDir, "logs"))
	return store.Fanout{db, logs}, func() { db.Close() }, nil
}

func loadDiseases(cfg *config.Config) (*disease.Table, error) {
	if _, err := os.Stat(cfg.DiseaseFile); err != nil {
		return disease.Default(), nil
	}
	table, err := disease.Load(cfg.DiseaseFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load disease table: %w", err)
	}
	return table, nil
}
