package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version string

	// Global flags
	flagAPIURL  string
	flagToken   string
	flagContext string
	flagOutput  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "dealgrid-admin",
	Short: "DealGrid platform administration CLI",
	Long: `dealgrid-admin is a kubectl-style CLI for managing the DealGrid platform.

It provides commands to inspect tenants, grants, roles and assignments,
resolve effective permissions, and run database migrations.

Use "dealgrid-admin config set-context" to configure your connection.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "Override API URL (env: DEALGRID_API_URL)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "Override access token (env: DEALGRID_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&flagContext, "context", "c", "", "Use specific context (env: DEALGRID_CONTEXT)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "table", "Output format: table, wide, json, yaml")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(clusterInfoCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(expandCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(migrateCmd)
}

func initConfig() {
	if flagAPIURL == "" {
		flagAPIURL = os.Getenv("DEALGRID_API_URL")
	}
	if flagToken == "" {
		flagToken = os.Getenv("DEALGRID_TOKEN")
	}

	if flagAPIURL == "" || flagToken == "" {
		u, t := resolveFromConfigFile()
		if flagAPIURL == "" {
			flagAPIURL = u
		}
		if flagToken == "" {
			flagToken = t
		}
	}
}

func resolveFromConfigFile() (string, string) {
	ctxName := flagContext
	if ctxName == "" {
		ctxName = os.Getenv("DEALGRID_CONTEXT")
	}

	cfg, err := loadConfig()
	if err != nil {
		return "", ""
	}

	if ctxName == "" {
		ctxName = cfg.CurrentContext
	}

	ctx := cfg.GetContext(ctxName)
	if ctx == nil {
		return "", ""
	}

	token := ctx.Context.Token
	if token == "" && ctx.Context.TokenFile != "" {
		data, err := os.ReadFile(expandPath(ctx.Context.TokenFile))
		if err == nil {
			token = string(data)
		}
	}

	return ctx.Context.APIURL, token
}

func mustClient() *Client {
	if flagAPIURL == "" {
		fmt.Fprintln(os.Stderr, "Error: API URL not configured. Use --api-url, DEALGRID_API_URL, or 'dealgrid-admin config set-context'")
		os.Exit(1)
	}
	if flagToken == "" {
		fmt.Fprintln(os.Stderr, "Error: access token not configured. Use --token, DEALGRID_TOKEN, or 'dealgrid-admin config set-context'")
		os.Exit(1)
	}
	return NewClient(flagAPIURL, flagToken, flagVerbose)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dealgrid-admin version %s\n", version)
		fmt.Printf("  Go:       %s\n", runtime.Version())
		fmt.Printf("  OS/Arch:  %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

var clusterInfoCmd = &cobra.Command{
	Use:   "cluster-info",
	Short: "Display platform connection status and session scope",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := mustClient()
		data, err := client.Get("/api/v1/access/permissions")
		if err != nil {
			return fmt.Errorf("connection failed: %w", err)
		}

		var resp ResolveResponse
		if err := unmarshal(data, &resp); err != nil {
			return err
		}

		if flagOutput == outputJSON {
			printJSON(resp)
			return nil
		}
		if flagOutput == outputYAML {
			printYAML(resp)
			return nil
		}

		fmt.Fprintf(os.Stdout, "DealGrid Platform\n")
		fmt.Fprintf(os.Stdout, "  API URL:  %s\n", flagAPIURL)
		fmt.Fprintf(os.Stdout, "  Status:   connected\n")
		fmt.Fprintf(os.Stdout, "\nSession scope:\n")
		fmt.Fprintf(os.Stdout, "  User:         %s\n", resp.UserID)
		fmt.Fprintf(os.Stdout, "  Tenant:       %s\n", resp.TenantID)
		fmt.Fprintf(os.Stdout, "  Relationship: %s\n", ptrStr(resp.RelationshipID))
		fmt.Fprintf(os.Stdout, "\nEffective permissions (%d):\n", len(resp.Permissions))
		for _, p := range resp.Permissions {
			fmt.Fprintf(os.Stdout, "  %s\n", p)
		}
		return nil
	},
}
