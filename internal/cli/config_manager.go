package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dyike/StockMateGo/config"
	"github.com/dyike/StockMateGo/consts"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "Show, edit and validate the persisted StockMate configuration",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := opts.manager()
			if err != nil {
				return err
			}
			return showConfig(opts.out, mgr.Get())
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "set <json>",
		Short: "Merge a full or partial JSON document into the configuration",
		Example: `  stockmate config set '{"mode":"llm"}'
  stockmate config set '{"thresholds":{"volatility":0.4}}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := opts.manager()
			if err != nil {
				return err
			}
			if err := mgr.UpdateFromJSON(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "✅ saved %s\n", mgr.Path())
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := opts.manager()
			if err != nil {
				return err
			}
			fmt.Fprintln(opts.out, mgr.Path())
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration, directories and credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := opts.manager()
			if err != nil {
				return err
			}
			return validateConfig(opts.out, mgr.Effective())
		},
	})

	return configCmd
}

func showConfig(w io.Writer, cfg config.Config) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

// validateConfig checks the effective config, the way the engine would see it.
func validateConfig(w io.Writer, cfg config.Config) error {
	fmt.Fprint(w, "🔍 Checking values... ")
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(w, "❌")
		return err
	}
	fmt.Fprintln(w, "✅")

	fmt.Fprint(w, "📁 Checking directories... ")
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintln(w, "❌")
		return fmt.Errorf("directory validation failed: %w", err)
	}
	fmt.Fprintln(w, "✅")

	fmt.Fprint(w, "🔑 Checking credentials... ")
	warnings := credentialWarnings(cfg)
	if len(warnings) == 0 {
		fmt.Fprintln(w, "✅")
		return nil
	}
	fmt.Fprintln(w, "⚠️")
	for _, warning := range warnings {
		fmt.Fprintf(w, "  ⚠️  %s\n", warning)
	}
	return nil
}

func credentialWarnings(cfg config.Config) []string {
	var warnings []string
	if cfg.Mode == consts.ModeLLM {
		switch cfg.LLMProvider {
		case "deepseek":
			if cfg.DeepSeekAPIKey == "" {
				warnings = append(warnings, "llm mode with deepseek needs DEEPSEEK_API_KEY")
			}
		case "openai":
			if cfg.OpenAIAPIKey == "" {
				warnings = append(warnings, "llm mode with openai needs OPENAI_API_KEY")
			}
		}
	}
	if cfg.Data.PriceSource == consts.PriceSourceLongport &&
		(cfg.LongportAppKey == "" || cfg.LongportAppSecret == "" || cfg.LongportAccessToken == "") {
		warnings = append(warnings, "longport price source needs LONGPORT_APP_KEY, LONGPORT_APP_SECRET and LONGPORT_ACCESS_TOKEN")
	}
	return warnings
}
