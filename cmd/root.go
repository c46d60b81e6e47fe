/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/blacktop/rxpost/internal/config"
	"github.com/blacktop/rxpost/internal/directory"
	"github.com/blacktop/rxpost/internal/fetch"
	"github.com/blacktop/rxpost/internal/llm"
	"github.com/blacktop/rxpost/internal/logutil"
	"github.com/blacktop/rxpost/internal/pacing"
	"github.com/blacktop/rxpost/internal/pipeline"
	"github.com/blacktop/rxpost/internal/variant"
	"github.com/blacktop/rxpost/internal/xpost"
	"github.com/blacktop/rxpost/internal/xpost/bluesky"
	"github.com/blacktop/rxpost/internal/xpost/mastodon"
	"github.com/blacktop/rxpost/internal/xpost/reddit"
	"github.com/blacktop/rxpost/internal/xpost/twitter"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const defaultEnvFile = ".env"

type rootOptions struct {
	configPath   string
	destinations []string
	paceMin      int
	paceMax      int
	provider     string
	model        string
	textFallback bool
	dryRun       bool
	envFile      string
	verbose      bool
	logFormat    string
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return newRootCommand().ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "rxpost [post-id]",
		Short: "Cross-post a Reddit post to many communities",
		Long: "rxpost fetches a Reddit post and re-submits it to each destination with a " +
			"rephrased title, waiting a random, human-scale interval between submissions. " +
			"Destinations are subreddits (golang, r/golang) or account timelines (@mastodon, @bluesky, @twitter).",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, opts, args)
		},
		Example: `  rxpost 1gq3x7a -d golang -d r/programming
  rxpost --config crosspost.yaml --dry-run
  rxpost 1gq3x7a -d cats -d @bluesky --pace-min 60 --pace-max 90`,
	}

	addFlags(cmd.Flags(), opts)

	return cmd
}

func addFlags(flags *pflag.FlagSet, opts *rootOptions) {
	flags.StringSliceVarP(&opts.destinations, "dest", "d", nil, "Destinations to post to, in order (repeatable)")
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML file with post_id, destinations and pacing")
	flags.IntVar(&opts.paceMin, "pace-min", config.DefaultPaceMinSeconds, "Minimum seconds to wait between submissions")
	flags.IntVar(&opts.paceMax, "pace-max", config.DefaultPaceMaxSeconds, "Maximum seconds to wait between submissions")
	flags.StringVar(&opts.provider, "provider", llm.ProviderOpenAI, "Title generator ("+strings.Join(llm.Providers(), ", ")+")")
	flags.StringVar(&opts.model, "model", "", "Title generator model (provider default when empty)")
	flags.BoolVar(&opts.textFallback, "text-fallback", false, "Submit a text post when the source image could not be downloaded")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Print actions without posting")
	flags.StringVar(&opts.envFile, "env-file", "", "Load credentials from this dotenv file (default .env when present)")
	flags.BoolVarP(&opts.verbose, "verbose", "V", false, "Enable debug logging")
	flags.StringVar(&opts.logFormat, "log-format", "text", "Diagnostic log format (text, json, logfmt)")
	flags.SortFlags = false
}

func runRoot(cmd *cobra.Command, opts *rootOptions, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	logutil.SetOutput(cmd.ErrOrStderr())
	logutil.SetVerbose(opts.verbose)
	if err := logutil.SetFormat(opts.logFormat); err != nil {
		return err
	}

	if err := loadEnvFile(opts.envFile); err != nil {
		return err
	}

	cfg, err := buildConfig(cmd.Flags(), opts, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := directory.Validate(cfg.Destinations); err != nil {
		logutil.Warnf("these destinations will fail: %v", err)
	}

	imageDir := cfg.ImageDir
	if imageDir == "" {
		imageDir, err = os.MkdirTemp("", "rxpost-")
		if err != nil {
			return fmt.Errorf("create image directory: %w", err)
		}
		defer os.RemoveAll(imageDir)
	}

	redditClient, err := reddit.New(ctx)
	if err != nil {
		return err
	}

	completer, err := llm.New(ctx, llm.Config{
		Provider: cfg.Generator.Provider,
		Model:    cfg.Generator.Model,
		BaseURL:  cfg.Generator.BaseURL,
	})
	if err != nil {
		return err
	}

	pacer, err := pacing.New(cfg.Pacing.Min(), cfg.Pacing.Max(), pacing.NewTerminalReporter(os.Stderr))
	if err != nil {
		return err
	}

	runner := pipeline.New(
		fetch.New(redditClient, imageDir),
		variant.New(completer),
		directory.New(factories(redditClient)),
		pacer,
		pipeline.Options{
			TextFallback: cfg.TextFallback,
			DryRun:       opts.dryRun,
			Out:          out,
		},
	)

	outcome, err := runner.Run(ctx, cfg.PostID, cfg.Destinations)
	if msg := abortMessage(err); msg != "" {
		fmt.Fprintln(out, msg)
	}
	pipeline.Summarize(out, outcome)
	if err != nil {
		return err
	}
	return pipeline.Err(outcome)
}

// abortMessage explains a run stopped before any submission for lack of titles.
func abortMessage(err error) string {
	switch {
	case !errors.Is(err, pipeline.ErrVariantsUnavailable):
		return ""
	case variant.IsCountMismatch(err):
		return "❌ Rephrased titles not available in expected number. Aborting posting process."
	default:
		return "❌ Could not generate rephrased titles. Aborting posting process."
	}
}

// buildConfig layers explicitly set flags over the config file (or defaults).
func buildConfig(flags *pflag.FlagSet, opts *rootOptions, args []string) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if len(args) > 0 {
		cfg.PostID = strings.TrimSpace(args[0])
	}
	if flags.Changed("dest") {
		cfg.Destinations = normalizeDestinations(opts.destinations)
	}
	if flags.Changed("pace-min") {
		cfg.Pacing.MinSeconds = opts.paceMin
	}
	if flags.Changed("pace-max") {
		cfg.Pacing.MaxSeconds = opts.paceMax
	}
	if flags.Changed("provider") {
		cfg.Generator.Provider = strings.ToLower(strings.TrimSpace(opts.provider))
	}
	if flags.Changed("model") {
		cfg.Generator.Model = opts.model
	}
	if flags.Changed("text-fallback") {
		cfg.TextFallback = opts.textFallback
	}
	return cfg, nil
}

// normalizeDestinations trims names and drops empties. Order is significant
// and duplicates are kept: each entry is its own submission.
func normalizeDestinations(values []string) []string {
	result := make([]string, 0, len(values))
	for _, raw := range values {
		if raw = strings.TrimSpace(raw); raw != "" {
			result = append(result, raw)
		}
	}
	return result
}

func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	}
	if _, err := os.Stat(defaultEnvFile); err != nil {
		return nil
	}
	if err := godotenv.Load(defaultEnvFile); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	logutil.Debugf("loaded environment from %s", defaultEnvFile)
	return nil
}

func factories(redditClient *reddit.Client) map[directory.Network]directory.Factory {
	return map[directory.Network]directory.Factory{
		directory.Reddit: func(ctx context.Context, channel string) (xpost.Destination, error) {
			sr, err := redditClient.Subreddit(ctx, channel)
			if err != nil {
				return nil, err
			}
			return sr, nil
		},
		directory.Mastodon: func(ctx context.Context, _ string) (xpost.Destination, error) {
			c, err := mastodon.New(ctx)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		directory.Bluesky: func(ctx context.Context, _ string) (xpost.Destination, error) {
			c, err := bluesky.New(ctx, bluesky.Config{PDSURL: bluesky.DefaultPDSURL})
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		directory.Twitter: func(ctx context.Context, _ string) (xpost.Destination, error) {
			c, err := twitter.New(ctx)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}
