package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fareidzulkifli/task-manager/api"
)

func tokenCmd() *cobra.Command {
	var (
		count  int
		prefix string
		start  int
		output string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token [userID]",
		Short: "Sign test-mode bearer tokens with TEST_JWT_SECRET",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 || start < 1 {
				return fmt.Errorf("count and start must be at least 1")
			}
			if len(args) > 0 && count > 1 {
				return fmt.Errorf("explicit user ID cannot be provided when generating multiple tokens")
			}
			v := viper.New()
			v.AutomaticEnv()
			secret := []byte(v.GetString("TEST_JWT_SECRET"))

			tokens := make([]string, count)
			for i := range tokens {
				userID := prefix
				switch {
				case len(args) > 0:
					userID = args[0]
				case count > 1:
					userID = fmt.Sprintf("%s-%d", prefix, start+i)
				}
				tok, err := api.SignTestToken(secret, userID, ttl)
				if err != nil {
					return err
				}
				tokens[i] = tok
			}
			if output != "" {
				if err := writeTokens(output, tokens); err != nil {
					return err
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), tokens[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 1, "number of tokens to generate")
	cmd.Flags().StringVar(&prefix, "prefix", "perf-user", "prefix for generated user IDs when count > 1")
	cmd.Flags().IntVar(&start, "start", 1, "starting index for generated user IDs when count > 1")
	cmd.Flags().StringVar(&output, "output", "", "file to write generated tokens as a JSON array")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime, must exceed one minute")
	return cmd
}

func writeTokens(path string, tokens []string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := sonic.Marshal(tokens)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
