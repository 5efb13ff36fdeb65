package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Check or update the local model",
}

var modelCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Compare the installed model with the latest version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := commandEnv(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		m := env.modelManager()
		res, err := m.Check(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		local := "none"
		if res.HasLocal {
			local = fmt.Sprintf("%s (%s)", res.Local.Version, res.Local.ModelName)
		}
		fmt.Fprintf(out, "Model dir: %s\n", m.Dir())
		fmt.Fprintf(out, "Installed: %s\n", local)
		fmt.Fprintf(out, "Latest:    %s (%s, %s)\n", res.Latest.Version, res.Latest.ModelName, res.Latest.Timestamp)
		if res.NeedsUpdate {
			fmt.Fprintln(out, "Update available. Run 'ctcai model sync'.")
		} else {
			fmt.Fprintln(out, "Up to date.")
		}
		return nil
	},
}

var modelSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download the latest model if the installed one is outdated",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := commandEnv(cmd)
		if err != nil {
			return err
		}
		defer env.Close()
		return syncModel(cmd.Context(), env, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelCheckCmd)
	modelCmd.AddCommand(modelSyncCmd)
}

// syncModel loads the model, printing each progress step to w.
func syncModel(ctx context.Context, env *appEnv, w io.Writer) error {
	m := env.modelManager()
	last := -2
	err := m.Load(ctx, func(pct int) {
		if pct == last || pct < 0 {
			return
		}
		last = pct
		fmt.Fprintf(w, "Model: %3d%%\n", pct)
	})
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	fmt.Fprintf(w, "Model ready: %s\n", m.ModelPath())
	return nil
}
