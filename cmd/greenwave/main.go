package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dangphuc2470/TrafficControlModel/internal/config"
	"github.com/dangphuc2470/TrafficControlModel/internal/daemon"
	"github.com/dangphuc2470/TrafficControlModel/pkg/client"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "greenwave",
	Short: "Traffic signal coordination server",
	Long: `Greenwave is the central coordination server for distributed
traffic signal agents. Intersection agents report training state and
position; sync agents request geography-based green-wave offsets so
downstream signals turn green as platoons arrive.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
}

var (
	verbose   bool
	serverURL string
	jsonOut   bool
)

func init() {
	serveCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	initCmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	for _, cmd := range []*cobra.Command{statusCmd, agentsCmd, offsetCmd, resetCmd, logsCmd} {
		cmd.Flags().StringVarP(&serverURL, "server", "s", "http://localhost:5000", "Coordination server URL")
		cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
		rootCmd.AddCommand(cmd)
	}

	offsetCmd.Flags().StringVar(&offsetFrom, "from", "", "Upstream agent id (with --to)")
	offsetCmd.Flags().StringVar(&offsetTo, "to", "", "Downstream agent id (with --from)")

	rootCmd.AddCommand(serveCmd, initCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the coordination server",
	Long:  `Starts the server that accepts agent reports, computes green-wave offsets and serves the dashboard API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		projectDir, err := config.GetProjectDir()
		if err != nil {
			return fmt.Errorf("failed to find project directory: %w", err)
		}

		d, err := daemon.New(projectDir)
		if err != nil {
			return fmt.Errorf("failed to create daemon: %w", err)
		}

		d.SetVerbose(verbose)

		return d.Run(context.Background())
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize greenwave in current directory",
	Long:  `Creates the .greenwave directory structure and default configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}

		cfg, err := config.Load(cwd)
		if err != nil {
			return fmt.Errorf("failed to load/create config: %w", err)
		}

		if err := config.EnsureDirectories(cwd, cfg); err != nil {
			return fmt.Errorf("failed to create directories: %w", err)
		}

		if jsonOut {
			return printJSON(InitResponse{
				Message: "initialized",
				Path:    cwd,
				Directories: map[string]string{
					"logs":   cfg.Paths.Logs,
					"charts": cfg.Paths.Charts,
				},
			})
		}

		fmt.Println("Initialized greenwave in", cwd)
		fmt.Println("\nCreated directories:")
		fmt.Printf("  %s/\n", cfg.Paths.Logs)
		fmt.Printf("  %s/\n", cfg.Paths.Charts)
		fmt.Println("\nEdit .greenwave/config.yaml to customize settings.")
		fmt.Println("  1. Start the server: greenwave serve")
		fmt.Println("  2. Point intersection agents at the listen address")
		fmt.Println("  3. Check the fleet: greenwave status")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show aggregate fleet status",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		status, err := c.Status(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOut {
			return printJSON(status)
		}

		fmt.Printf("Agents: %d total, %d online\n", status.TotalAgents, status.OnlineAgents)
		return nil
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List all known agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		status, err := c.Status(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOut {
			return printJSON(status.Agents)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tEPISODE\tLAST SEEN")
		for id, a := range status.Agents {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				id, a.Name, a.Status, a.LastEpisode, a.LastSeen.Format("15:04:05"))
		}
		return w.Flush()
	},
}

var (
	offsetFrom string
	offsetTo   string
)

var offsetCmd = &cobra.Command{
	Use:   "offset [agent_id]",
	Short: "Request a green-wave offset",
	Long: `Requests the coordination offset for an agent (nearest online
linked neighbor), or for an explicit pair with --from and --to.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)

		var (
			resp *client.OffsetResponse
			err  error
		)
		switch {
		case offsetFrom != "" && offsetTo != "":
			resp, err = c.ComputeOffset(cmd.Context(), offsetFrom, offsetTo)
		case len(args) == 1:
			resp, err = c.RequestOffset(cmd.Context(), args[0])
		default:
			return fmt.Errorf("provide an agent id, or --from and --to")
		}
		if err != nil {
			return err
		}

		if jsonOut {
			return printJSON(OffsetCLIResponse{
				Available:     resp.Available,
				Reason:        resp.Reason,
				OffsetS:       resp.OffsetS,
				SourceAgentID: resp.SourceAgentID,
				TargetAgentID: resp.TargetAgentID,
				DistanceM:     resp.DistanceM,
				OutOfRange:    resp.OutOfRange,
			})
		}

		if !resp.Available {
			fmt.Printf("No coordination available (%s)\n", resp.Reason)
			return nil
		}
		fmt.Printf("Offset %.1fs from %s to %s (%.0fm)\n",
			resp.OffsetS, resp.SourceAgentID, resp.TargetAgentID, resp.DistanceM)
		if resp.OutOfRange {
			fmt.Println("Warning: link is beyond connection distance, offset is advisory only")
		}
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the server's in-memory agent state",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		if err := c.Reset(cmd.Context()); err != nil {
			return err
		}

		if jsonOut {
			return printJSON(ResetResponse{Message: "server data has been reset"})
		}
		fmt.Println("Server data has been reset")
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the server's recent log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		lines, err := c.Logs(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOut {
			return printJSON(map[string][]string{"logs": lines})
		}
		for _, line := range lines {
			fmt.Println(line)
		}
		return nil
	},
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
