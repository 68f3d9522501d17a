package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var coordsCmd = &cobra.Command{
	Use:   "coords",
	Short: "Inspect saved coordinates",
}

var coordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved coordinates",
	Args:  cobra.NoArgs,
	RunE:  runCoordsList,
}

var coordsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved coordinate",
	Args:  cobra.ExactArgs(1),
	RunE:  runCoordsDelete,
}

func init() {
	coordsCmd.AddCommand(coordsListCmd, coordsDeleteCmd)
	rootCmd.AddCommand(coordsCmd)
}

func runCoordsList(cmd *cobra.Command, args []string) error {
	store, _, err := openFacts(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	coords, err := store.ListCoordinates(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(coords) == 0 {
		fmt.Fprintln(out, "No coordinates saved")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tX\tZ")
	for _, c := range coords {
		fmt.Fprintf(w, "%s\t%d\t%d\n", c.Name, c.X, c.Z)
	}
	return w.Flush()
}

func runCoordsDelete(cmd *cobra.Command, args []string) error {
	store, _, err := openFacts(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	deleted, err := store.DeleteCoordinate(ctx, args[0])
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("no coordinate named %q", args[0])
	}
	auditCLI(ctx, "coords.delete", map[string]interface{}{"name": args[0]})

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}
