package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var qotdCmd = &cobra.Command{
	Use:   "qotd",
	Short: "Manage question-of-the-day questions",
}

var qotdAddCmd = &cobra.Command{
	Use:   "add <question>",
	Short: "Append a question to the queue",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQOTDAdd,
}

var qotdImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import questions from a JSON file",
	Long: `Import questions from a JSON file of the form
{"questions": ["..."], "used_questions": ["..."]}.
Questions already known are skipped, so importing the same file twice is safe.`,
	Args: cobra.ExactArgs(1),
	RunE: runQOTDImport,
}

var qotdListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending questions in posting order",
	Args:  cobra.NoArgs,
	RunE:  runQOTDList,
}

func init() {
	qotdCmd.AddCommand(qotdAddCmd, qotdImportCmd, qotdListCmd)
	rootCmd.AddCommand(qotdCmd)
}

func runQOTDAdd(cmd *cobra.Command, args []string) error {
	store, _, err := openFacts(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	q, err := store.AddQuestion(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	auditCLI(ctx, "qotd.add", map[string]interface{}{"question_id": q.ID})

	fmt.Fprintf(cmd.OutOrStdout(), "Added question #%d\n", q.ID)
	return nil
}

func runQOTDImport(cmd *cobra.Command, args []string) error {
	store, _, err := openFacts(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	added, err := store.ImportQuestionsFile(ctx, args[0])
	if err != nil {
		return err
	}
	auditCLI(ctx, "qotd.import", map[string]interface{}{
		"file":  args[0],
		"added": len(added.Questions),
		"used":  len(added.UsedQuestions),
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d pending and %d used questions\n",
		len(added.Questions), len(added.UsedQuestions))
	return nil
}

func runQOTDList(cmd *cobra.Command, args []string) error {
	store, _, err := openFacts(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	questions, err := store.PendingQuestions(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(questions) == 0 {
		fmt.Fprintln(out, "No pending questions")
		return nil
	}
	for i, q := range questions {
		fmt.Fprintf(out, "%d. %s\n", i+1, q.Text)
	}
	return nil
}
