package commands

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/mcolatosti/AWSAccountFactory/internal/dao/accountdao"
)

// RunsCommand reads the run ledger
func RunsCommand(logger *zerolog.Logger) *cli.Command {
	tableFlag := &cli.StringFlag{
		Name:    "accounts-table",
		Usage:   "DynamoDB table of the run ledger (defaults to the table of --env)",
		EnvVars: []string{"ACCOUNTS_TABLE"},
	}

	return &cli.Command{
		Name:  "runs",
		Usage: "Inspect provisioning runs recorded in the run ledger",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"l"},
				Usage:   "List runs, newest first",
				Description: `Lists every run, or the runs of one account.

Examples:
  account-factory runs list --env prod
  account-factory runs list --env prod --account-name payments --output yaml`,
				Flags: []cli.Flag{
					envFlag(),
					tableFlag,
					outputFlag(outputText, outputText, outputJSON, outputYAML),
					&cli.StringFlag{
						Name:    "account-name",
						Aliases: []string{"n"},
						Usage:   "Only list runs of this account",
					},
				},
				Action: listRunsAction,
			},
			{
				Name:  "show",
				Usage: "Show a single run",
				Description: `Shows a run by its id ({account name}:{run id}).

Examples:
  account-factory runs show --env prod --id payments:2ZxkDfQpV3bKc1Q5Hh8jYyW0aTn`,
				Flags: []cli.Flag{
					envFlag(),
					tableFlag,
					outputFlag(outputText, outputText, outputJSON, outputYAML),
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Run id",
						Required: true,
					},
				},
				Action: showRunAction,
			},
		},
	}
}

// runView is the printable form of a run record
type runView struct {
	ID            string   `json:"id" yaml:"id"`
	AccountName   string   `json:"account_name" yaml:"account_name"`
	AccountID     string   `json:"account_id,omitempty" yaml:"account_id,omitempty"`
	ParentHub     string   `json:"parent_hub,omitempty" yaml:"parent_hub,omitempty"`
	Topology      string   `json:"topology,omitempty" yaml:"topology,omitempty"`
	Status        string   `json:"status" yaml:"status"`
	FailureReason string   `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`
	OUID          string   `json:"ou_id,omitempty" yaml:"ou_id,omitempty"`
	DegradedRoles []string `json:"degraded_roles,omitempty" yaml:"degraded_roles,omitempty"`
	RequestID     string   `json:"request_id,omitempty" yaml:"request_id,omitempty"`
	CreatedAt     string   `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	FinishedAt    string   `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

func newRunView(record accountdao.Record) runView {
	view := runView{
		ID:            record.GetID().String(),
		AccountName:   record.PK.String(),
		AccountID:     record.AccountID,
		ParentHub:     record.ParentHub,
		Topology:      record.Topology,
		Status:        string(record.Status),
		FailureReason: record.FailureReason,
		OUID:          record.OUID,
		DegradedRoles: record.DegradedRoles,
		RequestID:     record.RequestID,
	}
	if record.CreatedAt > 0 {
		view.CreatedAt = formatUnix(record.CreatedAt)
	}
	if record.FinishedAt != nil {
		view.FinishedAt = formatUnix(*record.FinishedAt)
	}
	return view
}

func formatUnix(seconds int64) string {
	return time.Unix(seconds, 0).UTC().Format(time.RFC3339)
}

func listRunsAction(c *cli.Context) error {
	logger := zerolog.Ctx(c.Context)

	dao, err := createAccountDAO(c.Context, c.String("env"), c.String("accounts-table"))
	if err != nil {
		return err
	}

	var records []accountdao.Record
	if name := c.String("account-name"); name != "" {
		records, err = dao.QueryByAccount(c.Context, name)
	} else {
		records, err = dao.FindAll(c.Context)
	}
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	views := make([]runView, 0, len(records))
	for _, record := range records {
		views = append(views, newRunView(record))
	}
	sortRuns(views)

	logger.Debug().Int("runs", len(views)).Msg("Retrieved runs")

	if c.String("output") == outputText {
		return displayRuns(c.App.Writer, views)
	}
	return writeOutput(c.App.Writer, c.String("output"), views)
}

func showRunAction(c *cli.Context) error {
	dao, err := createAccountDAO(c.Context, c.String("env"), c.String("accounts-table"))
	if err != nil {
		return err
	}

	record, err := dao.Find(c.Context, accountdao.ID(c.String("id")))
	if err != nil {
		return err
	}

	view := newRunView(record)
	if c.String("output") == outputText {
		return displayRun(c.App.Writer, view)
	}
	return writeOutput(c.App.Writer, c.String("output"), view)
}

// sortRuns orders runs newest first; KSUIDs sort by creation time
func sortRuns(views []runView) {
	sort.SliceStable(views, func(i, j int) bool {
		return runSK(views[i].ID) > runSK(views[j].ID)
	})
}

func runSK(id string) string {
	if idx := strings.LastIndex(id, ":"); idx >= 0 {
		return id[idx+1:]
	}
	return id
}

func displayRuns(w io.Writer, views []runView) error {
	if len(views) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tACCOUNT ID\tTOPOLOGY\tSTATUS\tCREATED")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.ID, dash(v.AccountID), dash(v.Topology), v.Status, dash(v.CreatedAt))
	}
	return tw.Flush()
}

func displayRun(w io.Writer, v runView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"Run", v.ID},
		{"Account", v.AccountName},
		{"Account ID", dash(v.AccountID)},
		{"Parent hub", dash(v.ParentHub)},
		{"Topology", dash(v.Topology)},
		{"Status", v.Status},
		{"OU", dash(v.OUID)},
		{"Request", dash(v.RequestID)},
		{"Created", dash(v.CreatedAt)},
		{"Finished", dash(v.FinishedAt)},
	}
	if v.FailureReason != "" {
		rows = append(rows, [2]string{"Failure", v.FailureReason})
	}
	if len(v.DegradedRoles) > 0 {
		rows = append(rows, [2]string{"Degraded roles", strings.Join(v.DegradedRoles, ", ")})
	}

	for _, row := range rows {
		fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1])
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// createAccountDAO creates an accountdao.DAO instance
func createAccountDAO(ctx context.Context, env, table string) (*accountdao.DAO, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if table == "" {
		table = accountdao.TableName(env)
	}
	return accountdao.New(dynamodb.NewFromConfig(cfg), table), nil
}
