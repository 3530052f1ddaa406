// Package cli contains the pickplace command line application.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/pickplace/config"
	"go.viam.com/pickplace/logging"
	"go.viam.com/pickplace/manipulability"
	"go.viam.com/pickplace/motionplan"
	"go.viam.com/pickplace/pickplace"
	"go.viam.com/pickplace/referenceframe"
)

const (
	flagConfig  = "config"
	flagDebug   = "debug"
	flagYes     = "yes"
	flagExecute = "execute"
	flagJoints  = "joints"
	flagJSON    = "json"
)

var configFlag = &cli.StringFlag{
	Name:     flagConfig,
	Aliases:  []string{"c"},
	Usage:    "load configuration from `FILE`",
	Required: true,
}

var app = &cli.App{
	Name:            "pickplace",
	Usage:           "plan and execute pick and place motions",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    flagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:  "run",
			Usage: "plan to the configured goal, confirm and execute",
			Flags: []cli.Flag{
				configFlag,
				&cli.BoolFlag{
					Name:    flagYes,
					Aliases: []string{"y"},
					Usage:   "do not wait for confirmation",
				},
				&cli.BoolFlag{
					Name:  flagExecute,
					Usage: "execute even if the config disables execution",
				},
			},
			Action: RunAction,
		},
		{
			Name:   "plan",
			Usage:  "plan to the configured goal and publish the result without executing",
			Flags:  []cli.Flag{configFlag},
			Action: PlanAction,
		},
		{
			Name:  "manipulability",
			Usage: "evaluate the manipulability of a joint configuration",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    flagConfig,
					Aliases: []string{"c"},
					Usage:   "load the robot model and thresholds from `FILE`",
				},
				&cli.StringFlag{
					Name:     flagJoints,
					Usage:    "comma separated joint positions in radians",
					Required: true,
				},
				&cli.BoolFlag{
					Name:  flagJSON,
					Usage: "print the measures as JSON",
				},
			},
			Action: ManipulabilityAction,
		},
		{
			Name:   "planners",
			Usage:  "list the available planners",
			Action: PlannersAction,
		},
		{
			Name:   "schema",
			Usage:  "print the JSON schema of the config file",
			Action: SchemaAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// RunAction is the corresponding Action for 'run'.
func RunAction(c *cli.Context) error {
	cfg, err := config.Read(c.String(flagConfig))
	if err != nil {
		return err
	}
	if c.Bool(flagExecute) {
		cfg.Execution.Enabled = true
	}
	var prompter pickplace.Prompter = pickplace.AutoConfirm{}
	if !c.Bool(flagYes) {
		prompter = pickplace.NewStdinPrompter(os.Stdin, c.App.Writer)
	}
	return runPipeline(c, cfg, prompter)
}

// PlanAction is the corresponding Action for 'plan'.
func PlanAction(c *cli.Context) error {
	cfg, err := config.Read(c.String(flagConfig))
	if err != nil {
		return err
	}
	cfg.Execution.Enabled = false
	return runPipeline(c, cfg, pickplace.AutoConfirm{})
}

func runPipeline(c *cli.Context, cfg *config.Config, prompter pickplace.Prompter) (err error) {
	logger, closeLogs, err := newLogger(c, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, closeLogs())
	}()

	p, err := pickplace.New(cfg, logger, pickplace.WithPrompter(prompter))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, p.Close(c.Context))
	}()
	printPlanningSetup(c.App.Writer, cfg, p.Model())

	report, runErr := p.Run(c.Context)
	printReport(c.App.Writer, report)
	return runErr
}

func newLogger(c *cli.Context, cfg *config.Config) (logging.Logger, func() error, error) {
	logger := logging.NewLogger("pickplace")
	if cfg.Log.Level != "" {
		level, err := logging.LevelFromString(cfg.Log.Level)
		if err != nil {
			return nil, nil, err
		}
		logger.SetLevel(level)
	}
	if c.Bool(flagDebug) {
		logger.SetLevel(logging.DEBUG)
	}
	if cfg.Log.File == "" {
		return logger, func() error { return nil }, nil
	}
	appender, closer := logging.NewFileAppender(cfg.Log.File, cfg.Log.MaxSizeMB)
	logger.AddAppender(appender)
	return logger, closer.Close, nil
}

func printPlanningSetup(w io.Writer, cfg *config.Config, model *referenceframe.SerialModel) {
	printf(w, "Robot model: %s", model.Name())
	printf(w, "End effector link: %s", model.EndEffector())
	printf(w, "Joints: %s", strings.Join(model.JointNames(), ", "))
	printf(w, "Planner: %s (available: %s)", cfg.Planning.PlannerName(), strings.Join(motionplan.RegisteredPlanners(), ", "))
	if d := cfg.Planning.PlanningTime(); d > 0 {
		printf(w, "Allowed planning time: %v", d)
	}
	printf(w, "Execution enabled: %v", cfg.Execution.Enabled)
}

func candidatesTable(report *pickplace.Report) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Result", "Waypoints", "Duration", "Min manipulability", "Mean manipulability", "Picked"})
	for i, c := range report.Candidates {
		if c == nil || c.Result == nil {
			continue
		}
		row := table.Row{i, c.Result.Code, "", "", "", "", ""}
		if c.Result.Success() {
			row[2] = c.Result.Trajectory.Len()
			row[3] = c.Result.Trajectory.Duration()
			row[4] = fmt.Sprintf("%.4g", c.Score.Min)
			row[5] = fmt.Sprintf("%.4g", c.Score.Mean)
		}
		if c.Result == report.Plan {
			row[6] = "*"
		}
		t.AppendRow(row)
	}
	return t.Render()
}

func printReport(w io.Writer, report *pickplace.Report) {
	if report.Goal != nil {
		printf(w, "Goal: %v", report.Goal)
	}
	if report.Manipulability != nil {
		printf(w, "Start manipulability: %v", report.Manipulability)
	}
	if report.Plan != nil {
		if report.Plan.Success() {
			printf(w, "Plan %s: %d waypoints over %v, planned in %v",
				report.Plan.Code, report.Plan.Trajectory.Len(), report.Plan.Trajectory.Duration(), report.Plan.PlanningTime)
		} else {
			printf(w, "Plan %s: %s", report.Plan.Code, report.Plan.Reason)
		}
	}
	if len(report.Candidates) > 0 {
		printf(w, "%s", candidatesTable(report))
	}
	if report.Execution != nil {
		if report.Execution.Diagnostic != "" {
			printf(w, "Execution %s after %v: %s", report.Execution.Status, report.Execution.Duration(), report.Execution.Diagnostic)
		} else {
			printf(w, "Execution %s after %v", report.Execution.Status, report.Execution.Duration())
		}
	}
}

// ManipulabilityAction is the corresponding Action for 'manipulability'.
func ManipulabilityAction(c *cli.Context) error {
	cfg := &config.Config{}
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = config.Read(path); err != nil {
			return err
		}
	}
	model, err := cfg.Robot.ParseModel()
	if err != nil {
		return err
	}
	positions, err := parseJoints(c.String(flagJoints))
	if err != nil {
		return err
	}
	if len(positions) != model.VariableCount() {
		return referenceframe.NewIncorrectDoFError(len(positions), model.VariableCount())
	}
	jac, err := model.JacobianAt(referenceframe.FloatsToInputs(positions))
	if err != nil {
		return err
	}
	analyzer := manipulability.NewAnalyzer(cfg.Manipulability)
	measures, err := analyzer.Evaluate(jac)
	if err != nil {
		return err
	}

	if c.Bool(flagJSON) {
		out, err := json.MarshalIndent(measures, "", "  ")
		if err != nil {
			return err
		}
		printf(c.App.Writer, "%s", out)
		return nil
	}
	for i, v := range measures.EigenValues {
		printf(c.App.Writer, "eigenvalue %d: %.6g along %v", i, v, measures.Vector(i))
	}
	printf(c.App.Writer, "volume: %.6g isotropy: %.6g", measures.Volume(), measures.Isotropy())
	printf(c.App.Writer, "%s (%s >= %g): %v", passWord(measures.Pass), analyzer.Mode(), analyzer.Threshold(), measures.Pass)
	return nil
}

func passWord(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}

func parseJoints(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	positions := make([]float64, 0, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "joint %d", i)
		}
		positions = append(positions, v)
	}
	return positions, nil
}

// SchemaAction is the corresponding Action for 'schema'.
func SchemaAction(c *cli.Context) error {
	out, err := json.MarshalIndent(config.Schema(), "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", out)
	return nil
}

// PlannersAction is the corresponding Action for 'planners'.
func PlannersAction(c *cli.Context) error {
	for _, name := range motionplan.RegisteredPlanners() {
		printf(c.App.Writer, "%s", name)
	}
	return nil
}
