package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"evalgate/internal/agent"
	"evalgate/internal/eval"
	"evalgate/internal/judge"
	"evalgate/internal/server"
)

type cliError struct {
	code int
	err  error
}

func (e cliError) Error() string { return e.err.Error() }

func loadError(err error) error { return cliError{code: 2, err: err} }

func gateFailure(message string) error {
	return cliError{code: 1, err: errors.New(message)}
}

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		var ce cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, "error:", ce.err)
			os.Exit(ce.code)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
}

type rootFlags struct {
	agentURL    string
	judgeURL    string
	judgeModel  string
	reportsDir  string
	concurrency int
	timeoutSec  int
	jsonOutput  bool
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "evalgate",
		Short:         "Quality gates for a conversational agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.agentURL, "agent-url", envOr("EVALGATE_AGENT_URL", "http://localhost:3100"), "agent chat endpoint base URL")
	root.PersistentFlags().StringVar(&flags.judgeURL, "judge-url", envOr("EVALGATE_JUDGE_URL", "http://localhost:11434"), "judge chat endpoint base URL")
	root.PersistentFlags().StringVar(&flags.judgeModel, "judge-model", envOr("EVALGATE_JUDGE_MODEL", "qwen2.5:3b"), "judge model name")
	root.PersistentFlags().StringVar(&flags.reportsDir, "reports-dir", envOr("EVALGATE_REPORTS_DIR", "reports"), "directory for report JSON files")
	root.PersistentFlags().IntVar(&flags.concurrency, "concurrency", 4, "max test cases in flight")
	root.PersistentFlags().IntVar(&flags.timeoutSec, "timeout", 30, "per-call timeout in seconds")
	root.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "print the full report as JSON")

	root.AddCommand(newRunCommand(flags))
	root.AddCommand(newGateCommand(flags))
	root.AddCommand(newGoldenCommand(flags))
	root.AddCommand(newRedTeamCommand(flags))
	root.AddCommand(newRegressionCommand(flags))
	root.AddCommand(newABCommand(flags))
	root.AddCommand(newServeEvalCommand())
	return root
}

func newRunCommand(flags *rootFlags) *cobra.Command {
	var sessionPrefix string
	var overallThreshold float64
	cmd := &cobra.Command{
		Use:   "run <dataset.json>",
		Short: "Evaluate a dataset and apply the quality gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cases, err := eval.LoadDataset(args[0])
			if err != nil {
				return loadError(err)
			}
			orchestrator := newOrchestrator(flags)
			run := orchestrator.Run(cmd.Context(), cases, runOptions(flags, args[0], sessionPrefix))

			thresholds := eval.DefaultThresholds()
			if overallThreshold > 0 {
				thresholds.Overall = overallThreshold
			}
			gate := eval.CheckGate(run, thresholds)

			path, err := eval.SaveReport(flags.reportsDir, eval.PrefixEval, run)
			if err != nil {
				return loadError(fmt.Errorf("save report: %w", err))
			}
			if flags.jsonOutput {
				printJSON(map[string]any{"run": run, "gate": gate})
			} else {
				printRunSummary(run, path)
				fmt.Println(gate.Summary())
				for _, check := range gate.Checks {
					marker := "ok  "
					if !check.Passed {
						marker = "FAIL"
					}
					fmt.Printf("  [%s] %-12s %.2f (threshold %.2f)\n", marker, check.Name, check.Score, check.Threshold)
				}
			}
			if !gate.Passed {
				return gateFailure("quality gate failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionPrefix, "session-prefix", "eval", "session id prefix sent to the agent")
	cmd.Flags().Float64Var(&overallThreshold, "overall-threshold", 0, "override the overall pass-rate threshold")
	return cmd
}

func newGateCommand(flags *rootFlags) *cobra.Command {
	var overallThreshold float64
	cmd := &cobra.Command{
		Use:   "gate [report.json]",
		Short: "Apply the quality gate to a saved run report",
		Long:  "Without an argument the most recent eval report in the reports directory is used.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveReportArg(args, flags.reportsDir)
			if err != nil {
				return loadError(err)
			}
			run, err := eval.LoadRun(path)
			if err != nil {
				return loadError(err)
			}
			thresholds := eval.DefaultThresholds()
			if overallThreshold > 0 {
				thresholds.Overall = overallThreshold
			}
			gate := eval.CheckGate(run, thresholds)
			if flags.jsonOutput {
				printJSON(gate)
			} else {
				fmt.Printf("report: %s\n%s\n", path, gate.Summary())
				for _, check := range gate.Checks {
					marker := "ok  "
					if !check.Passed {
						marker = "FAIL"
					}
					fmt.Printf("  [%s] %-12s %.2f (threshold %.2f)\n", marker, check.Name, check.Score, check.Threshold)
				}
			}
			if !gate.Passed {
				return gateFailure("quality gate failed")
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&overallThreshold, "overall-threshold", 0, "override the overall pass-rate threshold")
	return cmd
}

func newGoldenCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "golden <dataset.json>",
		Short: "Hold every case in a golden set to a 4/5 judge score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cases, err := eval.LoadDataset(args[0])
			if err != nil {
				return loadError(err)
			}
			orchestrator := newOrchestrator(flags)
			run := orchestrator.Run(cmd.Context(), cases, runOptions(flags, args[0], "golden"))
			report := eval.CheckGolden(run)

			path, err := eval.SaveReport(flags.reportsDir, eval.PrefixGolden, report)
			if err != nil {
				return loadError(fmt.Errorf("save report: %w", err))
			}
			if flags.jsonOutput {
				printJSON(report)
			} else {
				fmt.Printf("golden set: %d cases, %d passed, %d failed (report %s)\n",
					report.Total, report.PassedCount, report.FailedCount, path)
				for _, failure := range report.Failures {
					fmt.Printf("  FAIL %s: %s\n", failure.TestID, failureReason(failure))
				}
			}
			if !report.Passed {
				return gateFailure("golden gate failed")
			}
			return nil
		},
	}
	return cmd
}

func newRedTeamCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redteam <dataset.json>",
		Short: "Drive adversarial cases and check refusal behavior",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cases, err := eval.LoadDataset(args[0])
			if err != nil {
				return loadError(err)
			}
			orchestrator := newOrchestrator(flags)
			report := orchestrator.RunRedTeam(cmd.Context(), cases, runOptions(flags, args[0], "redteam"))

			path, err := eval.SaveReport(flags.reportsDir, eval.PrefixRedTeam, report)
			if err != nil {
				return loadError(fmt.Errorf("save report: %w", err))
			}
			if flags.jsonOutput {
				printJSON(report)
			} else {
				fmt.Printf("red team: %d cases, %d passed, safety score %.1f (report %s)\n",
					report.Total, report.Passed, report.SafetyScore, path)
				for _, result := range report.Results {
					if result.Passed {
						continue
					}
					fmt.Printf("  FAIL %s (%s): %s\n", result.TestID, result.ExpectedBehavior, result.Notes)
				}
			}
			if report.Failed > 0 {
				return gateFailure("red team checks failed")
			}
			return nil
		},
	}
	return cmd
}

func newRegressionCommand(flags *rootFlags) *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "regression [baseline.json current.json]",
		Short: "Compare two run reports for score drops",
		Long:  "Without arguments the two most recent eval reports are compared, older as baseline.",
		Args:  cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			baselinePath, currentPath, err := resolveRegressionArgs(args, flags.reportsDir)
			if err != nil {
				return loadError(err)
			}
			baseline, err := eval.LoadRun(baselinePath)
			if err != nil {
				return loadError(fmt.Errorf("load baseline: %w", err))
			}
			current, err := eval.LoadRun(currentPath)
			if err != nil {
				return loadError(fmt.Errorf("load current: %w", err))
			}
			report := eval.DetectRegressions(baseline, current, threshold)

			path, err := eval.SaveReport(flags.reportsDir, eval.PrefixRegression, report)
			if err != nil {
				return loadError(fmt.Errorf("save report: %w", err))
			}
			if flags.jsonOutput {
				printJSON(report)
			} else {
				fmt.Printf("baseline %s vs current %s: %d regressions, %d improvements, rate %.1f%%, verdict %s (report %s)\n",
					report.BaselineRun, report.CurrentRun, len(report.Regressions),
					len(report.Improvements), report.RegressionRate, report.Verdict, path)
				for _, regression := range report.Regressions {
					fmt.Printf("  %s %s: %.1f -> %.1f\n",
						strings.ToUpper(string(regression.Severity)), regression.TestID,
						regression.BaselineScore, regression.CurrentScore)
				}
			}
			if report.Verdict == eval.StatusFail {
				return gateFailure("regression gate failed")
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 1, "score drop on the 0-5 scale that counts as a regression")
	return cmd
}

func newABCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ab <test.json>",
		Short: "Run an A/B comparison between two agent configurations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			test, err := loadABTest(args[0])
			if err != nil {
				return loadError(err)
			}
			orchestrator := newOrchestrator(flags)
			report := orchestrator.CompareAB(cmd.Context(), test, runOptions(flags, args[0], ""))

			path, err := eval.SaveReport(flags.reportsDir, eval.PrefixAB, report)
			if err != nil {
				return loadError(fmt.Errorf("save report: %w", err))
			}
			if flags.jsonOutput {
				printJSON(report)
				return nil
			}
			fmt.Printf("%s: %s %.1f vs %s %.1f, winner %s (report %s)\n",
				report.Name, report.VariantAName, report.VariantAScore,
				report.VariantBName, report.VariantBScore, report.Winner, path)
			for category, delta := range report.Categories {
				fmt.Printf("  %-12s %.1f vs %.1f -> %s\n", category, delta.VariantA, delta.VariantB, delta.Winner)
			}
			return nil
		},
	}
	return cmd
}

func newServeEvalCommand() *cobra.Command {
	var listenAddr, version string
	cmd := &cobra.Command{
		Use:   "serve-eval",
		Short: "Serve the standalone answer-scoring HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			facade := server.NewEvalFacade("evalgate", version)
			httpServer := &http.Server{
				Addr:              listenAddr,
				Handler:           facade.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				slog.Info("eval facade listening", "addr", listenAddr)
				errCh <- httpServer.ListenAndServe()
			}()
			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", envOr("EVALGATE_FACADE_ADDR", ":8080"), "listen address")
	cmd.Flags().StringVar(&version, "version", "dev", "version string reported by /health")
	return cmd
}

func newOrchestrator(flags *rootFlags) *eval.Orchestrator {
	timeout := time.Duration(flags.timeoutSec) * time.Second
	agentClient := agent.NewClient(agent.Config{BaseURL: flags.agentURL, Timeout: timeout})
	judgeClient := judge.NewClient(judge.Config{
		BaseURL: flags.judgeURL,
		Model:   flags.judgeModel,
		Timeout: timeout,
	})
	return eval.NewOrchestrator(agentClient, judgeClient)
}

func runOptions(flags *rootFlags, dataset, sessionPrefix string) eval.Options {
	return eval.Options{
		Concurrency:   flags.concurrency,
		SessionPrefix: sessionPrefix,
		CallTimeout:   time.Duration(flags.timeoutSec) * time.Second,
		Endpoint:      flags.agentURL,
		Dataset:       dataset,
	}
}

func resolveReportArg(args []string, reportsDir string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	return eval.LatestReport(reportsDir, eval.PrefixEval)
}

func resolveRegressionArgs(args []string, reportsDir string) (baseline, current string, err error) {
	switch len(args) {
	case 2:
		return args[0], args[1], nil
	case 0:
		paths, err := eval.LatestReports(reportsDir, eval.PrefixEval, 2)
		if err != nil {
			return "", "", err
		}
		if len(paths) < 2 {
			return "", "", fmt.Errorf("need two eval reports in %s, found %d", reportsDir, len(paths))
		}
		// LatestReports returns newest first.
		return paths[1], paths[0], nil
	default:
		return "", "", errors.New("pass both report paths or neither")
	}
}

func loadABTest(path string) (eval.ABTest, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return eval.ABTest{}, fmt.Errorf("read ab test: %w", err)
	}
	var test eval.ABTest
	if err := json.Unmarshal(data, &test); err != nil {
		return eval.ABTest{}, fmt.Errorf("decode ab test: %w", err)
	}
	if len(test.TestCases) == 0 {
		return eval.ABTest{}, errors.New("ab test has no test cases")
	}
	if err := eval.NormalizeCases(test.TestCases); err != nil {
		return eval.ABTest{}, fmt.Errorf("ab test %s: %w", path, err)
	}
	return test, nil
}

func printRunSummary(run eval.Run, reportPath string) {
	fmt.Printf("run %s: %d cases, %d passed, %d failed, pass rate %.1f%% (report %s)\n",
		run.RunID, len(run.Results), run.Passed, run.Failed, run.PassRate()*100, reportPath)
	for _, result := range run.Results {
		if result.Passed {
			continue
		}
		fmt.Printf("  FAIL %s: %s\n", result.TestID, failureReason(result))
	}
}

func failureReason(result eval.TestResult) string {
	if result.Error != "" {
		return result.Error
	}
	if result.Judge != nil {
		return fmt.Sprintf("score %.1f: %s", result.Judge.Score, result.Judge.Reason)
	}
	return fmt.Sprintf("overall score %.2f below %.2f", result.OverallScore, result.MinScore)
}

func printJSON(value any) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	fmt.Println(string(data))
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
