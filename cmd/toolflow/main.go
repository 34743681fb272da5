// Command toolflow runs and validates tool orchestration workflows.
//
// Usage:
//
//	toolflow validate workflow.yaml       # validate a workflow definition
//	toolflow run workflow.yaml            # execute with the built-in echo invoker
//	toolflow run -config cfg.yaml w.yaml  # with engine configuration
//	toolflow version
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/craftide/toolflow/config"
	"github.com/craftide/toolflow/internal/metrics"
	"github.com/craftide/toolflow/internal/telemetry"
	"github.com/craftide/toolflow/orchestrator"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("toolflow %s\n", version)
	case "validate":
		if err := runValidate(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "run":
		if err := runExecute(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: toolflow <validate|run|version> [flags] <workflow file>")
}

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("validate expects exactly one workflow file")
	}

	wf, err := orchestrator.LoadFromFile(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Printf("workflow %q is valid: %d tools, %d edges\n", wf.ID, len(wf.Tools), len(wf.Edges))
	return nil
}

func runExecute(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "engine configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("run expects exactly one workflow file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer providers.Shutdown(context.Background())

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, prometheus.DefaultRegisterer, logger)
	}

	wf, err := orchestrator.LoadFromFile(fs.Arg(0))
	if err != nil {
		return err
	}

	engine := orchestrator.NewEngine(echoInvoker(logger),
		orchestrator.WithLogger(logger),
		orchestrator.WithCollector(collector),
		orchestrator.WithWorkers(cfg.Engine.Workers),
		orchestrator.WithQueueSize(cfg.Engine.QueueSize),
	)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownTimeout)
		defer cancel()
		engine.Shutdown(ctx)
	}()

	if err := engine.LoadWorkflow(context.Background(), wf); err != nil {
		return err
	}
	exec, err := engine.ExecuteWorkflow(wf.ID)
	if err != nil {
		return err
	}
	<-exec.Done()

	snap := exec.Snapshot()
	out, err := json.MarshalIndent(struct {
		Execution orchestrator.ExecutionSnapshot    `json:"execution"`
		Metrics   orchestrator.OrchestrationMetrics `json:"metrics"`
	}{snap, engine.GetMetrics()}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if snap.Status != orchestrator.ExecutionCompleted {
		return fmt.Errorf("execution finished with status %s", snap.Status)
	}
	return nil
}

// echoInvoker is the built-in demo invoker: it sleeps for the node's
// "delay_ms" param, fails when "fail" is true, and otherwise returns the
// node's "result" param or an echo of its params.
func echoInvoker(logger *zap.Logger) orchestrator.ToolInvoker {
	return orchestrator.InvokerFunc(func(ctx context.Context, node *orchestrator.ToolNode, exec *orchestrator.ExecutionContext) (any, error) {
		if delay := paramInt(node.Params, "delay_ms"); delay > 0 {
			select {
			case <-time.After(time.Duration(delay) * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if fail, ok := node.Params["fail"].(bool); ok && fail {
			return nil, fmt.Errorf("tool %s failed (fail=true)", node.Name)
		}
		logger.Debug("echo invoke", zap.String("node_id", node.ID))
		if result, ok := node.Params["result"]; ok {
			return result, nil
		}
		return map[string]any{"tool": node.Name, "params": node.Params}, nil
	})
}

// paramInt reads a numeric param as int; YAML decodes numbers as int, JSON as
// float64.
func paramInt(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
