// Command manage is the controller CLI: process/status/list/pause/resume/
// retry, mirroring original_source/manage.py's argparse subcommands with
// the standard library's flag package instead, the way the teacher's own
// cmd/*/main.go entrypoints stick to flag and cobra-free dispatch.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/vectorq/taskqueue/internal/config"
	"github.com/vectorq/taskqueue/internal/coordination"
	"github.com/vectorq/taskqueue/internal/logger"
	"github.com/vectorq/taskqueue/internal/task"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel, false)

	client, err := coordination.New(coordination.Config{
		Endpoints:   cfg.Etcd.Endpoints,
		DialTimeout: cfg.Etcd.DialTimeout,
		Username:    cfg.Etcd.Username,
		Password:    cfg.Etcd.Password,
		Service:     cfg.Service.Name,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to etcd: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	controller := task.NewController(client)
	ctx := context.Background()

	var cmdErr error
	switch os.Args[1] {
	case "process":
		cmdErr = runProcess(ctx, controller, os.Args[2:])
	case "status":
		cmdErr = runStatus(ctx, controller, os.Args[2:])
	case "list":
		cmdErr = runList(ctx, controller, os.Args[2:])
	case "pause":
		cmdErr = runPause(ctx, controller, os.Args[2:])
	case "resume":
		cmdErr = runResume(ctx, controller, os.Args[2:])
	case "retry":
		cmdErr = runRetry(ctx, controller, os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}

	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", cmdErr)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: manage <process|status|list|pause|resume|retry> [args]")
}

func runProcess(ctx context.Context, c *task.Controller, args []string) error {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	taskName := fs.String("task-name", "", "task name (defaults to input->output)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errors.New("process requires input and output file arguments")
	}

	input, output := fs.Arg(0), fs.Arg(1)
	name := *taskName
	if name == "" {
		name = fmt.Sprintf("%s->%s", input, output)
	}

	init := task.Init{InputFile: input, OutputFile: output}
	if err := c.Create(ctx, name, init); err != nil {
		return err
	}

	fmt.Printf("created task: `%s`\n", name)
	return nil
}

func runStatus(ctx context.Context, c *task.Controller, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	raw := fs.Bool("raw", false, "print the raw JSON state")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("status requires a task name")
	}
	name := fs.Arg(0)

	st, err := c.Get(ctx, name)
	if err != nil {
		return err
	}

	if *raw {
		data, err := json.MarshalIndent(st, "", "    ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println(statusLine(name, st))
	return nil
}

func runList(ctx context.Context, c *task.Controller, args []string) error {
	summaries, err := c.List(ctx)
	if err != nil {
		return err
	}
	for _, s := range summaries {
		fmt.Println(statusLine(s.ID, s.State))
	}
	return nil
}

func runPause(ctx context.Context, c *task.Controller, args []string) error {
	if len(args) < 1 {
		return errors.New("pause requires a task name")
	}
	return c.Pause(ctx, args[0])
}

func runResume(ctx context.Context, c *task.Controller, args []string) error {
	if len(args) < 1 {
		return errors.New("resume requires a task name")
	}
	return c.Resume(ctx, args[0])
}

func runRetry(ctx context.Context, c *task.Controller, args []string) error {
	if len(args) < 1 {
		return errors.New("retry requires a task name")
	}
	return c.Retry(ctx, args[0])
}

func statusLine(id string, st *task.State) string {
	line := fmt.Sprintf("%s: %s", id, st.Status)
	if st.Progress != nil {
		data, err := json.Marshal(st.Progress)
		if err == nil {
			line += fmt.Sprintf(" progress: %s", string(data))
		}
	}
	return line
}
