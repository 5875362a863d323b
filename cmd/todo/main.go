// Command todo manages tasks in the local store from the terminal.
//
//	todo add -title "Buy milk" [-description "..."] [-completed]
//	todo list
//	todo show <id>
//	todo edit <id> [-title "..."] [-description "..."]
//	todo complete <id>
//	todo activate <id>
//	todo delete <id>
//	todo clear-completed
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hiroki-koketsu/go-todo-mvp/internal/config"
	"github.com/hiroki-koketsu/go-todo-mvp/internal/model"
	"github.com/hiroki-koketsu/go-todo-mvp/internal/repository"
	"github.com/hiroki-koketsu/go-todo-mvp/internal/taskdetail"
	"github.com/hiroki-koketsu/go-todo-mvp/internal/telemetry"
	"github.com/hiroki-koketsu/go-todo-mvp/internal/view"
)

const usage = `usage: todo <command> [arguments]

commands:
  add -title T [-description D] [-completed]
  list
  show <id>
  edit <id> [-title T] [-description D]
  complete <id>
  activate <id>
  delete <id>
  clear-completed
`

var errUsage = errors.New("invalid usage")

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, logCloser := telemetry.NewLocalLogger(cfg.LogFile)
	defer logCloser.Close()

	local, err := repository.OpenBoltDataSource(cfg.LocalDBPath)
	if err != nil {
		logger.Error("failed to open local store", slog.String("path", cfg.LocalDBPath), slog.Any("error", err))
		fmt.Fprintln(os.Stderr, "cannot open task store:", err)
		os.Exit(1)
	}

	app := &app{
		repo:   repository.NewTasksRepository(local, nil, logger),
		logger: logger,
		out:    os.Stdout,
	}
	err = app.run(context.Background(), os.Args[1], os.Args[2:])
	app.repo.Wait()
	local.Close()

	switch {
	case errors.Is(err, errUsage):
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	case err != nil:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	repo   *repository.TasksRepository
	logger *slog.Logger
	out    io.Writer
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "add":
		return a.add(ctx, args)
	case "list":
		return a.list(ctx)
	case "clear-completed":
		if err := a.repo.ClearCompletedTasks(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Completed tasks cleared")
		return nil
	case "show", "edit", "complete", "activate", "delete":
		if len(args) < 1 {
			return errUsage
		}
		return a.detail(ctx, cmd, args[0], args[1:])
	default:
		return errUsage
	}
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	var req model.CreateTaskRequest
	fs.StringVar(&req.Title, "title", "", "task title")
	fs.StringVar(&req.Description, "description", "", "task description")
	fs.BoolVar(&req.Completed, "completed", false, "create the task already completed")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if err := req.Validate(); err != nil {
		return err
	}

	task := req.NewTask()
	if err := a.repo.SaveTask(ctx, task); err != nil {
		return err
	}
	fmt.Fprintln(a.out, task.ID())
	return nil
}

type listResult struct {
	tasks []*model.Task
	ok    bool
}

func (r *listResult) OnTasksLoaded(tasks []*model.Task) {
	r.tasks, r.ok = tasks, true
}

func (r *listResult) OnDataNotAvailable() {}

func (a *app) list(ctx context.Context) error {
	var res listResult
	a.repo.GetTasks(ctx, &res)
	a.repo.Wait()
	if !res.ok {
		return errors.New("tasks are not available")
	}
	view.RenderList(a.out, res.tasks)
	return nil
}

// detail runs a command through the task detail presenter, with the console
// as its view.
func (a *app) detail(ctx context.Context, cmd, id string, args []string) error {
	console := view.NewConsole(a.out)
	defer console.Detach()

	detail, err := taskdetail.NewPresenter(id, a.repo, console, a.logger)
	if err != nil {
		return err
	}
	presenter := console.Presenter()

	if cmd == "delete" {
		presenter.DeleteTask(ctx)
		return nil
	}

	presenter.Start(ctx)
	a.repo.Wait()
	task := detail.Task()
	if task == nil {
		return model.ErrTaskNotFound
	}

	switch cmd {
	case "complete":
		presenter.CompleteChanged(ctx, task, true)
	case "activate":
		presenter.CompleteChanged(ctx, task, false)
	case "edit":
		fs := flag.NewFlagSet("edit", flag.ContinueOnError)
		title := fs.String("title", task.Title(), "new title")
		description := fs.String("description", task.Description(), "new description")
		if err := fs.Parse(args); err != nil {
			return errUsage
		}
		if *title == "" && *description == "" {
			return model.ErrEmptyTask
		}
		return presenter.ChangeTask(ctx, *title, *description)
	}
	return nil
}
