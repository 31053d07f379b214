package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskline/internal/app"
	"taskline/internal/config"
	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Taskline CLI",
	Long: `Taskline is a task manager you can talk to.
Messages are interpreted into task commands and routed by confidence:
confident commands run, uncertain ones ask first, and the rest fall
back to a suggestion you can run yourself. Slash commands (/add,
/list, /done, /update, /delete) always bypass interpretation.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user", "", "acting user email")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(conversationCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default taskline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userCreateCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Engine.CreateUser(ctx, email, password)
				if err != nil {
					return err
				}
				fmt.Printf("Created user %s (%s)\n", u.Email, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (min 8 characters)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks directly"}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskDoneCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskAddCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, a *app.App, u domain.User) error {
				opts := engine.TaskCreateOptions{UserID: u.ID, Title: strings.Join(args, " ")}
				if cmd.Flags().Changed("description") {
					opts.Description = &description
				}
				t, err := a.Engine.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTasks([]domain.Task{t})
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "task description")
	return cmd
}

func taskListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, a *app.App, u domain.User) error {
				tasks, err := a.Engine.ListTasks(ctx, u.ID, status)
				if err != nil {
					return err
				}
				return printJSONOrTasks(tasks)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "all", "all, pending or completed")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, a *app.App, u domain.User) error {
				t, err := a.Engine.GetTask(ctx, u.ID, args[0])
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	return cmd
}

func taskDoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a task as done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, a *app.App, u domain.User) error {
				t, err := a.Engine.CompleteTask(ctx, u.ID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTasks([]domain.Task{t})
			})
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, a *app.App, u domain.User) error {
				opts := engine.TaskUpdateOptions{UserID: u.ID, TaskID: args[0]}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &description
				}
				t, err := a.Engine.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTasks([]domain.Task{t})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, a *app.App, u domain.User) error {
				t, err := a.Engine.DeleteTask(ctx, u.ID, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Deleted %q\n", t.Title)
				return nil
			})
		},
	}
	return cmd
}

func chatCmd() *cobra.Command {
	chat := &cobra.Command{Use: "chat", Short: "Talk to the assistant"}
	chat.AddCommand(chatSendCmd())
	chat.AddCommand(chatConfirmCmd())
	return chat
}

func chatSendCmd() *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, a *app.App, u domain.User) error {
				reply, err := a.Orchestrator.Send(ctx, u.ID, conversationID, strings.Join(args, " "))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(reply)
				}
				fmt.Println(reply.Message)
				if reply.NeedsConfirmation {
					fmt.Printf("Confirm with: tl chat confirm --token %s [--decline]\n", reply.ConfirmationToken)
				}
				if reply.SuggestedCommand != "" {
					fmt.Printf("Try: %s\n", reply.SuggestedCommand)
				}
				if len(reply.Tasks) > 0 {
					renderTasks(reply.Tasks)
				}
				fmt.Printf("(conversation %s)\n", reply.ConversationID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id (blank starts a new one)")
	return cmd
}

func chatConfirmCmd() *cobra.Command {
	var token string
	var decline bool
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Approve or decline a pending action",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, a *app.App, u domain.User) error {
				reply, err := a.Orchestrator.Confirm(ctx, u.ID, token, !decline)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(reply)
				}
				fmt.Println(reply.Message)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "confirmation token")
	cmd.Flags().BoolVar(&decline, "decline", false, "decline instead of approving")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func conversationCmd() *cobra.Command {
	conv := &cobra.Command{Use: "conversation", Short: "Browse conversation history"}
	conv.AddCommand(conversationListCmd())
	conv.AddCommand(conversationMessagesCmd())
	return conv
}

func conversationListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, a *app.App, u domain.User) error {
				items, err := a.Engine.Repo.ListConversations(ctx, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Updated"})
				for _, c := range items {
					title := ""
					if c.Title != nil {
						title = *c.Title
					}
					tw.AppendRow(table.Row{c.ID, title, c.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func conversationMessagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messages <id>",
		Short: "Show a conversation transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, a *app.App, u domain.User) error {
				if _, err := a.Engine.Repo.GetConversation(ctx, u.ID, args[0]); err != nil {
					return err
				}
				msgs, err := a.Engine.Repo.ListMessages(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(msgs)
				}
				for _, m := range msgs {
					fmt.Printf("[%s] %s: %s\n", m.Timestamp, m.Role, m.Content)
				}
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	logc.AddCommand(logTailCmd())
	return logc
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, a *app.App, u domain.User) error {
				events, err := a.Engine.Repo.LatestEvents(ctx, n, u.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.Config.Server.Addr
			}
			if basePath == "" {
				basePath = a.Config.Server.BasePath
			}
			secret, err := a.JWTSecret()
			if err != nil {
				return err
			}
			handler, err := server.New(server.Config{
				Engine:       a.Engine,
				Orchestrator: a.Orchestrator,
				BasePath:     basePath,
				Auth: server.AuthConfig{
					JWTSecret: secret,
					TokenTTL:  time.Duration(a.Config.Auth.TokenTTLMinutes) * time.Minute,
					Logger:    a.Log,
				},
				Log: a.Log,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Taskline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	return cmd
}

// --- helpers ---

func openApp() (*app.App, error) {
	return app.Open(app.Options{
		Workspace: viper.GetString("workspace"),
		Verbose:   viper.GetBool("verbose"),
	})
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withUser(ctx context.Context, fn func(context.Context, *app.App, domain.User) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		email := strings.TrimSpace(viper.GetString("user"))
		if email == "" {
			return fmt.Errorf("no acting user; pass --user <email> or set TASKLINE_USER")
		}
		u, err := a.Engine.Repo.GetUserByEmail(ctx, strings.ToLower(email))
		if err != nil {
			return fmt.Errorf("user %s not found; create one with tl user create", email)
		}
		return fn(ctx, a, u)
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJSONOrTasks(tasks []domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(tasks)
	}
	renderTasks(tasks)
	return nil
}

func renderTasks(tasks []domain.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Done", "Updated"})
	for _, t := range tasks {
		done := ""
		if t.IsCompleted {
			done = "x"
		}
		tw.AppendRow(table.Row{t.ID, t.Title, done, t.UpdatedAt})
	}
	tw.Render()
}
