package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"taskplanner/internal/config"
	"taskplanner/internal/db"
	apperrors "taskplanner/internal/errors"
	"taskplanner/internal/markdown"
	"taskplanner/internal/model"
	"taskplanner/internal/realtime"
	"taskplanner/internal/repository"
	"taskplanner/internal/service"
	"taskplanner/internal/syncclient"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "plannerctl",
		Short:         "Administer the task planner database",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(markdownCmd())
	rootCmd.AddCommand(watchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is an open, migrated database with services on top. Writes made here
// are not broadcast; open tabs pick them up on their next refetch.
type app struct {
	cfg      config.Config
	database *sql.DB
	services *service.Services
	users    *repository.UserRepository
}

func openApp() (*app, error) {
	cfg := config.Load()
	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.RunMigrations(database, db.MigrationSource(cfg.MigrationsDir)); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &app{
		cfg:      cfg,
		database: database,
		services: service.NewServices(database, realtime.NoopBroadcaster{}, cfg.JWTSecret, cfg.TokenTTL),
		users:    repository.NewUserRepository(database),
	}, nil
}

func today() string {
	return time.Now().Format(model.DateLayout)
}

func (a *app) Close() error {
	return a.database.Close()
}

func (a *app) userID(ctx context.Context, email string) (string, error) {
	user, err := a.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return "", fmt.Errorf("no user with email %s", email)
	}
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// withApp opens the app for one command run.
func withApp(run func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd.Context(), a, args)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			names, err := db.AppliedMigrations(a.database)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			fmt.Printf("schema current at %s\n", a.cfg.DBPath)
			return nil
		}),
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var email, password string
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a user and print a session token",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			result, apiErr := a.services.Auth.Register(ctx, email, password)
			if apiErr != nil {
				return apiErr
			}
			fmt.Printf("user %s (%s)\ntoken %s\n", result.User.Email, result.User.ID, result.Token)
			return nil
		}),
	}
	create.Flags().StringVar(&email, "email", "", "user email")
	create.Flags().StringVar(&password, "password", "", "user password (min 6 characters)")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	cmd.AddCommand(create)
	return cmd
}

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for the tool gateway",
	}

	var email, name string
	var readOnly bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the key is printed once",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			userID, err := a.userID(ctx, email)
			if err != nil {
				return err
			}
			input := service.CreateAPIKeyInput{Name: name}
			if readOnly {
				no := false
				input.Permissions = &service.PermissionsInput{Create: &no, Update: &no, Delete: &no}
			}
			created, apiErr := a.services.APIKeys.Create(ctx, userID, input)
			if apiErr != nil {
				return apiErr
			}
			fmt.Printf("api key %s (%s)\n%s\n", created.Name, created.ID, created.Key)
			return nil
		}),
	}
	create.Flags().StringVar(&email, "email", "", "owner email")
	create.Flags().StringVar(&name, "name", "", "key name")
	create.Flags().BoolVar(&readOnly, "read-only", false, "grant read permission only")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List a user's API keys",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			userID, err := a.userID(ctx, email)
			if err != nil {
				return err
			}
			keys, apiErr := a.services.APIKeys.List(ctx, userID)
			if apiErr != nil {
				return apiErr
			}
			for _, key := range keys {
				fmt.Printf("%s\t%s\t%s...\tactive=%t\n", key.ID, key.Name, key.KeyPrefix, key.IsActive)
			}
			return nil
		}),
	}
	list.Flags().StringVar(&email, "email", "", "owner email")
	_ = list.MarkFlagRequired("email")

	cmd.AddCommand(create, list)
	return cmd
}

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect tasks",
	}

	var email, date string
	list := &cobra.Command{
		Use:   "list",
		Short: "List a user's tasks for a date",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			userID, err := a.userID(ctx, email)
			if err != nil {
				return err
			}
			tasks, apiErr := a.services.Tasks.ListTasksByDate(ctx, userID, date)
			if apiErr != nil {
				return apiErr
			}
			for _, task := range tasks {
				fmt.Printf("%s\t%s\t%d\t%s\n", task.NanoID, task.Quadrant, task.Priority, markdown.TaskToMarkdown(task))
			}
			return nil
		}),
	}
	list.Flags().StringVar(&email, "email", "", "owner email")
	list.Flags().StringVar(&date, "date", today(), "planner date (YYYY-MM-DD)")
	_ = list.MarkFlagRequired("email")

	cmd.AddCommand(list)
	return cmd
}

func markdownCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "markdown",
		Short: "Export or import a planner's text view",
	}

	var email, date, file string
	export := &cobra.Command{
		Use:   "export",
		Short: "Print a planner as markdown",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			userID, err := a.userID(ctx, email)
			if err != nil {
				return err
			}
			text, apiErr := a.services.Tasks.GetMarkdown(ctx, userID, date)
			if apiErr != nil {
				return apiErr
			}
			fmt.Print(text)
			return nil
		}),
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Replace a planner with the contents of a markdown file",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			userID, err := a.userID(ctx, email)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			result, apiErr := a.services.Tasks.ApplyMarkdown(ctx, userID, date, string(raw))
			if apiErr != nil {
				details, ok := apiErr.Details.(map[string]interface{})
				if ok && apperrors.HasCode(apiErr, apperrors.CodeInvalidMarkdown) {
					lineErrs, _ := details["errors"].([]markdown.LineError)
					for _, lineErr := range lineErrs {
						fmt.Fprintln(os.Stderr, lineErr.Error())
					}
				}
				return apiErr
			}
			for _, line := range result.Diff.Removed {
				fmt.Printf("- %s\n", line)
			}
			for _, line := range result.Diff.Added {
				fmt.Printf("+ %s\n", line)
			}
			fmt.Printf("created %d, updated %d, deleted %d\n", result.Created, result.Updated, result.Deleted)
			return nil
		}),
	}
	importCmd.Flags().StringVar(&file, "file", "", "markdown file to import")
	_ = importCmd.MarkFlagRequired("file")

	for _, c := range []*cobra.Command{export, importCmd} {
		c.Flags().StringVar(&email, "email", "", "owner email")
		c.Flags().StringVar(&date, "date", today(), "planner date (YYYY-MM-DD)")
		_ = c.MarkFlagRequired("email")
	}

	cmd.AddCommand(export, importCmd)
	return cmd
}

func watchCmd() *cobra.Command {
	var email, password, date, server string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a planner date live and print it on every change",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			auth, apiErr := a.services.Auth.Login(ctx, email, password)
			if apiErr != nil {
				return apiErr
			}
			if server == "" {
				server = a.cfg.ServerBaseURL
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()

			c := syncclient.NewController(syncclient.Config{BaseURL: server, Token: auth.Token})
			defer c.Close()
			c.List().OnChange(func(tasks []model.Task) {
				fmt.Printf("-- %s (%d tasks)\n", time.Now().Format(time.TimeOnly), len(tasks))
				for _, task := range tasks {
					fmt.Printf("%s\t%s\n", task.Quadrant, markdown.TaskToMarkdown(task))
				}
			})

			c.Mount(auth.User.ID)
			if err := c.JoinDateRoom(ctx, date); err != nil {
				return fmt.Errorf("join %s on %s: %w", date, server, err)
			}
			<-ctx.Done()
			return nil
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().StringVar(&password, "password", "", "user password")
	cmd.Flags().StringVar(&date, "date", today(), "planner date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&server, "server", "", "server base URL (defaults to SERVER_BASE_URL)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
