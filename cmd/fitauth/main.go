package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	fitAuth "github.com/MrEthical07/fitAuth"
	"github.com/MrEthical07/fitAuth/apiclient"
	"github.com/MrEthical07/fitAuth/metrics/export/prometheus"
	"github.com/MrEthical07/fitAuth/session"
)

const usage = `usage: fitauth <command> [flags]

commands:
  status     restore the stored session and print the auth state
  login      sign in with -email and -password
  register   create an account (-name -email -password -type [-coach-code] [-phone])
  whoami     fetch the signed-in profile
  workouts   list the signed-in user's workouts
  logout     end the session
  metrics    run status and print lifecycle metrics in Prometheus format

environment:
  FITAUTH_API_BASE_URL       backend base URL (default http://127.0.0.1:8088)
  FITAUTH_STORAGE_BACKEND    memory|file|redis (default file for this tool)
  FITAUTH_STORAGE_FILE_PATH  credentials file (default <config dir>/fitauth/credentials.yaml)
`

// terminalNavigator prints route changes instead of driving a UI.
type terminalNavigator struct{}

func (terminalNavigator) Replace(route string) error {
	fmt.Fprintf(os.Stderr, "-> %s\n", route)
	return nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	envFile := fs.String("env", ".env", "optional dotenv file")
	verbose := fs.Bool("v", false, "log lifecycle events to stderr")
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("FITAUTH_PASSWORD"), "account password (or FITAUTH_PASSWORD)")
	name := fs.String("name", "", "display name (register)")
	phone := fs.String("phone", "", "phone number (register)")
	accountType := fs.String("type", string(session.AccountTypeStudent), "STUDENT or PERSONAL_TRAINER (register)")
	coachCode := fs.String("coach-code", "", "coach code to link a student (register)")
	timeout := fs.Duration("timeout", 30*time.Second, "overall command timeout")
	_ = fs.Parse(args)

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	client, err := buildClient(*envFile, logger, *verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	state := client.Restore(ctx)

	switch cmd {
	case "status":
		printState(state)
		err = storageHealth(ctx, client)
	case "login":
		err = login(ctx, client, *email, *password)
	case "register":
		err = register(ctx, client, session.Registration{
			Name:        *name,
			Email:       *email,
			Password:    *password,
			Phone:       *phone,
			AccountType: session.AccountType(strings.ToUpper(*accountType)),
			CoachCode:   *coachCode,
		})
	case "whoami":
		err = whoami(ctx, client)
	case "workouts":
		err = workouts(ctx, client)
	case "logout":
		err = client.Logout(ctx)
		if err == nil {
			fmt.Println("signed out")
		}
	case "metrics":
		printState(state)
		fmt.Print(prometheus.NewPrometheusExporter(client).Render())
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describe(err))
		os.Exit(1)
	}
}

func buildClient(envFile string, logger *slog.Logger, verbose bool) (*fitAuth.Client, error) {
	if os.Getenv("FITAUTH_STORAGE_BACKEND") == "" {
		_ = os.Setenv("FITAUTH_STORAGE_BACKEND", string(fitAuth.StorageFile))
	}
	if os.Getenv("FITAUTH_STORAGE_FILE_PATH") == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		_ = os.Setenv("FITAUTH_STORAGE_FILE_PATH", filepath.Join(dir, "fitauth", "credentials.yaml"))
	}
	if os.Getenv("FITAUTH_API_BASE_URL") == "" {
		_ = os.Setenv("FITAUTH_API_BASE_URL", "http://127.0.0.1:8088")
	}

	cfg, err := fitAuth.LoadConfigFromEnv(envFile)
	if err != nil {
		return nil, err
	}
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	b := fitAuth.New().
		WithConfig(cfg).
		WithLogger(logger).
		WithNavigator(terminalNavigator{}).
		UseGlobalCoordinator()
	if verbose {
		cfg.Audit.Enabled = true
		b.WithConfig(cfg).WithAuditSink(fitAuth.NewLogSink(logger))
	}
	return b.Build()
}

func login(ctx context.Context, client *fitAuth.Client, email, password string) error {
	if email == "" || password == "" {
		return errors.New("-email and -password are required")
	}
	sess, err := client.Login(ctx, session.Credentials{Email: email, Password: password})
	if err != nil {
		return err
	}
	fmt.Printf("signed in as %s (%s)\n", sess.Profile.Name, sess.Role)
	return nil
}

func register(ctx context.Context, client *fitAuth.Client, reg session.Registration) error {
	sess, err := client.Register(ctx, reg)
	if err != nil {
		return err
	}
	fmt.Printf("registered %s (%s)\n", sess.Profile.Email, sess.Role)
	return nil
}

func whoami(ctx context.Context, client *fitAuth.Client) error {
	if client.Auth() == nil {
		return errors.New("no API base URL configured")
	}
	p, err := client.Auth().Me(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("id:    %s\nname:  %s\nemail: %s\n", p.ID, p.Name, p.Email)
	if p.CoachID != "" {
		fmt.Printf("coach: %s\n", p.CoachID)
	}
	return nil
}

func workouts(ctx context.Context, client *fitAuth.Client) error {
	if client.API() == nil {
		return errors.New("no API base URL configured")
	}
	list, err := client.API().Workouts(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("no workouts scheduled")
		return nil
	}
	for _, w := range list {
		fmt.Printf("%s  %-24s %s\n", w.ScheduledAt.Local().Format("Mon Jan 2 15:04"), w.Title, w.ID)
	}
	return nil
}

func storageHealth(ctx context.Context, client *fitAuth.Client) error {
	rtt, remote, err := client.Store().Ping(ctx)
	if !remote {
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("storage: %s ok (%s)\n", client.Config().Storage.Backend, rtt.Round(time.Microsecond))
	return nil
}

func printState(state fitAuth.State) {
	sess, ok := state.Session()
	if !ok {
		fmt.Println(state.Status())
		return
	}
	fmt.Printf("%s as %s <%s> (%s)\n", state.Status(), sess.Profile.Name, sess.Profile.Email, sess.Role)
}

func describe(err error) string {
	if apiclient.IsSessionExpired(err) {
		return "session expired, sign in again"
	}
	if apiErr, ok := apiclient.AsAPIError(err); ok {
		return apiErr.Summary()
	}
	return err.Error()
}
